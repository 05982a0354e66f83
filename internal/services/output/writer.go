// Package output streams crawled records into one or more pretty-printed
// JSON-array segment files, splitting on byte and token thresholds.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/models"
)

// Writer accumulates records into a batch and flushes a segment file whenever
// the byte cap or the token cap would be exceeded.
//
// Segment naming: a single segment is written to basePath unchanged; once a
// second segment exists, segments are named {base}-{n}.json for n = 1, 2, ...
type Writer struct {
	basePath        string
	maxBytes        int64        // 0 disables the byte cap
	maxTokens       models.Limit // Unlimited disables the token cap
	counter         TokenCounter
	logger          arbor.ILogger
	batch           []models.CrawledRecord
	batchBytes      int64
	estimatedTokens int
	written         []string // Paths written so far, in order
	closed          bool
}

// NewWriter creates a writer for one task's output.
// maxFileSizeMB <= 0 disables the byte cap.
func NewWriter(basePath string, maxFileSizeMB int, maxTokens models.Limit, counter TokenCounter, logger arbor.ILogger) *Writer {
	var maxBytes int64
	if maxFileSizeMB > 0 {
		maxBytes = int64(maxFileSizeMB) * 1024 * 1024
	}
	return &Writer{
		basePath:  basePath,
		maxBytes:  maxBytes,
		maxTokens: maxTokens,
		counter:   counter,
		logger:    logger,
	}
}

// Add appends one record, flushing the current batch first when a cap would
// be exceeded. A record whose token count alone exceeds the cap is placed
// into a fresh batch with its estimate halved, so the crawl keeps producing
// output instead of failing on one oversized page.
func (w *Writer) Add(record models.CrawledRecord) error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize record for %s: %w", record.URL, err)
	}
	recordBytes := int64(len(data))

	if w.maxBytes > 0 && len(w.batch) > 0 && w.batchBytes+recordBytes > w.maxBytes {
		if err := w.flush(); err != nil {
			return err
		}
	}

	if !w.maxTokens.IsUnlimited() {
		tokens := w.counter.Count(string(data))
		limit := w.maxTokens.Value()

		if w.estimatedTokens+tokens > limit {
			if len(w.batch) > 0 {
				if err := w.flush(); err != nil {
					return err
				}
			}
			if tokens > limit {
				// Oversized record: keep it, halve the estimate
				w.batch = append(w.batch, record)
				w.batchBytes = recordBytes
				w.estimatedTokens = tokens / 2
				return nil
			}
			w.batch = append(w.batch, record)
			w.batchBytes = recordBytes
			w.estimatedTokens = tokens
			return nil
		}
		w.estimatedTokens += tokens
	}

	w.batch = append(w.batch, record)
	w.batchBytes += recordBytes
	return nil
}

// Close flushes any pending batch and returns the paths written, in order.
// Closing a writer that saw no records writes nothing.
func (w *Writer) Close() ([]string, error) {
	if w.closed {
		return w.written, nil
	}
	w.closed = true

	if len(w.batch) > 0 {
		if err := w.flush(); err != nil {
			return w.written, err
		}
	}

	w.logger.Debug().
		Str("base_path", w.basePath).
		Int("segments", len(w.written)).
		Msg("Output writer closed")

	return w.written, nil
}

// flush writes the current batch as the next segment
func (w *Writer) flush() error {
	if len(w.batch) == 0 {
		return nil
	}

	path := w.nextSegmentPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	data, err := json.MarshalIndent(w.batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize output batch: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output segment %s: %w", path, err)
	}

	w.logger.Debug().
		Str("path", path).
		Int("records", len(w.batch)).
		Int64("bytes", int64(len(data))).
		Msg("Output segment written")

	w.written = append(w.written, path)
	w.batch = nil
	w.batchBytes = 0
	w.estimatedTokens = 0
	return nil
}

// nextSegmentPath returns the target for the upcoming segment, renaming the
// first segment into the numbered scheme once a second one appears
func (w *Writer) nextSegmentPath() string {
	base := strings.TrimSuffix(w.basePath, ".json")

	switch len(w.written) {
	case 0:
		return w.basePath
	case 1:
		// Second segment: retroactively move the first into the -1 slot
		first := fmt.Sprintf("%s-1.json", base)
		if err := os.Rename(w.written[0], first); err != nil {
			w.logger.Warn().Err(err).Str("path", w.written[0]).Msg("Failed to renumber first output segment")
		} else {
			w.written[0] = first
		}
		return fmt.Sprintf("%s-2.json", base)
	default:
		return fmt.Sprintf("%s-%d.json", base, len(w.written)+1)
	}
}
