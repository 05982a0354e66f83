// Package aggregator coordinates multi-task jobs on the direct execution
// path: tasks run sequentially into a scratch directory, then their outputs
// merge into one canonical job artifact with bounded memory.
package aggregator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/runner"
)

// Aggregator runs a named job's tasks one at a time and merges their
// transient outputs
type Aggregator struct {
	runner     *runner.Runner
	outputRoot string
	logger     arbor.ILogger
}

// New creates an aggregator writing final artifacts under outputRoot
func New(r *runner.Runner, outputRoot string, logger arbor.ILogger) *Aggregator {
	return &Aggregator{
		runner:     r,
		outputRoot: outputRoot,
		logger:     logger,
	}
}

// RunJob executes every task sequentially, each into a unique transient file
// under a fresh temp directory, then merges the successful outputs in
// submission order. Zero successful tasks skips the artifact entirely.
func (a *Aggregator) RunJob(ctx context.Context, jobName string, tasks []models.TaskConfig) (string, error) {
	tmpDir, err := os.MkdirTemp("", "context-crawler-")
	if err != nil {
		return "", fmt.Errorf("failed to create aggregation scratch directory: %w", err)
	}
	defer func() {
		// Best-effort: a leftover scratch directory is a nuisance, not a failure
		if err := os.RemoveAll(tmpDir); err != nil {
			a.logger.Warn().Err(err).Str("dir", tmpDir).Msg("Failed to remove aggregation scratch directory")
		}
	}()

	var transientFiles []string
	for i, task := range tasks {
		// Unique transient file per task, keeping submission order in the name
		t := task
		t.OutputFileName = fmt.Sprintf("task-%03d-%s.json", i, task.Name)

		result := a.runner.Run(ctx, jobName, t, tmpDir)
		if !result.Success {
			a.logger.Warn().
				Err(result.Err).
				Str("job", jobName).
				Str("task", task.Name).
				Msg("Task failed, continuing aggregation with remaining tasks")
			continue
		}
		transientFiles = append(transientFiles, result.OutputFile)
	}

	if len(transientFiles) == 0 {
		return "", fmt.Errorf("job %s: no tasks succeeded, skipping aggregation", jobName)
	}

	finalPath := filepath.Join(a.outputRoot, runner.SanitizeOutputFileName("", jobName))
	if err := MergeFiles(transientFiles, finalPath, a.logger); err != nil {
		return "", err
	}

	a.logger.Info().
		Str("job", jobName).
		Int("tasks", len(tasks)).
		Int("merged", len(transientFiles)).
		Str("output", finalPath).
		Msg("Job aggregation complete")

	return finalPath, nil
}

// MergeFiles streams the transient files into one pretty-printed JSON array
// at finalPath. Inputs parse as either a JSON array or a single object; at
// most one input file is open and one element buffered at any moment.
// Unreadable or unparseable inputs are skipped with a warning.
func MergeFiles(paths []string, finalPath string, logger arbor.ILogger) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	out, err := os.Create(finalPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", finalPath, err)
	}
	w := bufio.NewWriter(out)

	if _, err := w.WriteString("[\n"); err != nil {
		out.Close()
		return fmt.Errorf("failed to write aggregate: %w", err)
	}

	first := true
	for _, path := range paths {
		if err := appendFileElements(w, path, &first); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Skipping unusable transient file")
		}
	}

	if _, err := w.WriteString("\n]\n"); err != nil {
		out.Close()
		return fmt.Errorf("failed to write aggregate: %w", err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("failed to flush aggregate: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close aggregate: %w", err)
	}
	return nil
}

// appendFileElements streams one transient file's elements onto the writer
func appendFileElements(w *bufio.Writer, path string, first *bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open transient file: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read transient file: %w", err)
	}

	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		for dec.More() {
			var elem json.RawMessage
			if err := dec.Decode(&elem); err != nil {
				return fmt.Errorf("failed to decode array element: %w", err)
			}
			if err := writeElement(w, elem, first); err != nil {
				return err
			}
		}
		return nil
	}

	// Not an array: treat the whole file as a single object
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind transient file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read transient file: %w", err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("transient file is not valid JSON")
	}
	return writeElement(w, data, first)
}

// writeElement emits one element, pretty-printed two spaces deeper than the
// enclosing array
func writeElement(w *bufio.Writer, elem json.RawMessage, first *bool) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, elem, "  ", "  "); err != nil {
		return fmt.Errorf("failed to indent element: %w", err)
	}

	if !*first {
		if _, err := w.WriteString(",\n"); err != nil {
			return err
		}
	}
	*first = false

	if _, err := w.WriteString("  "); err != nil {
		return err
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}
