package crawler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/models"
)

// Dataset is a per-session record store: one JSON file per record under the
// session's private storage directory. Each session owns its directory
// exclusively; concurrent sessions never share or purge each other's state.
type Dataset struct {
	Name   string
	dir    string
	logger arbor.ILogger
	mu     sync.Mutex
	seq    int
}

// NewDataset creates the dataset directory
func NewDataset(name, dir string, logger arbor.ILogger) (*Dataset, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dataset directory %s: %w", dir, err)
	}
	return &Dataset{
		Name:   name,
		dir:    dir,
		logger: logger,
	}, nil
}

// Dir returns the dataset's private storage directory
func (d *Dataset) Dir() string {
	return d.dir
}

// Push appends one record. Records are numbered in push order.
func (d *Dataset) Push(record models.CrawledRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to serialize record for %s: %w", record.URL, err)
	}

	d.mu.Lock()
	d.seq++
	path := filepath.Join(d.dir, fmt.Sprintf("%06d.json", d.seq))
	d.mu.Unlock()

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write record %s: %w", path, err)
	}
	return nil
}

// Count returns the number of records pushed so far
func (d *Dataset) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

// Replay streams the stored records in push order through fn, one record in
// memory at a time
func (d *Dataset) Replay(fn func(models.CrawledRecord) error) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return fmt.Errorf("failed to read dataset directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(d.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read record %s: %w", path, err)
		}

		var record models.CrawledRecord
		if err := json.Unmarshal(data, &record); err != nil {
			d.logger.Warn().Err(err).Str("path", path).Msg("Skipping unparseable dataset record")
			continue
		}

		if err := fn(record); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes the dataset directory. A missing directory is not an error.
func (d *Dataset) Remove() error {
	if err := os.RemoveAll(d.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove dataset directory %s: %w", d.dir, err)
	}
	return nil
}
