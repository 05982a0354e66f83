// Package runner wraps one crawl task end-to-end: isolated storage, crawl,
// output write, cleanup.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/crawler"
	"github.com/temrb/context-crawler/internal/services/output"
)

// Result is the outcome of one task run
type Result struct {
	Success    bool
	OutputFile string
	Err        error
}

// Runner executes crawl tasks. Safe for concurrent use: every run owns a
// unique dataset directory.
type Runner struct {
	crawlerConfig common.CrawlerConfig
	global        models.GlobalConfig
	storageRoot   string // Transient dataset root (storage/jobs)
	outputRoot    string // Job artifact root (output/jobs)
	counter       output.TokenCounter
	logger        arbor.ILogger
}

// New creates a task runner
func New(crawlerConfig common.CrawlerConfig, global models.GlobalConfig, storageRoot, outputRoot string, counter output.TokenCounter, logger arbor.ILogger) *Runner {
	return &Runner{
		crawlerConfig: crawlerConfig,
		global:        global,
		storageRoot:   storageRoot,
		outputRoot:    outputRoot,
		counter:       counter,
		logger:        logger,
	}
}

// Run executes one task: prepare isolated storage, crawl, stream the dataset
// through the output writer, then unconditionally remove the transient
// storage. outputDirOverride redirects the artifact (used by the aggregator
// for transient per-task files); empty means the configured output root.
func (r *Runner) Run(ctx context.Context, jobName string, task models.TaskConfig, outputDirOverride string) Result {
	datasetName := common.NewDatasetName()
	storageDir := filepath.Join(r.storageRoot, datasetName)

	outputDir := r.outputRoot
	if outputDirOverride != "" {
		outputDir = outputDirOverride
	}
	outputPath := filepath.Join(outputDir, SanitizeOutputFileName(task.OutputFileName, jobName))

	r.logger.Info().
		Str("job", jobName).
		Str("task", task.Name).
		Str("dataset", datasetName).
		Str("output", outputPath).
		Msg("Task starting")

	dataset, err := crawler.NewDataset(datasetName, storageDir, r.logger)
	if err != nil {
		return Result{Err: err}
	}
	// Transient storage is removed on every exit path, success or failure
	defer r.removeStorage(dataset)

	session, err := crawler.NewSession(crawler.SessionConfig{
		Task:    task,
		Global:  r.global,
		Crawler: r.crawlerConfig,
		Dataset: dataset,
	}, r.logger)
	if err != nil {
		return Result{Err: err}
	}

	if err := session.Run(ctx); err != nil {
		return Result{Err: err}
	}

	writer := output.NewWriter(outputPath, task.MaxFileSize, r.global.MaxTokens, r.counter, r.logger)
	if err := dataset.Replay(writer.Add); err != nil {
		return Result{Err: fmt.Errorf("failed to write output: %w", err)}
	}
	written, err := writer.Close()
	if err != nil {
		return Result{Err: fmt.Errorf("failed to finalize output: %w", err)}
	}
	if len(written) == 0 {
		return Result{Err: fmt.Errorf("task %s produced no output", task.Name)}
	}

	r.logger.Info().
		Str("job", jobName).
		Str("task", task.Name).
		Int("records", dataset.Count()).
		Int("segments", len(written)).
		Msg("Task completed")

	return Result{Success: true, OutputFile: written[0]}
}

// removeStorage deletes the session's transient directory. Not-found is
// ignored; other I/O errors surface as warnings, never as task failure.
func (r *Runner) removeStorage(dataset *crawler.Dataset) {
	if err := dataset.Remove(); err != nil {
		r.logger.Warn().Err(err).Str("dir", dataset.Dir()).Msg("Failed to remove transient crawl storage")
	}
}

// SanitizeOutputFileName forces the artifact name into a single filename:
// directory components and traversal sequences are stripped, so any
// user-supplied value lands strictly under the job output directory. An
// empty name derives from the job name.
func SanitizeOutputFileName(name, jobName string) string {
	if name == "" {
		name = jobName + ".json"
	}

	// Backslashes are separators on no platform we write to, but strip them
	// anyway so a crafted name cannot smuggle components through
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	if name == "." || name == ".." || name == "/" || name == "" {
		name = jobName + ".json"
	}
	if !strings.HasSuffix(name, ".json") {
		name += ".json"
	}
	return name
}

// EnsureDir creates a directory if missing
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
