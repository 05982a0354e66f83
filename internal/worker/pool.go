// Package worker runs the polling loop that claims queue entries and
// dispatches them to the task runner with bounded concurrency.
package worker

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/runner"
)

// pollBackoffFactor grows the poll interval while the queue is idle
const pollBackoffFactor = 1.5

// TaskExecutor runs one task to completion. Satisfied by runner.Runner.
type TaskExecutor interface {
	Run(ctx context.Context, jobName string, task models.TaskConfig, outputDirOverride string) runner.Result
}

// Pool is the worker process: one polling goroutine plus up to N concurrent
// task executions. Shutdown drains: polling stops, in-flight tasks finish.
type Pool struct {
	queue    interfaces.QueueStorage
	jobs     interfaces.JobStorage
	runner   TaskExecutor
	config   common.QueueConfig
	logger   arbor.ILogger
	slots    chan struct{}
	active   sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

// New creates a worker pool
func New(queue interfaces.QueueStorage, jobs interfaces.JobStorage, r TaskExecutor, config common.QueueConfig, logger arbor.ILogger) *Pool {
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Pool{
		queue:   queue,
		jobs:    jobs,
		runner:  r,
		config:  config,
		logger:  logger,
		slots:   make(chan struct{}, concurrency),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start performs startup recovery and launches the polling loop
func (p *Pool) Start(ctx context.Context) error {
	reset, err := p.queue.ResetStuck(ctx, p.config.JobTimeout())
	if err != nil {
		return err
	}
	cleaned, err := p.queue.CleanupOld(ctx, p.config.CleanupAgeDuration())
	if err != nil {
		return err
	}

	stats, err := p.queue.Stats(ctx)
	if err != nil {
		return err
	}
	p.logger.Info().
		Int("reset_stuck", reset).
		Int("cleaned_up", cleaned).
		Int("pending", stats.Pending).
		Int("claimed", stats.Claimed).
		Int("completed", stats.Completed).
		Int("failed", stats.Failed).
		Int("concurrency", cap(p.slots)).
		Msg("Worker pool starting")

	p.started.Store(true)
	go p.loop(ctx)
	return nil
}

// Stop halts polling and waits for in-flight tasks to finish. Idempotent.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
	})
	if p.started.Load() {
		<-p.done
	}
	p.active.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

// loop is the adaptive polling loop: the interval resets on a successful
// claim and grows toward the ceiling while the queue is idle
func (p *Pool) loop(ctx context.Context) {
	defer close(p.done)

	interval := p.config.PollInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-p.stopped:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		claimed := p.claimAvailable(ctx)

		if claimed > 0 {
			interval = p.config.PollInterval()
		} else {
			interval = time.Duration(float64(interval) * pollBackoffFactor)
			if max := p.config.MaxPollInterval(); interval > max {
				interval = max
			}
		}
		timer.Reset(interval)
	}
}

// claimAvailable claims entries while capacity remains, dispatching each
// asynchronously so the polling loop never blocks on task execution
func (p *Pool) claimAvailable(ctx context.Context) int {
	claimed := 0
	for {
		select {
		case p.slots <- struct{}{}:
		default:
			return claimed // At capacity
		}

		entry, err := p.queue.ClaimNext(ctx)
		if err != nil {
			<-p.slots
			if !errors.Is(err, interfaces.ErrNoPendingJobs) {
				p.logger.Warn().Err(err).Msg("Failed to claim queue entry")
			}
			return claimed
		}

		claimed++
		p.active.Add(1)
		go func(entry *models.QueueEntry) {
			defer p.active.Done()
			defer func() { <-p.slots }()
			p.execute(ctx, entry)
		}(entry)
	}
}

// execute runs one claimed entry through the task runner and records the
// outcome in the queue and the job store
func (p *Pool) execute(ctx context.Context, entry *models.QueueEntry) {
	payload, err := models.DecodePayload(entry.Payload)
	if err != nil {
		// A payload that cannot decode will never succeed; fail without retry
		p.logger.Error().Err(err).Str("job_id", entry.JobID).Msg("Undecodable queue payload")
		p.recordFailure(ctx, entry, err, false)
		return
	}

	if err := p.jobs.UpdateStatus(ctx, entry.JobID, models.JobStatusRunning, nil); err != nil {
		p.logger.Warn().Err(err).Str("job_id", entry.JobID).Msg("Failed to mark job running")
	}

	p.logger.Info().
		Str("job_id", entry.JobID).
		Str("job", payload.JobName).
		Str("task", payload.Task.Name).
		Int("attempt", entry.Attempts).
		Msg("Task dispatched")

	result := p.runner.Run(ctx, payload.JobName, payload.Task, "")

	if result.Success {
		p.recordSuccess(ctx, entry, result.OutputFile)
		return
	}
	p.recordFailure(ctx, entry, result.Err, true)
}

func (p *Pool) recordSuccess(ctx context.Context, entry *models.QueueEntry, outputFile string) {
	if err := p.queue.MarkCompleted(ctx, entry.QueueID); err != nil {
		p.logger.Error().Err(err).Str("job_id", entry.JobID).Msg("Failed to mark queue entry completed")
	}

	now := time.Now()
	if err := p.jobs.UpdateStatus(ctx, entry.JobID, models.JobStatusCompleted, &models.JobStatusUpdate{
		OutputFile:  outputFile,
		CompletedAt: &now,
	}); err != nil {
		p.logger.Error().Err(err).Str("job_id", entry.JobID).Msg("Failed to mark job completed")
	}

	// Opportunistic cleanup keeps the queue small between startups
	if _, err := p.queue.ClearCompleted(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to clear completed entries")
	}

	p.logger.Info().
		Str("job_id", entry.JobID).
		Str("output", outputFile).
		Msg("Task succeeded")
}

func (p *Pool) recordFailure(ctx context.Context, entry *models.QueueEntry, taskErr error, shouldRetry bool) {
	errMsg := firstLine(taskErr)
	retry := shouldRetry && entry.Attempts < entry.MaxAttempts

	// Jitter the base delay; the queue applies the exponential factor
	backoff := time.Duration(float64(p.config.BackoffDelay()) * (0.5 + rand.Float64()*0.5))

	if err := p.queue.MarkFailed(ctx, entry.QueueID, errMsg, retry, backoff); err != nil {
		p.logger.Error().Err(err).Str("job_id", entry.JobID).Msg("Failed to mark queue entry failed")
	}

	if retry {
		p.logger.Warn().
			Str("job_id", entry.JobID).
			Int("attempt", entry.Attempts).
			Int("max_attempts", entry.MaxAttempts).
			Str("error", errMsg).
			Msg("Task failed, will retry")
		return
	}

	now := time.Now()
	if err := p.jobs.UpdateStatus(ctx, entry.JobID, models.JobStatusFailed, &models.JobStatusUpdate{
		Error:       errMsg,
		CompletedAt: &now,
	}); err != nil {
		p.logger.Error().Err(err).Str("job_id", entry.JobID).Msg("Failed to mark job failed")
	}

	p.logger.Error().
		Str("job_id", entry.JobID).
		Str("error", errMsg).
		Msg("Task failed terminally")
}

// firstLine reduces an error to its user-visible first line; full context
// stays in the logs
func firstLine(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
