package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/runner"
	badgerstorage "github.com/temrb/context-crawler/internal/storage/badger"
)

// fakeExecutor simulates task execution and records concurrency
type fakeExecutor struct {
	delay      time.Duration
	fail       bool
	inFlight   atomic.Int64
	maxSeen    atomic.Int64
	executions atomic.Int64
}

func (f *fakeExecutor) Run(ctx context.Context, jobName string, task models.TaskConfig, outputDirOverride string) runner.Result {
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if cur <= seen || f.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	f.executions.Add(1)

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}

	if f.fail {
		return runner.Result{Err: errors.New("crawl produced no records")}
	}
	return runner.Result{Success: true, OutputFile: "output/jobs/" + jobName + ".json"}
}

type poolFixture struct {
	queue interfaces.QueueStorage
	jobs  interfaces.JobStorage
	pool  *Pool
	exec  *fakeExecutor
}

func newPoolFixture(t *testing.T, exec *fakeExecutor, config common.QueueConfig) *poolFixture {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badgerstorage.NewManager(logger, &common.StorageConfig{
		QueuePath: t.TempDir() + "/queue.db",
		JobsPath:  t.TempDir() + "/jobs.db",
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	return &poolFixture{
		queue: manager.QueueStorage(),
		jobs:  manager.JobStorage(),
		pool:  New(manager.QueueStorage(), manager.JobStorage(), exec, config, logger),
		exec:  exec,
	}
}

func (f *poolFixture) enqueue(t *testing.T, jobID string, maxAttempts int) {
	t.Helper()
	ctx := context.Background()
	payload, err := models.EncodePayload("alpha", models.TaskConfig{
		Name:     "alpha-" + jobID,
		Entry:    "https://example.test/",
		Match:    models.StringList{"https://example.test/**"},
		Selector: "main",
	})
	require.NoError(t, err)
	_, err = f.jobs.Create(ctx, jobID, payload)
	require.NoError(t, err)
	_, err = f.queue.Add(ctx, jobID, payload, 0, maxAttempts)
	require.NoError(t, err)
}

func quickConfig() common.QueueConfig {
	return common.QueueConfig{
		Concurrency:    2,
		PollIntervalMs: 10,
		MaxPollMs:      50,
		JobTimeoutMs:   60000,
		BackoffDelayMs: 1,
		MaxAttempts:    3,
		CleanupAge:     "168h",
	}
}

// Ten entries at concurrency two: everything completes and no more than two
// tasks ever run at once.
func TestPoolBoundedConcurrency(t *testing.T) {
	exec := &fakeExecutor{delay: 30 * time.Millisecond}
	f := newPoolFixture(t, exec, quickConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.enqueue(t, "job-"+string(rune('a'+i)), 3)
	}

	require.NoError(t, f.pool.Start(ctx))

	require.Eventually(t, func() bool {
		stats, err := f.queue.Stats(context.Background())
		if err != nil {
			return false
		}
		// Completed entries are opportunistically cleared, so drained means
		// nothing pending or claimed and nothing failed
		return stats.Pending == 0 && stats.Claimed == 0 && stats.Failed == 0 && exec.executions.Load() == 10
	}, 5*time.Second, 20*time.Millisecond)

	f.pool.Stop()

	assert.LessOrEqual(t, exec.maxSeen.Load(), int64(2))

	records, err := f.jobs.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 10)
	for _, record := range records {
		assert.Equal(t, models.JobStatusCompleted, record.Status)
		assert.NotEmpty(t, record.OutputFile)
		assert.NotNil(t, record.CompletedAt)
	}
}

// A task that always fails exhausts its retry budget and lands terminally
// failed in both stores with a non-empty error.
func TestPoolRetriesThenFailsTerminally(t *testing.T) {
	exec := &fakeExecutor{fail: true}
	f := newPoolFixture(t, exec, quickConfig())
	ctx := context.Background()

	f.enqueue(t, "doomed", 3)

	require.NoError(t, f.pool.Start(ctx))

	require.Eventually(t, func() bool {
		record, err := f.jobs.Get(context.Background(), "doomed")
		return err == nil && record.Status == models.JobStatusFailed
	}, 10*time.Second, 20*time.Millisecond)

	f.pool.Stop()

	assert.Equal(t, int64(3), exec.executions.Load())

	record, err := f.jobs.Get(ctx, "doomed")
	require.NoError(t, err)
	assert.Equal(t, "crawl produced no records", record.Error)
	assert.NotNil(t, record.CompletedAt)

	entry, err := f.queue.GetByJobID(ctx, "doomed")
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFailed, entry.Status)
	assert.Equal(t, 3, entry.Attempts)
}

// A claim orphaned by a dead worker is reset at the next worker start and
// reclaimed.
func TestPoolRecoversStuckEntriesOnStart(t *testing.T) {
	exec := &fakeExecutor{}
	config := quickConfig()
	config.JobTimeoutMs = 1
	f := newPoolFixture(t, exec, config)
	ctx := context.Background()

	f.enqueue(t, "orphan", 3)

	// Simulate a worker that claimed and died
	_, err := f.queue.ClaimNext(ctx)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, f.pool.Start(ctx))

	require.Eventually(t, func() bool {
		record, err := f.jobs.Get(context.Background(), "orphan")
		return err == nil && record.Status == models.JobStatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	f.pool.Stop()
}

func TestPoolStopIsIdempotentAndDrains(t *testing.T) {
	exec := &fakeExecutor{delay: 50 * time.Millisecond}
	f := newPoolFixture(t, exec, quickConfig())
	ctx := context.Background()

	f.enqueue(t, "slow", 3)
	require.NoError(t, f.pool.Start(ctx))

	// Wait for the task to be picked up
	require.Eventually(t, func() bool {
		return exec.inFlight.Load() > 0 || exec.executions.Load() > 0
	}, 5*time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.pool.Stop()
		}()
	}
	wg.Wait()

	// Drained: the in-flight task finished before Stop returned
	assert.Equal(t, int64(0), exec.inFlight.Load())
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "boom", firstLine(errors.New("boom\nstack line 1\nstack line 2")))
	assert.Equal(t, "plain", firstLine(errors.New("plain")))
	assert.Equal(t, "unknown error", firstLine(nil))
}
