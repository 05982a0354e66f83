package interfaces

import (
	"context"
	"time"

	"github.com/temrb/context-crawler/internal/models"
)

// QueueStorage is the durable at-least-once work queue.
// Claim semantics: select+update runs as one serialized operation so no two
// workers observe the same entry as claimed.
type QueueStorage interface {
	// Add inserts a new pending entry. Fails with ErrDuplicateJob if jobID is already queued.
	Add(ctx context.Context, jobID, payload string, priority, maxAttempts int) (*models.QueueEntry, error)

	// ClaimNext atomically claims the highest-priority ready entry,
	// incrementing its attempt count. Returns ErrNoPendingJobs when nothing is ready.
	ClaimNext(ctx context.Context) (*models.QueueEntry, error)

	// MarkCompleted transitions a claimed entry to its terminal completed state
	MarkCompleted(ctx context.Context, queueID uint64) error

	// MarkFailed either reschedules the entry with exponential backoff
	// (shouldRetry and attempts < maxAttempts) or marks it terminally failed
	MarkFailed(ctx context.Context, queueID uint64, errMsg string, shouldRetry bool, backoff time.Duration) error

	// ResetStuck reverts claimed entries older than timeout to pending,
	// clearing claimedAt and leaving attempts untouched. Returns the count.
	ResetStuck(ctx context.Context, timeout time.Duration) (int, error)

	// CleanupOld deletes terminal entries older than age. Returns the count.
	CleanupOld(ctx context.Context, age time.Duration) (int, error)

	// ClearCompleted deletes all terminal entries regardless of age. Returns the count.
	ClearCompleted(ctx context.Context) (int, error)

	// GetByJobID looks up an entry by its external job ID
	GetByJobID(ctx context.Context, jobID string) (*models.QueueEntry, error)

	// Stats returns entry counts by status
	Stats(ctx context.Context) (*models.QueueStats, error)
}

// JobStorage is the per-submission status/result store
type JobStorage interface {
	Create(ctx context.Context, jobID, config string) (*models.JobRecord, error)
	Get(ctx context.Context, jobID string) (*models.JobRecord, error)
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, update *models.JobStatusUpdate) error
	List(ctx context.Context) ([]*models.JobRecord, error)
	Delete(ctx context.Context, jobID string) error
}

// StorageManager owns the database handles behind the queue and job store
type StorageManager interface {
	QueueStorage() QueueStorage
	JobStorage() JobStorage
	Close() error
}
