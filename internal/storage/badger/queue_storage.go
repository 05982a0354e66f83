package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
)

// QueueStorage implements the durable queue on Badger.
// Badger's directory lock makes the database single-process, so the claim
// mutex is the serialization point for select+update: no two goroutines can
// claim the same entry.
type QueueStorage struct {
	db      *BadgerDB
	logger  arbor.ILogger
	claimMu sync.Mutex
}

// NewQueueStorage creates a new QueueStorage instance
func NewQueueStorage(db *BadgerDB, logger arbor.ILogger) interfaces.QueueStorage {
	return &QueueStorage{
		db:     db,
		logger: logger,
	}
}

func (s *QueueStorage) Add(ctx context.Context, jobID, payload string, priority, maxAttempts int) (*models.QueueEntry, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	entry := &models.QueueEntry{
		JobID:       jobID,
		Status:      models.QueueStatusPending,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}

	if err := s.db.Store().Insert(badgerhold.NextSequence(), entry); err != nil {
		if errors.Is(err, badgerhold.ErrUniqueExists) {
			return nil, fmt.Errorf("job %s: %w", jobID, interfaces.ErrDuplicateJob)
		}
		return nil, fmt.Errorf("failed to insert queue entry: %w", err)
	}

	s.logger.Debug().
		Int64("queue_id", int64(entry.QueueID)).
		Str("job_id", jobID).
		Int("priority", priority).
		Msg("Queue entry added")

	return entry, nil
}

func (s *QueueStorage) ClaimNext(ctx context.Context) (*models.QueueEntry, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	now := time.Now()

	// Indexed scan on status; retry-readiness is filtered in memory because
	// badgerhold queries on nullable pointer fields panic in reflection.
	var pending []models.QueueEntry
	if err := s.db.Store().Find(&pending, badgerhold.Where("Status").Eq(models.QueueStatusPending).Index("Status")); err != nil {
		return nil, fmt.Errorf("failed to scan pending entries: %w", err)
	}

	ready := pending[:0]
	for _, e := range pending {
		if e.NextRetryAt == nil || !e.NextRetryAt.After(now) {
			ready = append(ready, e)
		}
	}
	if len(ready) == 0 {
		return nil, interfaces.ErrNoPendingJobs
	}

	// priority DESC, createdAt ASC
	sort.SliceStable(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	claimed := ready[0]
	claimed.Status = models.QueueStatusClaimed
	claimed.ClaimedAt = &now
	claimed.Attempts++

	if err := s.db.Store().Update(claimed.QueueID, &claimed); err != nil {
		return nil, fmt.Errorf("failed to claim entry %d: %w", claimed.QueueID, err)
	}

	s.logger.Debug().
		Int64("queue_id", int64(claimed.QueueID)).
		Str("job_id", claimed.JobID).
		Int("attempts", claimed.Attempts).
		Msg("Queue entry claimed")

	return &claimed, nil
}

func (s *QueueStorage) MarkCompleted(ctx context.Context, queueID uint64) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	entry, err := s.getByQueueID(queueID)
	if err != nil {
		return err
	}
	if entry.Status.IsTerminal() {
		return fmt.Errorf("entry %d is already terminal (%s)", queueID, entry.Status)
	}

	now := time.Now()
	entry.Status = models.QueueStatusCompleted
	entry.CompletedAt = &now

	if err := s.db.Store().Update(queueID, entry); err != nil {
		return fmt.Errorf("failed to mark entry %d completed: %w", queueID, err)
	}

	s.logger.Debug().
		Int64("queue_id", int64(queueID)).
		Str("job_id", entry.JobID).
		Msg("Queue entry completed")

	return nil
}

func (s *QueueStorage) MarkFailed(ctx context.Context, queueID uint64, errMsg string, shouldRetry bool, backoff time.Duration) error {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	entry, err := s.getByQueueID(queueID)
	if err != nil {
		return err
	}
	if entry.Status.IsTerminal() {
		return fmt.Errorf("entry %d is already terminal (%s)", queueID, entry.Status)
	}

	now := time.Now()
	entry.Error = errMsg

	if shouldRetry && entry.Attempts < entry.MaxAttempts {
		delay := backoff * time.Duration(1<<(entry.Attempts-1))
		retryAt := now.Add(delay)
		entry.Status = models.QueueStatusPending
		entry.NextRetryAt = &retryAt
		entry.ClaimedAt = nil

		s.logger.Info().
			Int64("queue_id", int64(queueID)).
			Str("job_id", entry.JobID).
			Int("attempts", entry.Attempts).
			Int("max_attempts", entry.MaxAttempts).
			Dur("retry_in", delay).
			Msg("Queue entry scheduled for retry")
	} else {
		entry.Status = models.QueueStatusFailed
		entry.CompletedAt = &now

		s.logger.Warn().
			Int64("queue_id", int64(queueID)).
			Str("job_id", entry.JobID).
			Int("attempts", entry.Attempts).
			Str("error", errMsg).
			Msg("Queue entry failed terminally")
	}

	if err := s.db.Store().Update(queueID, entry); err != nil {
		return fmt.Errorf("failed to mark entry %d failed: %w", queueID, err)
	}

	return nil
}

func (s *QueueStorage) ResetStuck(ctx context.Context, timeout time.Duration) (int, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	cutoff := time.Now().Add(-timeout)

	var claimed []models.QueueEntry
	if err := s.db.Store().Find(&claimed, badgerhold.Where("Status").Eq(models.QueueStatusClaimed).Index("Status")); err != nil {
		return 0, fmt.Errorf("failed to scan claimed entries: %w", err)
	}

	count := 0
	for i := range claimed {
		e := &claimed[i]
		if e.ClaimedAt == nil || e.ClaimedAt.After(cutoff) {
			continue
		}
		e.Status = models.QueueStatusPending
		e.ClaimedAt = nil
		if err := s.db.Store().Update(e.QueueID, e); err != nil {
			s.logger.Warn().Err(err).Int64("queue_id", int64(e.QueueID)).Msg("Failed to reset stuck entry")
			continue
		}
		s.logger.Info().
			Int64("queue_id", int64(e.QueueID)).
			Str("job_id", e.JobID).
			Msg("Stuck entry reset to pending")
		count++
	}

	return count, nil
}

func (s *QueueStorage) CleanupOld(ctx context.Context, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)

	var all []models.QueueEntry
	if err := s.db.Store().Find(&all, nil); err != nil {
		return 0, fmt.Errorf("failed to scan entries for cleanup: %w", err)
	}

	count := 0
	for i := range all {
		e := &all[i]
		if !e.Status.IsTerminal() {
			continue
		}
		stamp := e.CreatedAt
		if e.CompletedAt != nil {
			stamp = *e.CompletedAt
		}
		if stamp.After(cutoff) {
			continue
		}
		if err := s.db.Store().Delete(e.QueueID, &models.QueueEntry{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Err(err).Int64("queue_id", int64(e.QueueID)).Msg("Failed to delete old entry")
			continue
		}
		count++
	}

	if count > 0 {
		s.logger.Info().Int("deleted", count).Dur("age", age).Msg("Old terminal entries cleaned up")
	}

	return count, nil
}

func (s *QueueStorage) ClearCompleted(ctx context.Context) (int, error) {
	var all []models.QueueEntry
	if err := s.db.Store().Find(&all, nil); err != nil {
		return 0, fmt.Errorf("failed to scan entries: %w", err)
	}

	count := 0
	for i := range all {
		e := &all[i]
		if !e.Status.IsTerminal() {
			continue
		}
		if err := s.db.Store().Delete(e.QueueID, &models.QueueEntry{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
			s.logger.Warn().Err(err).Int64("queue_id", int64(e.QueueID)).Msg("Failed to delete terminal entry")
			continue
		}
		count++
	}

	return count, nil
}

func (s *QueueStorage) GetByJobID(ctx context.Context, jobID string) (*models.QueueEntry, error) {
	var entries []models.QueueEntry
	if err := s.db.Store().Find(&entries, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to look up entry for job %s: %w", jobID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("queue entry for job %s: %w", jobID, interfaces.ErrNotFound)
	}
	return &entries[0], nil
}

func (s *QueueStorage) Stats(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{}

	for _, st := range []struct {
		status models.QueueStatus
		target *int
	}{
		{models.QueueStatusPending, &stats.Pending},
		{models.QueueStatusClaimed, &stats.Claimed},
		{models.QueueStatusCompleted, &stats.Completed},
		{models.QueueStatusFailed, &stats.Failed},
	} {
		count, err := s.db.Store().Count(&models.QueueEntry{}, badgerhold.Where("Status").Eq(st.status).Index("Status"))
		if err != nil {
			return nil, fmt.Errorf("failed to count %s entries: %w", st.status, err)
		}
		*st.target = int(count)
	}

	stats.Total = stats.Pending + stats.Claimed + stats.Completed + stats.Failed
	return stats, nil
}

func (s *QueueStorage) getByQueueID(queueID uint64) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	if err := s.db.Store().Get(queueID, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("queue entry %d: %w", queueID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get queue entry %d: %w", queueID, err)
	}
	return &entry, nil
}
