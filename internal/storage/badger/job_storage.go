package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
)

// JobStorage implements the per-submission record store on Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Create(ctx context.Context, jobID, config string) (*models.JobRecord, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job ID is required")
	}

	record := &models.JobRecord{
		ID:        jobID,
		Status:    models.JobStatusPending,
		Config:    config,
		CreatedAt: time.Now(),
	}

	if err := s.db.Store().Insert(jobID, record); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return nil, fmt.Errorf("job record %s already exists", jobID)
		}
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	s.logger.Debug().Str("job_id", jobID).Msg("Job record created")
	return record, nil
}

func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := s.db.Store().Get(jobID, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("job record %s: %w", jobID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job record %s: %w", jobID, err)
	}
	return &record, nil
}

func (s *JobStorage) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, update *models.JobStatusUpdate) error {
	record, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	record.Status = status
	if update != nil {
		if update.OutputFile != "" {
			record.OutputFile = update.OutputFile
		}
		if update.Error != "" {
			record.Error = update.Error
		}
		if update.CompletedAt != nil {
			record.CompletedAt = update.CompletedAt
		}
	}

	if err := s.db.Store().Update(jobID, record); err != nil {
		return fmt.Errorf("failed to update job record %s: %w", jobID, err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("status", string(status)).
		Msg("Job record updated")

	return nil
}

func (s *JobStorage) List(ctx context.Context) ([]*models.JobRecord, error) {
	var records []models.JobRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to list job records: %w", err)
	}

	result := make([]*models.JobRecord, 0, len(records))
	for i := range records {
		result = append(result, &records[i])
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *JobStorage) Delete(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.JobRecord{}); err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete job record %s: %w", jobID, err)
	}
	return nil
}
