// Package submit accepts single and batch submissions: it validates configs,
// mints job IDs, creates job records and enqueues tasks. A failed enqueue
// leaves no partial side effects.
package submit

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/registry"
)

// ErrUnknownJob is returned when a submission names a job or task that the
// registry does not know
var ErrUnknownJob = errors.New("unknown job name")

// AdHocJobName is the job name assigned to ad-hoc config submissions
const AdHocJobName = "custom"

// Submission identifies one accepted queue entry
type Submission struct {
	JobID       string `json:"jobId"`
	JobName     string `json:"jobName"`
	ConfigIndex int    `json:"configIndex"`
}

// Service accepts submissions against the registry, job store and queue
type Service struct {
	registry    *registry.Registry
	queue       interfaces.QueueStorage
	jobs        interfaces.JobStorage
	maxAttempts int
	logger      arbor.ILogger
}

// New creates a submission service
func New(reg *registry.Registry, queue interfaces.QueueStorage, jobs interfaces.JobStorage, maxAttempts int, logger arbor.ILogger) *Service {
	return &Service{
		registry:    reg,
		queue:       queue,
		jobs:        jobs,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// SubmitTask enqueues a single registered task by its task name
func (s *Service) SubmitTask(ctx context.Context, taskName string) (*Submission, error) {
	task, jobName, ok := s.registry.FindTask(taskName)
	if !ok {
		return nil, fmt.Errorf("task %q: %w", taskName, ErrUnknownJob)
	}
	return s.enqueue(ctx, jobName, task, 0)
}

// SubmitJob enqueues every task of a named job, each as its own queue entry
// sharing the job name. Returns the accepted submissions in task order.
func (s *Service) SubmitJob(ctx context.Context, jobName string) ([]Submission, error) {
	tasks, ok := s.registry.Get(jobName)
	if !ok {
		return nil, fmt.Errorf("job %q: %w", jobName, ErrUnknownJob)
	}

	submissions := make([]Submission, 0, len(tasks))
	for i, task := range tasks {
		sub, err := s.enqueue(ctx, jobName, task, i)
		if err != nil {
			return submissions, fmt.Errorf("task %d (%s): %w", i, task.Name, err)
		}
		submissions = append(submissions, *sub)
	}

	s.logger.Info().
		Str("job", jobName).
		Int("tasks", len(submissions)).
		Msg("Job submitted")

	return submissions, nil
}

// SubmitAdHoc validates an ad-hoc config and enqueues it under the "custom"
// job name
func (s *Service) SubmitAdHoc(ctx context.Context, task models.TaskConfig) (*Submission, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	return s.enqueue(ctx, AdHocJobName, task, 0)
}

// enqueue creates the job record first, then the queue entry; the record is
// rolled back if the enqueue fails so validation errors and storage failures
// never leave partial state
func (s *Service) enqueue(ctx context.Context, jobName string, task models.TaskConfig, index int) (*Submission, error) {
	payload, err := models.EncodePayload(jobName, task)
	if err != nil {
		return nil, err
	}

	jobID := common.NewJobID()

	if _, err := s.jobs.Create(ctx, jobID, payload); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	if _, err := s.queue.Add(ctx, jobID, payload, 0, s.maxAttempts); err != nil {
		if delErr := s.jobs.Delete(ctx, jobID); delErr != nil {
			s.logger.Warn().Err(delErr).Str("job_id", jobID).Msg("Failed to roll back job record after enqueue failure")
		}
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Debug().
		Str("job_id", jobID).
		Str("job", jobName).
		Str("task", task.Name).
		Msg("Task enqueued")

	return &Submission{JobID: jobID, JobName: jobName, ConfigIndex: index}, nil
}
