package models

import "time"

// JobStatus is the externally visible lifecycle of a submission
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord is the per-submission status/result record.
// Created on submission; mutated only by the worker owning the queue entry.
type JobRecord struct {
	ID          string    `badgerhold:"key"` // External UUID
	Status      JobStatus `badgerhold:"index"`
	Config      string    // Serialized TaskPayload
	OutputFile  string
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// JobStatusUpdate carries the optional fields of a status transition
type JobStatusUpdate struct {
	OutputFile  string
	Error       string
	CompletedAt *time.Time
}
