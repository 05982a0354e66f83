package interfaces

import "errors"

var (
	// ErrNoPendingJobs is returned by ClaimNext when no entry is ready
	ErrNoPendingJobs = errors.New("no pending jobs")

	// ErrDuplicateJob is returned by Add when the jobID is already queued
	ErrDuplicateJob = errors.New("job already queued")

	// ErrNotFound is returned when a queue entry or job record does not exist
	ErrNotFound = errors.New("not found")
)
