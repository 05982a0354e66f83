package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// QueueStatus is the lifecycle state of a queue entry
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusClaimed   QueueStatus = "claimed"
	QueueStatusCompleted QueueStatus = "completed"
	QueueStatusFailed    QueueStatus = "failed"
)

// IsTerminal reports whether the status never transitions again
func (s QueueStatus) IsTerminal() bool {
	return s == QueueStatusCompleted || s == QueueStatusFailed
}

// QueueEntry is one enqueued task. At most one entry exists per JobID.
// Status transitions are one-way except claimed -> pending (retry or stuck reset).
type QueueEntry struct {
	QueueID     uint64      `badgerhold:"key"`
	JobID       string      `badgerhold:"unique"`
	Status      QueueStatus `badgerhold:"index"`
	Payload     string      // Serialized TaskPayload
	Priority    int         // Higher first
	Attempts    int
	MaxAttempts int
	NextRetryAt *time.Time
	ClaimedAt   *time.Time
	CompletedAt *time.Time
	Error       string
	CreatedAt   time.Time
}

// TaskPayload is the serialized body of a queue entry
type TaskPayload struct {
	JobName string     `json:"jobName"`
	Task    TaskConfig `json:"task"`
}

// EncodePayload serializes a task payload for queue storage
func EncodePayload(jobName string, task TaskConfig) (string, error) {
	data, err := json.Marshal(TaskPayload{JobName: jobName, Task: task})
	if err != nil {
		return "", fmt.Errorf("failed to encode task payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload deserializes a queue entry payload
func DecodePayload(payload string) (*TaskPayload, error) {
	var p TaskPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("failed to decode task payload: %w", err)
	}
	return &p, nil
}

// QueueStats holds entry counts by status
type QueueStats struct {
	Pending   int `json:"pending"`
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
