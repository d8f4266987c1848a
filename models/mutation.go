package models

import (
	"encoding/json"
	"time"
)

// MutationStatus is the lifecycle state of a queued offline write.
type MutationStatus string

const (
	// MutationPending means the write has not been applied yet.
	MutationPending MutationStatus = "pending"

	// MutationCompleted means the write was applied server-side; the entry
	// is safe to delete on the next cleanup pass.
	MutationCompleted MutationStatus = "completed"

	// MutationFailed means the write exhausted its retries or was rejected
	// with a non-retryable error. Kept for user visibility, never auto-deleted.
	MutationFailed MutationStatus = "failed"
)

// PendingMutation is a durable queued write awaiting network availability.
// The payload is opaque to the queue; only the enqueuing service knows its
// shape. Processing order is strictly FIFO by enqueue time.
type PendingMutation struct {
	ID         int64
	Endpoint   string
	Verb       string
	Payload    json.RawMessage
	EnqueuedAt time.Time
	RetryCount int
	Status     MutationStatus
}
