package mutations

import (
	"context"
	"encoding/json"

	"github.com/bantaypresyo/srpsync/models"
)

// Repository is the durable FIFO queue of writes awaiting network
// availability. The queue is append-only for producers; only the sync
// coordinator transitions entry statuses during drain.
type Repository interface {
	// Enqueue appends a new pending mutation and returns its identifier.
	// The payload is opaque to the queue.
	Enqueue(ctx context.Context, endpoint, verb string, payload json.RawMessage) (int64, error)

	// ListPending returns pending entries in strict enqueue order.
	ListPending(ctx context.Context) ([]models.PendingMutation, error)

	// ListFailed returns failed entries, oldest first. Failed entries are
	// retained for inspection and never auto-deleted.
	ListFailed(ctx context.Context) ([]models.PendingMutation, error)

	// Mark sets the status of one entry.
	Mark(ctx context.Context, id int64, status models.MutationStatus) error

	// IncrementRetry bumps an entry's retry counter. When the counter
	// reaches the ceiling the entry is marked failed instead of staying
	// pending. Returns the new count and resulting status.
	IncrementRetry(ctx context.Context, id int64) (int, models.MutationStatus, error)

	// DeleteCompleted removes all entries with status completed.
	DeleteCompleted(ctx context.Context) error
}
