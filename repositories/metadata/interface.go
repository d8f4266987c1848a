package metadata

import "context"

// KeyLastSync stores the ISO-8601 timestamp of the last successful
// reconciliation pass.
const KeyLastSync = "last_sync_at"

// Repository is a scalar key/value store for process-wide sync metadata.
type Repository interface {
	// Get returns the value for key, or "" when the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the value for key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the key if present.
	Delete(ctx context.Context, key string) error
}
