package records

import (
	"context"

	"github.com/bantaypresyo/srpsync/models"
)

// Repository describes CRUD and query operations for cached price records.
// Implementations are backed by the local SQLite database.
//
// Upserts are idempotent by id and last-write-wins by arrival order: realtime
// pushes and sync pulls may interleave, and the cache converges to whichever
// write for a given id arrived last. No vector clocks are kept.
type Repository interface {
	// Upsert inserts a new record or replaces an existing one by ID.
	Upsert(ctx context.Context, rec *models.PriceRecord) error

	// BulkUpsert applies all records in one transaction: a concurrent reader
	// observes either none or all of them.
	BulkUpsert(ctx context.Context, recs []models.PriceRecord) error

	// GetAll returns all cached records ordered by start date, newest first.
	GetAll(ctx context.Context) ([]models.PriceRecord, error)

	// GetActive returns the most recent record flagged active, or
	// common.ErrNotFound when the cache holds none.
	GetActive(ctx context.Context) (*models.PriceRecord, error)

	// GetByID returns a record by identifier, or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.PriceRecord, error)

	// Count returns the number of cached records.
	Count(ctx context.Context) (int, error)
}
