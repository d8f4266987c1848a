// Package mutations persists the pending-write queue of the sync engine.
package mutations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bantaypresyo/srpsync/common"
	"github.com/bantaypresyo/srpsync/dbx"
	"github.com/bantaypresyo/srpsync/models"
)

// DefaultMaxRetries is the queue-level retry ceiling: a pending entry that
// keeps failing transiently is demoted to failed once its counter reaches
// this value.
const DefaultMaxRetries = 3

// SQLiteRepository implements Repository over the local SQLite cache.
type SQLiteRepository struct {
	db         *sql.DB
	maxRetries int
}

// NewSQLiteRepository returns a queue repository bound to db. A maxRetries
// value of 0 or less falls back to DefaultMaxRetries.
func NewSQLiteRepository(db *sql.DB, maxRetries int) *SQLiteRepository {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &SQLiteRepository{db: db, maxRetries: maxRetries}
}

const timeLayout = time.RFC3339Nano

// Enqueue appends a mutation with status pending and retry count 0.
func (r *SQLiteRepository) Enqueue(ctx context.Context, endpoint, verb string, payload json.RawMessage) (int64, error) {
	query := `INSERT INTO pending_mutations (endpoint, verb, payload, enqueued_at, retry_count, status)
			VALUES (?, ?, ?, ?, 0, ?)`
	res, err := r.db.ExecContext(ctx, query,
		endpoint, verb, []byte(payload), time.Now().UTC().Format(timeLayout), models.MutationPending)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue mutation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read mutation id: %w", err)
	}
	return id, nil
}

func (r *SQLiteRepository) list(ctx context.Context, status models.MutationStatus) ([]models.PendingMutation, error) {
	query := `SELECT id, endpoint, verb, payload, enqueued_at, retry_count, status
			FROM pending_mutations WHERE status = ? ORDER BY enqueued_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to select mutations: %w", err)
	}
	defer rows.Close()

	var result []models.PendingMutation
	for rows.Next() {
		var m models.PendingMutation
		var payload []byte
		var enqueued string
		if err := rows.Scan(&m.ID, &m.Endpoint, &m.Verb, &payload, &enqueued, &m.RetryCount, &m.Status); err != nil {
			return nil, err
		}
		m.Payload = json.RawMessage(payload)
		if m.EnqueuedAt, err = time.Parse(timeLayout, enqueued); err != nil {
			return nil, fmt.Errorf("failed to parse enqueued_at: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListPending returns pending entries in enqueue order.
func (r *SQLiteRepository) ListPending(ctx context.Context) ([]models.PendingMutation, error) {
	return r.list(ctx, models.MutationPending)
}

// ListFailed returns failed entries in enqueue order.
func (r *SQLiteRepository) ListFailed(ctx context.Context) ([]models.PendingMutation, error) {
	return r.list(ctx, models.MutationFailed)
}

// Mark transitions one entry to the given status.
func (r *SQLiteRepository) Mark(ctx context.Context, id int64, status models.MutationStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE pending_mutations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to mark mutation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

// IncrementRetry bumps the retry counter inside one transaction. At the
// ceiling the entry flips to failed instead of counting further.
func (r *SQLiteRepository) IncrementRetry(ctx context.Context, id int64) (int, models.MutationStatus, error) {
	var count int
	status := models.MutationPending

	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := tx.QueryRowContext(ctx, `SELECT retry_count FROM pending_mutations WHERE id = ?`, id).Scan(&count)
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read retry count: %w", err)
		}

		count++
		if count >= r.maxRetries {
			status = models.MutationFailed
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pending_mutations SET retry_count = ?, status = ? WHERE id = ?`, count, status, id)
		if err != nil {
			return fmt.Errorf("failed to increment retry: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, "", err
	}
	return count, status, nil
}

// DeleteCompleted removes applied entries. Failed entries are left in place
// for user inspection.
func (r *SQLiteRepository) DeleteCompleted(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE status = ?`, models.MutationCompleted)
	if err != nil {
		return fmt.Errorf("failed to delete completed mutations: %w", err)
	}
	return nil
}
