// Package records persists the local mirror of SRP price records.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bantaypresyo/srpsync/common"
	"github.com/bantaypresyo/srpsync/dbx"
	"github.com/bantaypresyo/srpsync/models"
)

// SQLiteRepository implements Repository over the local SQLite cache.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a new SQLiteRepository bound to db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func upsertTx(ctx context.Context, tx dbx.DBTX, rec *models.PriceRecord, syncedAt time.Time) error {
	query := `INSERT INTO records (id, price, reference, start_date, end_date, is_active, created_at, last_synced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET price = excluded.price,
				reference = excluded.reference,
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				is_active = excluded.is_active,
				created_at = excluded.created_at,
				last_synced_at = excluded.last_synced_at
	`
	_, err := tx.ExecContext(ctx, query,
		rec.ID, rec.Price, rec.Reference,
		formatTime(rec.StartDate), formatTimePtr(rec.EndDate),
		rec.IsActive, formatTime(rec.CreatedAt), formatTime(syncedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

// Upsert inserts or replaces a record by id. Idempotent: replaying the same
// record leaves the row unchanged.
func (r *SQLiteRepository) Upsert(ctx context.Context, rec *models.PriceRecord) error {
	return upsertTx(ctx, r.db, rec, time.Now())
}

// BulkUpsert applies all records inside one transaction so partial state is
// never visible to concurrent readers.
func (r *SQLiteRepository) BulkUpsert(ctx context.Context, recs []models.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := time.Now()
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for i := range recs {
			if err := upsertTx(ctx, tx, &recs[i], now); err != nil {
				return err
			}
		}
		return nil
	})
}

const selectColumns = `id, price, reference, start_date, end_date, is_active, created_at, last_synced_at`

func scanRecord(scan func(dest ...any) error) (*models.PriceRecord, error) {
	var rec models.PriceRecord
	var start, created string
	var end, synced sql.NullString

	err := scan(&rec.ID, &rec.Price, &rec.Reference, &start, &end, &rec.IsActive, &created, &synced)
	if err != nil {
		return nil, err
	}

	if rec.StartDate, err = parseTime(start); err != nil {
		return nil, fmt.Errorf("failed to parse start_date: %w", err)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_date: %w", err)
		}
		rec.EndDate = &t
	}
	if synced.Valid {
		t, err := parseTime(synced.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_synced_at: %w", err)
		}
		rec.LastSyncedAt = &t
	}
	return &rec, nil
}

// GetAll lists all cached records, newest start date first.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.PriceRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM records ORDER BY start_date DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []models.PriceRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetActive returns the most recent record with the active flag set.
func (r *SQLiteRepository) GetActive(ctx context.Context) (*models.PriceRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM records WHERE is_active = 1 ORDER BY start_date DESC LIMIT 1`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select active record: %w", err)
	}
	return rec, nil
}

// GetByID returns one record by identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.PriceRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM records WHERE id = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select record %s: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of cached records.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
