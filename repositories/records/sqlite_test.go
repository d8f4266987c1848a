package records

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bantaypresyo/srpsync/common"
	"github.com/bantaypresyo/srpsync/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE records (
  id TEXT PRIMARY KEY,
  price REAL NOT NULL,
  reference TEXT NOT NULL,
  start_date TEXT NOT NULL,
  end_date TEXT NULL,
  is_active INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  last_synced_at TEXT NULL
);
`)
	require.NoError(t, err)
	return db
}

func sampleRecord(id string, start time.Time, active bool) models.PriceRecord {
	return models.PriceRecord{
		ID:        id,
		Price:     230,
		Reference: "DA-MO-2026-001",
		StartDate: start,
		IsActive:  active,
		CreatedAt: start.Add(-time.Hour),
	}
}

func TestUpsert_InsertAndReplace(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 2, 14, 16, 0, 0, 0, time.UTC)
	rec := sampleRecord("rec-1", start, true)
	require.NoError(t, r.Upsert(ctx, &rec))

	got, err := r.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 230.0, got.Price)
	assert.True(t, got.IsActive)
	assert.NotNil(t, got.LastSyncedAt)

	// replace by same id
	rec.Price = 245
	rec.IsActive = false
	require.NoError(t, r.Upsert(ctx, &rec))

	got, err = r.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, 245.0, got.Price)
	assert.False(t, got.IsActive)
}

func TestUpsert_IsIdempotent(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	rec := sampleRecord("rec-1", time.Date(2026, 2, 14, 16, 0, 0, 0, time.UTC), true)
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Upsert(ctx, &rec))
	}

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetAll_OrdersByStartDateDesc(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"rec-a", "rec-b", "rec-c"} {
		rec := sampleRecord(id, base.AddDate(0, 0, i), false)
		require.NoError(t, r.Upsert(ctx, &rec))
	}

	all, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rec-c", all[0].ID)
	assert.Equal(t, "rec-a", all[2].ID)
}

func TestGetActive_ReturnsMostRecentActive(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := sampleRecord("rec-old", base, true)
	cur := sampleRecord("rec-new", base.AddDate(0, 1, 0), true)
	require.NoError(t, r.Upsert(ctx, &old))
	require.NoError(t, r.Upsert(ctx, &cur))

	got, err := r.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rec-new", got.ID)
}

func TestGetActive_EmptyCache(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetActive(context.Background())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetByID_NotFound(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)

	_, err := r.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBulkUpsert_IsAtomic(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// a duplicated id inside one batch is fine (second write wins) ...
	batch := []models.PriceRecord{
		sampleRecord("rec-1", base, false),
		sampleRecord("rec-2", base.AddDate(0, 0, 1), true),
	}
	require.NoError(t, r.BulkUpsert(ctx, batch))

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// ... while a failed batch must leave the cache untouched.
	ctxCancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = r.BulkUpsert(ctxCancelled, []models.PriceRecord{
		sampleRecord("rec-3", base.AddDate(0, 0, 2), false),
	})
	require.Error(t, err)

	if _, err := r.GetByID(ctx, "rec-3"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected rec-3 to be absent after failed batch, got err=%v", err)
	}
}

func TestEndDate_RoundTrip(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	start := time.Date(2026, 2, 14, 16, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	rec := sampleRecord("rec-1", start, true)
	rec.EndDate = &end
	require.NoError(t, r.Upsert(ctx, &rec))

	got, err := r.GetByID(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(end))
}
