package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bantaypresyo/srpsync/logging"
	"github.com/bantaypresyo/srpsync/models"
	"github.com/bantaypresyo/srpsync/repositories/metadata"
	"github.com/bantaypresyo/srpsync/repositories/mutations"
	"github.com/bantaypresyo/srpsync/repositories/records"

	_ "modernc.org/sqlite"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// setupCache creates the full local cache schema in memory.
func setupCache(t *testing.T) *sql.DB {
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
CREATE TABLE pending_mutations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  endpoint TEXT NOT NULL,
  verb TEXT NOT NULL,
  payload BLOB NOT NULL,
  enqueued_at TEXT NOT NULL,
  retry_count INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'pending'
);
CREATE TABLE metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`)
	require.NoError(t, err)
	return db
}

type repos struct {
	db      *sql.DB
	records *records.SQLiteRepository
	queue   *mutations.SQLiteRepository
	meta    *metadata.SQLiteRepository
}

func setupRepos(t *testing.T) repos {
	t.Helper()
	db := setupCache(t)
	return repos{
		db:      db,
		records: records.NewSQLiteRepository(db),
		queue:   mutations.NewSQLiteRepository(db, 3),
		meta:    metadata.NewSQLiteRepository(db),
	}
}

type gatewayCall struct {
	Verb    string
	Path    string
	Payload json.RawMessage
}

// fakeGateway records calls and answers via a swappable handler.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []gatewayCall
	handler func(verb, path string, payload json.RawMessage) (json.RawMessage, error)
}

func (g *fakeGateway) Execute(ctx context.Context, verb, path string, payload json.RawMessage) (json.RawMessage, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{Verb: verb, Path: path, Payload: payload})
	handler := g.handler
	g.mu.Unlock()

	if handler == nil {
		return nil, nil
	}
	return handler(verb, path, payload)
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) callList() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

func (g *fakeGateway) setHandler(h func(verb, path string, payload json.RawMessage) (json.RawMessage, error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = h
}

// fakeConnectivity is a settable online flag.
type fakeConnectivity struct {
	online atomic.Bool
}

func (c *fakeConnectivity) Online() bool { return c.online.Load() }

func (c *fakeConnectivity) set(v bool) { c.online.Store(v) }

// fakePuller is a no-op RecordPuller for coordinator tests that do not care
// about the pull step.
type fakePuller struct {
	mu     sync.Mutex
	active int
	list   int
	err    error
}

func (p *fakePuller) GetActive(ctx context.Context) (*models.PriceRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active++
	return nil, p.err
}

func (p *fakePuller) GetList(ctx context.Context, page, pageSize int) (*models.RecordPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.list++
	if p.err != nil {
		return nil, p.err
	}
	return &models.RecordPage{Page: page, PageSize: pageSize, TotalPages: 1}, nil
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
