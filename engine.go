// Package srpsync is an offline-first client engine for SRP (suggested
// retail price) records. It keeps a local SQLite cache in step with the
// backend: reads prefer the server and fall back to the cache, writes made
// offline are queued durably and replayed in order when connectivity
// returns, and a realtime push channel keeps the cache warm in between.
package srpsync

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/bantaypresyo/srpsync/config"
	"github.com/bantaypresyo/srpsync/connectivity"
	"github.com/bantaypresyo/srpsync/gateway"
	"github.com/bantaypresyo/srpsync/localdb"
	"github.com/bantaypresyo/srpsync/logging"
	"github.com/bantaypresyo/srpsync/models"
	"github.com/bantaypresyo/srpsync/push"
	"github.com/bantaypresyo/srpsync/repositories/metadata"
	"github.com/bantaypresyo/srpsync/repositories/mutations"
	"github.com/bantaypresyo/srpsync/repositories/records"
	"github.com/bantaypresyo/srpsync/services"
)

// Engine owns the whole sync stack: local cache, remote gateway,
// connectivity monitor, record service, sync coordinator and realtime
// listener, wired together from one Config.
type Engine struct {
	cfg *config.Config
	log logging.Logger

	db          *sql.DB
	gateway     *gateway.Gateway
	monitor     *connectivity.Monitor
	stream      *push.Stream
	records     *services.RecordService
	coordinator *services.SyncCoordinator
	realtime    *services.RealtimeListener

	closeOnce sync.Once
}

// EngineOption customizes Engine construction.
type EngineOption func(*engineOptions)

type engineOptions struct {
	tokens  gateway.TokenSource
	gwOpts  []gateway.Option
	strOpts []push.StreamOption
}

// WithTokenSource attaches an auth token source to the gateway.
func WithTokenSource(ts gateway.TokenSource) EngineOption {
	return func(o *engineOptions) { o.tokens = ts }
}

// WithGatewayOptions forwards extra options to the gateway, mainly for
// substituting the HTTP client in tests.
func WithGatewayOptions(opts ...gateway.Option) EngineOption {
	return func(o *engineOptions) { o.gwOpts = append(o.gwOpts, opts...) }
}

// WithStreamOptions forwards extra options to the push stream.
func WithStreamOptions(opts ...push.StreamOption) EngineOption {
	return func(o *engineOptions) { o.strOpts = append(o.strOpts, opts...) }
}

// New opens the local cache, applies migrations and wires all components.
// The engine is passive until Run is called: reads and writes already work
// (against cache and queue), but no background probing, syncing or push
// consumption happens.
func New(ctx context.Context, cfg *config.Config, log logging.Logger, opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	db, err := localdb.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init local cache: %w", err)
	}

	recRepo := records.NewSQLiteRepository(db)
	queueRepo := mutations.NewSQLiteRepository(db, cfg.QueueRetryMax)
	metaRepo := metadata.NewSQLiteRepository(db)

	gwOpts := []gateway.Option{
		gateway.WithTimeout(cfg.RequestTimeout),
		gateway.WithRetry(cfg.TransportRetryMax, cfg.TransportBackoff),
	}
	if o.tokens != nil {
		gwOpts = append(gwOpts, gateway.WithTokenSource(o.tokens))
	}
	gwOpts = append(gwOpts, o.gwOpts...)
	gw := gateway.New(cfg.BaseURL, log, gwOpts...)

	monitor := connectivity.NewMonitor(gw, cfg.ProbeInterval, log)
	recSvc := services.NewRecordService(gw, recRepo, queueRepo, metaRepo, monitor, cfg.DefaultPageSize, log)
	coordinator := services.NewSyncCoordinator(gw, queueRepo, metaRepo, recSvc, cfg.SyncWindow, log)
	realtime := services.NewRealtimeListener(recRepo, recSvc, log)
	stream := push.NewStream(cfg.StreamURL, log, o.strOpts...)

	return &Engine{
		cfg:         cfg,
		log:         log,
		db:          db,
		gateway:     gw,
		monitor:     monitor,
		stream:      stream,
		records:     recSvc,
		coordinator: coordinator,
		realtime:    realtime,
	}, nil
}

// Run starts the background loops: the connectivity monitor, the sync
// coordinator (triggered by offline→online transitions) and the realtime
// listener. It blocks until ctx is cancelled, then waits for the loops to
// drain and returns.
func (e *Engine) Run(ctx context.Context) {
	transitions, unsubscribe := e.monitor.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.monitor.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.coordinator.Run(ctx, transitions)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.realtime.Run(ctx, e.stream.Events(ctx))
	}()

	e.log.Info(ctx, "sync engine started", "base_url", e.cfg.BaseURL)
	<-ctx.Done()
	wg.Wait()
	e.log.Info(context.Background(), "sync engine stopped")
}

// Close releases the local cache. Safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.db.Close()
	})
	return err
}

// Records exposes the read/write policy surface.
func (e *Engine) Records() *services.RecordService { return e.records }

// Sync exposes the reconciliation surface for manual triggers.
func (e *Engine) Sync() *services.SyncCoordinator { return e.coordinator }

// Realtime exposes cache-changed subscriptions.
func (e *Engine) Realtime() *services.RealtimeListener { return e.realtime }

// Online reports the last published connectivity state.
func (e *Engine) Online() bool { return e.monitor.Online() }

// CheckConnectivity probes the backend immediately and publishes the result.
func (e *Engine) CheckConnectivity(ctx context.Context) bool { return e.monitor.CheckNow(ctx) }

// LastSyncedAt reports when the last successful sync cycle finished.
func (e *Engine) LastSyncedAt(ctx context.Context) (time.Time, bool, error) {
	return e.coordinator.LastSyncedAt(ctx)
}

// PendingWrites lists queued and failed offline writes for inspection.
func (e *Engine) PendingWrites(ctx context.Context) ([]models.PendingMutation, error) {
	return e.records.PendingWrites(ctx)
}
