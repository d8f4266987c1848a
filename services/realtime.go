package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bantaypresyo/srpsync/logging"
	"github.com/bantaypresyo/srpsync/models"
	"github.com/bantaypresyo/srpsync/push"
	"github.com/bantaypresyo/srpsync/repositories/records"
)

// ActiveRefresher triggers an online active-record read; RecordService
// satisfies it.
type ActiveRefresher interface {
	GetActive(ctx context.Context) (*models.PriceRecord, error)
}

// RealtimeListener applies server-originated push events to the cache
// opportunistically. It is advisory: every failure is swallowed and logged,
// because the sync coordinator's reconnect pull is the authoritative
// correctness backstop.
type RealtimeListener struct {
	records   records.Repository
	refresher ActiveRefresher
	log       logging.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan struct{}
}

// NewRealtimeListener wires the push-event consumer.
func NewRealtimeListener(recs records.Repository, refresher ActiveRefresher, log logging.Logger) *RealtimeListener {
	return &RealtimeListener{
		records:   recs,
		refresher: refresher,
		log:       log,
		subs:      make(map[int]chan struct{}),
	}
}

// Subscribe registers for cache-changed signals so dependent reads can
// re-evaluate. The returned func cancels the subscription.
func (l *RealtimeListener) Subscribe() (<-chan struct{}, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	ch := make(chan struct{}, 1)
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if sub, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (l *RealtimeListener) notifyChanged() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs {
		select {
		case ch <- struct{}{}:
		default:
			// a pending signal already covers this change
		}
	}
}

// Run consumes events until ctx is cancelled or the channel closes.
func (l *RealtimeListener) Run(ctx context.Context, events <-chan push.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			l.handle(ctx, ev)
		}
	}
}

func (l *RealtimeListener) handle(ctx context.Context, ev push.Event) {
	switch ev.Name {
	case push.EventRecordCreated:
		var w models.RecordWire
		if err := json.Unmarshal(ev.Data, &w); err != nil {
			l.log.Warn(ctx, "dropping malformed push payload", "error", err)
			return
		}
		if w.ID == "" {
			l.log.Warn(ctx, "dropping push payload without id")
			return
		}
		rec := w.ToRecord()
		// Replays of the same record are harmless: upsert-by-id is
		// idempotent.
		if err := l.records.Upsert(ctx, &rec); err != nil {
			l.log.Error(ctx, "failed to apply pushed record", "id", rec.ID, "error", err)
			return
		}
		l.log.Debug(ctx, "applied pushed record", "id", rec.ID)
		l.notifyChanged()

	case push.EventReconnect:
		// The stream was down; refresh the active record to catch events
		// missed during the disconnect window.
		if _, err := l.refresher.GetActive(ctx); err != nil {
			l.log.Warn(ctx, "post-reconnect refresh failed", "error", err)
			return
		}
		l.notifyChanged()

	default:
		l.log.Debug(ctx, "ignoring push event", "name", ev.Name)
	}
}
