package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bantaypresyo/srpsync/gateway"
	"github.com/bantaypresyo/srpsync/logging"
	"github.com/bantaypresyo/srpsync/models"
	"github.com/bantaypresyo/srpsync/repositories/metadata"
	"github.com/bantaypresyo/srpsync/repositories/mutations"
)

// RecordPuller is the slice of RecordService the coordinator uses to pull
// fresh server state after a drain. Only the record repository translates
// wire payloads into cache rows, so the coordinator goes through it rather
// than touching the cache itself.
type RecordPuller interface {
	GetActive(ctx context.Context) (*models.PriceRecord, error)
	GetList(ctx context.Context, page, pageSize int) (*models.RecordPage, error)
}

const (
	syncIdle int32 = iota
	syncRunning
)

// SyncCoordinator reconciles the pending-write queue and the cache with the
// server whenever connectivity returns.
//
// Its queue-level retry (one attempt per entry per cycle, ceiling enforced by
// the queue repository) is independent of the gateway's in-call retry.
type SyncCoordinator struct {
	gw       Gateway
	queue    mutations.Repository
	meta     metadata.Repository
	puller   RecordPuller
	log      logging.Logger
	pageSize int

	state atomic.Int32
	now   func() time.Time
}

// NewSyncCoordinator wires the reconciliation engine.
func NewSyncCoordinator(gw Gateway, queue mutations.Repository, meta metadata.Repository,
	puller RecordPuller, pageSize int, log logging.Logger) *SyncCoordinator {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &SyncCoordinator{
		gw:       gw,
		queue:    queue,
		meta:     meta,
		puller:   puller,
		log:      log,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// Syncing reports whether a cycle is currently running.
func (c *SyncCoordinator) Syncing() bool {
	return c.state.Load() == syncRunning
}

// Run consumes connectivity transitions and starts a sync cycle on every
// offline→online flip. It returns when ctx is cancelled or the channel
// closes.
func (c *SyncCoordinator) Run(ctx context.Context, transitions <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if online {
				c.SyncNow(ctx)
			}
		}
	}
}

// SyncNow runs one reconciliation cycle: drain the queue in FIFO order,
// clean up completed entries, pull fresh server state, record the cursor.
//
// A cycle already in progress ignores the trigger (at most one concurrent
// cycle). Each step is best-effort: a pull failure is logged, never rolled
// back into the drain results, and the coordinator always returns to idle.
func (c *SyncCoordinator) SyncNow(ctx context.Context) {
	if !c.state.CompareAndSwap(syncIdle, syncRunning) {
		c.log.Debug(ctx, "sync already in progress, ignoring trigger")
		return
	}
	defer c.state.Store(syncIdle)

	c.log.Info(ctx, "sync cycle started")

	c.drain(ctx)

	if err := c.queue.DeleteCompleted(ctx); err != nil {
		c.log.Error(ctx, "queue cleanup failed", "error", err)
	}

	c.pull(ctx)

	cursor := c.now().UTC().Format(time.RFC3339)
	if err := c.meta.Set(ctx, metadata.KeyLastSync, cursor); err != nil {
		c.log.Error(ctx, "failed to record sync cursor", "error", err)
	}

	c.log.Info(ctx, "sync cycle finished", "cursor", cursor)
}

// drain replays pending mutations strictly in enqueue order, one at a time:
// a later mutation may depend on an earlier one having completed server-side
// (sequential price corrections), so entry N+1 never starts before entry N's
// outcome is known.
func (c *SyncCoordinator) drain(ctx context.Context) {
	pending, err := c.queue.ListPending(ctx)
	if err != nil {
		c.log.Error(ctx, "failed to list pending mutations", "error", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	c.log.Info(ctx, "draining pending mutations", "count", len(pending))

	for _, m := range pending {
		_, err := c.gw.Execute(ctx, m.Verb, m.Endpoint, m.Payload)
		switch {
		case err == nil:
			if merr := c.queue.Mark(ctx, m.ID, models.MutationCompleted); merr != nil {
				c.log.Error(ctx, "failed to mark mutation completed", "mutation_id", m.ID, "error", merr)
			}
		case gateway.IsTerminal(err):
			c.log.Warn(ctx, "mutation rejected, not retrying", "mutation_id", m.ID, "error", err)
			if merr := c.queue.Mark(ctx, m.ID, models.MutationFailed); merr != nil {
				c.log.Error(ctx, "failed to mark mutation failed", "mutation_id", m.ID, "error", merr)
			}
		default:
			// transient failure or transport exception: one attempt per
			// cycle, the next reconnect picks it up again
			count, status, rerr := c.queue.IncrementRetry(ctx, m.ID)
			if rerr != nil {
				c.log.Error(ctx, "failed to increment retry", "mutation_id", m.ID, "error", rerr)
				continue
			}
			if status == models.MutationFailed {
				c.log.Warn(ctx, "mutation retries exhausted", "mutation_id", m.ID, "retries", count)
			} else {
				c.log.Info(ctx, "mutation will retry next cycle", "mutation_id", m.ID, "retries", count)
			}
		}
	}
}

// pull refreshes the cache from the server through the record repository's
// online read path.
func (c *SyncCoordinator) pull(ctx context.Context) {
	if _, err := c.puller.GetActive(ctx); err != nil {
		c.log.Warn(ctx, "active-record pull failed", "error", err)
	}
	if _, err := c.puller.GetList(ctx, 1, c.pageSize); err != nil {
		c.log.Warn(ctx, "record-list pull failed", "error", err)
	}
}

// LastSyncedAt reads the sync cursor. ok is false when no sync has completed
// yet.
func (c *SyncCoordinator) LastSyncedAt(ctx context.Context) (time.Time, bool, error) {
	raw, err := c.meta.Get(ctx, metadata.KeyLastSync)
	if err != nil {
		return time.Time{}, false, err
	}
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
