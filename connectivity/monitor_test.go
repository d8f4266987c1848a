package connectivity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bantaypresyo/srpsync/logging"
)

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (p *fakeProber) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakeProber) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMonitor_StartsOffline(t *testing.T) {
	m := NewMonitor(&fakeProber{}, time.Minute, testLogger())
	assert.False(t, m.Online(), "state is offline until the first probe succeeds")
}

func TestCheckNow_UpdatesStateSynchronously(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(p, time.Minute, testLogger())
	ctx := context.Background()

	assert.True(t, m.CheckNow(ctx))
	assert.True(t, m.Online())

	p.set(errors.New("no route to host"))
	assert.False(t, m.CheckNow(ctx))
	assert.False(t, m.Online())
}

func TestSubscribe_DeliversDedupedTransitions(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(p, time.Minute, testLogger())
	ctx := context.Background()

	ch, cancel := m.Subscribe()
	defer cancel()

	// offline -> online
	m.CheckNow(ctx)
	// online -> online: no emission
	m.CheckNow(ctx)
	// online -> offline
	p.set(errors.New("down"))
	m.CheckNow(ctx)
	// offline -> online again
	p.set(nil)
	m.CheckNow(ctx)

	var got []bool
	for len(got) < 3 {
		select {
		case v := <-ch:
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for transitions, got %v", got)
		}
	}
	assert.Equal(t, []bool{true, false, true}, got)

	select {
	case v := <-ch:
		t.Fatalf("unexpected extra notification: %v", v)
	default:
	}
}

func TestSubscribe_CancelStopsDelivery(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(p, time.Minute, testLogger())
	ctx := context.Background()

	ch, cancel := m.Subscribe()
	cancel()

	m.CheckNow(ctx)

	_, open := <-ch
	assert.False(t, open, "cancelled subscription channel must be closed")
}

func TestRun_ProbesOnInterval(t *testing.T) {
	p := &fakeProber{err: errors.New("down")}
	m := NewMonitor(p, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, unsub := m.Subscribe()
	defer unsub()

	go m.Run(ctx)

	// flip to reachable and wait for the ticker to notice
	p.set(nil)

	select {
	case v := <-ch:
		require.True(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor never observed the offline->online transition")
	}
	assert.True(t, m.Online())
}
