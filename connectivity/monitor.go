// Package connectivity observes backend reachability and publishes
// online/offline transitions to subscribers.
//
// Reachability is approximated by probing the gateway's health endpoint on a
// fixed interval, the same way a link-layer signal would be consumed on a
// device: the probe is cheap, best-effort and fail-safe (no answer means
// offline).
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/bantaypresyo/srpsync/logging"
)

// Prober performs one reachability check. The gateway's Ping satisfies it.
type Prober interface {
	Ping(ctx context.Context) error
}

const (
	defaultInterval     = 30 * time.Second
	defaultProbeTimeout = 3 * time.Second
)

// Monitor tracks the current online state. The published boolean is
// read-mostly shared state: only the monitor itself writes it.
type Monitor struct {
	prober       Prober
	log          logging.Logger
	interval     time.Duration
	probeTimeout time.Duration

	mu     sync.Mutex
	online bool
	nextID int
	subs   map[int]chan bool
}

// NewMonitor builds a Monitor around the given prober. The initial state is
// offline until the first successful probe.
func NewMonitor(p Prober, interval time.Duration, log logging.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		prober:       p,
		log:          log,
		interval:     interval,
		probeTimeout: defaultProbeTimeout,
		subs:         make(map[int]chan bool),
	}
}

// Online reports the last published reachability state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers for transition notifications. Each observed transition
// is delivered once; repeated identical states are de-duplicated before
// publishing. The returned func cancels the subscription.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan bool, 16)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// CheckNow performs an immediate probe, publishes the result synchronously
// and returns it.
func (m *Monitor) CheckNow(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	online := m.prober.Ping(ctx) == nil
	m.setOnline(ctx, online)
	return online
}

// setOnline publishes a state change to all subscribers, once per transition.
func (m *Monitor) setOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online
	m.log.Info(ctx, "connectivity changed", "online", online)

	for _, ch := range m.subs {
		select {
		case ch <- online:
		default:
			m.log.Warn(ctx, "dropping connectivity notification: slow subscriber")
		}
	}
}

// Run probes on the configured interval until ctx is cancelled. It performs
// one immediate probe on entry so the published state is settled before the
// first tick.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckNow(ctx)
		case <-ctx.Done():
			return
		}
	}
}
