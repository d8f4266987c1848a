// Package push adapts the backend's server-sent-event channel into a plain
// Go channel of structured events, decoupling consumers from the transport's
// reconnect behavior.
package push

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bantaypresyo/srpsync/logging"
)

// Event is one message from the push channel.
type Event struct {
	Name string
	Data json.RawMessage
}

const (
	// EventRecordCreated carries a full record payload in wire shape.
	EventRecordCreated = "record-created"

	// EventReconnect is synthesized locally whenever the stream re-opens
	// after a drop. It carries no payload.
	EventReconnect = "reconnect"
)

// Doer is the subset of *http.Client the stream needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

const defaultRetryWait = 5 * time.Second

// Stream maintains a long-lived SSE connection and re-opens it after drops.
type Stream struct {
	url       string
	http      Doer
	log       logging.Logger
	retryWait time.Duration
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(d Doer) StreamOption {
	return func(s *Stream) { s.http = d }
}

// WithRetryWait sets the pause between reconnect attempts.
func WithRetryWait(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.retryWait = d
		}
	}
}

// NewStream builds a Stream for the given SSE endpoint.
func NewStream(url string, log logging.Logger, opts ...StreamOption) *Stream {
	s := &Stream{
		url:       url,
		http:      &http.Client{},
		log:       log,
		retryWait: defaultRetryWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events connects and returns the event channel. The channel closes when ctx
// is cancelled. Connection drops are handled internally: the stream waits,
// reconnects, and emits a reconnect event so consumers can catch up on
// anything missed while disconnected.
func (s *Stream) Events(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	go func() {
		defer close(ch)

		connectedBefore := false
		for {
			if ctx.Err() != nil {
				return
			}

			body, err := s.open(ctx)
			if err != nil {
				s.log.Warn(ctx, "push stream connect failed", "error", err)
				if !sleep(ctx, s.retryWait) {
					return
				}
				continue
			}

			if connectedBefore {
				if !send(ctx, ch, Event{Name: EventReconnect}) {
					body.Close()
					return
				}
			}
			connectedBefore = true

			s.read(ctx, body, ch)
			body.Close()

			if !sleep(ctx, s.retryWait) {
				return
			}
		}
	}()

	return ch
}

func (s *Stream) open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("push stream rejected: %s", resp.Status)
	}
	return resp.Body, nil
}

// read parses the SSE wire format until the connection drops or ctx ends.
func (s *Stream) read(ctx context.Context, body io.ReadCloser, ch chan<- Event) {
	// unblock the scanner when ctx is cancelled
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	name := ""
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data.Len() > 0 {
				ev := Event{Name: name, Data: json.RawMessage(data.String())}
				if ev.Name == "" {
					ev.Name = "message"
				}
				if !send(ctx, ch, ev) {
					return
				}
			}
			name = ""
			data.Reset()

		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))

		default:
			// comments, id:, retry: — not used by this channel
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.log.Warn(ctx, "push stream dropped", "error", err)
	}
}

func send(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
