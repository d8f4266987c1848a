// Package gateway abstracts the network call boundary to the SRP backend:
// typed request/response over the {data, errors} envelope, error
// classification (terminal vs transient), automatic auth attachment, and a
// bounded in-call retry with linear backoff.
//
// The in-call retry is distinct from the sync coordinator's queue-level
// retry: this one smooths over short blips within a single call; the queue
// retry re-attempts a whole mutation across reconnect cycles.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/bantaypresyo/srpsync/logging"
	"github.com/bantaypresyo/srpsync/models"
)

// Doer is the subset of *http.Client the gateway needs; tests substitute it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = 1 * time.Second
)

type Gateway struct {
	baseURL     string
	http        Doer
	tokens      TokenSource
	log         logging.Logger
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(d Doer) Option {
	return func(g *Gateway) { g.http = d }
}

// WithTokenSource attaches an auth token source.
func WithTokenSource(ts TokenSource) Option {
	return func(g *Gateway) { g.tokens = ts }
}

// WithTimeout sets the per-call connect/receive deadline.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetry sets the in-call attempt ceiling and linear backoff unit for
// idempotent calls.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(g *Gateway) {
		if maxAttempts > 0 {
			g.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			g.backoff = backoff
		}
	}
}

// New returns a Gateway for the API rooted at baseURL.
func New(baseURL string, log logging.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:     baseURL,
		http:        &http.Client{},
		log:         log,
		timeout:     defaultTimeout,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// linearBackoff waits unit × attempt number between attempts.
func linearBackoff(unit time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return unit * time.Duration(attempt), false
	})
}

// Execute performs one logical call and returns the unwrapped envelope data.
//
// Idempotent verbs (GET, HEAD) are retried on transient failures up to the
// attempt ceiling; any other verb gets exactly one attempt, because the
// caller (the pending-mutation queue) owns cross-call retry for writes.
func (g *Gateway) Execute(ctx context.Context, verb, path string, payload json.RawMessage) (json.RawMessage, error) {
	idempotent := verb == http.MethodGet || verb == http.MethodHead

	retries := 0
	if idempotent {
		retries = g.maxAttempts - 1
	}

	var out json.RawMessage
	b := retry.WithMaxRetries(uint64(retries), linearBackoff(g.backoff))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		data, err := g.do(ctx, verb, path, payload)
		if err != nil {
			if idempotent && IsTransient(err) {
				g.log.Debug(ctx, "transient failure, will retry", "verb", verb, "path", path, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// do performs a single HTTP attempt, including the refresh-then-retry-once
// dance on 401.
func (g *Gateway) do(ctx context.Context, verb, path string, payload json.RawMessage) (json.RawMessage, error) {
	data, err := g.roundTrip(ctx, verb, path, payload)
	if err == nil {
		return data, nil
	}

	var ge *Error
	ref, canRefresh := g.tokens.(Refresher)
	if canRefresh && errors.As(err, &ge) && ge.Status == http.StatusUnauthorized {
		if rerr := ref.Refresh(ctx); rerr != nil {
			g.log.Warn(ctx, "token refresh failed", "error", rerr)
			return nil, err
		}
		return g.roundTrip(ctx, verb, path, payload)
	}
	return nil, err
}

func (g *Gateway) roundTrip(ctx context.Context, verb, path string, payload json.RawMessage) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, verb, g.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if g.tokens != nil {
		token, err := g.tokens.AccessToken(ctx)
		if err != nil {
			return nil, newError(0, KindTerminal, fmt.Sprintf("no access token: %v", err), nil)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := g.http.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient by definition.
		return nil, transientError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientError(err)
	}

	var env models.Envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode < 400 {
				return nil, newError(resp.StatusCode, KindTerminal, "malformed response envelope", nil)
			}
			// fall through: classify by status below
		}
	}

	// A non-empty errors array indicates failure regardless of status code.
	if len(env.Errors) > 0 || resp.StatusCode >= 400 {
		return nil, g.classify(resp.StatusCode, env.Errors)
	}

	return env.Data, nil
}

func (g *Gateway) classify(status int, wireErrs []models.WireError) *Error {
	msg := ""
	if len(wireErrs) > 0 {
		msg = wireErrs[0].Message
	}
	if msg == "" {
		if t := http.StatusText(status); t != "" {
			msg = t
		} else {
			msg = "request failed"
		}
	}

	switch {
	case status == http.StatusNotFound:
		return newError(status, KindNotFound, msg, wireErrs)
	case status >= 400 && status < 500:
		return newError(status, KindTerminal, msg, wireErrs)
	case status >= 500:
		return newError(status, KindTransient, msg, wireErrs)
	default:
		// 2xx with a populated errors array: a business-rule rejection.
		return newError(status, KindTerminal, msg, wireErrs)
	}
}

// Ping checks backend reachability. It doubles as the connectivity monitor's
// probe.
func (g *Gateway) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return transientError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return g.classify(resp.StatusCode, nil)
	}
	return nil
}
