package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the access token attached to outbound requests.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Refresher is implemented by token sources that can obtain a fresh access
// token. The gateway invokes it once on a 401 before re-attempting the call.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StaticTokenSource returns a fixed token. Useful for tests and for hosts
// that manage refresh themselves.
type StaticTokenSource struct {
	token string
}

func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) AccessToken(ctx context.Context) (string, error) {
	return s.token, nil
}

// RefreshFunc performs the actual token refresh against the auth backend.
// It receives the current refresh token and returns a new access/refresh
// pair. The transport behind it is an external collaborator.
type RefreshFunc func(ctx context.Context, refreshToken string) (access, refresh string, err error)

// RefreshingTokenSource holds an access/refresh token pair and renews the
// access token proactively when its exp claim is about to pass, as well as
// on demand after a 401.
type RefreshingTokenSource struct {
	mu        sync.Mutex
	access    string
	refresh   string
	refreshFn RefreshFunc
	leeway    time.Duration
	now       func() time.Time
}

// NewRefreshingTokenSource builds a source from an initial token pair.
func NewRefreshingTokenSource(access, refresh string, fn RefreshFunc) *RefreshingTokenSource {
	return &RefreshingTokenSource{
		access:    access,
		refresh:   refresh,
		refreshFn: fn,
		leeway:    30 * time.Second,
		now:       time.Now,
	}
}

// AccessToken returns the current access token, refreshing it first when the
// exp claim is within the leeway window.
func (s *RefreshingTokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.access == "" || s.expiringSoon() {
		if err := s.refreshLocked(ctx); err != nil {
			// A stale token is still better than none; the 401 path will
			// force a refresh retry.
			if s.access == "" {
				return "", err
			}
		}
	}
	return s.access, nil
}

// Refresh discards the current access token and obtains a new pair.
func (s *RefreshingTokenSource) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *RefreshingTokenSource) refreshLocked(ctx context.Context) error {
	if s.refreshFn == nil || s.refresh == "" {
		return fmt.Errorf("no refresh token available")
	}
	access, refresh, err := s.refreshFn(ctx, s.refresh)
	if err != nil {
		return fmt.Errorf("token refresh failed: %w", err)
	}
	s.access = access
	s.refresh = refresh
	return nil
}

// expiringSoon inspects the access token's exp claim without verifying the
// signature (verification is the server's job; we only need the timestamp).
func (s *RefreshingTokenSource) expiringSoon() bool {
	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(s.access, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(s.now().Add(s.leeway))
}
