package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestRefreshingTokenSource_ProactiveRefreshNearExpiry(t *testing.T) {
	ctx := context.Background()
	expiring := signedToken(t, time.Now().Add(5*time.Second))

	refreshed := 0
	ts := NewRefreshingTokenSource(expiring, "r1", func(ctx context.Context, refreshToken string) (string, string, error) {
		refreshed++
		return signedToken(t, time.Now().Add(time.Hour)), "r2", nil
	})

	tok, err := ts.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed, "token inside leeway window must refresh proactively")
	assert.NotEqual(t, expiring, tok)

	// fresh token: no second refresh
	_, err = ts.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
}

func TestRefreshingTokenSource_KeepsFreshToken(t *testing.T) {
	fresh := signedToken(t, time.Now().Add(time.Hour))

	ts := NewRefreshingTokenSource(fresh, "r1", func(ctx context.Context, refreshToken string) (string, string, error) {
		t.Fatal("refresh must not be called for a fresh token")
		return "", "", nil
	})

	tok, err := ts.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, tok)
}

func TestRefreshingTokenSource_RefreshRotatesPair(t *testing.T) {
	ctx := context.Background()
	ts := NewRefreshingTokenSource("opaque", "r1", func(ctx context.Context, refreshToken string) (string, string, error) {
		assert.Equal(t, "r1", refreshToken)
		return "a2", "r2", nil
	})

	require.NoError(t, ts.Refresh(ctx))

	tok, err := ts.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", tok)
}

func TestRefreshingTokenSource_NoRefreshTokenAvailable(t *testing.T) {
	ts := NewRefreshingTokenSource("", "", nil)
	_, err := ts.AccessToken(context.Background())
	assert.Error(t, err)
}
