package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/tandem/internal/auth"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_AllowsBurstThenRejects(t *testing.T) {
	svc, err := auth.NewTokenService(testSigningKey)
	require.NoError(t, err)

	rl := NewRateLimiter(60) // burst of 6
	handler := auth.Middleware(svc)(rl.Middleware(okHandler()))

	token, err := svc.GenerateBearerToken("alice@example.com")
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d should be within burst", i+1)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimiter_IsolatesUsers(t *testing.T) {
	svc, err := auth.NewTokenService(testSigningKey)
	require.NoError(t, err)

	rl := NewRateLimiter(60)
	handler := auth.Middleware(svc)(rl.Middleware(okHandler()))

	aliceToken, err := svc.GenerateBearerToken("alice@example.com")
	require.NoError(t, err)
	bobToken, err := svc.GenerateBearerToken("bob@example.com")
	require.NoError(t, err)

	// Exhaust alice's burst
	for i := 0; i < 7; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
		req.Header.Set("Authorization", "Bearer "+aliceToken)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	// Bob is unaffected
	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("Authorization", "Bearer "+bobToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_SkipsUnauthenticatedRequests(t *testing.T) {
	rl := NewRateLimiter(60)
	handler := rl.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_CleanupRemovesIdleLimiters(t *testing.T) {
	rl := NewRateLimiter(6000)

	rl.getLimiter("idle@example.com")
	busy := rl.getLimiter("busy@example.com")
	for i := 0; i < 10; i++ {
		busy.Allow()
	}

	rl.Cleanup()

	assert.NotContains(t, rl.limiters, "idle@example.com")
	assert.Contains(t, rl.limiters, "busy@example.com")
}
