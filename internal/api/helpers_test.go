package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/domain"
	"github.com/observer/tandem/internal/livekit"
)

const (
	testSigningKey = "tandem-test-signing-key-0123456789abcdef"
	testAPIKey     = "devkey"
	testAPISecret  = "apisecret-apisecret-apisecret-00"
	testServerURL  = "wss://livekit.example.com"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(testSigningKey)
	require.NoError(t, err)
	return tokens
}

func newTestIssuer(t *testing.T) *livekit.Issuer {
	t.Helper()
	issuer, err := livekit.NewIssuer(testAPIKey, testAPISecret, testServerURL)
	require.NoError(t, err)
	return issuer
}

// parseGrant decodes a minted LiveKit token with the shared API secret so
// tests can look at the claims the media server would see.
func parseGrant(t *testing.T, tokenString string) jwt.MapClaims {
	t.Helper()
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return []byte(testAPISecret), nil
	})
	require.NoError(t, err)
	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return claims
}

// authedGet runs a GET through the real auth middleware with a bearer
// token minted for the given email.
func authedGet(t *testing.T, tokens *auth.TokenService, handler http.HandlerFunc, email, target string) *httptest.ResponseRecorder {
	t.Helper()

	bearer, err := tokens.GenerateBearerToken(email)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+bearer)
	rec := httptest.NewRecorder()

	auth.Middleware(tokens)(handler).ServeHTTP(rec, req)
	return rec
}

// unauthedGet runs a GET with no Authorization header through the
// middleware.
func unauthedGet(t *testing.T, tokens *auth.TokenService, handler http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()

	auth.Middleware(tokens)(handler).ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Fakes
// =============================================================================

type fakeUserStore struct {
	users   []*domain.User
	getErr  error
	listErr error
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if u.Email == email {
			found := *u
			return &found, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (f *fakeUserStore) ListTeammates(ctx context.Context, teamID int64, excludeUserID string) ([]domain.User, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.User
	for _, u := range f.users {
		if u.TeamID != nil && *u.TeamID == teamID && u.ID != excludeUserID {
			out = append(out, *u)
		}
	}
	return out, nil
}

type fakeTeamStore struct {
	teams map[int64]*domain.Team
}

func (f *fakeTeamStore) GetByID(ctx context.Context, id int64) (*domain.Team, error) {
	if team, ok := f.teams[id]; ok {
		found := *team
		return &found, nil
	}
	return nil, domain.ErrTeamNotFound
}

func teamUser(id, first, email string, teamID int64) *domain.User {
	return &domain.User{ID: id, FirstName: first, Email: email, TeamID: &teamID}
}
