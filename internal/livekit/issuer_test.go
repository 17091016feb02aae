package livekit

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/tandem/internal/domain"
)

const (
	testAPIKey    = "devkey"
	testAPISecret = "apisecret-apisecret-apisecret-00"
	testServerURL = "wss://livekit.example.com"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(testAPIKey, testAPISecret, testServerURL)
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

// =============================================================================
// Construction
// =============================================================================

func TestNewIssuer_RequiresFullConfig(t *testing.T) {
	cases := []struct {
		name             string
		key, secret, url string
	}{
		{"missing key", "", testAPISecret, testServerURL},
		{"missing secret", testAPIKey, "", testServerURL},
		{"missing url", testAPIKey, testAPISecret, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewIssuer(tc.key, tc.secret, tc.url)
			assert.Error(t, err)
		})
	}
}

func TestIssuer_ServerURL(t *testing.T) {
	issuer := newTestIssuer(t)
	assert.Equal(t, testServerURL, issuer.ServerURL())
}

// =============================================================================
// Room tokens
// =============================================================================

func TestMintRoomTokens_GrantShape(t *testing.T) {
	issuer := newTestIssuer(t)

	participant := &domain.User{
		ID:        "5f6c02f5-0b9a-4c3d-8a9f-0c1d2e3f4a5b",
		FirstName: "Alice",
		LastName:  "Smith",
		Email:     "alice@example.com",
	}

	tokens, err := issuer.MintRoomTokens("dev-room", participant)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AudioToken)
	require.NotEmpty(t, tokens.VideoToken)
	assert.Empty(t, tokens.Participant, "participant is assigned by the caller, not the issuer")

	video := parseGrant(t, tokens.VideoToken)
	assert.Equal(t, "room:dev-room:"+participant.ID+":video", video["sub"])
	assert.Equal(t, "Alice Smith video", video["name"])
	assert.Equal(t, testAPIKey, video["iss"])

	grant, ok := video["video"].(map[string]interface{})
	require.True(t, ok, "video grant claim missing")
	assert.Equal(t, "dev-room", grant["room"])
	assert.Equal(t, true, grant["roomJoin"])

	exp := time.Unix(int64(video["exp"].(float64)), 0)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), exp, 5*time.Second)

	audio := parseGrant(t, tokens.AudioToken)
	assert.Equal(t, "room:dev-room:"+participant.ID+":audio", audio["sub"])
	assert.Equal(t, "Alice Smith audio", audio["name"])
}

func TestMintRoomTokens_SingleNameUser(t *testing.T) {
	issuer := newTestIssuer(t)

	participant := &domain.User{
		ID:        "b54b6c0d-0a55-4f6d-a1c9-222222222222",
		FirstName: "Prince",
	}

	tokens, err := issuer.MintRoomTokens("dev-room", participant)
	require.NoError(t, err)

	video := parseGrant(t, tokens.VideoToken)
	assert.Equal(t, "Prince video", video["name"])
}

// =============================================================================
// Redirect tokens
// =============================================================================

func TestMintRedirectToken_AudioOnlyAndShortLived(t *testing.T) {
	issuer := newTestIssuer(t)

	tokenString, err := issuer.MintRedirectToken("team-7-watercooler", "anonymous-ab12")
	require.NoError(t, err)

	claims := parseGrant(t, tokenString)
	assert.Equal(t, "room:team-7-watercooler:anonymous-ab12:audio", claims["sub"])
	assert.NotContains(t, claims, "name")

	grant, ok := claims["video"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "team-7-watercooler", grant["room"])
	assert.Equal(t, true, grant["roomJoin"])

	exp := time.Unix(int64(claims["exp"].(float64)), 0)
	assert.WithinDuration(t, time.Now().Add(3*time.Hour), exp, 5*time.Second)
}
