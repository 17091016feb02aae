package websocket

import (
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Handshake Auth Tests
// =============================================================================

func TestHandler_MissingTokenIsRejected(t *testing.T) {
	env := newTestEnv(t, userAlice())

	resp, err := env.server.Client().Get(env.server.URL + "/api/auth/websocket")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_GarbageTokenIsRejected(t *testing.T) {
	env := newTestEnv(t, userAlice())

	resp, err := env.server.Client().Get(env.server.URL + "/api/auth/websocket?token=not-a-jwt")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_UnknownUserIsRejectedBeforeUpgrade(t *testing.T) {
	env := newTestEnv(t, userAlice())

	// A valid token whose subject has no user row: the middleware lets it
	// through, the handler must not.
	bearer, err := env.tokens.GenerateBearerToken("ghost@example.com")
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/auth/websocket?token=" + bearer
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_AuthorizationHeaderAlsoWorks(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)

	bearer, err := env.tokens.GenerateBearerToken(alice.Email)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+bearer)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/auth/websocket"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	greeting := readFrame(t, conn)
	assert.Equal(t, MessageTypeSuccess, greeting.Type)
}
