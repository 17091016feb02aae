package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/observer/tandem/internal/auth"
	"github.com/observer/tandem/internal/domain"
	"github.com/observer/tandem/internal/presence"
	"github.com/observer/tandem/internal/pubsub"
)

// =============================================================================
// Connection Lifecycle Tests
// =============================================================================

func TestSession_GreetingNamesTheUser(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)

	conn := env.rawDial(t, alice)
	greeting := readFrame(t, conn)

	assert.Equal(t, MessageTypeSuccess, greeting.Type)
	var payload SuccessPayload
	require.NoError(t, json.Unmarshal(greeting.Payload, &payload))
	assert.Equal(t, "Successful connection for user: Alice", payload.Message)
}

func TestSession_PresenceWindow(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)
	ctx := context.Background()

	require.False(t, env.registry.IsOnline(ctx, alice.ID))

	conn := env.dial(t, alice)
	assert.True(t, env.registry.IsOnline(ctx, alice.ID), "greeting implies the subscription is live")

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return !env.registry.IsOnline(ctx, alice.ID)
	}, 2*time.Second, 10*time.Millisecond, "disconnect must flip presence to offline")
}

func TestSession_SubscribeFailureSendsErrorAndCloses(t *testing.T) {
	alice := userAlice()
	store := newFakeUserStore(alice)
	bus := &failingSubscribeBus{PubSub: pubsub.NewMemoryPubSub()}
	t.Cleanup(func() { _ = bus.Close() })

	registry := presence.NewRegistry(bus, testLogger())
	router := NewRouter(bus, registry, testLogger())
	coordinator := NewCoordinator(store, &stubMinter{}, router, testLogger())
	handler := NewHandler(bus, store, registry, router, coordinator, testLogger())

	tokens, err := auth.NewTokenService(testSigningKey)
	require.NoError(t, err)
	server := httptest.NewServer(auth.Middleware(tokens)(handler))
	t.Cleanup(server.Close)

	bearer, err := tokens.GenerateBearerToken(alice.Email)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/auth/websocket?token=" + bearer
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	frame := readFrame(t, conn)
	assert.Equal(t, MessageTypeError, frame.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, "Failed to subscribe to channel", payload.Error)

	// The server hangs up right after the error frame.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

// =============================================================================
// Dispatch Tests
// =============================================================================

func TestSession_PingPong(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)
	conn := env.dial(t, alice)

	sendFrame(t, conn, mustMessage(t, MessageTypePing, PingPayload{Message: "ping"}))

	pong := readFrame(t, conn)
	assert.Equal(t, MessageTypePong, pong.Type)
	var payload PongPayload
	require.NoError(t, json.Unmarshal(pong.Payload, &payload))
	assert.Equal(t, "pong", payload.Message)

	// Pings answer locally; nothing rides the bus.
	assert.Empty(t, env.bus.published())
}

func TestSession_MalformedFrameGetsErrorAndSessionSurvives(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)
	conn := env.dial(t, alice)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	errFrame := readFrame(t, conn)
	assert.Equal(t, MessageTypeError, errFrame.Type)
	var payload ErrorPayload
	require.NoError(t, json.Unmarshal(errFrame.Payload, &payload))
	assert.Contains(t, payload.Error, "failed to parse message")

	// One bad frame must not cost the connection.
	sendFrame(t, conn, mustMessage(t, MessageTypePing, PingPayload{Message: "ping"}))
	assert.Equal(t, MessageTypePong, readFrame(t, conn).Type)
}

func TestSession_BadPayloadGetsErrorFrame(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)
	conn := env.dial(t, alice)

	// Valid envelope, wrong payload shape for the type.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"call_request","payload":{"callee_id":42}}`)))

	errFrame := readFrame(t, conn)
	assert.Equal(t, MessageTypeError, errFrame.Type)

	sendFrame(t, conn, mustMessage(t, MessageTypePing, PingPayload{Message: "ping"}))
	assert.Equal(t, MessageTypePong, readFrame(t, conn).Type)
}

func TestSession_UnknownTypeIsDropped(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)
	conn := env.dial(t, alice)

	sendFrame(t, conn, mustMessage(t, "screen_share", map[string]string{"display": "main"}))

	// The next answer must be the pong: the unknown frame produced nothing.
	sendFrame(t, conn, mustMessage(t, MessageTypePing, PingPayload{Message: "ping"}))
	assert.Equal(t, MessageTypePong, readFrame(t, conn).Type)
}

func TestSession_BinaryFramesAreIgnored(t *testing.T) {
	alice := userAlice()
	env := newTestEnv(t, alice)
	conn := env.dial(t, alice)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02, 0x03}))

	sendFrame(t, conn, mustMessage(t, MessageTypePing, PingPayload{Message: "ping"}))
	assert.Equal(t, MessageTypePong, readFrame(t, conn).Type)
}

func TestSession_TeammateOnlineForwardCarriesTheSenderID(t *testing.T) {
	alice, bob := userAlice(), userBob()
	env := newTestEnv(t, alice, bob)

	aliceConn := env.dial(t, alice)
	bobConn := env.dial(t, bob)

	// Alice tells the hub to notify Bob; the frame Bob receives names
	// Alice, not himself.
	sendFrame(t, aliceConn, mustMessage(t, MessageTypeTeammateOnline, TeammateOnlinePayload{TeammateID: bob.ID}))

	online := readFrame(t, bobConn)
	assert.Equal(t, MessageTypeTeammateOnline, online.Type)
	var payload TeammateOnlinePayload
	require.NoError(t, json.Unmarshal(online.Payload, &payload))
	assert.Equal(t, alice.ID, payload.TeammateID)
}

// =============================================================================
// Online Announcement Tests
// =============================================================================

func TestSession_ConnectAnnouncesToOnlineTeammates(t *testing.T) {
	alice := onTeam(userAlice(), 7)
	bob := onTeam(userBob(), 7)
	carol := onTeam(&domain.User{ID: "u-carol", FirstName: "Carol", Email: "carol@example.com"}, 7)
	env := newTestEnv(t, alice, bob, carol)

	aliceConn := env.dial(t, alice)

	// Carol stays offline; only Alice is connected when Bob joins.
	bobConn := env.dial(t, bob)

	online := readFrame(t, aliceConn)
	assert.Equal(t, MessageTypeTeammateOnline, online.Type)
	var payload TeammateOnlinePayload
	require.NoError(t, json.Unmarshal(online.Payload, &payload))
	assert.Equal(t, bob.ID, payload.TeammateID)

	// Nothing was published for the offline teammate.
	assert.Empty(t, env.bus.typesFor(pubsub.Topics.User(carol.ID)))

	// Bob announced, he does not get announced to.
	assertNoFrame(t, bobConn)
}

func TestSession_TeamlessConnectAnnouncesNothing(t *testing.T) {
	alice, bob := userAlice(), userBob()
	env := newTestEnv(t, alice, bob)

	env.dial(t, alice)
	env.dial(t, bob)

	assert.Zero(t, env.users.teammateQueries(), "no team means no teammate lookup")
	assert.Empty(t, env.bus.published())
}

// =============================================================================
// Backpressure and Bus Filter Tests
// =============================================================================

func TestSession_FullSendQueueClosesTheSession(t *testing.T) {
	var closed atomic.Bool
	s := &Session{
		send:   make(chan []byte, 1),
		logger: testLogger(),
		cancel: func() { closed.Store(true) },
	}

	s.enqueue([]byte(`{"type":"pong","payload":{"message":"pong"}}`))
	assert.False(t, closed.Load())

	s.enqueue([]byte(`{"type":"pong","payload":{"message":"pong"}}`))
	assert.True(t, closed.Load(), "overflowing the buffer must close the session")
}

func TestSession_BusFilterDropsUnforwardableTypes(t *testing.T) {
	s := &Session{send: make(chan []byte, 4), logger: testLogger()}
	ctx := context.Background()

	// Error frames published on the channel are deliberately not
	// forwarded; clients only ever see errors their own socket caused.
	s.onBusMessage(ctx, &pubsub.Message{Type: MessageTypeError, Payload: json.RawMessage(`{"error":"Failed to get caller"}`)})
	s.onBusMessage(ctx, &pubsub.Message{Type: MessageTypePing, Payload: json.RawMessage(`{}`)})
	s.onBusMessage(ctx, &pubsub.Message{Type: "screen_share", Payload: json.RawMessage(`{}`)})
	assert.Empty(t, s.send)

	s.onBusMessage(ctx, &pubsub.Message{Type: MessageTypeCallEnd, Payload: json.RawMessage(`{"participant_id":"u-1"}`)})
	require.Len(t, s.send, 1)

	frame := <-s.send
	assert.JSONEq(t, `{"type":"call_end","payload":{"participant_id":"u-1"}}`, string(frame))
}

// failingSubscribeBus delegates everything except Subscribe, which always
// fails.
type failingSubscribeBus struct {
	pubsub.PubSub
}

func (b *failingSubscribeBus) Subscribe(ctx context.Context, topic string, handler pubsub.Handler) (pubsub.Subscription, error) {
	return nil, assert.AnError
}
