package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/observer/tandem/internal/domain"
	"github.com/observer/tandem/internal/metrics"
	"github.com/observer/tandem/internal/pubsub"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 65536

	// Outbound frames buffered per session. A client that stops reading
	// fills this up and gets disconnected instead of growing server memory.
	sendBufferSize = 64
)

// forwardable is the exact set of bus message types a session relays to
// its socket. Everything else arriving on the user channel is dropped
// with a warning.
var forwardable = map[string]bool{
	MessageTypeIncomingCall:   true,
	MessageTypeCallReject:     true,
	MessageTypeCallAccept:     true,
	MessageTypeCallTokens:     true,
	MessageTypeCallEnd:        true,
	MessageTypeTeammateOnline: true,
}

// Session owns one authenticated WebSocket and bridges it with the
// user's pub/sub channel. There is no read deadline and no
// websocket-level ping: clients probe liveness with JSON ping frames,
// answered in-band. A user may hold several sessions at once; every one
// subscribes to the same channel and receives the same signaling.
type Session struct {
	hub    *Handler
	conn   *websocket.Conn
	user   *domain.User
	send   chan []byte
	logger *slog.Logger

	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func newSession(hub *Handler, conn *websocket.Conn, user *domain.User) *Session {
	return &Session{
		hub:    hub,
		conn:   conn,
		user:   user,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger.With("user_id", user.ID),
	}
}

// Run drives the session until the socket closes or ctx is cancelled.
// It returns only after both loops have exited and the channel
// subscription is released, so the user's presence is gone by the time
// it does.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer s.close()

	topic := pubsub.Topics.User(s.user.ID)
	sub, err := s.hub.bus.Subscribe(ctx, topic, s.onBusMessage)
	if err != nil {
		s.logger.Error("failed to subscribe to user channel", "topic", topic, "error", err)
		s.writeDirect(NewErrorMessage("Failed to subscribe to channel"))
		_ = s.conn.Close()
		return err
	}

	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	s.Send(NewSuccessMessage("Successful connection for user: " + s.user.FirstName))
	s.announceOnline(ctx)

	s.wg.Add(1)
	go s.writeLoop(ctx)

	s.readLoop(ctx)

	// Unsubscribing first is what flips this user's presence to offline;
	// only then wait for the writer to finish flushing.
	s.close()
	if err := sub.Unsubscribe(); err != nil {
		s.logger.Warn("failed to release channel subscription", "error", err)
	}
	s.wg.Wait()

	s.logger.Info("session closed")
	return nil
}

// close cancels the session context exactly once. Everything else
// (socket close, loop exits, queue drain) hangs off that cancellation.
func (s *Session) close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// readLoop pulls frames off the socket and dispatches them. It returns
// when the socket dies, which includes the write loop closing the
// connection after a cancellation.
func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			s.logger.Warn("ignoring non-text frame")
			continue
		}

		msg, err := ParseMessage(data)
		if err != nil {
			metrics.MessagesReceived.WithLabelValues("malformed").Inc()
			s.Send(NewErrorMessage(err.Error()))
			continue
		}

		s.dispatch(ctx, msg)
	}
}

// dispatch routes one client frame. Payloads that fail to decode get an
// error frame back; the session keeps running either way.
func (s *Session) dispatch(ctx context.Context, msg *Message) {
	metrics.MessagesReceived.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case MessageTypePing:
		s.Send(NewPongMessage())

	case MessageTypeCallRequest:
		var payload CallRequestPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.Send(NewErrorMessage("failed to parse message: " + err.Error()))
			return
		}
		s.logger.Info("received call request", "callee_id", payload.CalleeID)
		s.hub.router.InitiateCall(ctx, s, payload.CalleeID)

	case MessageTypeCallAccept:
		var payload CallAcceptPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.Send(NewErrorMessage("failed to parse message: " + err.Error()))
			return
		}
		s.logger.Info("accepting call", "caller_id", payload.CallerID)
		s.hub.coordinator.Accept(ctx, msg, payload.CallerID, s.user.ID)

	case MessageTypeCallReject:
		s.logger.Info("rejecting call")
		metrics.CallsRejected.Inc()
		s.hub.router.ForwardToCaller(ctx, msg)

	case MessageTypeCallEnd:
		var payload CallEndPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.Send(NewErrorMessage("failed to parse message: " + err.Error()))
			return
		}
		s.logger.Info("ending call", "participant_id", payload.ParticipantID)
		s.hub.router.ForwardTo(ctx, payload.ParticipantID, msg)

	case MessageTypeTeammateOnline:
		var payload TeammateOnlinePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			s.Send(NewErrorMessage("failed to parse message: " + err.Error()))
			return
		}
		// The forwarded frame carries the sender's id, not the target's.
		s.hub.router.ForwardTo(ctx, payload.TeammateID, NewTeammateOnlineMessage(s.user.ID))

	default:
		s.logger.Warn("unknown message type", "type", msg.Type)
	}
}

// onBusMessage relays a frame published on the user's channel. The
// filter set is part of the protocol: locally-answered types (ping) and
// anything unrecognized never reach the socket.
func (s *Session) onBusMessage(ctx context.Context, msg *pubsub.Message) {
	if !forwardable[msg.Type] {
		s.logger.Warn("dropping bus message", "type", msg.Type)
		return
	}

	data, err := json.Marshal(&Message{Type: msg.Type, Payload: msg.Payload})
	if err != nil {
		s.logger.Error("failed to encode bus message", "type", msg.Type, "error", err)
		return
	}

	metrics.MessagesForwarded.WithLabelValues(msg.Type).Inc()
	s.enqueue(data)
}

// announceOnline pushes teammate_online to every teammate currently
// connected, so their clients flip this user's presence dot without
// polling.
func (s *Session) announceOnline(ctx context.Context) {
	if s.user.TeamID == nil {
		return
	}

	teammates, err := s.hub.users.ListTeammates(ctx, *s.user.TeamID, s.user.ID)
	if err != nil {
		s.logger.Error("failed to list teammates", "error", err)
		return
	}

	for _, teammate := range teammates {
		if !s.hub.registry.IsOnline(ctx, teammate.ID) {
			continue
		}
		s.logger.Info("notifying teammate of connection", "teammate_id", teammate.ID)
		s.hub.router.ForwardTo(ctx, teammate.ID, NewTeammateOnlineMessage(s.user.ID))
	}
}

// Send queues a frame for the write loop.
func (s *Session) Send(msg *Message) {
	data, err := msg.Encode()
	if err != nil {
		s.logger.Error("failed to encode message", "type", msg.Type, "error", err)
		return
	}
	s.enqueue(data)
}

// enqueue hands a frame to the writer. A full queue means the client
// has stopped reading; the session is closed rather than blocking the
// bus handler or silently dropping signaling.
func (s *Session) enqueue(data []byte) {
	select {
	case s.send <- data:
	default:
		s.logger.Warn("send queue full, closing session")
		s.close()
	}
}

// writeLoop is the only goroutine that writes to the socket. On
// cancellation it sends a close frame and closes the connection, which
// also unblocks a reader stuck in ReadMessage.
func (s *Session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() { _ = s.conn.Close() }()

	for {
		select {
		case <-ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("websocket write error", "error", err)
				s.close()
				return
			}
		}
	}
}

// writeDirect bypasses the queue for errors that happen before the
// write loop exists.
func (s *Session) writeDirect(msg *Message) {
	data, err := msg.Encode()
	if err != nil {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}
