package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/observer/tandem/internal/livekit"
)

// Wire message tags. The same envelope travels on the WebSocket and on
// the pub/sub bus, so these constants are the protocol: changing one is
// a wire break for every connected client. Keep the tags, the payload
// structs below, the read-loop dispatch and the bus filter in sync.

// Client -> server
const (
	MessageTypePing        = "ping"
	MessageTypeCallRequest = "call_request"
)

// Server -> client
const (
	MessageTypeSuccess       = "success"
	MessageTypeError         = "error"
	MessageTypePong          = "pong"
	MessageTypeIncomingCall  = "incoming_call"
	MessageTypeCalleeOffline = "callee_offline"
	MessageTypeCallTokens    = "call_tokens"
)

// Both directions: sent by a client, forwarded by the hub to the peer.
const (
	MessageTypeCallAccept     = "call_accept"
	MessageTypeCallReject     = "call_reject"
	MessageTypeCallEnd        = "call_end"
	MessageTypeTeammateOnline = "teammate_online"
)

// Message is the signaling envelope: a type tag and a payload whose
// shape depends on the tag. Nothing else goes on the wire.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseMessage decodes a wire frame into the envelope. Malformed JSON is
// an error; an unknown type tag is not, so callers warn and skip and old
// servers tolerate new clients.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// NewMessage wraps a payload into the envelope.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: payloadBytes,
	}, nil
}

// Encode renders the envelope as a UTF-8 JSON text frame.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// ============================================================================
// Payloads
// ============================================================================

// SuccessPayload carries the post-subscribe greeting.
type SuccessPayload struct {
	Message string `json:"message"`
}

// ErrorPayload carries a user-visible error string.
type ErrorPayload struct {
	Error string `json:"error"`
}

// PingPayload is the client's liveness probe.
type PingPayload struct {
	Message string `json:"message"`
}

// PongPayload answers a ping.
type PongPayload struct {
	Message string `json:"message"`
}

// CallRequestPayload asks the hub to ring another user.
type CallRequestPayload struct {
	CalleeID string `json:"callee_id"`
}

// IncomingCallPayload rings the callee with the caller's identity.
type IncomingCallPayload struct {
	CallerID string `json:"caller_id"`
}

// CalleeOfflinePayload tells the caller nobody is listening.
type CalleeOfflinePayload struct {
	CalleeID string `json:"callee_id"`
}

// CallAcceptPayload names the caller whose ring is being answered.
type CallAcceptPayload struct {
	CallerID string `json:"caller_id"`
}

// CallRejectPayload names the caller whose ring is being declined.
type CallRejectPayload struct {
	CallerID string `json:"caller_id"`
}

// CallEndPayload names the participant whose call is being hung up.
type CallEndPayload struct {
	ParticipantID string `json:"participant_id"`
}

// TeammateOnlinePayload announces that a teammate connected.
type TeammateOnlinePayload struct {
	TeammateID string `json:"teammate_id"`
}

// ============================================================================
// Constructors for server-originated frames
// ============================================================================

// NewSuccessMessage creates the connection greeting.
func NewSuccessMessage(text string) *Message {
	msg, _ := NewMessage(MessageTypeSuccess, SuccessPayload{Message: text})
	return msg
}

// NewErrorMessage creates an error frame.
func NewErrorMessage(err string) *Message {
	msg, _ := NewMessage(MessageTypeError, ErrorPayload{Error: err})
	return msg
}

// NewPongMessage answers a client ping.
func NewPongMessage() *Message {
	msg, _ := NewMessage(MessageTypePong, PongPayload{Message: "pong"})
	return msg
}

// NewIncomingCallMessage rings a callee on behalf of callerID.
func NewIncomingCallMessage(callerID string) *Message {
	msg, _ := NewMessage(MessageTypeIncomingCall, IncomingCallPayload{CallerID: callerID})
	return msg
}

// NewCalleeOfflineMessage tells a caller that calleeID is not connected.
func NewCalleeOfflineMessage(calleeID string) *Message {
	msg, _ := NewMessage(MessageTypeCalleeOffline, CalleeOfflinePayload{CalleeID: calleeID})
	return msg
}

// NewCallTokensMessage hands one side of a call its media grants.
func NewCallTokensMessage(tokens livekit.TokenSet) *Message {
	msg, _ := NewMessage(MessageTypeCallTokens, tokens)
	return msg
}

// NewTeammateOnlineMessage announces that teammateID came online.
func NewTeammateOnlineMessage(teammateID string) *Message {
	msg, _ := NewMessage(MessageTypeTeammateOnline, TeammateOnlinePayload{TeammateID: teammateID})
	return msg
}
