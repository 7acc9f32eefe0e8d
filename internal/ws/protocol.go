package ws

import (
	"encoding/json"

	"github.com/seantiz/argus/internal/model"
)

// Channel names a connection may subscribe to.
const (
	// DefaultChannel carries trace lifecycle events and is assigned to every
	// connection on admission.
	DefaultChannel = "traces"
	// SpanChannel carries span-level events; connections opt in explicitly.
	SpanChannel = "spans"
)

// Client -> server message types. The set is closed: Dispatch matches it
// exhaustively and answers anything else with an error event.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"
)

// pongReply is the heartbeat reply. Deliberately bare text rather than a JSON
// envelope so keep-alive checks can compare a literal.
const pongReply = "pong"

// Server -> client event types.
const (
	EventConnected    = "connected"
	EventError        = "error"
	EventTraceCreated = "trace:created"
	EventTraceUpdated = "trace:updated"
	EventSpanCreated  = "span:created"
)

// inboundMessage is the envelope for client -> server messages.
type inboundMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
}

// Event is the envelope for server -> client messages.
type Event struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId,omitempty"`
	Message  string `json:"message,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func connectedEvent(clientID string) Event {
	return Event{Type: EventConnected, ClientID: clientID}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// TraceCreated builds the event broadcast when a trace is first recorded.
func TraceCreated(t *model.Trace) Event {
	return Event{Type: EventTraceCreated, Data: t}
}

// TraceUpdated builds the event broadcast when a trace changes status.
func TraceUpdated(t *model.Trace) Event {
	return Event{Type: EventTraceUpdated, Data: t}
}

// SpanCreated builds the event broadcast when a span is recorded.
func SpanCreated(sp *model.Span) Event {
	return Event{Type: EventSpanCreated, Data: sp}
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
