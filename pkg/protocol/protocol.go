// Package protocol defines the wire contract shared with clients: one JSON
// envelope per text frame, raw payloads on binary frames, and the close codes
// clients use to tell shutdown causes apart.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Close codes. Documented so clients can distinguish a liveness timeout from
// an administrative kick.
const (
	CloseDefault     = 4500
	CloseKicked      = 4403
	ClosePingTimeout = 4504
)

// Envelope is the unit of exchange on text frames, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// InboundEvent is the closed set of events clients may send. Anything outside
// this set is a protocol error.
type InboundEvent int

const (
	EventUnknown InboundEvent = iota
	EventRegister
	EventLogin
	EventSetToken
	EventMessage
	EventPing
	EventPong
)

var inboundEvents = map[string]InboundEvent{
	"register":  EventRegister,
	"login":     EventLogin,
	"set-token": EventSetToken,
	"message":   EventMessage,
	"ping":      EventPing,
	"pong":      EventPong,
}

// ParseInboundEvent maps an event name to its kind. Unknown names fail.
func ParseInboundEvent(name string) (InboundEvent, error) {
	kind, ok := inboundEvents[name]
	if !ok {
		return EventUnknown, fmt.Errorf("unknown event %q", name)
	}
	return kind, nil
}

// Outbound event names.
const (
	OutJoinRoom      = "join-room"
	OutConnectedList = "connected-list"
	OutMessage       = "message"
	OutError         = "error"
	OutInfo          = "info"
	OutAuthToken     = "auth-token"
	OutSetOP         = "set-op"
	OutMediaSync     = "yt-sync"
	OutRoomList      = "room-list"
	OutPing          = "ping"
	OutPong          = "pong"
	OutPoll          = "poll"
)

// Encode marshals an outbound envelope. The payload must be JSON-encodable.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode parses one inbound text frame.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("malformed frame: missing event name")
	}
	return &env, nil
}
