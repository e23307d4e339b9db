package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope type names understood by this core. Anything else arriving from
// a client is rejected loudly with the supported list.
const (
	TypeWelcome      = "connection"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeHeartbeat    = "heartbeat"
	TypeError        = "error"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeMemberJoined = "member_joined"
	TypeMemberLeft   = "member_left"
	TypeDisconnect   = "disconnect"
	TypeSystemAlert  = "system_alert"
)

// InboundTypes enumerates what clients may send.
var InboundTypes = []string{TypePing, TypeSubscribe, TypeUnsubscribe}

// Envelope is the unit of transmission between the core and a client.
// Immutable once sent: fan-out paths clone it per recipient so that
// per-connection sequence assignment never races.
type Envelope struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	// Sequence is assigned by the broker, never by the caller. Nil until a
	// connection-scoped send stamps it.
	Sequence *int64 `json:"sequence"`

	// Declared queueing tier; not part of the wire frame.
	Priority Priority `json:"-"`
}

// NewEnvelope validates at construction time so an invalid envelope can
// never reach a send path.
func NewEnvelope(typ string, data map[string]any) (Envelope, error) {
	if typ == "" {
		return Envelope{}, NewValidationError("type")
	}
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now().UTC(),
		Priority:  PriorityNormal,
	}, nil
}

// MustEnvelope is for core-generated frames whose type is a package constant.
func MustEnvelope(typ string, data map[string]any) Envelope {
	env, err := NewEnvelope(typ, data)
	if err != nil {
		panic(fmt.Sprintf("model: invalid core envelope: %v", err))
	}
	return env
}

func (e Envelope) WithPriority(p Priority) Envelope {
	e.Priority = p
	return e
}

// WithSequence returns a stamped copy, leaving the original untouched.
func (e Envelope) WithSequence(seq int64) Envelope {
	e.Sequence = &seq
	return e
}

// InboundMessage is the client-to-server frame shape. Only Type is
// universally required; subscribe/unsubscribe additionally require RoomID.
type InboundMessage struct {
	Type   string         `json:"type"`
	RoomID string         `json:"room_id"`
	Data   map[string]any `json:"data"`
}

// ParseInbound decodes and validates a raw client frame.
func ParseInbound(raw []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("malformed message payload: %w", err)
	}
	if msg.Type == "" {
		return InboundMessage{}, NewValidationError("type")
	}
	return msg, nil
}
