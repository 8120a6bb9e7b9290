package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what an Envelope carries.
type Kind string

const (
	KindChat    Kind = "chat"    // user or assistant chat message
	KindEvent   Kind = "event"   // session lifecycle / presence event
	KindControl Kind = "control" // control signal (interrupt, typing, ...)
	KindError   Kind = "error"   // backend-reported error
)

// Control operations.
const (
	OpInterrupt = "interrupt"
	OpTyping    = "typing"
)

// ErrUnknownKind is returned when a decoded envelope carries no
// recognized kind.
var ErrUnknownKind = errors.New("model: unknown envelope kind")

// Envelope is the canonical session-tagged message. Exactly one of the
// payload pointers is set, matching Kind.
type Envelope struct {
	Kind      Kind   `json:"type" cbor:"type"`
	SessionID string `json:"session_id,omitempty" cbor:"session_id,omitempty"`
	Seq       int64  `json:"seq,omitempty" cbor:"seq,omitempty"`

	Chat    *ChatPayload    `json:"chat,omitempty" cbor:"chat,omitempty"`
	Event   *EventPayload   `json:"event,omitempty" cbor:"event,omitempty"`
	Control *ControlPayload `json:"control,omitempty" cbor:"control,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty" cbor:"error,omitempty"`

	// Decode observability, populated by the wire layer. Never serialized.
	WireBytes  int  `json:"-" cbor:"-"`
	Compressed bool `json:"-" cbor:"-"`
	FromText   bool `json:"-" cbor:"-"`
}

// ChatPayload is one chat message.
type ChatPayload struct {
	MessageID string `json:"message_id" cbor:"message_id"`
	Sender    string `json:"sender" cbor:"sender"`
	Body      string `json:"body" cbor:"body"`
	SentAt    int64  `json:"sent_at,omitempty" cbor:"sent_at,omitempty"` // µs since epoch
}

// EventPayload is a session lifecycle or presence event.
type EventPayload struct {
	Name string            `json:"name" cbor:"name"`
	Data map[string]string `json:"data,omitempty" cbor:"data,omitempty"`
}

// ControlPayload is a fire-and-forget control signal.
type ControlPayload struct {
	Op string `json:"op" cbor:"op"`
}

// ErrorPayload is a backend-reported error.
type ErrorPayload struct {
	Code    string `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
}

// NewChat builds a chat envelope with a fresh message ID.
func NewChat(sessionID, sender, body string) Envelope {
	return Envelope{
		Kind:      KindChat,
		SessionID: sessionID,
		Chat: &ChatPayload{
			MessageID: uuid.NewString(),
			Sender:    sender,
			Body:      body,
			SentAt:    time.Now().UnixMicro(),
		},
	}
}

// NewInterrupt builds the interrupt control envelope for a session.
func NewInterrupt(sessionID string) Envelope {
	return Envelope{
		Kind:      KindControl,
		SessionID: sessionID,
		Control:   &ControlPayload{Op: OpInterrupt},
	}
}

// Validate checks that Kind is known and the matching payload is set.
func (e *Envelope) Validate() error {
	switch e.Kind {
	case KindChat:
		if e.Chat == nil {
			return fmt.Errorf("model: chat envelope missing payload")
		}
	case KindEvent:
		if e.Event == nil {
			return fmt.Errorf("model: event envelope missing payload")
		}
	case KindControl:
		if e.Control == nil {
			return fmt.Errorf("model: control envelope missing payload")
		}
	case KindError:
		if e.Error == nil {
			return fmt.Errorf("model: error envelope missing payload")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
	return nil
}
