package model

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the same
// envelope always produces identical bytes.
var encMode cbor.EncMode

// decMode accepts standard CBOR; unknown fields are ignored for
// forward compatibility.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("model: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Event data and similar any-typed targets must decode to
		// map[string]any, not map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("model: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeCBOR serializes an envelope to the binary payload format.
func EncodeCBOR(env Envelope) ([]byte, error) {
	return encMode.Marshal(env)
}

// DecodeCBOR deserializes a binary payload. The binary protocol only
// ever carried the structured form, so no flat-field mapping happens
// here.
func DecodeCBOR(data []byte) (Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode cbor envelope: %w", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// jsonEnvelope is the single decode target for both JSON wire shapes.
// The embedded Envelope covers the structured form; the extra fields
// cover the legacy flat form.
type jsonEnvelope struct {
	Envelope

	MessageID string `json:"message_id,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Body      string `json:"body,omitempty"`
	SentAt    int64  `json:"sent_at,omitempty"`
	Name      string `json:"name,omitempty"`
	Op        string `json:"op,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// EncodeJSON serializes an envelope in the structured form.
func EncodeJSON(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// DecodeJSON deserializes a JSON document in either wire shape and
// returns the canonical envelope. Flat-field payloads are lifted into
// the structured payload here and nowhere else.
func DecodeJSON(data []byte) (Envelope, error) {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return Envelope{}, fmt.Errorf("decode json envelope: %w", err)
	}

	env := je.Envelope
	if env.payloadSet() {
		if err := env.Validate(); err != nil {
			return Envelope{}, err
		}
		return env, nil
	}

	// Legacy flat form: payload fields at the top level.
	switch env.Kind {
	case KindChat:
		env.Chat = &ChatPayload{
			MessageID: je.MessageID,
			Sender:    je.Sender,
			Body:      je.Body,
			SentAt:    je.SentAt,
		}
	case KindEvent:
		env.Event = &EventPayload{Name: je.Name}
	case KindControl:
		env.Control = &ControlPayload{Op: je.Op}
	case KindError:
		env.Error = &ErrorPayload{Code: je.Code, Message: je.Message}
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
	return env, nil
}

func (e *Envelope) payloadSet() bool {
	return e.Chat != nil || e.Event != nil || e.Control != nil || e.Error != nil
}
