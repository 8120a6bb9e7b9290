package model

import (
	"bytes"
	"errors"
	"testing"
)

func TestCBORRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"chat", Envelope{
			Kind:      KindChat,
			SessionID: "s-1",
			Seq:       42,
			Chat:      &ChatPayload{MessageID: "m-1", Sender: "user", Body: "hello", SentAt: 1724457600000000},
		}},
		{"event", Envelope{
			Kind:      KindEvent,
			SessionID: "s-2",
			Event:     &EventPayload{Name: "joined", Data: map[string]string{"user": "u-1"}},
		}},
		{"control", NewInterrupt("s-3")},
		{"error", Envelope{
			Kind:  KindError,
			Error: &ErrorPayload{Code: "rate_limited", Message: "slow down"},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeCBOR(tc.env)
			if err != nil {
				t.Fatalf("EncodeCBOR failed: %v", err)
			}
			got, err := DecodeCBOR(data)
			if err != nil {
				t.Fatalf("DecodeCBOR failed: %v", err)
			}
			if got.Kind != tc.env.Kind || got.SessionID != tc.env.SessionID || got.Seq != tc.env.Seq {
				t.Errorf("header fields = %+v, want %+v", got, tc.env)
			}
			switch tc.env.Kind {
			case KindChat:
				if got.Chat == nil || *got.Chat != *tc.env.Chat {
					t.Errorf("chat payload = %+v, want %+v", got.Chat, tc.env.Chat)
				}
			case KindEvent:
				if got.Event == nil || got.Event.Name != tc.env.Event.Name || got.Event.Data["user"] != "u-1" {
					t.Errorf("event payload = %+v, want %+v", got.Event, tc.env.Event)
				}
			case KindControl:
				if got.Control == nil || got.Control.Op != tc.env.Control.Op {
					t.Errorf("control payload = %+v, want %+v", got.Control, tc.env.Control)
				}
			case KindError:
				if got.Error == nil || *got.Error != *tc.env.Error {
					t.Errorf("error payload = %+v, want %+v", got.Error, tc.env.Error)
				}
			}
		})
	}
}

// Deterministic encoding: the same envelope always serializes to the
// same bytes.
func TestCBOREncodingIsDeterministic(t *testing.T) {
	env := Envelope{
		Kind:      KindEvent,
		SessionID: "s-1",
		Event:     &EventPayload{Name: "sync", Data: map[string]string{"b": "2", "a": "1", "c": "3"}},
	}

	first, err := EncodeCBOR(env)
	if err != nil {
		t.Fatalf("EncodeCBOR failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := EncodeCBOR(env)
		if err != nil {
			t.Fatalf("EncodeCBOR failed: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding %d differs from the first", i)
		}
	}
}

func TestDecodeCBORRejectsInvalid(t *testing.T) {
	if _, err := DecodeCBOR([]byte{0xff, 0x00, 0xfe}); err == nil {
		t.Error("malformed CBOR decoded without error")
	}

	// Well-formed CBOR, but no recognizable envelope kind.
	data, err := EncodeCBOR(Envelope{Kind: "telemetry"})
	if err != nil {
		t.Fatalf("EncodeCBOR failed: %v", err)
	}
	if _, err := DecodeCBOR(data); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}

	// Known kind with a missing payload.
	data, err = EncodeCBOR(Envelope{Kind: KindChat})
	if err != nil {
		t.Fatalf("EncodeCBOR failed: %v", err)
	}
	if _, err := DecodeCBOR(data); err == nil {
		t.Error("chat envelope without payload decoded without error")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	env := NewChat("s-1", "user", "round trip")
	data, err := EncodeJSON(env)
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}
	got, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if got.SessionID != "s-1" || got.Chat == nil || got.Chat.Body != "round trip" {
		t.Errorf("decoded = %+v", got)
	}
}

// The legacy flat shape lifts top-level payload fields into the
// structured envelope; the structured shape passes through untouched.
func TestDecodeJSONShapes(t *testing.T) {
	cases := []struct {
		name  string
		doc   string
		check func(t *testing.T, env Envelope)
	}{
		{
			"structured chat",
			`{"type":"chat","session_id":"s-1","chat":{"message_id":"m-1","sender":"user","body":"hi"}}`,
			func(t *testing.T, env Envelope) {
				if env.Chat == nil || env.Chat.Body != "hi" {
					t.Errorf("chat = %+v", env.Chat)
				}
			},
		},
		{
			"flat chat",
			`{"type":"chat","session_id":"s-1","message_id":"m-2","sender":"assistant","body":"flat","sent_at":1724457600000000}`,
			func(t *testing.T, env Envelope) {
				want := ChatPayload{MessageID: "m-2", Sender: "assistant", Body: "flat", SentAt: 1724457600000000}
				if env.Chat == nil || *env.Chat != want {
					t.Errorf("chat = %+v, want %+v", env.Chat, want)
				}
			},
		},
		{
			"flat event",
			`{"type":"event","session_id":"s-1","name":"left"}`,
			func(t *testing.T, env Envelope) {
				if env.Event == nil || env.Event.Name != "left" {
					t.Errorf("event = %+v", env.Event)
				}
			},
		},
		{
			"flat control",
			`{"type":"control","op":"interrupt"}`,
			func(t *testing.T, env Envelope) {
				if env.Control == nil || env.Control.Op != OpInterrupt {
					t.Errorf("control = %+v", env.Control)
				}
			},
		},
		{
			"flat error",
			`{"type":"error","code":"overloaded","message":"try later"}`,
			func(t *testing.T, env Envelope) {
				if env.Error == nil || env.Error.Code != "overloaded" || env.Error.Message != "try later" {
					t.Errorf("error = %+v", env.Error)
				}
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := DecodeJSON([]byte(tc.doc))
			if err != nil {
				t.Fatalf("DecodeJSON failed: %v", err)
			}
			tc.check(t, env)
		})
	}
}

func TestDecodeJSONUnknownKind(t *testing.T) {
	if _, err := DecodeJSON([]byte(`{"type":"metrics","value":1}`)); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{"chat ok", NewChat("s", "u", "b"), false},
		{"interrupt ok", NewInterrupt("s"), false},
		{"chat missing payload", Envelope{Kind: KindChat}, true},
		{"event missing payload", Envelope{Kind: KindEvent}, true},
		{"error missing payload", Envelope{Kind: KindError}, true},
		{"unknown kind", Envelope{Kind: "nope"}, true},
		{"empty kind", Envelope{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.env.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
