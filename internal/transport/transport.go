// Package transport defines the duplex channel the session layer
// consumes, and its gorilla/websocket implementation. A Transport is
// single-use: reconnection always builds a fresh one via the Factory.
package transport

import (
	"context"
	"errors"
)

// Close codes shared with the backend. Values are wire constants;
// changing them breaks compatibility.
const (
	CodeNormal           = 1000 // operator-initiated close
	CodeAbnormal         = 1006 // connection dropped without a close frame
	CodeIdleTimeout      = 4000 // server declared the session idle
	CodeCapacityExceeded = 4503 // server concurrency limit hit
)

var (
	ErrNotConnected  = errors.New("transport: not connected")
	ErrAlreadyClosed = errors.New("transport: already closed")
)

// Handlers receive transport events. Callbacks fire from the
// transport's read goroutine. OnClose fires at most once, and only for
// remote or abnormal closes — a local Close() is silent.
type Handlers struct {
	OnOpen   func()
	OnBinary func(data []byte)
	OnText   func(text string)
	OnClose  func(code int, reason string)
	OnError  func(err error)
}

// Transport is one duplex channel to the backend.
type Transport interface {
	// Connect establishes the channel. OnOpen fires before Connect
	// returns on success.
	Connect(ctx context.Context) error

	// SendBinary writes one binary message.
	SendBinary(data []byte) error

	// SendText writes one text message.
	SendText(text string) error

	// Close tears the channel down with a normal close. Idempotent.
	Close() error
}

// Factory builds a fresh transport for a session id. URL templating
// happens inside the factory; the session layer never sees URLs.
type Factory func(sessionID string, h Handlers) Transport
