package session

import (
	"errors"
	"time"

	"github.com/lanternchat/streamhub/internal/model"
	"github.com/lanternchat/streamhub/internal/wire"
)

// Errors
var (
	ErrClosed = errors.New("session: manager closed")
)

// Phase is a manager's position in its connection lifecycle.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// NoticeKind classifies a connection-level notification surfaced to
// the application (for UI state and logging).
type NoticeKind string

const (
	// NoticeReconnecting: the session dropped and a reconnect is
	// scheduled.
	NoticeReconnecting NoticeKind = "reconnecting"

	// NoticeClosed: the backend closed the session for good (normal
	// or idle-timeout close); no reconnect will happen.
	NoticeClosed NoticeKind = "closed"

	// NoticeReconnectExhausted: every allowed reconnect attempt
	// failed; the session is permanently disconnected.
	NoticeReconnectExhausted NoticeKind = "reconnect_exhausted"

	// NoticeOverflow: the session's text decoder exceeded its size
	// cap and stopped parsing.
	NoticeOverflow NoticeKind = "overflow"
)

// Notice is a structured connection-level notification.
type Notice struct {
	SessionID string
	Kind      NoticeKind
	CloseCode int           // close code that triggered it, if any
	Attempt   int           // reconnect attempt count at the time
	Delay     time.Duration // scheduled reconnect delay, if any
	Err       error
}

// NoticeHandler receives notices. Must not block.
type NoticeHandler func(n Notice)

// DispatchFunc receives decoded, session-tagged envelopes.
type DispatchFunc func(env model.Envelope)

// ManagerConfig tunes one session's connection manager. The zero
// value gets defaults from applyDefaults.
type ManagerConfig struct {
	// Reconnect backoff: delay = BaseDelay * 2^attempt, doubled again
	// for capacity-exceeded closes, capped at MaxDelay. After
	// MaxAttempts failed attempts the session is abandoned.
	BaseDelay   time.Duration // default 1s
	MaxDelay    time.Duration // default 60s
	MaxAttempts int           // default 8

	// Wire limits, passed through to the decoders.
	MaxFrameSize      uint32 // default wire.DefaultMaxFrameSize
	TextBufferSize    int    // default wire.DefaultMaxBufferSize
	Sentinel          string // default wire.DefaultSentinel
	CompressThreshold int    // default wire.DefaultCompressThreshold

	// BackpressureInterval is the advisory check interval for the
	// text decoder; 0 disables the check.
	BackpressureInterval int
}

func (c *ManagerConfig) applyDefaults() {
	if c.BaseDelay == 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 8
	}
	if c.MaxFrameSize == 0 {
		c.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	if c.TextBufferSize == 0 {
		c.TextBufferSize = wire.DefaultMaxBufferSize
	}
	if c.Sentinel == "" {
		c.Sentinel = wire.DefaultSentinel
	}
	if c.CompressThreshold == 0 {
		c.CompressThreshold = wire.DefaultCompressThreshold
	}
}

func (c *ManagerConfig) frameDecoderConfig() wire.FrameDecoderConfig {
	return wire.FrameDecoderConfig{MaxFrameSize: c.MaxFrameSize}
}

func (c *ManagerConfig) textDecoderConfig() wire.TextDecoderConfig {
	return wire.TextDecoderConfig{
		Sentinel:      c.Sentinel,
		MaxBufferSize: c.TextBufferSize,
	}
}
