package wire

import (
	"log/slog"
	"strings"

	"github.com/lanternchat/streamhub/internal/model"
)

const (
	// DefaultSentinel bounds each embedded JSON message. The backend
	// frames text-protocol messages with an ASCII record separator on
	// both sides; anything outside a sentinel pair is free-form text
	// and ignored.
	DefaultSentinel = "\x1e"

	// DefaultMaxBufferSize caps cumulative bytes appended to one
	// TextDecoder instance (10 MiB).
	DefaultMaxBufferSize = 10 << 20
)

// OverflowHandler receives the cumulative byte total that tripped the
// size cap. Fires at most once per decoder instance.
type OverflowHandler func(total int)

// TextDecoderConfig configures a TextDecoder.
type TextDecoderConfig struct {
	Sentinel      string // message delimiter; "" = DefaultSentinel
	MaxBufferSize int    // cumulative byte cap; 0 = DefaultMaxBufferSize
}

// TextDecoder incrementally extracts sentinel-delimited JSON messages
// from a chunked text stream. A message split across any number of
// Append calls parses identically to one delivered whole.
//
// The size cap counts every byte ever appended, not current buffer
// occupancy: a decoder that overflows once is dead until Reset.
type TextDecoder struct {
	sentinel string
	maxSize  int
	logger   *slog.Logger

	onMessage  EnvelopeHandler
	onOverflow OverflowHandler

	pending       string
	bytesReceived int
	overflowed    bool
	lastCheck     int
}

// NewTextDecoder creates a decoder. Nil handlers are no-ops.
func NewTextDecoder(cfg TextDecoderConfig, onMessage EnvelopeHandler, onOverflow OverflowHandler, logger *slog.Logger) *TextDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	sentinel := cfg.Sentinel
	if sentinel == "" {
		sentinel = DefaultSentinel
	}
	maxSize := cfg.MaxBufferSize
	if maxSize == 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &TextDecoder{
		sentinel:   sentinel,
		maxSize:    maxSize,
		logger:     logger,
		onMessage:  onMessage,
		onOverflow: onOverflow,
	}
}

// Append adds a chunk and parses every complete sentinel-delimited
// message now present. Returns an OverflowError when the cumulative
// cap is first exceeded (the chunk is not appended and the overflow
// handler fires exactly once); after that every call is a no-op
// returning the same error.
func (d *TextDecoder) Append(chunk string) error {
	if d.overflowed {
		return &OverflowError{Received: d.bytesReceived, Max: d.maxSize}
	}

	// len() is the UTF-8 byte count, which is what the cap is
	// denominated in; multi-byte runes count all their bytes.
	total := d.bytesReceived + len(chunk)
	if total > d.maxSize {
		d.overflowed = true
		d.bytesReceived = total
		err := &OverflowError{Received: total, Max: d.maxSize}
		d.logger.Error("text stream overflow", "received", total, "cap", d.maxSize)
		if d.onOverflow != nil {
			d.onOverflow(total)
		}
		return err
	}

	d.bytesReceived = total
	d.pending += chunk
	d.scan()
	return nil
}

// Reset restores the decoder for reuse, clearing the overflow state.
func (d *TextDecoder) Reset() {
	d.pending = ""
	d.bytesReceived = 0
	d.overflowed = false
	d.lastCheck = 0
}

// BytesReceived returns the cumulative bytes appended since the last
// Reset, including a rejected overflow chunk.
func (d *TextDecoder) BytesReceived() int {
	return d.bytesReceived
}

// Overflowed reports whether the decoder has permanently overflowed.
func (d *TextDecoder) Overflowed() bool {
	return d.overflowed
}

// ShouldApplyBackpressure is advisory telemetry: it returns true at
// most once per checkIntervalBytes of stream growth, and only while at
// least that much unparsed text is sitting in the buffer. Callers use
// it to log that the producer is outrunning the parser; it is not flow
// control.
func (d *TextDecoder) ShouldApplyBackpressure(checkIntervalBytes int) bool {
	if checkIntervalBytes <= 0 {
		return false
	}
	if d.bytesReceived-d.lastCheck < checkIntervalBytes {
		return false
	}
	d.lastCheck = d.bytesReceived
	return len(d.pending) >= checkIntervalBytes
}

// scan repeatedly extracts the text between the first two sentinels
// and parses it. The remainder after the last complete pair, possibly
// a partial trailing message, stays buffered.
func (d *TextDecoder) scan() {
	for {
		start := strings.Index(d.pending, d.sentinel)
		if start < 0 {
			return
		}
		bodyStart := start + len(d.sentinel)
		rel := strings.Index(d.pending[bodyStart:], d.sentinel)
		if rel < 0 {
			return
		}

		body := d.pending[bodyStart : bodyStart+rel]
		// Consume through the closing sentinel, including any
		// free-form text that preceded the opening one.
		d.pending = d.pending[bodyStart+rel+len(d.sentinel):]

		env, err := model.DecodeJSON([]byte(body))
		if err != nil {
			// A malformed body is dropped; the stream keeps flowing.
			d.logger.Warn("unparseable delimited message", "error", err, "bytes", len(body))
			continue
		}
		env.WireBytes = len(body)
		env.FromText = true
		d.emit(env)
	}
}

func (d *TextDecoder) emit(env model.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("envelope handler panicked", "panic", r)
		}
	}()
	if d.onMessage != nil {
		d.onMessage(env)
	}
}
