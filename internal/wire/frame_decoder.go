package wire

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/lanternchat/streamhub/internal/model"
)

// EnvelopeHandler receives each successfully decoded envelope.
type EnvelopeHandler func(env model.Envelope)

// FaultHandler receives recoverable decode faults.
type FaultHandler func(fault *DecodeFault)

// FrameDecoderConfig configures a FrameDecoder.
type FrameDecoderConfig struct {
	MaxFrameSize uint32 // maximum payload bytes; 0 = DefaultMaxFrameSize
}

// FrameDecoder incrementally parses the binary frame protocol from a
// chunked byte stream. Chunks may split frames at any boundary; bytes
// of incomplete frames carry over between Feed calls.
type FrameDecoder struct {
	maxFrameSize uint32
	logger       *slog.Logger

	onMessage EnvelopeHandler
	onFault   FaultHandler

	buf     []byte
	decoded uint64
}

// NewFrameDecoder creates a decoder. Nil handlers are allowed and
// treated as no-ops; faults are always logged.
func NewFrameDecoder(cfg FrameDecoderConfig, onMessage EnvelopeHandler, onFault FaultHandler, logger *slog.Logger) *FrameDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	maxSize := cfg.MaxFrameSize
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameDecoder{
		maxFrameSize: maxSize,
		logger:       logger,
		onMessage:    onMessage,
		onFault:      onFault,
	}
}

// Feed appends a chunk and emits every complete frame it can parse.
// Never panics; corrupt input is reported through the fault handler
// and skipped.
func (d *FrameDecoder) Feed(chunk []byte) {
	d.buf = append(d.buf, chunk...)

	for len(d.buf) >= headerSize {
		version := binary.BigEndian.Uint16(d.buf[0:2])
		if version != ProtocolVersion {
			d.fault(&DecodeFault{
				Kind:   FaultVersionMismatch,
				Detail: fmt.Sprintf("got version %d, want %d", version, ProtocolVersion),
			})
			// Drop a single byte: a lone corrupt byte must not stall
			// the stream, so resync one byte at a time.
			d.buf = d.buf[1:]
			continue
		}

		flags := d.buf[2]
		length := binary.BigEndian.Uint32(d.buf[3:7])
		if length > d.maxFrameSize {
			d.fault(&DecodeFault{
				Kind:   FaultFrameTooLarge,
				Detail: fmt.Sprintf("declared %d bytes, cap %d", length, d.maxFrameSize),
			})
			d.buf = d.buf[headerSize:]
			continue
		}

		total := headerSize + int(length)
		if len(d.buf) < total {
			// Partial frame; wait for more data.
			return
		}

		payload := d.buf[headerSize:total]
		compressed := flags&FlagCompressed != 0
		wireBytes := int(length)

		if compressed {
			inflated, err := inflate(payload)
			if err != nil {
				d.fault(&DecodeFault{
					Kind:   FaultDecompression,
					Detail: fmt.Sprintf("frame of %d bytes", length),
					Err:    err,
				})
				d.buf = d.buf[total:]
				continue
			}
			payload = inflated
		}

		env, err := model.DecodeCBOR(payload)
		if err != nil {
			d.fault(&DecodeFault{
				Kind:   FaultDeserialization,
				Detail: fmt.Sprintf("frame of %d bytes", length),
				Err:    err,
			})
			d.buf = d.buf[total:]
			continue
		}

		env.WireBytes = wireBytes
		env.Compressed = compressed
		d.buf = d.buf[total:]
		d.decoded++
		d.emit(env)
	}
}

// Reset discards all carried-over bytes and counters.
func (d *FrameDecoder) Reset() {
	d.buf = nil
	d.decoded = 0
}

// Decoded returns the number of envelopes emitted since the last Reset.
func (d *FrameDecoder) Decoded() uint64 {
	return d.decoded
}

// Buffered returns the number of carried-over bytes awaiting more data.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

// emit invokes the message handler, containing any panic so a broken
// consumer cannot kill the stream.
func (d *FrameDecoder) emit(env model.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("envelope handler panicked", "panic", r)
		}
	}()
	if d.onMessage != nil {
		d.onMessage(env)
	}
}

func (d *FrameDecoder) fault(f *DecodeFault) {
	d.logger.Warn("frame decode fault", "kind", string(f.Kind), "detail", f.Detail, "error", f.Err)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("fault handler panicked", "panic", r)
		}
	}()
	if d.onFault != nil {
		d.onFault(f)
	}
}
