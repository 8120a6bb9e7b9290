package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/lanternchat/streamhub/internal/model"
)

// Binary frame layout (big-endian):
//
//	[0:2]  protocol version, must equal ProtocolVersion
//	[2]    flags, bit 0 = payload compressed
//	[3:7]  payload byte count
//	[7:]   CBOR envelope, optionally DEFLATE-compressed
//
// These values are protocol constants shared with the backend.
const (
	ProtocolVersion uint16 = 2
	FlagCompressed  byte   = 0x01

	headerSize = 7

	// DefaultMaxFrameSize bounds a single payload (100 MiB).
	DefaultMaxFrameSize = 100 << 20

	// DefaultCompressThreshold is the payload size at which outbound
	// frames get compressed.
	DefaultCompressThreshold = 1 << 10
)

// EncodeFrame serializes an envelope into one wire frame. Payloads of
// compressThreshold bytes or more are DEFLATE-compressed when that
// actually shrinks them; pass 0 for the default threshold, negative to
// disable compression.
func EncodeFrame(env model.Envelope, compressThreshold int) ([]byte, error) {
	payload, err := model.EncodeCBOR(env)
	if err != nil {
		return nil, fmt.Errorf("encode frame payload: %w", err)
	}

	threshold := compressThreshold
	if threshold == 0 {
		threshold = DefaultCompressThreshold
	}

	var flags byte
	if threshold > 0 && len(payload) >= threshold {
		compressed, err := deflate(payload)
		if err == nil && len(compressed) < len(payload) {
			payload = compressed
			flags |= FlagCompressed
		}
	}

	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint16(frame[0:2], ProtocolVersion)
	frame[2] = flags
	binary.BigEndian.PutUint32(frame[3:7], uint32(len(payload)))
	copy(frame[headerSize:], payload)
	return frame, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}
