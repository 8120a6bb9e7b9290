package wire

import (
	"errors"
	"fmt"
)

// FaultKind classifies a recoverable decode fault.
type FaultKind string

const (
	// FaultVersionMismatch: frame header carried an unsupported
	// protocol version. The decoder drops one byte and resyncs.
	FaultVersionMismatch FaultKind = "protocol_version_mismatch"

	// FaultFrameTooLarge: declared payload length exceeds the
	// configured maximum. The header's bytes are dropped.
	FaultFrameTooLarge FaultKind = "frame_too_large"

	// FaultDecompression: the compressed payload failed to inflate.
	FaultDecompression FaultKind = "decompression_failure"

	// FaultDeserialization: the payload failed to decode as an
	// envelope.
	FaultDeserialization FaultKind = "deserialization_failure"
)

// DecodeFault is a recoverable decode error reported through the
// error callback. The decoder has already skipped past the offending
// bytes when the callback fires.
type DecodeFault struct {
	Kind   FaultKind
	Detail string
	Err    error
}

func (f *DecodeFault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("wire: %s: %s: %v", f.Kind, f.Detail, f.Err)
	}
	return fmt.Sprintf("wire: %s: %s", f.Kind, f.Detail)
}

func (f *DecodeFault) Unwrap() error { return f.Err }

// ErrBufferOverflow marks a TextDecoder that has exceeded its
// cumulative size cap. Terminal per instance until Reset.
var ErrBufferOverflow = errors.New("wire: text buffer overflow")

// OverflowError reports the cumulative byte total that tripped the
// cap. It matches ErrBufferOverflow under errors.Is.
type OverflowError struct {
	Received int // cumulative bytes ever appended, including the rejected chunk
	Max      int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("wire: text buffer overflow: %d bytes received, cap %d", e.Received, e.Max)
}

func (e *OverflowError) Is(target error) bool { return target == ErrBufferOverflow }
