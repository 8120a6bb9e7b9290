// Package wire implements the two stream decoders for the chat
// backend's transport:
//
//   - FrameDecoder: incremental parser for the binary frame protocol
//     (fixed 7-byte header, CBOR payload, optional DEFLATE compression)
//     with byte-at-a-time resync after corruption.
//   - TextDecoder: incremental parser for sentinel-delimited JSON
//     messages embedded in a free-form text stream, with a hard
//     cumulative size cap.
//
// Both decoders are push-driven: the transport feeds raw chunks as
// they arrive, complete messages and decode faults come back through
// callbacks. No decode fault ever escapes Feed/Append as a panic; the
// stream keeps flowing past corrupt input.
package wire
