package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lanternchat/streamhub/internal/wire"
)

func TestRecordBinaryFrame(t *testing.T) {
	m := New()

	m.RecordBinaryFrame(100, false)
	m.RecordBinaryFrame(250, true)

	if got := testutil.ToFloat64(m.framesTotal.WithLabelValues("binary")); got != 2 {
		t.Errorf("frames_received_total{binary} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.frameBytesTotal.WithLabelValues("binary")); got != 350 {
		t.Errorf("frame_bytes_received_total{binary} = %v, want 350", got)
	}
	if got := testutil.ToFloat64(m.compressedFrames); got != 1 {
		t.Errorf("compressed_frames_total = %v, want 1", got)
	}
}

func TestRecordTextMessage(t *testing.T) {
	m := New()

	m.RecordTextMessage(42)

	if got := testutil.ToFloat64(m.framesTotal.WithLabelValues("text")); got != 1 {
		t.Errorf("frames_received_total{text} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.frameBytesTotal.WithLabelValues("text")); got != 42 {
		t.Errorf("frame_bytes_received_total{text} = %v, want 42", got)
	}
}

func TestRecordFaultLabels(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		label string
	}{
		{
			name:  "decode fault carries its kind",
			err:   &wire.DecodeFault{Kind: wire.FaultVersionMismatch, Detail: "version 7"},
			label: string(wire.FaultVersionMismatch),
		},
		{
			name:  "wrapped decode fault",
			err:   errors.Join(errors.New("read"), &wire.DecodeFault{Kind: wire.FaultDecompression}),
			label: string(wire.FaultDecompression),
		},
		{
			name:  "text overflow",
			err:   &wire.OverflowError{Received: 11 << 20, Max: 10 << 20},
			label: "text_buffer_overflow",
		},
		{
			name:  "unclassified error",
			err:   errors.New("boom"),
			label: "other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.RecordFault(tt.err)
			if got := testutil.ToFloat64(m.decodeFaults.WithLabelValues(tt.label)); got != 1 {
				t.Errorf("decode_faults_total{%s} = %v, want 1", tt.label, got)
			}
		})
	}
}

func TestSessionCounters(t *testing.T) {
	m := New()

	m.RecordReconnect()
	m.RecordReconnect()
	m.RecordReconnectExhausted()
	m.SetLiveSessions(5)

	if got := testutil.ToFloat64(m.reconnectsTotal); got != 2 {
		t.Errorf("reconnect_attempts_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reconnectsFailed); got != 1 {
		t.Errorf("reconnects_exhausted_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.liveSessions); got != 5 {
		t.Errorf("live_sessions = %v, want 5", got)
	}
}

func TestArchiveCounters(t *testing.T) {
	m := New()

	m.RecordArchived(500)
	m.RecordArchived(3)
	m.RecordArchiveFlush()

	if got := testutil.ToFloat64(m.archivedRows); got != 503 {
		t.Errorf("archived_messages_total = %v, want 503", got)
	}
	if got := testutil.ToFloat64(m.archiveFlushes); got != 1 {
		t.Errorf("archive_flushes_total = %v, want 1", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RecordBinaryFrame(10, false)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "streamhub_frames_received_total") {
		t.Error("exposition missing streamhub_frames_received_total")
	}
}
