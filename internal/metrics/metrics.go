package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanternchat/streamhub/internal/wire"
)

const namespace = "streamhub"

// Metrics holds the Prometheus collectors for the hub.
type Metrics struct {
	registry *prometheus.Registry

	framesTotal      *prometheus.CounterVec
	frameBytesTotal  *prometheus.CounterVec
	compressedFrames prometheus.Counter
	decodeFaults     *prometheus.CounterVec

	reconnectsTotal  prometheus.Counter
	reconnectsFailed prometheus.Counter
	liveSessions     prometheus.Gauge

	archivedRows   prometheus.Counter
	archiveFlushes prometheus.Counter
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames decoded from the stream, by channel",
		}, []string{"channel"}),

		frameBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_bytes_received_total",
			Help:      "Payload bytes received from the stream, by channel",
		}, []string{"channel"}),

		compressedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compressed_frames_total",
			Help:      "Binary frames that arrived with the compression flag set",
		}),

		decodeFaults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_faults_total",
			Help:      "Recoverable decode faults, by kind",
		}, []string{"kind"}),

		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts scheduled across all sessions",
		}),

		reconnectsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_exhausted_total",
			Help:      "Sessions that gave up after the reconnect attempt limit",
		}),

		liveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_sessions",
			Help:      "Sessions currently attached to the multiplexer",
		}),

		archivedRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_messages_total",
			Help:      "Chat messages written to the transcript archive",
		}),

		archiveFlushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_flushes_total",
			Help:      "Transcript archive batch flushes",
		}),
	}
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordBinaryFrame records one decoded binary frame.
func (m *Metrics) RecordBinaryFrame(payloadBytes int, compressed bool) {
	m.framesTotal.WithLabelValues("binary").Inc()
	m.frameBytesTotal.WithLabelValues("binary").Add(float64(payloadBytes))
	if compressed {
		m.compressedFrames.Inc()
	}
}

// RecordTextMessage records one decoded text-channel message.
func (m *Metrics) RecordTextMessage(payloadBytes int) {
	m.framesTotal.WithLabelValues("text").Inc()
	m.frameBytesTotal.WithLabelValues("text").Add(float64(payloadBytes))
}

// RecordFault records a recoverable decode fault, labelled by the
// fault kind where the error carries one.
func (m *Metrics) RecordFault(err error) {
	m.decodeFaults.WithLabelValues(faultLabel(err)).Inc()
}

// RecordReconnect records one scheduled reconnect attempt.
func (m *Metrics) RecordReconnect() {
	m.reconnectsTotal.Inc()
}

// RecordReconnectExhausted records a session that hit the attempt cap.
func (m *Metrics) RecordReconnectExhausted() {
	m.reconnectsFailed.Inc()
}

// SetLiveSessions updates the attached-session gauge.
func (m *Metrics) SetLiveSessions(n int) {
	m.liveSessions.Set(float64(n))
}

// RecordArchived records rows accepted by a transcript batch insert.
func (m *Metrics) RecordArchived(rows int) {
	m.archivedRows.Add(float64(rows))
}

// RecordArchiveFlush records one transcript batch flush.
func (m *Metrics) RecordArchiveFlush() {
	m.archiveFlushes.Inc()
}

func faultLabel(err error) string {
	var fault *wire.DecodeFault
	if errors.As(err, &fault) {
		return string(fault.Kind)
	}
	if errors.Is(err, wire.ErrBufferOverflow) {
		return "text_buffer_overflow"
	}
	return "other"
}
