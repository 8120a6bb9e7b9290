package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lanternchat/streamhub/internal/config"
	"github.com/lanternchat/streamhub/internal/model"
)

// Store is the slice of a pgx pool the writer needs.
type Store interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// TranscriptWriter consumes decoded envelopes from the buffer and
// writes chat messages to the chat_messages table.
type TranscriptWriter struct {
	cfg    config.ArchiveConfig
	logger *slog.Logger

	input *GrowableBuffer[model.Envelope]

	db Store

	batch       []transcriptRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	flushed func(inserted int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Skipped   int64
}

// transcriptRow is one chat_messages row.
type transcriptRow struct {
	SessionID  string
	MessageID  string
	Sender     string
	Body       string
	Seq        int64
	SentAt     int64 // µs since epoch
	ReceivedAt int64 // µs since epoch
	WireBytes  int
	Compressed bool
}

// NewTranscriptWriter creates a new TranscriptWriter.
func NewTranscriptWriter(
	cfg config.ArchiveConfig,
	input *GrowableBuffer[model.Envelope],
	db Store,
	logger *slog.Logger,
) *TranscriptWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscriptWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]transcriptRow, 0, cfg.BatchSize),
	}
}

// OnFlush registers a callback invoked after every successful flush
// with the number of rows actually inserted (conflicts excluded).
// Must be set before Start.
func (w *TranscriptWriter) OnFlush(fn func(inserted int)) {
	w.flushed = fn
}

// Start begins consuming envelopes and writing to the database.
func (w *TranscriptWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("transcript writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer. The final flush runs on the
// caller's ctx, not the writer's canceled one, so pending rows still
// reach the database.
func (w *TranscriptWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping transcript writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("transcript writer stopped")
	case <-ctx.Done():
		w.logger.Warn("transcript writer stop timed out")
	}

	// Final flush
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *TranscriptWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the input buffer and accumulates batches.
func (w *TranscriptWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			env, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleEnvelope(env)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *TranscriptWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEnvelope transforms a chat envelope and adds it to the batch.
// Non-chat envelopes are not archived.
func (w *TranscriptWriter) handleEnvelope(env model.Envelope) {
	if env.Kind != model.KindChat || env.Chat == nil {
		w.batchMu.Lock()
		w.metrics.Skipped++
		w.batchMu.Unlock()
		return
	}

	row := w.transform(env)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a chat envelope to a transcriptRow.
func (w *TranscriptWriter) transform(env model.Envelope) transcriptRow {
	return transcriptRow{
		SessionID:  env.SessionID,
		MessageID:  env.Chat.MessageID,
		Sender:     env.Chat.Sender,
		Body:       env.Chat.Body,
		Seq:        env.Seq,
		SentAt:     env.Chat.SentAt,
		ReceivedAt: time.Now().UnixMicro(),
		WireBytes:  env.WireBytes,
		Compressed: env.Compressed,
	}
}

// flush writes the current batch to the database.
func (w *TranscriptWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]transcriptRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts

	w.batchMu.Lock()
	w.metrics.Inserts += int64(inserted)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	if w.flushed != nil {
		w.flushed(inserted)
	}

	w.logger.Debug("flushed transcript batch",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TranscriptWriter) batchInsert(ctx context.Context, rows []transcriptRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO chat_messages (session_id, message_id, sender, body, seq, sent_at, received_at, wire_bytes, compressed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (message_id) DO NOTHING
		`, r.SessionID, r.MessageID, r.Sender, r.Body, r.Seq, r.SentAt, r.ReceivedAt, r.WireBytes, r.Compressed)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
