package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/esr-receiver/internal/router"
)

const (
	createScansTable = `
		CREATE TABLE IF NOT EXISTS scans (
			scan_id     uuid PRIMARY KEY,
			received_at timestamptz NOT NULL,
			source      text NOT NULL DEFAULT '',
			text        text NOT NULL
		)`
	createScansIndex = `CREATE INDEX IF NOT EXISTS scans_received_at_idx ON scans (received_at)`

	insertScan = `
		INSERT INTO scans (scan_id, received_at, source, text)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scan_id) DO NOTHING`
)

// ScanWriter consumes scan events and writes them to the scans table.
type ScanWriter struct {
	cfg    WriterConfig
	logger *slog.Logger
	db     DB

	// Rows waiting for the next flush
	queue *router.GrowableBuffer[scanRow]
	wake  chan struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   WriterMetrics
}

// NewScanWriter creates a new ScanWriter.
func NewScanWriter(cfg WriterConfig, db DB, logger *slog.Logger) *ScanWriter {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	return &ScanWriter{
		cfg:    cfg,
		logger: logger,
		db:     db,
		queue:  router.NewGrowableBuffer[scanRow](cfg.BatchSize),
		wake:   make(chan struct{}, 1),
	}
}

// EnsureSchema creates the scans table and index if missing.
func (w *ScanWriter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createScansTable, createScansIndex} {
		if _, err := w.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure scans schema: %w", err)
		}
	}
	return nil
}

// Name implements router.Sink.
func (w *ScanWriter) Name() string { return "history" }

// Handle implements router.Sink. It only queues; writes happen on the flush goroutine.
func (w *ScanWriter) Handle(_ context.Context, ev router.Event) error {
	if ev.Kind != router.KindScan {
		return nil
	}
	if !w.queue.Send(transform(ev)) {
		return ErrClosed
	}
	if w.queue.Len() >= w.cfg.BatchSize {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Start begins the flush loop.
func (w *ScanWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("scan writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop stops accepting rows, ends the flush loop and writes what is left
// within ctx.
func (w *ScanWriter) Stop(ctx context.Context) error {
	if w.queue.Closed() {
		return ErrClosed
	}
	w.logger.Info("stopping scan writer", "pending", w.queue.Len())

	w.queue.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("scan writer stop timed out")
		return ctx.Err()
	}

	// Final flush
	w.flushAll(ctx)
	w.logger.Info("scan writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *ScanWriter) Stats() WriterMetrics {
	w.metricsMu.Lock()
	m := w.metrics
	w.metricsMu.Unlock()
	m.Pending = w.queue.Len()
	return m
}

// flushLoop flushes on the interval or when a full batch is waiting.
func (w *ScanWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	// A batch already in flight finishes even if Stop cancels the loop
	writeCtx := context.WithoutCancel(w.ctx)

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flushAll(writeCtx)
		case <-w.wake:
			w.flushAll(writeCtx)
		}
	}
}

// flushAll writes every queued row in BatchSize chunks.
func (w *ScanWriter) flushAll(ctx context.Context) {
	for {
		rows := w.queue.DrainTo(w.cfg.BatchSize)
		if len(rows) == 0 {
			return
		}
		w.flush(ctx, rows)
	}
}

// flush writes one batch. Failed batches are dropped and counted.
func (w *ScanWriter) flush(ctx context.Context, rows []scanRow) {
	start := time.Now()

	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		w.metricsMu.Lock()
		w.metrics.Errors++
		w.metricsMu.Unlock()
		return
	}

	w.metricsMu.Lock()
	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.metricsMu.Unlock()

	w.logger.Debug("flushed scans",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *ScanWriter) batchInsert(ctx context.Context, rows []scanRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertScan, r.ScanID, r.ReceivedAt, r.Source, r.Text)
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

// transform converts a scan event to a row.
func transform(ev router.Event) scanRow {
	return scanRow{
		ScanID:     ev.ID,
		ReceivedAt: ev.ReceivedAt,
		Source:     ev.Source,
		Text:       ev.Text,
	}
}
