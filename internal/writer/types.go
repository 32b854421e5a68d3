package writer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrClosed is returned by Handle and Stop once the writer has been stopped.
var ErrClosed = errors.New("writer closed")

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int           // Rows per INSERT batch. Default: 100
	FlushInterval time.Duration // Max age of a pending row. Default: 1s
}

// DefaultWriterConfig returns default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: time.Second,
	}
}

// WriterMetrics contains writer counters.
type WriterMetrics struct {
	Inserts   int64 // Rows written
	Conflicts int64 // Rows skipped by ON CONFLICT
	Errors    int64 // Failed batches
	Flushes   int64 // Successful batches
	Pending   int   // Rows queued but not yet written
}

// scanRow is one row of the scans table.
type scanRow struct {
	ScanID     uuid.UUID
	ReceivedAt time.Time
	Source     string
	Text       string
}
