package writer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/esr-receiver/internal/router"
)

// fakeDB records statements and batches. Rows whose scan_id was already
// inserted report zero rows affected, like ON CONFLICT DO NOTHING.
type fakeDB struct {
	mu      sync.Mutex
	execs   []string
	batches [][]*pgx.QueuedQuery
	seen    map[uuid.UUID]bool
	execErr error
	sendErr error
}

func newFakeDB() *fakeDB {
	return &fakeDB{seen: make(map[uuid.UUID]bool)}
}

func (db *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), db.execErr
}

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.batches = append(db.batches, b.QueuedQueries)

	res := &fakeResults{err: db.sendErr}
	for _, q := range b.QueuedQueries {
		id := q.Arguments[0].(uuid.UUID)
		if db.seen[id] {
			res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 0"))
			continue
		}
		db.seen[id] = true
		res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 1"))
	}
	return res
}

func (db *fakeDB) Batches() [][]*pgx.QueuedQuery {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([][]*pgx.QueuedQuery(nil), db.batches...)
}

type fakeResults struct {
	tags []pgconn.CommandTag
	next int
	err  error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	tag := r.tags[r.next]
	r.next++
	return tag, nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row { return nil }
func (r *fakeResults) Close() error { return nil }

func scanEvent(text string) router.Event {
	return router.Event{
		ID:         uuid.New(),
		Kind:       router.KindScan,
		Text:       text,
		Source:     "10.0.0.7:8765",
		ReceivedAt: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransform(t *testing.T) {
	ev := scanEvent("4006381333931")
	row := transform(ev)

	if row.ScanID != ev.ID {
		t.Errorf("ScanID = %v, want %v", row.ScanID, ev.ID)
	}
	if !row.ReceivedAt.Equal(ev.ReceivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", row.ReceivedAt, ev.ReceivedAt)
	}
	if row.Source != "10.0.0.7:8765" {
		t.Errorf("Source = %q", row.Source)
	}
	if row.Text != "4006381333931" {
		t.Errorf("Text = %q", row.Text)
	}
}

func TestScanWriter_EnsureSchema(t *testing.T) {
	db := newFakeDB()
	w := NewScanWriter(DefaultWriterConfig(), db, nil)

	if err := w.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("got %d statements, want 2", len(db.execs))
	}
	if !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS scans") {
		t.Errorf("first statement = %q", db.execs[0])
	}

	db.execErr = errors.New("permission denied")
	if err := w.EnsureSchema(context.Background()); err == nil {
		t.Error("EnsureSchema() expected error")
	}
}

func TestScanWriter_IgnoresStateEvents(t *testing.T) {
	w := NewScanWriter(DefaultWriterConfig(), newFakeDB(), nil)

	if err := w.Handle(context.Background(), router.Event{Kind: router.KindState}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if w.Stats().Pending != 0 {
		t.Errorf("Pending = %d, want 0", w.Stats().Pending)
	}
}

func TestScanWriter_FlushOnBatchSize(t *testing.T) {
	db := newFakeDB()
	w := NewScanWriter(WriterConfig{BatchSize: 3, FlushInterval: time.Hour}, db, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(ctx)

	for i := 0; i < 3; i++ {
		if err := w.Handle(ctx, scanEvent("scan")); err != nil {
			t.Fatalf("Handle() error = %v", err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for w.Stats().Flushes == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stats := w.Stats()
	if stats.Flushes != 1 || stats.Inserts != 3 {
		t.Errorf("Stats() = %+v, want 1 flush of 3 rows", stats)
	}
	batches := db.Batches()
	if len(batches) != 1 || len(batches[0]) != 3 {
		t.Fatalf("batches = %d, want one batch of 3", len(batches))
	}
	q := batches[0][0]
	if !strings.Contains(q.SQL, "ON CONFLICT (scan_id) DO NOTHING") {
		t.Errorf("SQL = %q", q.SQL)
	}
	if len(q.Arguments) != 4 || q.Arguments[3] != "scan" {
		t.Errorf("Arguments = %v", q.Arguments)
	}
}

func TestScanWriter_FlushOnInterval(t *testing.T) {
	db := newFakeDB()
	w := NewScanWriter(WriterConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, db, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop(ctx)

	w.Handle(ctx, scanEvent("one"))

	deadline := time.Now().Add(time.Second)
	for w.Stats().Inserts == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if w.Stats().Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", w.Stats().Inserts)
	}
}

func TestScanWriter_StopFlushesRemaining(t *testing.T) {
	db := newFakeDB()
	w := NewScanWriter(WriterConfig{BatchSize: 2, FlushInterval: time.Hour}, db, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	dup := scanEvent("dup")
	w.Handle(ctx, scanEvent("a"))
	w.Handle(ctx, dup)
	w.Handle(ctx, dup)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.Stats()
	if stats.Inserts != 2 || stats.Conflicts != 1 {
		t.Errorf("Stats() = %+v, want 2 inserts and 1 conflict", stats)
	}
	if stats.Pending != 0 {
		t.Errorf("Pending = %d, want 0", stats.Pending)
	}

	if err := w.Handle(ctx, scanEvent("late")); !errors.Is(err, ErrClosed) {
		t.Errorf("Handle after Stop = %v, want ErrClosed", err)
	}

	batches := len(db.Batches())
	if err := w.Stop(stopCtx); !errors.Is(err, ErrClosed) {
		t.Errorf("second Stop() = %v, want ErrClosed", err)
	}
	if got := len(db.Batches()); got != batches {
		t.Errorf("second Stop sent %d more batches", got-batches)
	}
}

func TestScanWriter_BatchErrorCounted(t *testing.T) {
	db := newFakeDB()
	db.sendErr = errors.New("connection reset")
	w := NewScanWriter(WriterConfig{BatchSize: 10, FlushInterval: time.Hour}, db, nil)

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Handle(ctx, scanEvent("lost"))
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.Stats()
	if stats.Errors != 1 || stats.Inserts != 0 {
		t.Errorf("Stats() = %+v, want 1 error", stats)
	}
}

func TestNewScanWriter_Defaults(t *testing.T) {
	w := NewScanWriter(WriterConfig{}, newFakeDB(), nil)
	if w.cfg != DefaultWriterConfig() {
		t.Errorf("cfg = %+v, want defaults", w.cfg)
	}
	if w.Name() != "history" {
		t.Errorf("Name() = %q", w.Name())
	}
}
