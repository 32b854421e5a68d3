// Package writer persists scans to PostgreSQL.
//
// ScanWriter is a router.Sink. Scan events are queued as rows and flushed with
// pgx.Batch when BatchSize rows are pending or every FlushInterval. Inserts use
// ON CONFLICT (scan_id) DO NOTHING, so the table is append-only and a replayed
// event never produces a duplicate row.
package writer
