// Package hitlog persists per-call dedup decisions so hit rates and
// near-miss scores can be inspected after the fact. Writers are fed from a
// Wrapper hook; a failed write only loses that log row, never a response.
package hitlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry records one dedup decision.
type Entry struct {
	TraceID   string
	Namespace string
	ItemID    string
	Outcome   string
	Score     float64
	Query     string
	LatencyMS int64
	CreatedAt time.Time
}

// Writer persists dedup decision entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite/Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

// NewSQLiteWriter opens (or creates) a SQLite decision log at dsn.
func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "dedup-decisions.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite hit log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewPostgresWriter opens a Postgres decision log using dsn.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres hit log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s hit log writer: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS dedup_decisions (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	namespace TEXT NOT NULL,
	item_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	score REAL NOT NULL,
	query TEXT,
	latency_ms INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS dedup_decisions (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	namespace TEXT NOT NULL,
	item_id TEXT NOT NULL,
	outcome TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	query TEXT,
	latency_ms INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize hit log schema: %w", err)
	}
	return nil
}

// Write inserts one decision row.
func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO dedup_decisions(trace_id, namespace, item_id, outcome, score, query, latency_ms, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?)`
	if w.dialect == "postgres" {
		query = `INSERT INTO dedup_decisions(trace_id, namespace, item_id, outcome, score, query, latency_ms, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)`
	}

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Namespace,
		entry.ItemID,
		entry.Outcome,
		entry.Score,
		entry.Query,
		entry.LatencyMS,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write hit log: %w", err)
	}
	return nil
}

// Recent returns up to limit most recent decisions for ns, newest first.
func (w *SQLWriter) Recent(ctx context.Context, ns string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT trace_id, namespace, item_id, outcome, score, query, latency_ms, created_at
	FROM dedup_decisions WHERE namespace = ? ORDER BY created_at DESC LIMIT ?`
	if w.dialect == "postgres" {
		query = `SELECT trace_id, namespace, item_id, outcome, score, query, latency_ms, created_at
		FROM dedup_decisions WHERE namespace = $1 ORDER BY created_at DESC LIMIT $2`
	}

	rows, err := w.db.QueryContext(ctx, query, ns, limit)
	if err != nil {
		return nil, fmt.Errorf("query hit log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.Namespace, &e.ItemID, &e.Outcome, &e.Score, &e.Query, &e.LatencyMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hit log row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying database handle.
func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
