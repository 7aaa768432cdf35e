// Package audit persists one row per tool invocation so operators can
// review what tools ran, with what arguments, and how they fared.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clawinfra/toolclaw/internal/rpc"
)

// Log is a sqlite-backed rpc.AuditSink.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Entry is one recorded invocation.
type Entry struct {
	ID        int64     `json:"id"`
	Tool      string    `json:"tool"`
	Pack      string    `json:"pack,omitempty"`
	Params    string    `json:"params"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	ElapsedMs int64     `json:"elapsed_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// Open creates or opens the audit database at path.
func Open(path string, logger *slog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}

	// WAL keeps writers from blocking the Recent() readers.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: wal mode: %w", err)
	}

	l := &Log{db: db, logger: logger.With("component", "audit")}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: migrate: %w", err)
	}
	return l, nil
}

func (l *Log) migrate() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS invocations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		tool       TEXT NOT NULL,
		pack       TEXT NOT NULL DEFAULT '',
		params     TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		error      TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Record implements rpc.AuditSink.
func (l *Log) Record(ctx context.Context, rec rpc.InvocationRecord) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO invocations (tool, pack, params, status, error, elapsed_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Tool, rec.Pack, rec.Params, rec.Status, rec.Error, rec.ElapsedMs)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, newest first.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, tool, pack, params, status, error, elapsed_ms, created_at
		 FROM invocations ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Tool, &e.Pack, &e.Params, &e.Status, &e.Error, &e.ElapsedMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
