// CLAUDE:SUMMARY SQLite visit journal: persists one row per finished visit, best-effort.
//
// Package journal persists a row for every finished visit — applied,
// cancelled, superseded or failed — to SQLite. It implements the
// session's Recorder contract and never propagates write failures:
// a journal problem must not break navigation.
//
// Schema (created automatically):
//
//	CREATE TABLE IF NOT EXISTS hyper_visits (
//	    id          TEXT PRIMARY KEY,
//	    session     TEXT NOT NULL DEFAULT '',
//	    url         TEXT NOT NULL DEFAULT '',
//	    method      TEXT NOT NULL DEFAULT '',
//	    frame       TEXT NOT NULL DEFAULT '',
//	    action      TEXT NOT NULL DEFAULT '',
//	    state       TEXT NOT NULL DEFAULT '',
//	    status      INTEGER NOT NULL DEFAULT 0,
//	    redirected  INTEGER NOT NULL DEFAULT 0,
//	    superseded  INTEGER NOT NULL DEFAULT 0,
//	    restored    INTEGER NOT NULL DEFAULT 0,
//	    error       TEXT NOT NULL DEFAULT '',
//	    duration_ms INTEGER NOT NULL DEFAULT 0,
//	    at          INTEGER NOT NULL             -- milliseconds since epoch
//	);
//	CREATE INDEX IF NOT EXISTS idx_hyper_visits_at ON hyper_visits (session, at DESC);
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/hyperdrive/dbopen"
	"github.com/hazyhaar/hyperdrive/drive"
)

const schema = `
CREATE TABLE IF NOT EXISTS hyper_visits (
    id          TEXT PRIMARY KEY,
    session     TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT '',
    method      TEXT NOT NULL DEFAULT '',
    frame       TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL DEFAULT '',
    state       TEXT NOT NULL DEFAULT '',
    status      INTEGER NOT NULL DEFAULT 0,
    redirected  INTEGER NOT NULL DEFAULT 0,
    superseded  INTEGER NOT NULL DEFAULT 0,
    restored    INTEGER NOT NULL DEFAULT 0,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL DEFAULT 0,
    at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hyper_visits_at ON hyper_visits (session, at DESC);
`

// Journal writes visit records to an SQLite table.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	ownsDB  bool
	dropped atomic.Int64
}

// Option customises a Journal.
type Option func(*Journal)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// New wraps an existing database handle and applies the journal schema.
// The caller keeps ownership of db; Close becomes a no-op.
func New(db *sql.DB, opts ...Option) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: db is required")
	}
	j := &Journal{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(j)
	}
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("journal schema: %w", err)
		}
	}
	return j, nil
}

// Open opens (or creates) an SQLite journal at path, creating parent
// directories as needed. The returned Journal owns the handle and
// closes it on Close.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	j, err := New(db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	j.ownsDB = true
	return j, nil
}

// Record inserts one visit row. Failures are logged and counted, never
// returned: the session must keep navigating even when the journal is
// unwritable.
func (j *Journal) Record(ctx context.Context, rec drive.VisitRecord) {
	_, err := dbopen.Exec(ctx, j.db, `
		INSERT OR REPLACE INTO hyper_visits
		(id, session, url, method, frame, action, state, status, redirected, superseded, restored, error, duration_ms, at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.VisitID, rec.SessionID, rec.URL, rec.Method, rec.FrameID,
		rec.Action, rec.State, rec.StatusCode,
		boolInt(rec.Redirected), boolInt(rec.Superseded), boolInt(rec.Restored),
		rec.Error, rec.Duration.Milliseconds(), rec.At.UnixMilli(),
	)
	if err != nil {
		j.dropped.Add(1)
		j.logger.Warn("journal: record failed", "visit", rec.VisitID, "url", rec.URL, "error", err)
	}
}

// Recent returns the newest records across all sessions, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]drive.VisitRecord, error) {
	return j.query(ctx, `
		SELECT id, session, url, method, frame, action, state, status, redirected, superseded, restored, error, duration_ms, at
		FROM hyper_visits ORDER BY at DESC, id DESC LIMIT ?`, limit)
}

// Session returns the newest records for one session, newest first.
func (j *Journal) Session(ctx context.Context, sessionID string, limit int) ([]drive.VisitRecord, error) {
	return j.query(ctx, `
		SELECT id, session, url, method, frame, action, state, status, redirected, superseded, restored, error, duration_ms, at
		FROM hyper_visits WHERE session = ? ORDER BY at DESC, id DESC LIMIT ?`, sessionID, limit)
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]drive.VisitRecord, error) {
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var recs []drive.VisitRecord
	for rows.Next() {
		var rec drive.VisitRecord
		var redirected, superseded, restored int
		var durMS, atMS int64
		if err := rows.Scan(&rec.VisitID, &rec.SessionID, &rec.URL, &rec.Method, &rec.FrameID,
			&rec.Action, &rec.State, &rec.StatusCode,
			&redirected, &superseded, &restored,
			&rec.Error, &durMS, &atMS); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		rec.Redirected = redirected != 0
		rec.Superseded = superseded != 0
		rec.Restored = restored != 0
		rec.Duration = time.Duration(durMS) * time.Millisecond
		rec.At = time.UnixMilli(atMS)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: rows: %w", err)
	}
	return recs, nil
}

// Len returns the total number of journaled visits.
func (j *Journal) Len(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hyper_visits`).Scan(&n)
	return n, err
}

// Dropped returns how many records failed to persist.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Close closes the underlying database when the Journal opened it.
func (j *Journal) Close() error {
	if !j.ownsDB {
		return nil
	}
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
