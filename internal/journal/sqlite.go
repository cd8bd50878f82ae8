package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crawlfetch/internal/journal/migrations"
	"crawlfetch/internal/platform/sqlite"
	"crawlfetch/internal/shared"
)

const entryColumns = "id, url, final_url, method, status, ok, type, calls, duration_ms, error_kind, error, fetched_at"

// SQLite is a Journal backed by a local SQLite file.
type SQLite struct {
	db     *sql.DB
	runner *sqlite.TxRunner
}

// OpenSQLite opens path, applies the embedded migrations and returns the journal.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, shared.Wrap(shared.MarkKind(err, shared.KindDependencyFailure), "open journal")
	}
	if err := sqlite.ApplyMigrations(path, migrations.FS, "sqlite"); err != nil {
		_ = db.Close()
		return nil, shared.Wrap(shared.MarkKind(err, shared.KindDependencyFailure), "migrate journal")
	}
	return NewSQLite(db), nil
}

// NewSQLite wraps an already migrated database.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, runner: sqlite.NewTxRunner(db)}
}

// Record inserts entries in one transaction.
func (j *SQLite) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	assignIDs(entries)
	return j.runner.WithinTx(ctx, func(ctx context.Context) error {
		q := j.runner.GetQuerier(ctx)
		for _, e := range entries {
			_, err := q.ExecContext(ctx,
				"INSERT INTO fetches ("+entryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
				e.ID, e.URL, e.FinalURL, e.Method, e.Status, e.OK, e.Type, e.Calls,
				e.DurationMS, e.ErrorKind, e.Error, e.FetchedAt.UnixMilli(),
			)
			if err != nil {
				return fmt.Errorf("insert fetch %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

func (j *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM fetches ORDER BY fetched_at DESC, rowid DESC LIMIT ?", clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (j *SQLite) Get(ctx context.Context, id string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM fetches WHERE id = ?", id)
	e, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("fetch %s: %w", id, shared.ErrNotFound)
	}
	return e, err
}

func (j *SQLite) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(s scanner) (Entry, error) {
	var (
		e  Entry
		ms int64
	)
	err := s.Scan(&e.ID, &e.URL, &e.FinalURL, &e.Method, &e.Status, &e.OK, &e.Type, &e.Calls,
		&e.DurationMS, &e.ErrorKind, &e.Error, &ms)
	if err != nil {
		return Entry{}, err
	}
	e.FetchedAt = time.UnixMilli(ms).UTC()
	return e, nil
}
