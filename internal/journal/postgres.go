package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crawlfetch/internal/journal/migrations"
	"crawlfetch/internal/platform/pg"
	"crawlfetch/internal/shared"
)

// Postgres is a Journal backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	runner *pg.TxRunner
}

// OpenPostgres applies the embedded migrations and connects a pool.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if _, err := pg.ApplyMigrations(dsn, migrations.FS, "postgres"); err != nil {
		return nil, shared.Wrap(shared.MarkKind(err, shared.KindDependencyFailure), "migrate journal")
	}
	pool, err := pg.NewPool(ctx, dsn)
	if err != nil {
		return nil, shared.Wrap(shared.MarkKind(err, shared.KindDependencyFailure), "connect journal")
	}
	return NewPostgres(pool), nil
}

// NewPostgres wraps an existing pool whose schema is already migrated.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, runner: pg.NewTxRunner(pool)}
}

// Record inserts entries as one batch inside a transaction.
func (j *Postgres) Record(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	assignIDs(entries)
	return j.runner.WithinTx(ctx, func(ctx context.Context) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(
				"INSERT INTO fetches ("+entryColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)",
				e.ID, e.URL, e.FinalURL, e.Method, e.Status, e.OK, e.Type, e.Calls,
				e.DurationMS, e.ErrorKind, e.Error, e.FetchedAt,
			)
		}
		return j.runner.GetQuerier(ctx).SendBatch(ctx, batch).Close()
	})
}

func (j *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.pool.Query(ctx,
		"SELECT "+entryColumns+" FROM fetches ORDER BY fetched_at DESC LIMIT $1", clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		return scanPostgres(row)
	})
}

func (j *Postgres) Get(ctx context.Context, id string) (Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Entry{}, fmt.Errorf("fetch %s: %w", id, shared.ErrNotFound)
	}
	e, err := scanPostgres(j.pool.QueryRow(ctx, "SELECT "+entryColumns+" FROM fetches WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, fmt.Errorf("fetch %s: %w", id, shared.ErrNotFound)
	}
	return e, err
}

func (j *Postgres) Ping(ctx context.Context) error {
	return pg.HealthCheckPool(ctx, j.pool)
}

func (j *Postgres) Close() error {
	j.pool.Close()
	return nil
}

func scanPostgres(row pgx.Row) (Entry, error) {
	var (
		e  Entry
		id uuid.UUID
	)
	err := row.Scan(&id, &e.URL, &e.FinalURL, &e.Method, &e.Status, &e.OK, &e.Type, &e.Calls,
		&e.DurationMS, &e.ErrorKind, &e.Error, &e.FetchedAt)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id.String()
	e.FetchedAt = e.FetchedAt.UTC()
	return e, nil
}
