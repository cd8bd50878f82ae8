package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"crawlfetch/pkg/retry"
)

// PoolOptions содержит настройки для пула подключений PostgreSQL.
type PoolOptions struct {
	// MaxConns - максимальное количество соединений в пуле
	MaxConns int32
	// MinConns - минимальное количество соединений в пуле
	MinConns int32
	// HealthCheckPeriod - интервал проверки здоровья соединений
	HealthCheckPeriod time.Duration
	// MaxConnLifetime - максимальное время жизни соединения
	MaxConnLifetime time.Duration
	// MaxConnIdleTime - максимальное время простоя соединения
	MaxConnIdleTime time.Duration
	// PingTimeout - таймаут одной проверки соединения
	PingTimeout time.Duration
	// ConnectAttempts - число попыток пинга при старте (БД может подниматься
	// одновременно с приложением)
	ConnectAttempts int
	// Backoff - задержки между попытками подключения
	Backoff retry.Config
}

// DefaultPoolOptions возвращает настройки по умолчанию для журнала загрузок.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          10,
		MinConns:          1,
		HealthCheckPeriod: 30 * time.Second,
		MaxConnLifetime:   time.Hour,
		MaxConnIdleTime:   10 * time.Minute,
		PingTimeout:       5 * time.Second,
		ConnectAttempts:   5,
		Backoff:           retry.Config{InitialDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second, Multiplier: 2},
	}
}

// NewPool создает пул подключений с настройками по умолчанию.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return NewPoolWithOptions(ctx, dsn, DefaultPoolOptions())
}

// NewPoolWithOptions создает пул и дожидается доступности БД.
func NewPoolWithOptions(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	cfg.MaxConnLifetime = opts.MaxConnLifetime
	cfg.MaxConnIdleTime = opts.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := waitForPool(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitForPool пингует БД с экспоненциальной задержкой между попытками.
func waitForPool(ctx context.Context, pool *pgxpool.Pool, opts PoolOptions) error {
	backoff, err := retry.NewBackoff(opts.Backoff)
	if err != nil {
		return err
	}
	attempts := max(opts.ConnectAttempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		lastErr = pool.Ping(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if err := backoff.Wait(ctx, backoff.Next()); err != nil {
			return err
		}
	}
	return fmt.Errorf("database not ready after %d attempts: %w", attempts, lastErr)
}
