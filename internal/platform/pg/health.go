package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthCheckPool выполняет проверку здоровья существующего пула подключений.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("simple query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected query result: got %d, want 1", result)
	}
	return nil
}

// PoolStats содержит статистику пула для /healthz.
type PoolStats struct {
	MaxConns  int32 `json:"maxConns"`
	OpenConns int32 `json:"openConns"`
	InUse     int32 `json:"inUse"`
	Idle      int32 `json:"idle"`
}

// Stats возвращает статистику пула подключений.
func Stats(pool *pgxpool.Pool) PoolStats {
	if pool == nil {
		return PoolStats{}
	}
	s := pool.Stat()
	return PoolStats{
		MaxConns:  s.MaxConns(),
		OpenConns: s.TotalConns(),
		InUse:     s.AcquiredConns(),
		Idle:      s.IdleConns(),
	}
}
