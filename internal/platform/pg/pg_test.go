package pg

import (
	"context"
	"errors"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CRAWLFETCH_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CRAWLFETCH_TEST_PG_DSN not set")
	}
	return dsn
}

func TestDefaultPoolOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultPoolOptions()
	assert.Equal(t, int32(10), opts.MaxConns)
	assert.Equal(t, int32(1), opts.MinConns)
	assert.Equal(t, 5*time.Second, opts.PingTimeout)
	assert.Equal(t, 5, opts.ConnectAttempts)
	assert.Equal(t, 500*time.Millisecond, opts.Backoff.InitialDelay)
}

func TestNewPool_InvalidDSN(t *testing.T) {
	t.Parallel()

	_, err := NewPool(context.Background(), "postgres://%zz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse dsn")
}

func TestNewPool_Unreachable(t *testing.T) {
	t.Parallel()

	var waits int
	opts := DefaultPoolOptions()
	opts.PingTimeout = 200 * time.Millisecond
	opts.ConnectAttempts = 3
	opts.Backoff.After = func(time.Duration) <-chan time.Time {
		waits++
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	_, err := NewPoolWithOptions(context.Background(), "postgres://u:p@127.0.0.1:1/db?sslmode=disable&connect_timeout=1", opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 2, waits)
}

func TestNilPool(t *testing.T) {
	t.Parallel()

	assert.Error(t, HealthCheckPool(context.Background(), nil))
	assert.Equal(t, PoolStats{}, Stats(nil))
}

func TestIntegration_MigrateAndTx(t *testing.T) {
	dsn := testDSN(t)
	ctx := context.Background()

	migrations := fstest.MapFS{
		"m/1_pg_items.up.sql":   {Data: []byte("CREATE TABLE IF NOT EXISTS pg_items (id SERIAL PRIMARY KEY, name TEXT NOT NULL);")},
		"m/1_pg_items.down.sql": {Data: []byte("DROP TABLE IF EXISTS pg_items;")},
	}
	_, err := ApplyMigrations(dsn, migrations, "m")
	require.NoError(t, err)

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, HealthCheckPool(ctx, pool))
	assert.Positive(t, Stats(pool).MaxConns)

	runner := NewTxRunner(pool)
	boom := errors.New("boom")
	err = runner.WithinTx(ctx, func(ctx context.Context) error {
		_, err := runner.GetQuerier(ctx).Exec(ctx, "INSERT INTO pg_items (name) VALUES ('rolled back')")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM pg_items WHERE name = 'rolled back'").Scan(&n))
	assert.Zero(t, n)
}
