package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// Options содержит настройки подключения к SQLite.
type Options struct {
	// ConnMaxLifetime - максимальное время жизни соединения
	ConnMaxLifetime time.Duration
	// MaxOpenConns - максимальное количество открытых соединений
	MaxOpenConns int
	// MaxIdleConns - максимальное количество idle соединений
	MaxIdleConns int
	// PingTimeout - таймаут проверки соединения при открытии
	PingTimeout time.Duration
	// WALMode - журнал в режиме WAL (читатели не блокируют писателя)
	WALMode bool
	// BusyTimeout - ожидание при SQLITE_BUSY
	BusyTimeout time.Duration
	// ReadOnly - открыть базу только для чтения
	ReadOnly bool
}

// DefaultOptions возвращает настройки для журнала загрузок: один писатель,
// несколько читателей API.
func DefaultOptions() Options {
	return Options{
		ConnMaxLifetime: time.Hour,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		BusyTimeout:     5 * time.Second,
	}
}

// Open открывает файл SQLite с настройками по умолчанию.
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	return OpenWithOptions(ctx, dbPath, DefaultOptions())
}

// OpenInMemory создает in-memory базу. Пул ограничен одним соединением,
// иначе каждое соединение видит свою пустую схему.
func OpenInMemory(ctx context.Context) (*sql.DB, error) {
	opts := DefaultOptions()
	opts.WALMode = false
	opts.MaxOpenConns = 1
	return OpenWithOptions(ctx, ":memory:", opts)
}

// OpenWithOptions открывает базу и применяет PRAGMA настройки.
func OpenWithOptions(ctx context.Context, dbPath string, opts Options) (*sql.DB, error) {
	if dbPath != ":memory:" && !opts.ReadOnly {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(dbPath, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := applyPragmas(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply PRAGMA settings: %w", err)
	}
	return db, nil
}

// buildDSN добавляет к пути только режим доступа и busy timeout,
// остальное применяется через PRAGMA.
func buildDSN(dbPath string, opts Options) string {
	var params []string
	if opts.ReadOnly {
		params = append(params, "mode=ro")
	}
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if len(params) == 0 {
		return dbPath
	}
	return "file:" + dbPath + "?" + strings.Join(params, "&")
}

func applyPragmas(ctx context.Context, db *sql.DB, opts Options) error {
	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if opts.WALMode && !opts.ReadOnly {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}
