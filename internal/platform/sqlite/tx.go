package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crawlfetch/pkg/retry"
)

// txKey используется как ключ для хранения транзакции в context.Context
type txKey struct{}

// Querier объединяет методы выполнения запросов, общие для БД и транзакции.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
)

// ErrNestedTx возвращается при попытке открыть транзакцию внутри транзакции.
var ErrNestedTx = errors.New("sqlite: nested transactions are not supported")

// TxRunner выполняет функцию внутри транзакции и повторяет её при SQLITE_BUSY.
type TxRunner struct {
	DB *sql.DB
	// MaxAttempts - общее число попыток (по умолчанию 3)
	MaxAttempts int
	// Backoff - расписание задержек между попытками
	Backoff retry.Config
}

// NewTxRunner создает TxRunner с короткими задержками 10ms..500ms.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{
		DB:          db,
		MaxAttempts: 3,
		Backoff: retry.Config{
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

// WithinTx выполняет fn внутри транзакции. Ошибка fn откатывает транзакцию,
// nil коммитит. Транзакция доступна внутри fn через GetQuerier(ctx).
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return ErrNestedTx
	}
	backoff, err := retry.NewBackoff(r.Backoff)
	if err != nil {
		return err
	}

	attempts := max(r.MaxAttempts, 1)
	for attempt := 1; ; attempt++ {
		err := r.executeTx(ctx, fn)
		if err == nil || attempt >= attempts || !IsBusy(err) {
			return err
		}
		if werr := backoff.Wait(ctx, backoff.Next()); werr != nil {
			return werr
		}
	}
}

// GetQuerier возвращает активную транзакцию из контекста или основное подключение.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return r.DB
}

func (r *TxRunner) executeTx(ctx context.Context, fn func(context.Context) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// IsBusy проверяет, является ли ошибка SQLITE_BUSY/SQLITE_LOCKED.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "SQLITE_BUSY") ||
		strings.Contains(s, "database table is locked")
}
