// Package sqlite предоставляет инфраструктуру SQLite для журнала загрузок.
//
// Основные возможности:
//   - Открытие БД с PRAGMA настройками (WAL, busy timeout)
//   - Транзакции с повтором при SQLITE_BUSY
//   - Миграции из embed.FS через golang-migrate (источник iofs)
//
// # Быстрый старт
//
//	db, err := sqlite.Open(ctx, "data/journal.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := sqlite.ApplyMigrations("data/journal.db", migrations.FS, "sqlite"); err != nil {
//		return err
//	}
//
// # Транзакции
//
//	runner := sqlite.NewTxRunner(db)
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		q := runner.GetQuerier(ctx)
//		_, err := q.ExecContext(ctx, "INSERT INTO fetches (id) VALUES (?)", id)
//		return err
//	})
package sqlite
