package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// sqlAdapter wraps database/sql for the non-pgx backends. Bulk-insert
// strategy differs per driver, so it is injected as copyFn.
type sqlAdapter struct {
	db          *sql.DB
	dialect     Dialect
	placeholder func(i int) string
	copyFn      func(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error)
}

func openSQL(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("%s: DSN must not be empty", driverName)
	}
	d, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driverName, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := d.PingContext(pingCtx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("%s: ping: %w", driverName, err)
	}
	return d, nil
}

func (a *sqlAdapter) Exec(ctx context.Context, q string, args ...any) error {
	_, err := a.db.ExecContext(ctx, q, args...)
	return err
}

func (a *sqlAdapter) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (a *sqlAdapter) QueryRow(ctx context.Context, q string, args ...any) Row {
	return a.db.QueryRowContext(ctx, q, args...)
}

func (a *sqlAdapter) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, adapter: a}, nil
}

func (a *sqlAdapter) Placeholder(i int) string { return a.placeholder(i) }

func (a *sqlAdapter) Dialect() Dialect { return a.dialect }

func (a *sqlAdapter) Close(context.Context) error { return a.db.Close() }

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

type sqlTx struct {
	tx      *sql.Tx
	adapter *sqlAdapter
}

func (t *sqlTx) Exec(ctx context.Context, q string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, q, args...)
	return err
}

func (t *sqlTx) CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 || len(rows) == 0 {
		return 0, nil
	}
	return t.adapter.copyFn(ctx, t.tx, table, columns, rows)
}

func (t *sqlTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }
