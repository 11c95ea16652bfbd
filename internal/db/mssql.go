package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
)

// NewMSSQLDB opens a SQL Server connection. CopyInto uses the go-mssqldb
// bulk copy API (mssql.CopyIn), the driver's fast load path.
func NewMSSQLDB(ctx context.Context, dsn string) (DB, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	d, err := openSQL(ctx, "sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	return &sqlAdapter{
		db:          d,
		dialect:     DialectMSSQL,
		placeholder: func(i int) string { return fmt.Sprintf("@p%d", i) },
		copyFn:      mssqlCopy,
	}, nil
}

func mssqlCopy(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(table, mssql.BulkOptions{}, columns...))
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk copy: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mssql: row has %d values, want %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("mssql: bulk row: %w", err)
		}
	}
	// Final Exec with no args flushes the bulk batch and reports the count.
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql: bulk flush: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func isMSSQLUniqueViolation(err error) bool {
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		// 2627: unique constraint; 2601: unique index.
		return sqlErr.Number == 2627 || sqlErr.Number == 2601
	}
	return false
}
