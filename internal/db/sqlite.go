package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // cgo-free SQLite driver
)

// NewSQLiteDB opens a SQLite database via database/sql. SQLite has no
// dedicated bulk-load API like Postgres COPY; CopyInto uses a prepared
// per-row INSERT inside the surrounding transaction, which keeps performance
// acceptable for local runs and lets tests exercise the full load path
// without a server.
//
// DSN examples: "file:etl.db?cache=shared", "etl.db", ":memory:".
func NewSQLiteDB(ctx context.Context, dsn string) (DB, error) {
	d, err := openSQL(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	_, _ = d.ExecContext(ctx, "PRAGMA foreign_keys = ON;")

	return &sqlAdapter{
		db:          d,
		dialect:     DialectSQLite,
		placeholder: func(int) string { return "?" },
		copyFn:      sqliteCopy,
	}, nil
}

func sqliteCopy(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(columns) {
			return inserted, fmt.Errorf("sqlite: row has %d values, want %d", len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return inserted, fmt.Errorf("sqlite: insert: %w", err)
		}
		inserted++
	}
	return inserted, nil
}

func isSQLiteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
