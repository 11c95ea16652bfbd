// Package db provides database adapter implementations behind standardized
// DB and Tx interfaces: Postgres via pgx (the production warehouse target),
// SQLite via modernc.org/sqlite (local smoke runs and hermetic tests), and
// MSSQL via go-mssqldb.
//
// Design goals:
//   - Allow mocking via small *ConnLike interface seams (hermetic unit tests).
//   - Keep behavior minimal and predictable; retries live in Connect only.
//   - Surface driver errors directly; classification helpers (IsUniqueViolation)
//     take care of the few cases callers must branch on.
package db

import "context"

// Dialect identifies the SQL flavor behind a DB. Query builders branch on it
// where placeholder style alone is not enough: generated-key retrieval, row
// limiting, boolean literals, and parameter-count ceilings all differ.
type Dialect int

const (
	DialectPostgres Dialect = iota
	DialectSQLite
	DialectMSSQL
)

// TrueLiteral is the dialect's SQL spelling of boolean true. T-SQL BIT
// columns have no TRUE keyword.
func (d Dialect) TrueLiteral() string {
	if d == DialectMSSQL {
		return "1"
	}
	return "TRUE"
}

// FalseLiteral is the dialect's SQL spelling of boolean false.
func (d Dialect) FalseLiteral() string {
	if d == DialectMSSQL {
		return "0"
	}
	return "FALSE"
}

// MaxParams is the number of bind parameters one statement may carry.
// SQL Server rejects statements above 2100; the figure here leaves headroom.
func (d Dialect) MaxParams() int {
	switch d {
	case DialectMSSQL:
		return 2000
	case DialectSQLite:
		return 32766
	default:
		return 65535
	}
}

// Rows is the minimal result-set cursor shared by all adapters.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Row is a single-row result, as produced by QueryRow.
type Row interface {
	Scan(dest ...any) error
}

// DB is a connection capable of queries, statements and transactions.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	BeginTx(ctx context.Context) (Tx, error)

	// Placeholder renders the 1-based i-th statement parameter in the
	// adapter's dialect ($1 / ? / @p1). Query builders that expand key sets
	// into IN (...) lists use this to stay backend-agnostic.
	Placeholder(i int) string

	// Dialect reports the SQL flavor for builders that need more than
	// placeholder style.
	Dialect() Dialect

	Close(ctx context.Context) error
}

// Tx supports statements, bulk inserts, and lifecycle within a transaction.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error

	// CopyInto bulk-inserts rows (aligned to columns order) into table using
	// the backend's fastest primitive: COPY FROM for Postgres, bulk copy for
	// MSSQL, a prepared transactional INSERT for SQLite. Zero rows or zero
	// columns is a no-op. The insert is atomic: any row error aborts the
	// whole set.
	CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
