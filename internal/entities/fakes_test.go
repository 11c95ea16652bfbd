package entities

import (
	"context"
	"fmt"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
)

// fakeDB answers Query calls through queryFn and records bulk loads and tx
// lifecycle in an ordered event trace.
type fakeDB struct {
	queryFn func(q string, args []any) ([][]any, error)

	events []string
	copies []copyCall
}

type copyCall struct {
	table   string
	columns []string
	rows    [][]any
}

func (f *fakeDB) Exec(_ context.Context, q string, args ...any) error {
	f.events = append(f.events, "exec")
	return nil
}

func (f *fakeDB) Query(_ context.Context, q string, args ...any) (db.Rows, error) {
	if f.queryFn == nil {
		return &fakeRows{}, nil
	}
	rows, err := f.queryFn(q, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, q string, args ...any) db.Row { return nil }

func (f *fakeDB) BeginTx(context.Context) (db.Tx, error) {
	f.events = append(f.events, "begin")
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (f *fakeDB) Dialect() db.Dialect { return db.DialectPostgres }

func (f *fakeDB) Close(context.Context) error { return nil }

type fakeTx struct{ db *fakeDB }

func (t *fakeTx) Exec(ctx context.Context, q string, args ...any) error {
	return t.db.Exec(ctx, q, args...)
}

func (t *fakeTx) CopyInto(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(columns) == 0 || len(rows) == 0 {
		return 0, nil
	}
	t.db.events = append(t.db.events, "copy:"+table)
	t.db.copies = append(t.db.copies, copyCall{table: table, columns: columns, rows: rows})
	return int64(len(rows)), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.db.events = append(t.db.events, "commit")
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.db.events = append(t.db.events, "rollback")
	return nil
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d dests, %d values", len(dest), len(row))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int64:
			switch n := v.(type) {
			case int64:
				*d = n
			case int:
				*d = int64(n)
			default:
				return fmt.Errorf("scan: value %T into *int64", v)
			}
		case *any:
			*d = v
		default:
			return fmt.Errorf("scan: unsupported dest %T", d)
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}
