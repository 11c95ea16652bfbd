package migrate

import (
	"context"
	"fmt"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/lineage"
)

// fakeDB is a scriptable db.DB for hermetic tests. queryFn answers Query
// calls with canned row sets; execs, copies and tx lifecycle are recorded in
// an ordered event trace so tests can assert statement ordering.
type fakeDB struct {
	dialect db.Dialect // zero value is Postgres
	queryFn func(q string, args []any) ([][]any, error)
	copyFn  func(table string, columns []string, rows [][]any) (int64, error)

	events    []string
	queryLog  []string
	queryArgs [][]any
	execLog   []string
	execArgs  [][]any
	copies    []copyCall
}

type copyCall struct {
	table   string
	columns []string
	rows    [][]any
}

func (f *fakeDB) Exec(_ context.Context, q string, args ...any) error {
	f.events = append(f.events, "exec")
	f.execLog = append(f.execLog, q)
	f.execArgs = append(f.execArgs, args)
	return nil
}

func (f *fakeDB) Query(_ context.Context, q string, args ...any) (db.Rows, error) {
	f.queryLog = append(f.queryLog, q)
	f.queryArgs = append(f.queryArgs, args)
	if f.queryFn == nil {
		return &fakeRows{}, nil
	}
	rows, err := f.queryFn(q, args)
	if err != nil {
		return nil, err
	}
	return &fakeRows{rows: rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, q string, args ...any) db.Row {
	rows, err := f.Query(ctx, q, args...)
	if err != nil {
		return errRow{err}
	}
	return firstRow{rows}
}

func (f *fakeDB) BeginTx(context.Context) (db.Tx, error) {
	f.events = append(f.events, "begin")
	return &fakeTx{db: f}, nil
}

func (f *fakeDB) Placeholder(i int) string {
	switch f.dialect {
	case db.DialectSQLite:
		return "?"
	case db.DialectMSSQL:
		return fmt.Sprintf("@p%d", i)
	default:
		return fmt.Sprintf("$%d", i)
	}
}

func (f *fakeDB) Dialect() db.Dialect { return f.dialect }

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
	if t.db.copyFn != nil {
		return t.db.copyFn(table, columns, rows)
	}
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

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type firstRow struct{ rows db.Rows }

func (r firstRow) Scan(dest ...any) error {
	defer r.rows.Close()
	if !r.rows.Next() {
		return fmt.Errorf("no rows")
	}
	return r.rows.Scan(dest...)
}

// fakeRecorder records StartTask/FinishTask calls for ledger assertions.
type fakeRecorder struct {
	nextTaskID int64
	started    []string
	finished   []finishedTask
}

type finishedTask struct {
	taskID   int64
	status   string
	counters []int // in, failed, out
}

func (r *fakeRecorder) StartTask(_ context.Context, _ int64, entity string) (int64, error) {
	r.nextTaskID++
	r.started = append(r.started, entity)
	return r.nextTaskID, nil
}

func (r *fakeRecorder) FinishTask(_ context.Context, taskID int64, status lineage.Status, c lineage.Counters) error {
	r.finished = append(r.finished, finishedTask{
		taskID:   taskID,
		status:   string(status),
		counters: []int{c.In, c.Failed, c.Out},
	})
	return nil
}
