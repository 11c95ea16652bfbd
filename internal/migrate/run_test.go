package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/faillog"
)

// scriptedFetch pages through a fixed set of rows like LIMIT/OFFSET would.
func scriptedFetch(rows [][]any) FetchFunc {
	return func(_ context.Context, limit, offset int) ([][]any, error) {
		if offset >= len(rows) {
			return nil, nil
		}
		end := min(offset+limit, len(rows))
		return rows[offset:end], nil
	}
}

func nRows(n int) [][]any {
	out := make([][]any, n)
	for i := range out {
		out[i] = []any{fmt.Sprintf("row-%d", i)}
	}
	return out
}

func TestRunSkipAndContinue(t *testing.T) {
	errLog := filepath.Join(t.TempDir(), "entity_error_logs.json")

	// 10 rows in batches of 4: batches at offsets 0 and 8 load, offset 4 fails.
	var loaded int
	rec := &fakeRecorder{}
	c, err := Run(context.Background(), rec, Spec{
		Entity:       "s2_review",
		BatchSize:    4,
		Fetch:        scriptedFetch(nRows(10)),
		ErrorLogPath: errLog,
		Load: func(_ context.Context, batch [][]any) (Result, error) {
			if batch[0][0] == "row-4" {
				return Result{}, errors.New("bulk load: constraint violation")
			}
			loaded += len(batch)
			return Result{Out: len(batch)}, nil
		},
	})
	if err != nil {
		t.Fatalf("a failed middle batch must not fail the run: %v", err)
	}

	if c.In != 10 || c.Out != 6 || c.Failed != 4 {
		t.Errorf("counters=%+v; want In=10 Out=6 Failed=4", c)
	}
	if loaded != 6 {
		t.Errorf("later batches not committed after failure: loaded=%d", loaded)
	}

	// Terminal status is Completed; the poisoned batch was absorbed.
	if len(rec.finished) != 1 || rec.finished[0].status != "Completed" {
		t.Fatalf("finished=%+v", rec.finished)
	}
	if got := rec.finished[0].counters; got[0] != 10 || got[1] != 4 || got[2] != 6 {
		t.Errorf("ledger counters=%v", got)
	}

	// The batch error landed in the entity's own error log with its offset.
	buf, err := os.ReadFile(errLog)
	if err != nil {
		t.Fatalf("error log missing: %v", err)
	}
	var entries []faillog.BatchError
	if err := json.Unmarshal(buf, &entries); err != nil {
		t.Fatalf("error log not a JSON array: %v", err)
	}
	if len(entries) != 1 || entries[0].Offset != 4 || entries[0].Entity != "s2_review" {
		t.Errorf("entries=%+v", entries)
	}
}

func TestRunCompletesOnEmptyFetch(t *testing.T) {
	rec := &fakeRecorder{}
	c, err := Run(context.Background(), rec, Spec{
		Entity:    "s2_product",
		BatchSize: 100,
		Fetch:     scriptedFetch(nil),
		Load: func(context.Context, [][]any) (Result, error) {
			t.Fatal("load called with no batches")
			return Result{}, nil
		},
	})
	if err != nil || c.In != 0 {
		t.Fatalf("c=%+v err=%v", c, err)
	}
	if rec.finished[0].status != "Completed" {
		t.Errorf("status=%s", rec.finished[0].status)
	}
}

func TestRunAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &fakeRecorder{}

	_, err := Run(ctx, rec, Spec{
		Entity:    "s2_review",
		BatchSize: 2,
		Fetch:     scriptedFetch(nRows(8)),
		Load: func(context.Context, [][]any) (Result, error) {
			cancel() // interrupt arrives mid-run
			return Result{Out: 2}, nil
		},
	})
	if err == nil {
		t.Fatal("aborted run must surface an error")
	}
	if rec.finished[0].status != "Aborted" {
		t.Errorf("status=%s; want Aborted", rec.finished[0].status)
	}
	// Counters flushed as-is: the committed batch stays counted.
	if got := rec.finished[0].counters; got[2] != 2 {
		t.Errorf("out=%d; want 2", got[2])
	}
}

func TestRunFetchErrorFailsStage(t *testing.T) {
	rec := &fakeRecorder{}
	_, err := Run(context.Background(), rec, Spec{
		Entity:    "s2_review",
		BatchSize: 4,
		Fetch: func(context.Context, int, int) ([][]any, error) {
			return nil, errors.New("source connection lost")
		},
		Load: func(context.Context, [][]any) (Result, error) { return Result{}, nil },
	})
	if err == nil {
		t.Fatal("fetch error must fail the run; the cursor cannot advance")
	}
	if rec.finished[0].status != "Failed" {
		t.Errorf("status=%s; want Failed", rec.finished[0].status)
	}
}

func TestFetchSQLPaginates(t *testing.T) {
	f := &fakeDB{
		queryFn: func(q string, args []any) ([][]any, error) {
			if args[0].(int) != 2 || args[1].(int) != 10 {
				return nil, fmt.Errorf("args=%v", args)
			}
			return [][]any{{"k1", "v1"}, {"k2", "v2"}}, nil
		},
	}
	fetch := FetchSQL(f, "SELECT k, v FROM t ORDER BY k", 2)
	rows, err := fetch(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "v2" {
		t.Errorf("rows=%v", rows)
	}
	if !strings.Contains(f.queryLog[0], "ORDER BY k LIMIT $1 OFFSET $2") {
		t.Errorf("pagination not appended: %s", f.queryLog[0])
	}
}

func TestFetchSQLRendersTSQLPagination(t *testing.T) {
	f := &fakeDB{
		dialect: db.DialectMSSQL,
		queryFn: func(q string, args []any) ([][]any, error) {
			// T-SQL binds offset first, then the page size.
			if args[0].(int) != 10 || args[1].(int) != 2 {
				return nil, fmt.Errorf("args=%v", args)
			}
			return nil, nil
		},
	}
	fetch := FetchSQL(f, "SELECT k FROM t ORDER BY k", 1)
	if _, err := fetch(context.Background(), 2, 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	q := f.queryLog[0]
	if !strings.Contains(q, "OFFSET @p1 ROWS FETCH NEXT @p2 ROWS ONLY") || strings.Contains(q, "LIMIT") {
		t.Errorf("pagination not in T-SQL form: %s", q)
	}
}

func TestCopyLoadCommitsPerBatch(t *testing.T) {
	f := &fakeDB{}
	load := CopyLoad(f, "s2_review", []string{"a", "b"})
	res, err := load(context.Background(), [][]any{{1, 2}})
	if err != nil || res.Out != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	want := []string{"begin", "copy:s2_review", "commit", "rollback"}
	for i, e := range want {
		if f.events[i] != e {
			t.Fatalf("events=%v; want %v", f.events, want)
		}
	}
}
