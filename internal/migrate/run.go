package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/faillog"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/lineage"
)

// Counters accumulate over one entity run. In counts fetched rows, Out
// loaded rows; Failed counts rows lost to whole-batch load errors.
type Counters struct {
	In     int
	Out    int
	Failed int
	New    int
	Type1  int
	Type2  int
}

// FetchFunc pages through the source relation. An empty result signals
// exhaustion; the run loop terminates on that and nothing else. The
// underlying query must carry an explicit ORDER BY, otherwise offset pages
// can skip or duplicate rows under concurrent writes.
type FetchFunc func(ctx context.Context, limit, offset int) ([][]any, error)

// LoadFunc writes one batch to the target and commits it. It must be atomic
// at batch granularity: on error nothing from the batch may remain loaded.
type LoadFunc func(ctx context.Context, batch [][]any) (Result, error)

// TaskRecorder is the slice of the lineage recorder the run loop needs.
type TaskRecorder interface {
	StartTask(ctx context.Context, processID int64, entity string) (int64, error)
	FinishTask(ctx context.Context, taskID int64, status lineage.Status, c lineage.Counters) error
}

// Spec configures one entity migration. Entities differ only in their data;
// the control flow below is shared by every stage.
type Spec struct {
	Entity    string
	ProcessID int64
	BatchSize int
	Fetch     FetchFunc
	Load      LoadFunc

	// ErrorLogPath receives one BatchError JSON entry per failed batch.
	ErrorLogPath string

	// Dimension marks entities whose Type1/Type2/New counts belong in the
	// lineage task row.
	Dimension bool
}

// Run drives the chunk loop for one entity: fetch at offset, load, advance.
// A batch-level load error is absorbed (skip and continue): it is logged
// with offset and entity, the whole batch is counted failed, and the loop
// moves to the next offset. Nothing inside a failed batch is retried.
//
// The ledger entry is created Running before the first fetch and finalized
// exactly once: Completed on exhaustion, Aborted when ctx is canceled,
// Failed when an error escapes the per-batch boundary (fetch errors do; the
// cursor cannot make progress without a batch size to skip).
func Run(ctx context.Context, rec TaskRecorder, s Spec) (Counters, error) {
	var c Counters

	taskID, err := rec.StartTask(ctx, s.ProcessID, s.Entity)
	if err != nil {
		return c, fmt.Errorf("start task %s: %w", s.Entity, err)
	}

	log.Printf("%s: migration starting", s.Entity)

	status := lineage.StatusCompleted
	var runErr error

	offset := 0
	for {
		if ctx.Err() != nil {
			status, runErr = lineage.StatusAborted, ctx.Err()
			break
		}

		batch, err := s.Fetch(ctx, s.BatchSize, offset)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				status, runErr = lineage.StatusAborted, err
			} else {
				status, runErr = lineage.StatusFailed, fmt.Errorf("%s: fetch at offset %d: %w", s.Entity, offset, err)
			}
			break
		}
		if len(batch) == 0 {
			break
		}
		c.In += len(batch)

		res, err := s.Load(ctx, batch)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				status, runErr = lineage.StatusAborted, err
				break
			}
			// Skip and continue: a poisoned batch must not block the rest.
			log.Printf("%s: batch at offset %d failed: %v", s.Entity, offset, err)
			c.Failed += len(batch)
			if s.ErrorLogPath != "" {
				if logErr := faillog.Append(s.ErrorLogPath, []faillog.BatchError{
					{Error: err.Error(), Offset: offset, Entity: s.Entity},
				}); logErr != nil {
					log.Printf("%s: error log write failed: %v", s.Entity, logErr)
				}
			}
		} else {
			c.Out += res.Out
			c.New += res.New
			c.Type1 += res.Type1
			c.Type2 += res.Type2
		}

		offset += s.BatchSize
	}

	lc := lineage.Counters{In: c.In, Failed: c.Failed, Out: c.Out}
	if s.Dimension {
		lc.Type1, lc.Type2, lc.DimNew = &c.Type1, &c.Type2, &c.New
	}
	if err := rec.FinishTask(ctx, taskID, status, lc); err != nil {
		log.Printf("%s: finish task: %v", s.Entity, err)
		if runErr == nil {
			runErr = err
		}
	}

	log.Printf("%s: migration %s (in=%d out=%d failed=%d)", s.Entity, status, c.In, c.Out, c.Failed)
	return c, runErr
}

// FetchSQL builds a FetchFunc over a stable-ordered query. The query must
// end in an ORDER BY that makes pagination deterministic and must not carry
// a pagination clause of its own; the dialect's limit/offset rendering is
// appended here (T-SQL spells it OFFSET ... FETCH and binds the parameters
// in the opposite order). nCols is the width of the select list.
func FetchSQL(conn db.DB, query string, nCols int) FetchFunc {
	return func(ctx context.Context, limit, offset int) ([][]any, error) {
		var q string
		var args []any
		if conn.Dialect() == db.DialectMSSQL {
			q = fmt.Sprintf("%s OFFSET %s ROWS FETCH NEXT %s ROWS ONLY",
				query, conn.Placeholder(1), conn.Placeholder(2))
			args = []any{offset, limit}
		} else {
			q = fmt.Sprintf("%s LIMIT %s OFFSET %s",
				query, conn.Placeholder(1), conn.Placeholder(2))
			args = []any{limit, offset}
		}
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out [][]any
		for rows.Next() {
			row := make([]any, nCols)
			ptrs := make([]any, nCols)
			for i := range row {
				ptrs[i] = &row[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		return out, rows.Err()
	}
}

// CopyLoad builds a LoadFunc that bulk-inserts each batch into table inside
// its own transaction, committing immediately after the load.
func CopyLoad(conn db.DB, table string, columns []string) LoadFunc {
	return func(ctx context.Context, batch [][]any) (Result, error) {
		tx, err := conn.BeginTx(ctx)
		if err != nil {
			return Result{}, err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.CopyInto(ctx, table, columns, batch); err != nil {
			return Result{}, fmt.Errorf("load %s: %w", table, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return Result{}, err
		}
		return Result{Out: len(batch)}, nil
	}
}
