// Package lineage records batch/process/task execution status and record
// counts in the warehouse's audit tables (import_batch, import_batch_process,
// import_batch_process_task). The migration core calls it at stage start,
// end and abort only; it never reads lineage data mid-stage.
//
// Statements are rendered in the connection's dialect: placeholders come
// from db.DB.Placeholder, timestamps are bound as parameters, and the
// generated-key and row-limit clauses branch on db.DB.Dialect.
package lineage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
)

// Status is the lifecycle state of a batch, process or task.
type Status string

const (
	StatusRunning   Status = "Running"
	StatusCompleted Status = "Completed"
	StatusFailed    Status = "Failed"
	StatusAborted   Status = "Aborted"
)

// Counters are the per-task record counts. Type1/Type2/DimNew are nil for
// tasks that do not perform dimension maintenance.
type Counters struct {
	In     int
	Failed int
	Out    int
	Type2  *int
	Type1  *int
	DimNew *int
}

// Recorder writes lineage rows through a single warehouse connection.
type Recorder struct {
	conn db.DB
	now  func() time.Time
}

func NewRecorder(conn db.DB) *Recorder {
	return &Recorder{conn: conn, now: func() time.Time { return time.Now().UTC() }}
}

// insertReturning inserts one row and scans the generated key named by
// idCol. Postgres and SQLite append RETURNING; T-SQL puts an OUTPUT clause
// between the column list and VALUES.
func (r *Recorder) insertReturning(ctx context.Context, table string, cols []string, idCol string, args ...any) (int64, error) {
	phs := make([]string, len(args))
	for i := range phs {
		phs[i] = r.conn.Placeholder(i + 1)
	}
	var q string
	if r.conn.Dialect() == db.DialectMSSQL {
		q = fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
			table, strings.Join(cols, ", "), idCol, strings.Join(phs, ", "))
	} else {
		q = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			table, strings.Join(cols, ", "), strings.Join(phs, ", "), idCol)
	}
	var id int64
	if err := r.conn.QueryRow(ctx, q, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// latestRunning renders the newest-Running-row query for one lineage table
// in the dialect's row-limit syntax.
func latestRunning(d db.Dialect, idCol, table string) string {
	if d == db.DialectMSSQL {
		return fmt.Sprintf(
			"SELECT TOP 1 %s FROM %s WHERE ib_status = 'Running' ORDER BY ib_start DESC",
			idCol, table)
	}
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE ib_status = 'Running' ORDER BY ib_start DESC LIMIT 1",
		idCol, table)
}

// StartBatch creates a new import batch row and returns its id.
func (r *Recorder) StartBatch(ctx context.Context, description string, year, month int) (int64, error) {
	id, err := r.insertReturning(ctx, "import_batch",
		[]string{"ib_description", "ib_year", "ib_month", "ib_start", "ib_status"}, "ib_id",
		description, year, month, r.now(), string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("lineage: create import batch: %w", err)
	}
	return id, nil
}

// FinishBatch sets the terminal status and end timestamp of an import batch.
func (r *Recorder) FinishBatch(ctx context.Context, batchID int64, status Status) error {
	q := fmt.Sprintf(
		"UPDATE import_batch SET ib_status = %s, ib_end = %s WHERE ib_id = %s",
		r.conn.Placeholder(1), r.conn.Placeholder(2), r.conn.Placeholder(3))
	if err := r.conn.Exec(ctx, q, string(status), r.now(), batchID); err != nil {
		return fmt.Errorf("lineage: finish import batch: %w", err)
	}
	return nil
}

// LatestRunningBatch returns the id of the most recently started batch that
// is still Running, or 0 if none exists.
func (r *Recorder) LatestRunningBatch(ctx context.Context) (int64, error) {
	q := latestRunning(r.conn.Dialect(), "ib_id", "import_batch")
	rows, err := r.conn.Query(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("lineage: latest running batch: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, rows.Err()
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}

// StartProcess creates a process row under a batch and returns its id.
func (r *Recorder) StartProcess(ctx context.Context, batchID int64, description string) (int64, error) {
	id, err := r.insertReturning(ctx, "import_batch_process",
		[]string{"ib_id", "ib_description", "ib_status", "ib_start"}, "ibp_id",
		batchID, description, string(StatusRunning), r.now())
	if err != nil {
		return 0, fmt.Errorf("lineage: create process: %w", err)
	}
	return id, nil
}

// FinishProcess sets the terminal status and end timestamp of a process.
func (r *Recorder) FinishProcess(ctx context.Context, processID int64, status Status) error {
	q := fmt.Sprintf(
		"UPDATE import_batch_process SET ib_status = %s, ib_end = %s WHERE ibp_id = %s",
		r.conn.Placeholder(1), r.conn.Placeholder(2), r.conn.Placeholder(3))
	if err := r.conn.Exec(ctx, q, string(status), r.now(), processID); err != nil {
		return fmt.Errorf("lineage: finish process: %w", err)
	}
	return nil
}

// StartTask creates a task row under a process and returns its id.
func (r *Recorder) StartTask(ctx context.Context, processID int64, entity string) (int64, error) {
	id, err := r.insertReturning(ctx, "import_batch_process_task",
		[]string{"ibp_id", "ib_description", "ib_status", "ib_start"}, "ibpt_id",
		processID, entity, string(StatusRunning), r.now())
	if err != nil {
		return 0, fmt.Errorf("lineage: create task %s: %w", entity, err)
	}
	return id, nil
}

// FinishTask finalizes a task exactly once with its terminal status and
// accumulated counters.
func (r *Recorder) FinishTask(ctx context.Context, taskID int64, status Status, c Counters) error {
	ph := r.conn.Placeholder
	q := fmt.Sprintf(`
		UPDATE import_batch_process_task
		SET ib_status = %s, ib_end = %s,
		    ibpt_records_in = %s, ibpt_records_failed = %s, ibpt_records_out = %s,
		    ibpt_records_type_2 = %s, ibpt_records_type_1 = %s, ibpt_records_dim_new = %s
		WHERE ibpt_id = %s`,
		ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7), ph(8), ph(9))
	if err := r.conn.Exec(ctx, q,
		string(status), r.now(), c.In, c.Failed, c.Out, c.Type2, c.Type1, c.DimNew, taskID); err != nil {
		return fmt.Errorf("lineage: finish task: %w", err)
	}
	return nil
}

// FailCurrentRun marks the latest Running task, process, and batch as Failed.
// Used by operator tooling to clean up after a crashed run.
func (r *Recorder) FailCurrentRun(ctx context.Context) error {
	d := r.conn.Dialect()
	targets := []struct {
		table, idCol string
	}{
		{"import_batch_process_task", "ibpt_id"},
		{"import_batch_process", "ibp_id"},
		{"import_batch", "ib_id"},
	}
	for _, t := range targets {
		q := fmt.Sprintf(
			"UPDATE %s SET ib_status = 'Failed', ib_end = %s WHERE %s = (%s)",
			t.table, r.conn.Placeholder(1), t.idCol, latestRunning(d, t.idCol, t.table))
		if err := r.conn.Exec(ctx, q, r.now()); err != nil {
			return fmt.Errorf("lineage: fail current run: %w", err)
		}
	}
	return nil
}
