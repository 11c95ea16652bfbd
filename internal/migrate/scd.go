package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
)

// Result is what one dimension upsert contributed, split by maintenance
// kind for the lineage counters.
type Result struct {
	Out   int
	New   int
	Type1 int
	Type2 int
}

// SCD2 maintains a Type 2 slowly-changing dimension: incoming versions of an
// existing natural key expire the currently-active row and insert a new
// current one; unseen keys insert directly. At most one row per natural key
// is current at any time.
type SCD2 struct {
	Table    string
	KeyCol   string
	Columns  []string // natural key + descriptive attributes, in row order
	KeyIndex int      // position of the natural key within Columns
	Chunk    int      // expire/lookup chunk size
}

// lastWins keeps only the final occurrence of each natural key in a batch,
// preserving batch order otherwise. A key repeated within one batch would
// otherwise insert two concurrently-current rows.
func lastWins(rows [][]any, keyIndex int) [][]any {
	last := make(map[string]int, len(rows))
	for i, row := range rows {
		last[asString(row[keyIndex])] = i
	}
	if len(last) == len(rows) {
		return rows
	}
	out := make([][]any, 0, len(last))
	for i, row := range rows {
		if last[asString(row[keyIndex])] == i {
			out = append(out, row)
		}
	}
	return out
}

// Upsert applies one batch. The expire statement for changed keys is issued
// before the insert of their new versions, inside the same transaction, so
// no two rows for one key are ever concurrently current.
func (d SCD2) Upsert(ctx context.Context, conn db.DB, rows [][]any) (Result, error) {
	var res Result
	if len(rows) == 0 {
		return res, nil
	}
	rows = lastWins(rows, d.KeyIndex)

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = asString(row[d.KeyIndex])
	}
	existing, err := Lookup{
		Table: d.Table, KeyCol: d.KeyCol, CurrentOnly: true, Chunk: d.Chunk,
	}.Existing(ctx, conn, keys)
	if err != nil {
		return res, err
	}

	var expireKeys []string
	for _, k := range dedupKeys(keys) {
		if _, ok := existing[k]; ok {
			expireKeys = append(expireKeys, k)
		}
	}

	now := time.Now().UTC()
	insertCols := append(append([]string{}, d.Columns...), "effective_date", "expiration_date", "is_current")
	insertRows := make([][]any, len(rows))
	for i, row := range rows {
		insertRows[i] = append(append([]any{}, row...), now, nil, true)
		if _, ok := existing[keys[i]]; ok {
			res.Type2++
		} else {
			res.New++
		}
	}

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx)

	// Expire first: the old versions must stop being current before their
	// replacements land.
	size := chunkFor(conn, d.Chunk, 1)
	for start := 0; start < len(expireKeys); start += size {
		end := min(start+size, len(expireKeys))
		chunk := expireKeys[start:end]
		q := fmt.Sprintf(
			"UPDATE %s SET is_current = %s, expiration_date = CURRENT_TIMESTAMP WHERE %s IN (%s) AND is_current = %s",
			d.Table, conn.Dialect().FalseLiteral(), d.KeyCol, inList(conn, len(chunk)), conn.Dialect().TrueLiteral())
		if err := tx.Exec(ctx, q, toArgs(chunk)...); err != nil {
			return Result{}, fmt.Errorf("scd2 expire %s: %w", d.Table, err)
		}
	}

	if _, err := tx.CopyInto(ctx, d.Table, insertCols, insertRows); err != nil {
		return Result{}, fmt.Errorf("scd2 insert %s: %w", d.Table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}
	res.Out = len(rows)
	return res, nil
}

// SCD1 maintains a Type 1 dimension: existing keys have their mutable
// attributes overwritten in place (no history, no new surrogate key), new
// keys are inserted.
type SCD1 struct {
	Table      string
	KeyCol     string
	Columns    []string // insert column order
	KeyIndex   int
	UpdateCols []int // indexes into Columns of the mutable attributes
	Chunk      int
}

func (d SCD1) Upsert(ctx context.Context, conn db.DB, rows [][]any) (Result, error) {
	var res Result
	if len(rows) == 0 {
		return res, nil
	}
	rows = lastWins(rows, d.KeyIndex)

	keys := make([]string, len(rows))
	for i, row := range rows {
		keys[i] = asString(row[d.KeyIndex])
	}
	existing, err := Lookup{
		Table: d.Table, KeyCol: d.KeyCol, Chunk: d.Chunk,
	}.Existing(ctx, conn, keys)
	if err != nil {
		return res, err
	}

	var updates, inserts [][]any
	for i, row := range rows {
		if _, ok := existing[keys[i]]; ok {
			updates = append(updates, row)
		} else {
			inserts = append(inserts, row)
		}
	}

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback(ctx)

	if len(updates) > 0 {
		sets := make([]string, len(d.UpdateCols))
		for i, ci := range d.UpdateCols {
			sets[i] = fmt.Sprintf("%s = %s", d.Columns[ci], conn.Placeholder(i+1))
		}
		q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			d.Table, strings.Join(sets, ", "), d.KeyCol, conn.Placeholder(len(d.UpdateCols)+1))
		for _, row := range updates {
			args := make([]any, 0, len(d.UpdateCols)+1)
			for _, ci := range d.UpdateCols {
				args = append(args, row[ci])
			}
			args = append(args, row[d.KeyIndex])
			if err := tx.Exec(ctx, q, args...); err != nil {
				return Result{}, fmt.Errorf("scd1 update %s: %w", d.Table, err)
			}
		}
	}

	if _, err := tx.CopyInto(ctx, d.Table, d.Columns, inserts); err != nil {
		return Result{}, fmt.Errorf("scd1 insert %s: %w", d.Table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}

	res.Out = len(rows)
	res.Type1 = len(updates)
	res.New = len(inserts)
	return res, nil
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
