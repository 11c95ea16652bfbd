package migrate

import (
	"context"
	"fmt"
	"log"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
)

// Placeholder inserts sentinel-valued dimension rows for natural keys that a
// fact or bridge batch references before the dimension's own load has seen
// them. RowFor builds the placeholder row (sentinel descriptive attributes)
// for one missing key.
type Placeholder struct {
	Table   string
	KeyCol  string
	Columns []string
	RowFor  func(key string) []any
	Chunk   int
}

// Ensure makes every referenced key present in the dimension, inserting
// placeholders for the missing subset, and returns how many were inserted.
//
// A true dimension load in another batch can insert one of the same keys
// between our existence check and our insert. The natural-key uniqueness
// constraint turns that race into a unique violation here, which is benign:
// the key exists either way, so the reference is satisfied.
func (p Placeholder) Ensure(ctx context.Context, conn db.DB, keys []string) (int, error) {
	keys = dedupKeys(keys)
	existing, err := Lookup{Table: p.Table, KeyCol: p.KeyCol, Chunk: p.Chunk}.Existing(ctx, conn, keys)
	if err != nil {
		return 0, err
	}

	var rows [][]any
	for _, k := range keys {
		if _, ok := existing[k]; ok {
			continue
		}
		rows = append(rows, p.RowFor(k))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.CopyInto(ctx, p.Table, p.Columns, rows); err != nil {
		if db.IsUniqueViolation(err) {
			log.Printf("placeholder %s: lost insert race, keys already present", p.Table)
			return 0, nil
		}
		return 0, fmt.Errorf("placeholder insert %s: %w", p.Table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err) {
			log.Printf("placeholder %s: lost insert race, keys already present", p.Table)
			return 0, nil
		}
		return 0, err
	}
	return len(rows), nil
}
