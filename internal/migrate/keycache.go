// Package migrate implements the generic paginated migration engine shared
// by every stage: batched extraction with LIMIT/OFFSET, per-batch surrogate
// key resolution, SCD Type 1/2 dimension maintenance, late-arriving
// dimension placeholders, and the run ledger with skip-and-continue batch
// error handling. Entities are configuration (a Spec), not new control flow.
package migrate

import (
	"context"
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
)

// DefaultLookupChunk bounds the number of parameters per key-lookup round
// trip. The effective chunk is further capped by the connection dialect's
// parameter ceiling (SQL Server allows far fewer than 5000).
const DefaultLookupChunk = 5000

// Lookup resolves natural keys to surrogate keys (or to bare existence)
// against one dimension table. The resulting map lives for one batch only;
// it is never cached across batches, so there is no staleness to manage.
type Lookup struct {
	Table        string
	KeyCol       string
	SurrogateCol string
	CurrentOnly  bool // restrict to is_current rows (versioned dimensions)
	Chunk        int  // keys per round trip; dialect-capped default when 0
}

// chunkFor caps keys per round trip by the dialect's parameter ceiling.
// perKey is the number of bind parameters each key contributes.
func chunkFor(conn db.DB, explicit, perKey int) int {
	n := DefaultLookupChunk
	if explicit > 0 {
		n = explicit
	}
	if ceil := conn.Dialect().MaxParams() / perKey; ceil < n {
		return ceil
	}
	return n
}

// inList renders "ph, ph, ..." for n parameters starting at 1.
func inList(conn db.DB, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = conn.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}

func dedupKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Resolve returns natural key -> surrogate key for every input key that
// exists in the dimension. Keys absent from the map are not yet resolvable;
// that is the caller's decision to make, not an error.
func (l Lookup) Resolve(ctx context.Context, conn db.DB, keys []string) (map[string]int64, error) {
	keys = dedupKeys(keys)
	size := chunkFor(conn, l.Chunk, 1)
	out := make(map[string]int64, len(keys))
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunk := keys[start:end]

		q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s)",
			l.KeyCol, l.SurrogateCol, l.Table, l.KeyCol, inList(conn, len(chunk)))
		if l.CurrentOnly {
			q += " AND is_current = " + conn.Dialect().TrueLiteral()
		}

		rows, err := conn.Query(ctx, q, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("resolve %s keys: %w", l.Table, err)
		}
		for rows.Next() {
			var k string
			var sk int64
			if err := rows.Scan(&k, &sk); err != nil {
				rows.Close()
				return nil, err
			}
			out[k] = sk
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// Existing returns the subset of keys already present in the dimension.
func (l Lookup) Existing(ctx context.Context, conn db.DB, keys []string) (map[string]struct{}, error) {
	keys = dedupKeys(keys)
	size := chunkFor(conn, l.Chunk, 1)
	out := make(map[string]struct{}, len(keys))
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunk := keys[start:end]

		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
			l.KeyCol, l.Table, l.KeyCol, inList(conn, len(chunk)))
		if l.CurrentOnly {
			q += " AND is_current = " + conn.Dialect().TrueLiteral()
		}

		rows, err := conn.Query(ctx, q, toArgs(chunk)...)
		if err != nil {
			return nil, fmt.Errorf("check %s keys: %w", l.Table, err)
		}
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return nil, err
			}
			out[k] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// PairLookup resolves composite two-column natural keys (e.g. review text +
// title) to surrogate keys. Map keys are PairKey hashes to avoid holding
// concatenated long strings per entry.
type PairLookup struct {
	Table        string
	Col1, Col2   string
	SurrogateCol string
	Chunk        int
}

// PairKey hashes a composite key into the map key used by PairLookup maps.
// A \x1f separator keeps ("ab","c") and ("a","bc") distinct.
func PairKey(a, b string) uint64 {
	return xxh3.HashString(a + "\x1f" + b)
}

// Resolve returns PairKey(col1, col2) -> surrogate key for pairs present in
// the dimension.
func (l PairLookup) Resolve(ctx context.Context, conn db.DB, pairs [][2]string) (map[uint64]int64, error) {
	seen := make(map[uint64]struct{}, len(pairs))
	uniq := pairs[:0:0]
	for _, p := range pairs {
		h := PairKey(p[0], p[1])
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		uniq = append(uniq, p)
	}

	// Each pair binds two parameters as an OR'd equality predicate. Row-value
	// IN lists would read better but are not valid T-SQL.
	size := chunkFor(conn, l.Chunk, 2)
	out := make(map[uint64]int64, len(uniq))
	for start := 0; start < len(uniq); start += size {
		end := min(start+size, len(uniq))
		chunk := uniq[start:end]

		preds := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*2)
		for i, p := range chunk {
			preds[i] = fmt.Sprintf("(%s = %s AND %s = %s)",
				l.Col1, conn.Placeholder(2*i+1), l.Col2, conn.Placeholder(2*i+2))
			args = append(args, p[0], p[1])
		}
		q := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s",
			l.Col1, l.Col2, l.SurrogateCol, l.Table, strings.Join(preds, " OR "))

		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("resolve %s pairs: %w", l.Table, err)
		}
		for rows.Next() {
			var a, b string
			var sk int64
			if err := rows.Scan(&a, &b, &sk); err != nil {
				rows.Close()
				return nil, err
			}
			out[PairKey(a, b)] = sk
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func toArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
