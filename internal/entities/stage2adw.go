package entities

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/migrate"
)

var productDimColumns = []string{
	"product_source_key", "product_metadata_id", "sales_rank_category",
	"sales_rank", "product_image_url", "product_title", "product_description",
	"price", "brand",
}

var reviewerDimColumns = []string{"reviewer_source_key", "reviewer_name"}

var factColumns = []string{
	"date_reviewed_key", "reviewer_key", "product_key",
	"review_descriptors_key", "helpfulness_rating", "review_rating",
}

// Stage2ADW builds the warehouse migrations: the versioned product dimension,
// the overwrite-in-place reviewer dimension, the append-only category and
// review-descriptor dimensions, and the bridge/relation/fact loads that
// resolve natural keys to surrogate keys.
//
// Dimension loads run before the fact and bridge loads; the returned order
// is the execution order.
func Stage2ADW(src, dst db.DB, processID int64, logDir string) []migrate.Spec {
	errLog := func(entity string) string {
		return filepath.Join(logDir, entity+"_error_logs.json")
	}

	productDim := migrate.SCD2{
		Table:    "product",
		KeyCol:   "product_source_key",
		Columns:  productDimColumns,
		KeyIndex: 0,
	}
	reviewerDim := migrate.SCD1{
		Table:      "reviewer",
		KeyCol:     "reviewer_source_key",
		Columns:    reviewerDimColumns,
		KeyIndex:   0,
		UpdateCols: []int{1},
	}
	categoryDim := migrate.Placeholder{
		Table:   "category",
		KeyCol:  "product_category",
		Columns: []string{"product_category"},
		RowFor:  func(key string) []any { return []any{key} },
	}

	return []migrate.Spec{
		{
			Entity:    "adw_product",
			ProcessID: processID,
			BatchSize: rowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT p_product_source_key, p_product_metadata_id, p_sales_rank_category,
				       p_sales_rank, p_image_url, p_title, p_description, p_price, p_brand
				FROM v_s2_product
				ORDER BY p_product_source_key`, len(productDimColumns)),
			Load: func(ctx context.Context, batch [][]any) (migrate.Result, error) {
				return productDim.Upsert(ctx, dst, batch)
			},
			ErrorLogPath: errLog("adw_product"),
			Dimension:    true,
		},
		{
			Entity:    "adw_reviewer",
			ProcessID: processID,
			BatchSize: rowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT DISTINCT r_reviewer_source_key, r_reviewer_name
				FROM v_s2_review
				ORDER BY r_reviewer_source_key, r_reviewer_name`, len(reviewerDimColumns)),
			Load: func(ctx context.Context, batch [][]any) (migrate.Result, error) {
				return reviewerDim.Upsert(ctx, dst, batch)
			},
			ErrorLogPath: errLog("adw_reviewer"),
			Dimension:    true,
		},
		{
			Entity:    "adw_category",
			ProcessID: processID,
			BatchSize: narrowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT DISTINCT pc_category
				FROM v_s2_product_category
				ORDER BY pc_category`, 1),
			Load: func(ctx context.Context, batch [][]any) (migrate.Result, error) {
				keys := make([]string, len(batch))
				for i, row := range batch {
					keys[i] = str(row[0])
				}
				inserted, err := categoryDim.Ensure(ctx, dst, keys)
				if err != nil {
					return migrate.Result{}, err
				}
				return migrate.Result{Out: inserted, New: inserted}, nil
			},
			ErrorLogPath: errLog("adw_category"),
			Dimension:    true,
		},
		{
			Entity:    "adw_review_descriptors",
			ProcessID: processID,
			BatchSize: rowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT DISTINCT r_review_text, r_review_title
				FROM v_s2_review
				ORDER BY r_review_text, r_review_title`, 2),
			Load:         descriptorsLoad(dst),
			ErrorLogPath: errLog("adw_review_descriptors"),
			Dimension:    true,
		},
		{
			Entity:       "adw_product_category_bridge",
			ProcessID:    processID,
			BatchSize:    rowBatchSize,
			Fetch:        bridgeFetch(src),
			Load:         bridgeLoad(dst),
			ErrorLogPath: errLog("adw_product_category_bridge"),
		},
		{
			Entity:    "adw_related_product",
			ProcessID: processID,
			BatchSize: rowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT rl_product_source_key, rl_related_product_source_key, rl_relation
				FROM v_s2_related_product
				ORDER BY rl_product_source_key, rl_related_product_source_key, rl_relation`, 3),
			Load:         relatedLoad(dst),
			ErrorLogPath: errLog("adw_related_product"),
		},
		{
			Entity:    "adw_review_fact",
			ProcessID: processID,
			BatchSize: rowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT r_review_date_key, r_reviewer_source_key, r_product_key,
				       r_helpfulness_rating, r_review_score, r_review_text, r_review_title
				FROM v_s2_review
				ORDER BY r_reviewer_source_key, r_product_key, r_review_datetime`, 7),
			Load:         factLoad(dst),
			ErrorLogPath: errLog("adw_review_fact"),
		},
	}
}

// descriptorsLoad inserts the (text, title) pairs not yet present in the
// review_descriptors dimension.
func descriptorsLoad(dst db.DB) migrate.LoadFunc {
	lookup := migrate.PairLookup{
		Table: "review_descriptors", Col1: "review_text", Col2: "review_title",
		SurrogateCol: "review_descriptors_key",
	}
	return func(ctx context.Context, batch [][]any) (migrate.Result, error) {
		pairs := make([][2]string, len(batch))
		for i, row := range batch {
			pairs[i] = [2]string{str(row[0]), str(row[1])}
		}
		existing, err := lookup.Resolve(ctx, dst, pairs)
		if err != nil {
			return migrate.Result{}, err
		}

		seen := make(map[uint64]struct{}, len(pairs))
		var rows [][]any
		for _, p := range pairs {
			h := migrate.PairKey(p[0], p[1])
			if _, ok := existing[h]; ok {
				continue
			}
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			rows = append(rows, []any{p[0], p[1]})
		}
		if len(rows) == 0 {
			return migrate.Result{}, nil
		}

		tx, err := dst.BeginTx(ctx)
		if err != nil {
			return migrate.Result{}, err
		}
		defer tx.Rollback(ctx)
		if _, err := tx.CopyInto(ctx, "review_descriptors", []string{"review_text", "review_title"}, rows); err != nil {
			return migrate.Result{}, fmt.Errorf("load review_descriptors: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return migrate.Result{}, err
		}
		return migrate.Result{Out: len(rows), New: len(rows)}, nil
	}
}

// bridgeFetch pages the stage-2 product/category pairs.
func bridgeFetch(src db.DB) migrate.FetchFunc {
	return migrate.FetchSQL(src, `
		SELECT pc_product_source_key, pc_category
		FROM v_s2_product_category
		ORDER BY pc_product_source_key, pc_category`, 2)
}

// bridgeLoad resolves both surrogate keys, drops pairs with an unresolved
// side, skips combinations already bridged, and inserts the remainder.
func bridgeLoad(dst db.DB) migrate.LoadFunc {
	productKeys := migrate.Lookup{
		Table: "product", KeyCol: "product_source_key", SurrogateCol: "product_key",
	}
	categoryKeys := migrate.Lookup{
		Table: "category", KeyCol: "product_category", SurrogateCol: "category_key",
	}
	return func(ctx context.Context, batch [][]any) (migrate.Result, error) {
		prodNat := make([]string, 0, len(batch))
		catNat := make([]string, 0, len(batch))
		for _, row := range batch {
			prodNat = append(prodNat, str(row[0]))
			catNat = append(catNat, str(row[1]))
		}

		prodMap, err := productKeys.Resolve(ctx, dst, prodNat)
		if err != nil {
			return migrate.Result{}, err
		}
		catMap, err := categoryKeys.Resolve(ctx, dst, catNat)
		if err != nil {
			return migrate.Result{}, err
		}

		var combos [][2]int64
		for _, row := range batch {
			pk, ok1 := prodMap[str(row[0])]
			ck, ok2 := catMap[str(row[1])]
			if ok1 && ok2 {
				combos = append(combos, [2]int64{pk, ck})
			}
		}

		existing, err := existingIntPairs(ctx, dst,
			"product_category_bridge", "product_key", "category_key", combos)
		if err != nil {
			return migrate.Result{}, err
		}

		seen := make(map[[2]int64]struct{}, len(combos))
		var rows [][]any
		for _, c := range combos {
			if _, ok := existing[c]; ok {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			rows = append(rows, []any{c[0], c[1]})
		}
		if len(rows) == 0 {
			return migrate.Result{}, nil
		}

		tx, err := dst.BeginTx(ctx)
		if err != nil {
			return migrate.Result{}, err
		}
		defer tx.Rollback(ctx)
		if _, err := tx.CopyInto(ctx, "product_category_bridge",
			[]string{"product_key", "category_key"}, rows); err != nil {
			return migrate.Result{}, fmt.Errorf("load product_category_bridge: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return migrate.Result{}, err
		}
		return migrate.Result{Out: len(rows)}, nil
	}
}

// relatedLoad resolves both product keys of each relation, drops rows with
// an unresolved side, and inserts the relations not already present. A
// unique violation from a concurrent insert of the same relation is benign:
// the relation exists either way.
func relatedLoad(dst db.DB) migrate.LoadFunc {
	productKeys := migrate.Lookup{
		Table: "product", KeyCol: "product_source_key", SurrogateCol: "product_key",
	}
	return func(ctx context.Context, batch [][]any) (migrate.Result, error) {
		nat := make([]string, 0, len(batch)*2)
		for _, row := range batch {
			nat = append(nat, str(row[0]), str(row[1]))
		}
		keyMap, err := productKeys.Resolve(ctx, dst, nat)
		if err != nil {
			return migrate.Result{}, err
		}

		var combos [][2]int64
		var relations []string
		for _, row := range batch {
			pk, ok1 := keyMap[str(row[0])]
			sk, ok2 := keyMap[str(row[1])]
			if ok1 && ok2 {
				combos = append(combos, [2]int64{pk, sk})
				relations = append(relations, str(row[2]))
			}
		}

		existing, err := existingIntPairs(ctx, dst,
			"related_product", "primary_product_key", "secondary_product_key", combos)
		if err != nil {
			return migrate.Result{}, err
		}

		seen := make(map[[2]int64]struct{}, len(combos))
		var rows [][]any
		for i, c := range combos {
			if _, ok := existing[c]; ok {
				continue
			}
			if _, dup := seen[c]; dup {
				continue
			}
			seen[c] = struct{}{}
			rows = append(rows, []any{c[0], c[1], relations[i]})
		}
		if len(rows) == 0 {
			return migrate.Result{}, nil
		}

		tx, err := dst.BeginTx(ctx)
		if err != nil {
			return migrate.Result{}, err
		}
		defer tx.Rollback(ctx)
		if _, err := tx.CopyInto(ctx, "related_product",
			[]string{"primary_product_key", "secondary_product_key", "relation"}, rows); err != nil {
			if db.IsUniqueViolation(err) {
				log.Printf("related_product: lost insert race, relations already present")
				return migrate.Result{}, nil
			}
			return migrate.Result{}, fmt.Errorf("load related_product: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			if db.IsUniqueViolation(err) {
				log.Printf("related_product: lost insert race, relations already present")
				return migrate.Result{}, nil
			}
			return migrate.Result{}, err
		}
		return migrate.Result{Out: len(rows)}, nil
	}
}

// factLoad resolves the three dimension references of each review and
// inserts the rows whose references all resolved. Facts never carry natural
// keys; an unresolvable reference drops the row from this batch (it loads
// once the dimension catches up on a later run).
func factLoad(dst db.DB) migrate.LoadFunc {
	reviewerKeys := migrate.Lookup{
		Table: "reviewer", KeyCol: "reviewer_source_key", SurrogateCol: "reviewer_key",
	}
	productKeys := migrate.Lookup{
		Table: "product", KeyCol: "product_source_key", SurrogateCol: "product_key",
		CurrentOnly: true,
	}
	descriptorKeys := migrate.PairLookup{
		Table: "review_descriptors", Col1: "review_text", Col2: "review_title",
		SurrogateCol: "review_descriptors_key",
	}
	return func(ctx context.Context, batch [][]any) (migrate.Result, error) {
		reviewers := make([]string, len(batch))
		products := make([]string, len(batch))
		pairs := make([][2]string, len(batch))
		for i, row := range batch {
			reviewers[i] = str(row[1])
			products[i] = str(row[2])
			pairs[i] = [2]string{str(row[5]), str(row[6])}
		}

		reviewerMap, err := reviewerKeys.Resolve(ctx, dst, reviewers)
		if err != nil {
			return migrate.Result{}, err
		}
		productMap, err := productKeys.Resolve(ctx, dst, products)
		if err != nil {
			return migrate.Result{}, err
		}
		descriptorMap, err := descriptorKeys.Resolve(ctx, dst, pairs)
		if err != nil {
			return migrate.Result{}, err
		}

		var rows [][]any
		for i, row := range batch {
			rk, ok1 := reviewerMap[reviewers[i]]
			pk, ok2 := productMap[products[i]]
			dk, ok3 := descriptorMap[migrate.PairKey(pairs[i][0], pairs[i][1])]
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			rows = append(rows, []any{row[0], rk, pk, dk, row[3], row[4]})
		}
		if len(rows) == 0 {
			return migrate.Result{}, nil
		}

		tx, err := dst.BeginTx(ctx)
		if err != nil {
			return migrate.Result{}, err
		}
		defer tx.Rollback(ctx)
		if _, err := tx.CopyInto(ctx, "review_fact", factColumns, rows); err != nil {
			return migrate.Result{}, fmt.Errorf("load review_fact: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return migrate.Result{}, err
		}
		return migrate.Result{Out: len(rows)}, nil
	}
}

// existingIntPairs returns the subset of (a, b) surrogate-key pairs already
// present in table, in chunks small enough for driver parameter limits.
// Pairs are matched with OR'd equality predicates; row-value IN lists are
// not valid T-SQL.
func existingIntPairs(ctx context.Context, conn db.DB, table, col1, col2 string, pairs [][2]int64) (map[[2]int64]struct{}, error) {
	size := min(migrate.DefaultLookupChunk, conn.Dialect().MaxParams()/2)
	out := make(map[[2]int64]struct{}, len(pairs))
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		chunk := pairs[start:end]

		preds := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*2)
		for i, p := range chunk {
			preds[i] = fmt.Sprintf("(%s = %s AND %s = %s)",
				col1, conn.Placeholder(2*i+1), col2, conn.Placeholder(2*i+2))
			args = append(args, p[0], p[1])
		}
		q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s",
			col1, col2, table, strings.Join(preds, " OR "))

		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("check %s pairs: %w", table, err)
		}
		for rows.Next() {
			var a, b int64
			if err := rows.Scan(&a, &b); err != nil {
				rows.Close()
				return nil, err
			}
			out[[2]int64{a, b}] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
