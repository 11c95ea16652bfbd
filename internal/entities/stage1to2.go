// Package entities declares the per-entity migration configurations for the
// two inter-database stages. Each entity is a migrate.Spec: its paginated
// source query (always with an explicit ORDER BY, so offset pages stay
// stable), its load strategy, and its batch size. Control flow lives in
// internal/migrate; nothing here loops.
package entities

import (
	"context"
	"path/filepath"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/migrate"
)

// Batch sizes per entity class. Category and relation rows are narrow and
// high-volume; they move in much larger batches than the wide row entities.
const (
	rowBatchSize    = 10000
	narrowBatchSize = 100000
)

var s2ProductColumns = []string{
	"p_product_metadata_id", "p_product_source_key", "p_sales_rank_category",
	"p_sales_rank", "p_image_url", "p_title", "p_description", "p_price", "p_brand",
}

var s2ReviewColumns = []string{
	"r_reviewer_source_key", "r_product_key", "r_reviewer_name",
	"r_helpfulness_rating", "r_review_text", "r_review_score",
	"r_review_title", "r_review_datetime",
}

var s2CategoryColumns = []string{"pc_product_source_key", "pc_category"}

var s2RelatedColumns = []string{
	"rl_product_source_key", "rl_related_product_source_key", "rl_relation",
}

// placeholderProduct is the sentinel row inserted into s2_product for a
// product key referenced by a relation before the product itself has
// arrived.
func placeholderProduct(key string) []any {
	return []any{
		"*None", key, "*Unknown category", int64(-1), "*Unknown URL",
		"*Unknown title", "*Unknown description", -1.00, "*Unknown brand",
	}
}

// Stage1To2 builds the four pass-through migrations from the stage-1 views
// into the stage-2 tables. logDir receives one batch-error file per entity.
func Stage1To2(src, dst db.DB, processID int64, logDir string) []migrate.Spec {
	errLog := func(entity string) string {
		return filepath.Join(logDir, entity+"_error_logs.json")
	}

	relatedLoad := migrate.CopyLoad(dst, "s2_related_product", s2RelatedColumns)
	missingProducts := migrate.Placeholder{
		Table:   "s2_product",
		KeyCol:  "p_product_source_key",
		Columns: s2ProductColumns,
		RowFor:  placeholderProduct,
	}

	return []migrate.Spec{
		{
			Entity:    "s2_product",
			ProcessID: processID,
			BatchSize: rowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT p_product_metadata_id, p_product_source_key, p_sales_rank_category,
				       p_sales_rank, p_image_url, p_title, p_description, p_price, p_brand
				FROM v_s1_product
				ORDER BY p_product_source_key`, len(s2ProductColumns)),
			Load:         migrate.CopyLoad(dst, "s2_product", s2ProductColumns),
			ErrorLogPath: errLog("s2_product"),
		},
		{
			Entity:    "s2_review",
			ProcessID: processID,
			BatchSize: rowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT r_reviewer_source_key, r_product_key, r_reviewer_name,
				       r_helpfulness_rating, r_review_text, r_review_score,
				       r_review_title, r_review_datetime
				FROM v_s1_review
				ORDER BY r_reviewer_source_key, r_product_key, r_review_datetime`, len(s2ReviewColumns)),
			Load:         migrate.CopyLoad(dst, "s2_review", s2ReviewColumns),
			ErrorLogPath: errLog("s2_review"),
		},
		{
			// Relations can reference products whose own rows arrive later;
			// the placeholder pre-pass keeps the foreign key satisfiable.
			Entity:    "s2_related_product",
			ProcessID: processID,
			BatchSize: narrowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT rl_product_source_key, rl_related_product_source_key, rl_relation
				FROM v_s1_related_product
				ORDER BY rl_product_source_key, rl_related_product_source_key, rl_relation`, len(s2RelatedColumns)),
			Load: func(ctx context.Context, batch [][]any) (migrate.Result, error) {
				keys := make([]string, 0, len(batch))
				for _, row := range batch {
					if k, ok := row[1].(string); ok {
						keys = append(keys, k)
					}
				}
				inserted, err := missingProducts.Ensure(ctx, dst, keys)
				if err != nil {
					return migrate.Result{}, err
				}
				res, err := relatedLoad(ctx, batch)
				res.New += inserted
				return res, err
			},
			ErrorLogPath: errLog("s2_related_product"),
		},
		{
			Entity:    "s2_product_category",
			ProcessID: processID,
			BatchSize: narrowBatchSize,
			Fetch: migrate.FetchSQL(src, `
				SELECT pc_product_source_key, pc_category
				FROM v_s1_product_category
				ORDER BY pc_product_source_key, pc_category`, len(s2CategoryColumns)),
			Load:         migrate.CopyLoad(dst, "s2_product_category", s2CategoryColumns),
			ErrorLogPath: errLog("s2_product_category"),
		},
	}
}
