package ingest

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/faillog"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/lineage"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/migrate"
)

// Runner loads the raw CSV exports into the stage-1 tables on Conn, keeping
// the lineage ledger via Meta and writing rejected rows under LogDir.
type Runner struct {
	Conn      db.DB
	Meta      migrate.TaskRecorder
	LogDir    string
	BatchSize int
}

// task tracks one stage-1 table's ledger entry across the whole run. The
// product file fills three tables from one cursor, so the tasks share a
// lifecycle but count independently.
type task struct {
	id int64
	c  lineage.Counters
}

func (r *Runner) startTask(ctx context.Context, processID int64, entity string) (*task, error) {
	id, err := r.Meta.StartTask(ctx, processID, entity)
	if err != nil {
		return nil, fmt.Errorf("start task %s: %w", entity, err)
	}
	return &task{id: id}, nil
}

// load bulk-inserts one table's share of a chunk in its own transaction and
// settles the task counters. A load error rejects the whole slice for this
// table only: the chunk's other tables keep their rows.
func (r *Runner) load(ctx context.Context, t *task, table string, columns []string, rows [][]any, offset int) {
	if len(rows) == 0 {
		return
	}
	err := func() error {
		tx, err := r.Conn.BeginTx(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)
		if _, err := tx.CopyInto(ctx, table, columns, rows); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		log.Printf("%s: batch at offset %d failed: %v", table, offset, err)
		t.c.Failed += len(rows)
		logPath := filepath.Join(r.LogDir, table+"_batch_errors.json")
		if logErr := faillog.Append(logPath, []faillog.BatchError{
			{Error: err.Error(), Offset: offset, Entity: table},
		}); logErr != nil {
			log.Printf("%s: error log write failed: %v", table, logErr)
		}
		return
	}
	t.c.Out += len(rows)
}

func (r *Runner) logFailed(file string, taskID int64, rows []faillog.FailedRow) {
	for i := range rows {
		rows[i].TaskID = taskID
	}
	if err := faillog.Append(filepath.Join(r.LogDir, file), rows); err != nil {
		log.Printf("%s: failed row log write failed: %v", file, err)
	}
}

// Products ingests the product metadata CSV. Each source row can yield one
// product row, several category rows, and several related-product rows;
// each of the three tables gets its own lineage task and failure log.
func (r *Runner) Products(ctx context.Context, src io.Reader, processID int64) error {
	reader, err := NewChunkReader(src, r.BatchSize)
	if err != nil {
		return err
	}

	products, err := r.startTask(ctx, processID, "s1_product")
	if err != nil {
		return err
	}
	categories, err := r.startTask(ctx, processID, "s1_product_category")
	if err != nil {
		return err
	}
	related, err := r.startTask(ctx, processID, "s1_related_product")
	if err != nil {
		return err
	}

	log.Printf("s1_product: ingest starting")

	status := lineage.StatusCompleted
	var runErr error
	offset := 0

	for {
		if ctx.Err() != nil {
			status, runErr = lineage.StatusAborted, ctx.Err()
			break
		}

		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			status, runErr = lineage.StatusFailed, fmt.Errorf("s1_product: read at offset %d: %w", offset, err)
			break
		}

		var (
			productRows  [][]any
			categoryRows [][]any
			relatedRows  [][]any
			productFails []faillog.FailedRow
			categoryFail []faillog.FailedRow
			relatedFails []faillog.FailedRow
		)

		for _, row := range chunk {
			out := BuildProduct(row)
			if out.Product != nil {
				productRows = append(productRows, out.Product.values())
			}
			if out.ProductErr != nil {
				productFails = append(productFails, faillog.FailedRow{Row: row, Error: out.ProductErr.Error()})
			}
			for _, c := range out.Categories {
				categoryRows = append(categoryRows, c.values())
			}
			for _, err := range out.CategoryErrs {
				categoryFail = append(categoryFail, faillog.FailedRow{Row: row, Error: err.Error()})
			}
			for _, rel := range out.Related {
				relatedRows = append(relatedRows, rel.values())
			}
			for _, err := range out.RelatedErrs {
				relatedFails = append(relatedFails, faillog.FailedRow{Row: row, Error: err.Error()})
			}
		}

		products.c.In += len(chunk)
		products.c.Failed += len(productFails)
		categories.c.In += len(categoryRows) + len(categoryFail)
		categories.c.Failed += len(categoryFail)
		related.c.In += len(relatedRows) + len(relatedFails)
		related.c.Failed += len(relatedFails)

		r.logFailed("products_failed.json", products.id, productFails)
		r.logFailed("product_categories_failed.json", categories.id, categoryFail)
		r.logFailed("related_products_failed.json", related.id, relatedFails)

		r.load(ctx, products, "s1_product", productColumns, productRows, offset)
		r.load(ctx, categories, "s1_product_category", categoryColumns, categoryRows, offset)
		r.load(ctx, related, "s1_related_product", relatedColumns, relatedRows, offset)

		offset += len(chunk)
	}

	for _, t := range []*task{products, categories, related} {
		if err := r.Meta.FinishTask(ctx, t.id, status, t.c); err != nil {
			log.Printf("s1_product: finish task: %v", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	log.Printf("s1_product: ingest %s (in=%d out=%d failed=%d)",
		status, products.c.In, products.c.Out, products.c.Failed)
	return runErr
}

// Reviews ingests the review CSV into s1_review.
func (r *Runner) Reviews(ctx context.Context, src io.Reader, processID int64) error {
	reader, err := NewChunkReader(src, r.BatchSize)
	if err != nil {
		return err
	}

	reviews, err := r.startTask(ctx, processID, "s1_review")
	if err != nil {
		return err
	}

	log.Printf("s1_review: ingest starting")

	status := lineage.StatusCompleted
	var runErr error
	offset := 0

	for {
		if ctx.Err() != nil {
			status, runErr = lineage.StatusAborted, ctx.Err()
			break
		}

		chunk, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			status, runErr = lineage.StatusFailed, fmt.Errorf("s1_review: read at offset %d: %w", offset, err)
			break
		}

		var (
			rows  [][]any
			fails []faillog.FailedRow
		)
		for _, row := range chunk {
			rec, err := BuildReview(row)
			if err != nil {
				fails = append(fails, faillog.FailedRow{Row: row, Error: err.Error()})
				continue
			}
			rows = append(rows, rec.values())
		}

		reviews.c.In += len(chunk)
		reviews.c.Failed += len(fails)

		r.logFailed("reviews_failed.json", reviews.id, fails)
		r.load(ctx, reviews, "s1_review", reviewColumns, rows, offset)

		offset += len(chunk)
	}

	if err := r.Meta.FinishTask(ctx, reviews.id, status, reviews.c); err != nil {
		log.Printf("s1_review: finish task: %v", err)
		if runErr == nil {
			runErr = err
		}
	}

	log.Printf("s1_review: ingest %s (in=%d out=%d failed=%d)",
		status, reviews.c.In, reviews.c.Out, reviews.c.Failed)
	return runErr
}
