// Command ingest is stage 0 of the pipeline: it reads the review and product
// metadata CSV exports, transforms them row by row, and loads the validated
// rows into the stage-1 staging tables. It opens the import batch that the
// later stages attach their processes to.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/config"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/ingest"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/lineage"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stage1, adw db.DB
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stage1, err = db.Connect(gctx, cfg.DBDriver, cfg.Stage1DSN, cfg.ConnRetries, cfg.ConnRetryDelay)
		return err
	})
	g.Go(func() (err error) {
		adw, err = db.Connect(gctx, cfg.DBDriver, cfg.ADWDSN, cfg.ConnRetries, cfg.ConnRetryDelay)
		return err
	})
	if err := g.Wait(); err != nil {
		fatalf("connect: %v", err)
	}
	defer stage1.Close(context.Background())
	defer adw.Close(context.Background())

	meta := lineage.NewRecorder(adw)

	now := time.Now()
	batchID, err := meta.StartBatch(ctx, "ETL run", now.Year(), int(now.Month()))
	if err != nil {
		fatalf("%v", err)
	}
	processID, err := meta.StartProcess(ctx, batchID, "Ingest")
	if err != nil {
		fatalf("%v", err)
	}

	runner := &ingest.Runner{Conn: stage1, Meta: meta, LogDir: cfg.LogDir, BatchSize: cfg.BatchSize}

	runErr := withFile(cfg.ReviewsCSV, func(f io.Reader) error {
		return runner.Reviews(ctx, f, processID)
	})
	if runErr == nil {
		runErr = withFile(cfg.ProductsCSV, func(f io.Reader) error {
			return runner.Products(ctx, f, processID)
		})
	}

	status := lineage.StatusCompleted
	if runErr != nil {
		status = lineage.StatusFailed
		if ctx.Err() != nil {
			status = lineage.StatusAborted
		}
	}
	if err := meta.FinishProcess(context.Background(), processID, status); err != nil {
		log.Printf("finish process: %v", err)
	}

	log.Printf("ingest %s", status)
	if runErr != nil {
		fatalf("%v", runErr)
	}
}

func withFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return fn(f)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
