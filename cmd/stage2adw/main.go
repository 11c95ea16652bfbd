// Command stage2adw migrates stage 2 into the warehouse star schema: the
// versioned product dimension, the overwrite reviewer dimension, category and
// review-descriptor dimensions, and the bridge, relation and fact tables.
// On success it completes the import batch opened by the ingest stage.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Roestenburg-J/amazon-reviews-dw/internal/config"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/db"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/entities"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/lineage"
	"github.com/Roestenburg-J/amazon-reviews-dw/internal/migrate"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stage2, adw db.DB
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stage2, err = db.Connect(gctx, cfg.DBDriver, cfg.Stage2DSN, cfg.ConnRetries, cfg.ConnRetryDelay)
		return err
	})
	g.Go(func() (err error) {
		adw, err = db.Connect(gctx, cfg.DBDriver, cfg.ADWDSN, cfg.ConnRetries, cfg.ConnRetryDelay)
		return err
	})
	if err := g.Wait(); err != nil {
		fatalf("connect: %v", err)
	}
	defer stage2.Close(context.Background())
	defer adw.Close(context.Background())

	meta := lineage.NewRecorder(adw)

	batchID, err := meta.LatestRunningBatch(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	if batchID == 0 {
		fatalf("no running import batch; run the ingest stage first")
	}
	processID, err := meta.StartProcess(ctx, batchID, "Stage_2_to_ADW")
	if err != nil {
		fatalf("%v", err)
	}

	var runErr error
	for _, spec := range entities.Stage2ADW(stage2, adw, processID, cfg.LogDir) {
		if _, err := migrate.Run(ctx, meta, spec); err != nil {
			runErr = err
			break
		}
	}

	status := lineage.StatusCompleted
	if runErr != nil {
		status = lineage.StatusFailed
		if errors.Is(runErr, context.Canceled) || ctx.Err() != nil {
			status = lineage.StatusAborted
		}
	}
	if err := meta.FinishProcess(context.Background(), processID, status); err != nil {
		log.Printf("finish process: %v", err)
	}
	// The warehouse load is the last stage; a completed run closes the batch
	// the ingest stage opened.
	if status == lineage.StatusCompleted {
		if err := meta.FinishBatch(context.Background(), batchID, lineage.StatusCompleted); err != nil {
			log.Printf("finish batch: %v", err)
		}
	}

	log.Printf("stage 2 to warehouse %s", status)
	if runErr != nil {
		fatalf("%v", runErr)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
