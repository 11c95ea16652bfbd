// Command stage1to2 moves the staged raw entities from the stage-1 database
// into stage 2, attaching its process to the latest running import batch.
// Relations get a placeholder pre-pass so late-arriving products cannot
// break referential integrity.
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

	var stage1, stage2, adw db.DB
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stage1, err = db.Connect(gctx, cfg.DBDriver, cfg.Stage1DSN, cfg.ConnRetries, cfg.ConnRetryDelay)
		return err
	})
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
	defer stage1.Close(context.Background())
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
	processID, err := meta.StartProcess(ctx, batchID, "Stage_1_to_Stage_2")
	if err != nil {
		fatalf("%v", err)
	}

	var runErr error
	for _, spec := range entities.Stage1To2(stage1, stage2, processID, cfg.LogDir) {
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

	log.Printf("stage 1 to 2 %s", status)
	if runErr != nil {
		fatalf("%v", runErr)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
