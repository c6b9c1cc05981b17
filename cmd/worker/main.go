// The worker binary drains the task queue and enqueues the recurring
// maintenance work on a fixed cadence. It exists for split deployments;
// the api binary runs the same dispatch in-process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/archive"
	"github.com/mstetsenko/pouch/internal/config"
	infraBQ "github.com/mstetsenko/pouch/internal/infra/bigquery"
	"github.com/mstetsenko/pouch/internal/infra/postgres"
	"github.com/mstetsenko/pouch/internal/jobs"
	jobsmem "github.com/mstetsenko/pouch/internal/jobs/inmemory"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/liability"
	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/notionsync"
	"github.com/mstetsenko/pouch/internal/store"
	"github.com/mstetsenko/pouch/internal/worker"
	"github.com/rs/zerolog"
)

func main() {
	var (
		refreshEvery = flag.Duration("refresh-every", 6*time.Hour, "how often to refresh bill statuses")
		exportEvery  = flag.Duration("export-every", 24*time.Hour, "how often to export the analytics projection")
		archiveEvery = flag.Duration("archive-every", 24*time.Hour, "how often to archive a snapshot")
		syncEvery    = flag.Duration("sync-every", time.Hour, "how often to sync bills to Notion")
	)
	flag.Parse()

	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx := context.Background()

	// A standalone worker only makes sense against the shared store.
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required: a worker on an in-memory store cannot see the API's data")
	}
	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to postgres")
	}
	if err := postgres.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	st := postgres.NewStore(db)

	taskStore := jobsmem.NewStore()
	queue := jobsmem.NewQueue(jobsmem.QueueConfig{
		BufferSize: cfg.QueueBuffer,
		Workers:    cfg.QueueWorkers,
		RetryDelay: time.Duration(cfg.QueueRetryDelayMS) * time.Millisecond,
		MaxRetries: cfg.QueueMaxRetries,
	}, taskStore)

	led := ledger.New(st, log)
	orchestrator := ledger.NewOrchestrator(led, st, jobs.NewCompensationQueue(queue), ledger.OrchestratorConfig{
		ImmediateRetries: cfg.TransferRetries,
		RetryDelay:       time.Duration(cfg.TransferRetryDelayMS) * time.Millisecond,
	}, log)
	reconciler := liability.NewReconciler(st, led, liability.Config{
		ToleranceDays:      cfg.ToleranceDays,
		AmountTolerancePct: decimal.NewFromFloat(cfg.AmountTolerancePct),
		PartialRatio:       decimal.NewFromFloat(cfg.PartialRatio),
	}, log)

	var projection store.Projection
	if cfg.BigQueryProject != "" {
		p, err := infraBQ.NewProjection(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Error().Err(err).Msg("Analytics projection disabled")
		} else {
			defer p.Close()
			projection = p
		}
	}
	var archiver *archive.Archiver
	if cfg.SnapshotBucket != "" {
		archiver = archive.NewArchiver(st, cfg.SnapshotBucket, log)
	}
	var notionClient notionsync.NotionService
	if cfg.NotionToken != "" && cfg.NotionBillsDB != "" {
		notionClient = notionsync.NewNotionClient(cfg.NotionToken)
	}

	deps := worker.Deps{
		Store:         st,
		Orchestrator:  orchestrator,
		Reconciler:    reconciler,
		Projection:    projection,
		Archiver:      archiver,
		Notion:        notionClient,
		NotionBillsDB: cfg.NotionBillsDB,
		Log:           log,
	}
	queue.OnExhausted(worker.ExhaustedHook(deps))

	log.Info().Msg("Starting worker service")

	// Create context that cancels on interrupt
	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start consuming jobs
	if err := queue.Start(workerCtx, worker.Handler(deps)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	// Recurring maintenance. Kinds whose integration is missing are not
	// scheduled at all rather than dropped on every tick.
	schedule(workerCtx, queue, log, jobs.KindRefreshBills, *refreshEvery, true)
	if projection != nil {
		schedule(workerCtx, queue, log, jobs.KindExportProjection, *exportEvery, false)
	}
	if archiver != nil {
		schedule(workerCtx, queue, log, jobs.KindArchiveSnapshot, *archiveEvery, false)
	}
	if notionClient != nil {
		schedule(workerCtx, queue, log, jobs.KindSyncNotion, *syncEvery, false)
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop workers and schedulers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Close the queue
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}

// schedule publishes one task of the given kind every interval, plus an
// immediate one when runNow is set.
func schedule(ctx context.Context, queue jobs.Publisher, log zerolog.Logger, kind jobs.Kind, every time.Duration, runNow bool) {
	publish := func() {
		task, err := jobs.NewTask(kind, nil)
		if err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to build scheduled task")
			return
		}
		if err := queue.Publish(ctx, task); err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to publish scheduled task")
		}
	}

	if runNow {
		publish()
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				publish()
			}
		}
	}()
	log.Info().Str("kind", string(kind)).Dur("every", every).Msg("Scheduled maintenance task")
}
