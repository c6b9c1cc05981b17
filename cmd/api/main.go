package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mstetsenko/pouch/internal/api/handlers"
	"github.com/mstetsenko/pouch/internal/api/middleware"
	"github.com/mstetsenko/pouch/internal/archive"
	"github.com/mstetsenko/pouch/internal/config"
	"github.com/mstetsenko/pouch/internal/goals"
	infraBQ "github.com/mstetsenko/pouch/internal/infra/bigquery"
	"github.com/mstetsenko/pouch/internal/infra/postgres"
	"github.com/mstetsenko/pouch/internal/insights"
	"github.com/mstetsenko/pouch/internal/jobs"
	jobsmem "github.com/mstetsenko/pouch/internal/jobs/inmemory"
	"github.com/mstetsenko/pouch/internal/ledger"
	"github.com/mstetsenko/pouch/internal/liability"
	"github.com/mstetsenko/pouch/internal/logger"
	"github.com/mstetsenko/pouch/internal/notionsync"
	"github.com/mstetsenko/pouch/internal/store"
	"github.com/mstetsenko/pouch/internal/store/inmemory"
	"github.com/mstetsenko/pouch/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx := context.Background()

	// Primary store: postgres when configured, in-memory otherwise.
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to postgres")
		}
		if err := postgres.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		st = postgres.NewStore(db)
		log.Info().Msg("Using postgres store")
	} else {
		st = inmemory.New()
		log.Warn().Msg("DATABASE_URL not set - using in-memory store, data will not survive a restart")
	}

	// Job infrastructure.
	taskStore := jobsmem.NewStore()
	queue := jobsmem.NewQueue(jobsmem.QueueConfig{
		BufferSize: cfg.QueueBuffer,
		Workers:    cfg.QueueWorkers,
		RetryDelay: time.Duration(cfg.QueueRetryDelayMS) * time.Millisecond,
		MaxRetries: cfg.QueueMaxRetries,
	}, taskStore)

	// Core services.
	led := ledger.New(st, log)
	orchestrator := ledger.NewOrchestrator(led, st, jobs.NewCompensationQueue(queue), ledger.OrchestratorConfig{
		ImmediateRetries: cfg.TransferRetries,
		RetryDelay:       time.Duration(cfg.TransferRetryDelayMS) * time.Millisecond,
	}, log)
	goalService := goals.NewService(st, orchestrator, log)
	reconciler := liability.NewReconciler(st, led, liability.Config{
		ToleranceDays:      cfg.ToleranceDays,
		AmountTolerancePct: decimal.NewFromFloat(cfg.AmountTolerancePct),
		PartialRatio:       decimal.NewFromFloat(cfg.PartialRatio),
	}, log)

	// Optional integrations.
	var projection store.Projection
	if cfg.BigQueryProject != "" {
		p, err := infraBQ.NewProjection(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			log.Error().Err(err).Msg("BigQuery projection disabled")
		} else {
			defer p.Close()
			projection = p
		}
	}

	var insightService *insights.Service
	if cfg.GeminiAPIKey != "" {
		if projection == nil {
			log.Warn().Msg("GEMINI_API_KEY set but BigQuery is not configured - insights disabled")
		} else {
			insightService = insights.NewService(projection, cfg.GeminiAPIKey, cfg.GeminiModel, log)
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

	// In-process worker so a single binary serves and processes.
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

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	if err := queue.Start(workerCtx, worker.Handler(deps)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}
	log.Info().Msg("Job worker started")

	// Handlers.
	accountsHandler := handlers.NewAccountsHandler(st, led, log)
	transfersHandler := handlers.NewTransfersHandler(orchestrator, log)
	goalsHandler := handlers.NewGoalsHandler(st, goalService, log)
	liabilitiesHandler := handlers.NewLiabilitiesHandler(st, reconciler, log)
	billsHandler := handlers.NewBillsHandler(st, reconciler, log)
	transactionsHandler := handlers.NewTransactionsHandler(st, log)
	alertsHandler := handlers.NewAlertsHandler(st, log)
	jobsHandler := handlers.NewJobsHandler(taskStore, queue, log)
	insightsHandler := handlers.NewInsightsHandler(insightService, st, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/accounts", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			accountsHandler.List(w, r)
		case http.MethodPost:
			accountsHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/accounts/", func(w http.ResponseWriter, r *http.Request) {
		id, action := splitResource(r.URL.Path, "/api/accounts/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Account ID is required")
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			accountsHandler.Get(w, r, id)
		case action == "buckets" && r.Method == http.MethodGet:
			accountsHandler.Buckets(w, r, id)
		case action == "spend" && r.Method == http.MethodPost:
			accountsHandler.Spend(w, r, id)
		case action == "receive" && r.Method == http.MethodPost:
			accountsHandler.Receive(w, r, id)
		case action == "freeze" && r.Method == http.MethodPost:
			accountsHandler.Freeze(w, r, id)
		case action == "unfreeze" && r.Method == http.MethodPost:
			accountsHandler.Unfreeze(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transfers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			transfersHandler.Create(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/goals", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			goalsHandler.List(w, r)
		case http.MethodPost:
			goalsHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/goals/", func(w http.ResponseWriter, r *http.Request) {
		id, action := splitResource(r.URL.Path, "/api/goals/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Goal ID is required")
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			goalsHandler.Get(w, r, id)
		case action == "contribute" && r.Method == http.MethodPost:
			goalsHandler.Contribute(w, r, id)
		case action == "withdraw" && r.Method == http.MethodPost:
			goalsHandler.Withdraw(w, r, id)
		case action == "complete" && r.Method == http.MethodPost:
			goalsHandler.Complete(w, r, id)
		case action == "contributions" && r.Method == http.MethodGet:
			goalsHandler.Contributions(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/liabilities", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			liabilitiesHandler.List(w, r)
		case http.MethodPost:
			liabilitiesHandler.Create(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/liabilities/", func(w http.ResponseWriter, r *http.Request) {
		id, action := splitResource(r.URL.Path, "/api/liabilities/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Liability ID is required")
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			liabilitiesHandler.Get(w, r, id)
		case action == "pay" && r.Method == http.MethodPost:
			liabilitiesHandler.Pay(w, r, id)
		case action == "payments" && r.Method == http.MethodGet:
			liabilitiesHandler.Payments(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/bills", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			billsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/bills/", func(w http.ResponseWriter, r *http.Request) {
		id, action := splitResource(r.URL.Path, "/api/bills/")
		if id == "refresh" && action == "" && r.Method == http.MethodPost {
			billsHandler.Refresh(w, r)
			return
		}
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Bill ID is required")
			return
		}
		switch {
		case action == "" && r.Method == http.MethodGet:
			billsHandler.Get(w, r, id)
		case action == "postpone" && r.Method == http.MethodPost:
			billsHandler.Postpone(w, r, id)
		case action == "due-date" && r.Method == http.MethodPut:
			billsHandler.EditDueDate(w, r, id)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			transactionsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/alerts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			alertsHandler.List(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/alerts/", func(w http.ResponseWriter, r *http.Request) {
		id, action := splitResource(r.URL.Path, "/api/alerts/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Alert ID is required")
			return
		}
		if action == "resolve" && r.Method == http.MethodPost {
			alertsHandler.Resolve(w, r, id)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			jobsHandler.List(w, r)
		case http.MethodPost:
			jobsHandler.Enqueue(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		id, _ := splitResource(r.URL.Path, "/api/jobs/")
		if id == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Task ID is required")
			return
		}
		if r.Method == http.MethodGet {
			jobsHandler.Get(w, r, id)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/monthly", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			insightsHandler.Monthly(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/insights/category", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			insightsHandler.SuggestCategory(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(cfg.AllowOrigins)(
					middleware.Auth(cfg.AuthBearer)(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Insights and analytics handlers wait on external APIs, so the
		// write timeout follows the request budget.
		WriteTimeout: time.Duration(cfg.ReqTimeoutSec) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	if err := queue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}

// splitResource extracts the resource id and trailing action from a
// path like /api/goals/{id}/contribute.
func splitResource(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	id, action, _ = strings.Cut(rest, "/")
	return id, action
}
