package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isony10/EntryChecker/internal/api/handlers"
	"github.com/isony10/EntryChecker/internal/api/middleware"
	"github.com/isony10/EntryChecker/internal/audit"
	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/config"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/holiday"
	"github.com/isony10/EntryChecker/internal/jobs"
	"github.com/isony10/EntryChecker/internal/jobs/inmemory"
	"github.com/isony10/EntryChecker/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{Pretty: true})
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	var (
		port     = flag.String("port", cfg.Port, "HTTP server port (or set PORT env)")
		useGCS   = flag.Bool("gcs", cfg.GCSBucket != "", "Accept gcs_uri inputs (needs Application Default Credentials)")
		queueLen = flag.Int("queue", 100, "Maximum number of queued review jobs")
	)
	flag.Parse()

	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	ctx := context.Background()

	gen, err := coach.NewGenerator(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI generator")
	}
	if _, ok := gen.(coach.Unconfigured); ok {
		log.Warn().Str("provider", cfg.AIProvider).Msg("No AI credentials - coach endpoints will answer 503")
	}

	reviewer := coach.NewReviewer(gen, log, coach.ReviewerConfig{
		BatchSize:   cfg.CoachBatchSize,
		Concurrency: cfg.CoachConcurrency,
		RatePerSec:  cfg.CoachRatePerSec,
	})

	maxBytes := cfg.MaxUploadMB << 20

	var storage gcs.Store
	if *useGCS {
		client, err := gcs.NewClient(ctx, maxBytes)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer client.Close()
		storage = client
	} else {
		log.Warn().Msg("GCS input disabled - gcs_uri requests will answer 503")
	}

	// Background voucher reviews
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(*queueLen, cfg.CoachConcurrency, jobStore, log)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, func(ctx context.Context, job *jobs.ReviewJob) ([]coach.Finding, error) {
		return reviewer.ReviewUnbalanced(ctx, job.Ledger)
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job worker")
	}

	mux := handlers.NewRouter(handlers.Deps{
		Analyzer:  audit.NewAnalyzer(holiday.NewKorea(cfg.HolidayExtra...), log, audit.WithColumns(cfg.Columns)),
		Coach:     coach.New(gen, log),
		Reviewer:  reviewer,
		Storage:   storage,
		Publisher: jobQueue,
		JobStore:  jobStore,
		Columns:   cfg.Columns,
		Log:       log,
	})

	handler := middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID(log),
		middleware.Logger(log),
		middleware.CORS,
		middleware.MaxBytes(maxBytes),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // synchronous voucher review runs many AI batches
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("port", *port).
			Str("ai_provider", cfg.AIProvider).
			Str("ai_model", cfg.AIModel).
			Bool("gcs", storage != nil).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let running reviews finish, then stop the workers.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
