package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dvloznov/expense-tracker/internal/api"
	"github.com/dvloznov/expense-tracker/internal/bootstrap"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/expense-tracker/internal/logger"
)

const appName = "expense-tracker-api"

var cli struct {
	config.Config
	config.Server
}

func main() {
	kong.Parse(&cli,
		kong.Name(appName),
		kong.Description("HTTP API that turns receipt photos into stored expenses."),
	)

	log := logger.NewWithLevel(cli.LogLevel, cli.LogFormat)
	if err := cli.Server.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid server configuration")
	}

	ctx := logger.WithContext(context.Background(), log)

	app, err := bootstrap.New(ctx, &cli.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer app.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cli.QueueSize, cli.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.NewReceiptHandler(app.Processor)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cli.Workers).Int("queue_size", cli.QueueSize).Msg("Job workers started")

	handler := api.NewRouter(api.Deps{
		Processor:    app.Processor,
		Expenses:     app.Repo,
		Publisher:    jobQueue,
		JobStore:     jobStore,
		Metrics:      app.Metrics,
		Log:          log,
		MaxBodyBytes: cli.MaxBodyMiB << 20,
		RateLimit:    cli.RateLimit,
		RateBurst:    cli.RateBurst,
		TrustProxy:   cli.TrustProxy,
	})

	// Extraction walks several models in turn, so writes get a generous timeout.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cli.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      time.Duration(len(cli.ModelList())+1) * cli.AttemptTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cli.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.Shutdown)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight jobs finish before the store goes away.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
