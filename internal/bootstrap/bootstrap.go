// Package bootstrap builds the receipt processing stack from configuration.
// Every command that touches the store goes through it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/gcsuploader"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/metrics"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/dvloznov/expense-tracker/internal/vision"
)

// App holds the long-lived collaborators of a running command.
type App struct {
	Repo      domain.Repository
	Processor *pipeline.Processor
	Metrics   *metrics.Metrics

	archive *gcsuploader.ReceiptArchive
}

// New validates cfg and connects the store, the vision providers and, when a
// bucket is configured, the receipt archive.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap.New: invalid configuration: %w", err)
	}
	log := logger.FromContext(ctx)

	repo, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap.New: %w", err)
	}

	router, err := NewVisionRouter(ctx, cfg)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("bootstrap.New: %w", err)
	}

	app := &App{Repo: repo, Metrics: metrics.New()}
	app.Processor = pipeline.NewProcessor(repo, &pipeline.Sequencer{
		Extractor: router,
		Models:    cfg.ModelList(),
		Timeout:   cfg.AttemptTimeout,
	}, NewReconciler(cfg), app.Metrics)

	if cfg.GCSBucket != "" {
		archive, err := gcsuploader.NewReceiptArchive(ctx, cfg.GCSBucket)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("bootstrap.New: %w", err)
		}
		app.archive = archive
		app.Processor.Archive = archive
	} else {
		log.Warn().Msg("No GCS bucket configured, receipt images will not be archived")
	}

	log.Info().
		Str("store", cfg.Store).
		Strs("models", cfg.ModelList()).
		Bool("archive", app.archive != nil).
		Msg("Receipt pipeline ready")
	return app, nil
}

// Close releases the archive client and the store.
func (a *App) Close() error {
	var errs []error
	if a.archive != nil {
		errs = append(errs, a.archive.Close())
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	return errors.Join(errs...)
}

// OpenRepository connects the configured store backend.
func OpenRepository(ctx context.Context, cfg *config.Config) (domain.Repository, error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return postgres.NewStore(pool), nil
	case config.StoreBigQuery:
		store, err := infraBQ.NewStore(ctx, cfg.BigQueryProject, cfg.BigQueryDataset)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("OpenRepository: unknown store backend %q", cfg.Store)
}

// NewVisionRouter registers a provider for every vendor with an API key.
// Vendors without a key stay known but unconfigured, so their models fail
// fast and the sequencer moves on.
func NewVisionRouter(ctx context.Context, cfg *config.Config) (*vision.Router, error) {
	router := vision.NewRouter()
	router.Register(vision.ProviderGemini, nil)
	router.Register(vision.ProviderOpenAI, nil)
	router.Register(vision.ProviderAnthropic, nil)

	if cfg.GeminiAPIKey != "" {
		gemini, err := vision.NewGeminiProvider(ctx, cfg.GeminiAPIKey, "")
		if err != nil {
			return nil, fmt.Errorf("NewVisionRouter: %w", err)
		}
		router.Register(vision.ProviderGemini, gemini)
	}
	if cfg.OpenAIAPIKey != "" {
		router.Register(vision.ProviderOpenAI, vision.NewOpenAIProvider(cfg.OpenAIAPIKey, ""))
	}
	if cfg.AnthropicAPIKey != "" {
		router.Register(vision.ProviderAnthropic, vision.NewAnthropicProvider(cfg.AnthropicAPIKey, ""))
	}
	return router, nil
}

// NewReconciler applies the configured tolerance, placeholder and confidence.
func NewReconciler(cfg *config.Config) *pipeline.Reconciler {
	rec := pipeline.NewReconciler()
	rec.Tolerance = cfg.MismatchTolerance
	rec.PlaceholderTotal = cfg.PlaceholderTotal
	rec.Confidence = cfg.ExtractionConfidence
	return rec
}
