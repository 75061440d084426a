// Package config holds the runtime settings shared by every command. Values come
// from flags, environment variables and defaults, resolved by kong.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	StorePostgres = "postgres"
	StoreBigQuery = "bigquery"
)

// DefaultModels is the extraction model priority list used when EXTRACTION_MODELS is unset.
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
	"gemini-pro-vision",
}

// Config is embedded into each command's kong CLI struct.
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" help:"${env} - Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `env:"LOG_FORMAT" help:"${env} - Log output format" enum:"console,json" default:"console"`

	Store           string `env:"STORE_BACKEND" help:"${env} - Expense store backend" enum:"postgres,bigquery" default:"postgres"`
	DatabaseURL     string `env:"DATABASE_URL" help:"${env} - Postgres connection string (postgres backend)"`
	BigQueryProject string `env:"BIGQUERY_PROJECT" help:"${env} - GCP project ID (bigquery backend)"`
	BigQueryDataset string `env:"BIGQUERY_DATASET" help:"${env} - BigQuery dataset" default:"finance"`
	GCSBucket       string `env:"GCS_BUCKET" help:"${env} - Bucket for archived receipt images. Archival is disabled when empty"`

	GeminiAPIKey    string `env:"GEMINI_API_KEY" help:"${env} - API key for Gemini models"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY" help:"${env} - API key for OpenAI models"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY" help:"${env} - API key for Claude models"`

	Models         []string      `env:"EXTRACTION_MODELS" help:"${env} - Extraction models in priority order" sep:"," default:"gemini-2.5-flash,gemini-1.5-flash,gemini-1.5-pro,gemini-pro,gemini-pro-vision"`
	AttemptTimeout time.Duration `env:"MODEL_ATTEMPT_TIMEOUT" help:"${env} - Timeout for a single model attempt" default:"45s"`

	MismatchTolerance    float64 `env:"TOTAL_MISMATCH_TOLERANCE" help:"${env} - Allowed gap between stated total and item sum" default:"5"`
	PlaceholderTotal     float64 `env:"PLACEHOLDER_TOTAL" help:"${env} - Amount used when no trustworthy total exists" default:"10.00"`
	ExtractionConfidence float64 `env:"EXTRACTION_CONFIDENCE" help:"${env} - Confidence recorded for successful extractions" default:"0.85"`
}

// Server holds settings used only by cmd/api.
type Server struct {
	Port       int           `env:"PORT" help:"${env} - HTTP listen port" default:"8080"`
	RateLimit  float64       `env:"UPLOAD_RATE_LIMIT" help:"${env} - Receipt uploads per second per client" default:"1"`
	RateBurst  int           `env:"UPLOAD_RATE_BURST" help:"${env} - Upload burst size per client" default:"5"`
	TrustProxy bool          `env:"TRUST_PROXY" help:"${env} - Read client addresses from X-Forwarded-For (only behind a trusted proxy)" default:"false"`
	QueueSize  int           `env:"JOB_QUEUE_SIZE" help:"${env} - Capacity of the async job queue" default:"100"`
	Workers    int           `env:"JOB_WORKERS" help:"${env} - Number of async job workers" default:"2"`
	MaxBodyMiB int64         `env:"MAX_BODY_MIB" help:"${env} - Maximum request body size in MiB" default:"20"`
	Shutdown   time.Duration `env:"SHUTDOWN_TIMEOUT" help:"${env} - Graceful shutdown timeout" default:"15s"`
}

// Validate checks the server settings.
func (s *Server) Validate() error {
	var errs []error
	if s.Port <= 0 || s.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", s.Port))
	}
	if s.RateLimit <= 0 || s.RateBurst <= 0 {
		errs = append(errs, errors.New("UPLOAD_RATE_LIMIT and UPLOAD_RATE_BURST must be positive"))
	}
	if s.QueueSize <= 0 || s.Workers <= 0 {
		errs = append(errs, errors.New("JOB_QUEUE_SIZE and JOB_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

// Validate checks the combinations kong cannot express with tags alone.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreBigQuery:
		if c.BigQueryProject == "" {
			errs = append(errs, errors.New("BIGQUERY_PROJECT is required for the bigquery store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store))
	}

	if len(c.ModelList()) == 0 {
		errs = append(errs, errors.New("EXTRACTION_MODELS must name at least one model"))
	}
	if c.AttemptTimeout <= 0 {
		errs = append(errs, errors.New("MODEL_ATTEMPT_TIMEOUT must be positive"))
	}
	if c.MismatchTolerance < 0 {
		errs = append(errs, errors.New("TOTAL_MISMATCH_TOLERANCE must not be negative"))
	}
	if c.PlaceholderTotal <= 0 {
		errs = append(errs, errors.New("PLACEHOLDER_TOTAL must be positive"))
	}
	if c.ExtractionConfidence < 0 || c.ExtractionConfidence > 1 {
		errs = append(errs, errors.New("EXTRACTION_CONFIDENCE must be between 0 and 1"))
	}

	return errors.Join(errs...)
}

// ModelList returns the configured models with blanks removed, preserving order.
func (c *Config) ModelList() []string {
	models := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	return models
}
