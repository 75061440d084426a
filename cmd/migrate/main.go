package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dvloznov/expense-tracker/internal/config"
	infraBQ "github.com/dvloznov/expense-tracker/internal/infra/bigquery"
	"github.com/dvloznov/expense-tracker/internal/infra/postgres"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/migrations"
	"github.com/rs/zerolog"
)

var cli struct {
	LogLevel  string `env:"LOG_LEVEL" help:"${env} - Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `env:"LOG_FORMAT" help:"${env} - Log output format" enum:"console,json" default:"console"`

	Store           string `env:"STORE_BACKEND" help:"${env} - Expense store backend" enum:"postgres,bigquery" default:"postgres"`
	DatabaseURL     string `env:"DATABASE_URL" help:"${env} - Postgres connection string (postgres backend)"`
	BigQueryProject string `env:"BIGQUERY_PROJECT" help:"${env} - GCP project ID (bigquery backend)"`
	BigQueryDataset string `env:"BIGQUERY_DATASET" help:"${env} - BigQuery dataset" default:"finance"`

	AppliedBy string `help:"Name recorded in schema_migrations.applied_by." default:"migrate-cli"`
	List      bool   `help:"Print the embedded migrations and exit."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("migrate"),
		kong.Description("Apply embedded schema migrations to the expense store."),
	)

	log := logger.NewWithLevel(cli.LogLevel, cli.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, log); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, log zerolog.Logger) error {
	switch cli.Store {
	case config.StorePostgres:
		migs, err := migrations.Load(migrations.Postgres, nil)
		if err != nil {
			return err
		}
		if cli.List {
			describe(os.Stdout, migs)
			return nil
		}
		if cli.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}

		pool, err := postgres.Connect(ctx, cli.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := postgres.Migrate(ctx, pool, migs, cli.AppliedBy, log)
		if err != nil {
			return err
		}
		report(log, applied, len(migs))
		return nil

	case config.StoreBigQuery:
		if cli.BigQueryProject == "" {
			return fmt.Errorf("BIGQUERY_PROJECT is required for the bigquery store")
		}
		store, err := infraBQ.NewStore(ctx, cli.BigQueryProject, cli.BigQueryDataset)
		if err != nil {
			return err
		}
		defer store.Close()

		migs, err := migrations.Load(migrations.BigQuery, store.TemplateVars())
		if err != nil {
			return err
		}
		if cli.List {
			describe(os.Stdout, migs)
			return nil
		}

		applied, err := store.Migrate(ctx, migs, cli.AppliedBy, log)
		if err != nil {
			return err
		}
		report(log, applied, len(migs))
		return nil
	}
	return fmt.Errorf("unknown store backend %q", cli.Store)
}

func report(log zerolog.Logger, applied, total int) {
	if applied == 0 {
		log.Info().Int("migrations", total).Msg("Schema is up to date")
		return
	}
	log.Info().Int("applied", applied).Int("migrations", total).Msg("Migrations applied")
}

// describe prints one line per migration: version, name and short checksum.
func describe(w io.Writer, migs []migrations.Migration) {
	for _, m := range migs {
		sum := m.Checksum
		if len(sum) > 12 {
			sum = sum[:12]
		}
		fmt.Fprintf(w, "%04d  %-30s  %s\n", m.Version, m.Name, sum)
	}
}
