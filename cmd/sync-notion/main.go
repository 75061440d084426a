package main

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alecthomas/kong"
	"github.com/dvloznov/expense-tracker/internal/bootstrap"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/notionsync"
)

var cli struct {
	config.Config

	NotionToken string `env:"NOTION_TOKEN" help:"${env} - Notion integration token" required:""`
	NotionDBID  string `env:"NOTION_DB_ID" name:"notion-db-id" help:"${env} - Notion database ID" required:""`
	User        string `required:"" help:"User whose expenses are exported."`
	StartDate   string `help:"Earliest expense date (YYYY-MM-DD)."`
	EndDate     string `help:"Latest expense date (YYYY-MM-DD)."`
	DryRun      bool   `help:"Preview changes without writing to Notion."`
	Prune       bool   `help:"Archive pages whose expense was deleted. Only honoured without a date range."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("sync-notion"),
		kong.Description("Export stored expenses to a Notion database."),
	)

	log := logger.NewWithLevel(cli.LogLevel, cli.LogFormat)

	opts := notionsync.SyncOptions{UserID: cli.User, DryRun: cli.DryRun, Prune: cli.Prune}
	var err error
	if opts.StartDate, err = parseDate(cli.StartDate); err != nil {
		log.Fatal().Err(err).Str("start_date", cli.StartDate).Msg("Error: invalid start-date format, expected YYYY-MM-DD")
	}
	if opts.EndDate, err = parseDate(cli.EndDate); err != nil {
		log.Fatal().Err(err).Str("end_date", cli.EndDate).Msg("Error: invalid end-date format, expected YYYY-MM-DD")
	}
	if opts.StartDate != nil && opts.EndDate != nil && opts.EndDate.Before(*opts.StartDate) {
		log.Fatal().
			Str("start_date", cli.StartDate).
			Str("end_date", cli.EndDate).
			Msg("Error: end-date must be after start-date")
	}
	if opts.Prune && (opts.StartDate != nil || opts.EndDate != nil) {
		log.Warn().Msg("--prune is ignored when a date range is given")
	}
	if err := cli.Config.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo, err := bootstrap.OpenRepository(ctx, &cli.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open expense store")
	}
	defer repo.Close()

	notionClient := notionsync.NewNotionClient(cli.NotionToken)

	stats, err := notionsync.SyncExpenses(ctx, repo, notionClient, cli.NotionDBID, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %d created, %d skipped, %d archived, %d failed.\n",
		stats.Created, stats.Skipped, stats.Archived, stats.Failed)
}

func parseDate(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
