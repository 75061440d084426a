// Package notionsync exports stored expenses into a Notion database.
package notionsync

import (
	"context"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/jomei/notionapi"
)

// SyncOptions selects what SyncExpenses exports.
type SyncOptions struct {
	UserID    string
	StartDate *civil.Date
	EndDate   *civil.Date
	// Prune archives the user's pages whose expense no longer exists. It is
	// ignored unless the sync covers every date.
	Prune  bool
	DryRun bool
}

func (o SyncOptions) fullSync() bool {
	return o.StartDate == nil && o.EndDate == nil
}

// SyncStats counts what a sync did (or would do, in dry-run mode).
type SyncStats struct {
	Expenses int
	Created  int
	Skipped  int
	Archived int
	Failed   int
}

// SyncExpenses creates a Notion page for every expense of opts.UserID that
// has no page yet. Pages are keyed on the Expense ID property, so repeated
// runs create nothing new. Individual page failures are logged and counted.
func SyncExpenses(ctx context.Context, store domain.ExpenseStore, notionClient NotionService, notionDBID string, opts SyncOptions) (*SyncStats, error) {
	log := logger.FromContext(ctx).With().
		Str("user_id", opts.UserID).
		Bool("dry_run", opts.DryRun).
		Logger()

	if opts.UserID == "" {
		return nil, fmt.Errorf("SyncExpenses: user id is required")
	}

	log.Info().Msg("Starting expense sync to Notion")

	expenses, err := store.ListExpenses(ctx, domain.ExpenseFilter{
		UserID:    opts.UserID,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
	})
	if err != nil {
		return nil, fmt.Errorf("SyncExpenses: listing expenses: %w", err)
	}
	stats := &SyncStats{Expenses: len(expenses)}
	log.Info().Int("expense_count", len(expenses)).Msg("Retrieved expenses")

	pages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncExpenses: %w", err)
	}
	log.Info().Int("notion_page_count", len(pages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]bool, len(pages))
	for _, page := range pages {
		if id := extractExpenseID(page); id != "" {
			existing[id] = true
		}
	}

	for _, e := range expenses {
		if existing[e.ID] {
			stats.Skipped++
			continue
		}
		if opts.DryRun {
			log.Info().Str("expense_id", e.ID).Msg("[DRY RUN] Would create Notion page")
			stats.Created++
			continue
		}

		page, err := notionClient.CreatePage(ctx, notionDBID, ExpenseToNotionProperties(e))
		if err != nil {
			log.Warn().Err(err).Str("expense_id", e.ID).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		log.Debug().Str("expense_id", e.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		stats.Created++
	}

	if opts.Prune && opts.fullSync() {
		archiveStalePages(ctx, notionClient, pages, expenses, opts, stats)
	}

	log.Info().
		Int("created", stats.Created).
		Int("skipped", stats.Skipped).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Expense sync completed")
	return stats, nil
}

// archiveStalePages archives the user's pages whose expense was deleted.
func archiveStalePages(ctx context.Context, notionClient NotionService, pages []notionapi.Page, expenses []*domain.Expense, opts SyncOptions, stats *SyncStats) {
	log := logger.FromContext(ctx)

	valid := make(map[string]bool, len(expenses))
	for _, e := range expenses {
		valid[e.ID] = true
	}

	for _, page := range pages {
		id := extractExpenseID(page)
		if id == "" || valid[id] || extractUserID(page) != opts.UserID {
			continue
		}
		if opts.DryRun {
			log.Info().Str("expense_id", id).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			stats.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("expense_id", id).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			stats.Failed++
			continue
		}
		log.Info().Str("expense_id", id).Str("page_id", string(page.ID)).Msg("Archived stale Notion page")
		stats.Archived++
	}
}

// queryAllNotionPages pages through the whole database.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
