package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/alecthomas/kong"
	"github.com/dvloznov/expense-tracker/internal/bootstrap"
	"github.com/dvloznov/expense-tracker/internal/config"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/gcsuploader"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/gabriel-vasile/mimetype"
)

type cli struct {
	config.Config

	Process processCmd `cmd:"" help:"Extract a receipt image and store it as an expense."`
	List    listCmd    `cmd:"" help:"List stored expenses for a user."`
	Delete  deleteCmd  `cmd:"" help:"Delete one expense."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("expense-cli"),
		kong.Description("Expense tracker command line."),
		kong.UsageOnError(),
	)

	log := logger.NewWithLevel(c.LogLevel, c.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	kctx.BindTo(ctx, (*context.Context)(nil))
	if err := kctx.Run(&c.Config); err != nil {
		log.Error().Err(err).Str("command", kctx.Command()).Msg("Command failed")
		os.Exit(1)
	}
}

type processCmd struct {
	User   string `required:"" help:"User the expense belongs to."`
	File   string `type:"existingfile" xor:"source" help:"Local receipt image."`
	GCSURI string `name:"gcs-uri" xor:"source" help:"Receipt image already in GCS (gs://bucket/object)."`
}

func (p *processCmd) Run(ctx context.Context, cfg *config.Config) error {
	log := logger.FromContext(ctx)

	data, err := p.read(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Str("user_id", p.User).
		Str("mime_type", mimetype.Detect(data).String()).
		Int("bytes", len(data)).
		Msg("Processing receipt")

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Processor.Process(ctx, pipeline.Input{
		UserID: p.User,
		Image:  base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return err
	}

	fmt.Println("\n=== Expense ===")
	printExpense(res.Expense)
	fmt.Printf("Model:       %s\n", orDash(res.ModelUsed))
	fmt.Printf("Attempts:    %d\n", res.ModelsTried)
	if res.Fallback {
		fmt.Printf("Last error:  %s\n", res.LastErrorMsg)
	}
	for _, a := range res.Adjustments {
		fmt.Printf("Adjusted:    %s (%s)\n", a.Rule, a.Detail)
	}
	fmt.Println()
	fmt.Println(res.Message)
	return nil
}

func (p *processCmd) read(ctx context.Context) ([]byte, error) {
	if p.File == "" && p.GCSURI == "" {
		return nil, errors.New("one of --file or --gcs-uri is required")
	}
	if p.GCSURI != "" {
		return gcsuploader.FetchFromGCS(ctx, p.GCSURI)
	}
	data, err := os.ReadFile(p.File)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.File, err)
	}
	return data, nil
}

type listCmd struct {
	User      string `required:"" help:"User whose expenses to list."`
	StartDate string `help:"Earliest date (YYYY-MM-DD)."`
	EndDate   string `help:"Latest date (YYYY-MM-DD)."`
	Category  string `help:"Only this category."`
	Limit     int    `default:"50" help:"Maximum rows."`
}

func (l *listCmd) Run(ctx context.Context, cfg *config.Config) error {
	filter, err := l.filter()
	if err != nil {
		return err
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	expenses, err := repo.ListExpenses(ctx, filter)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== %d expense(s) for %s ===\n", len(expenses), l.User)
	for _, e := range expenses {
		fmt.Println()
		printExpense(e)
	}
	return nil
}

func (l *listCmd) filter() (domain.ExpenseFilter, error) {
	f := domain.ExpenseFilter{UserID: l.User, Limit: l.Limit}
	if l.Category != "" {
		f.Category = domain.NormalizeCategory(l.Category)
		if f.Category == domain.CategoryOther && !strings.EqualFold(strings.TrimSpace(l.Category), domain.CategoryOther) {
			return f, fmt.Errorf("unknown category %q", l.Category)
		}
	}
	if l.StartDate != "" {
		d, err := civil.ParseDate(l.StartDate)
		if err != nil {
			return f, fmt.Errorf("invalid start date: %w", err)
		}
		f.StartDate = &d
	}
	if l.EndDate != "" {
		d, err := civil.ParseDate(l.EndDate)
		if err != nil {
			return f, fmt.Errorf("invalid end date: %w", err)
		}
		f.EndDate = &d
	}
	if f.StartDate != nil && f.EndDate != nil && f.EndDate.Before(*f.StartDate) {
		return f, fmt.Errorf("end date %s is before start date %s", f.EndDate, f.StartDate)
	}
	return f, nil
}

type deleteCmd struct {
	User string `required:"" help:"Owner of the expense."`
	ID   string `arg:"" help:"Expense ID."`
}

func (d *deleteCmd) Run(ctx context.Context, cfg *config.Config) error {
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.DeleteExpense(ctx, d.User, d.ID); err != nil {
		return err
	}
	fmt.Printf("Deleted expense %s\n", d.ID)
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config) (domain.Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return bootstrap.OpenRepository(ctx, cfg)
}

func printExpense(e *domain.Expense) {
	fmt.Printf("ID:          %s\n", e.ID)
	fmt.Printf("Date:        %s\n", e.Date)
	fmt.Printf("Amount:      %s\n", e.Amount.StringFixed(2))
	fmt.Printf("Description: %s\n", e.Description)
	fmt.Printf("Category:    %s\n", e.Category)
	fmt.Printf("Status:      %s\n", e.ProcessingStatus)
	if e.ReceiptURL != nil {
		fmt.Printf("Receipt:     %s\n", *e.ReceiptURL)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
