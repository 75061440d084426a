package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Placeholder profile values for users created on first upload.
const (
	placeholderEmail = "user@example.com"
	placeholderName  = "App User"
)

// Store implements domain.Repository.
type Store struct {
	db DB
}

// NewStore wraps an open connection pool.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

// EnsureUser inserts the user if missing.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (id, email, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		userID, placeholderEmail, placeholderName,
	)
	if err != nil {
		return fmt.Errorf("EnsureUser: inserting user %s: %w", userID, err)
	}
	return nil
}

// EnsureDefaultCategories inserts the system categories the user lacks.
func (s *Store) EnsureDefaultCategories(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO categories (user_id, name, is_system)
		SELECT $1, name, true FROM unnest($2::text[]) AS name
		ON CONFLICT (user_id, name) DO NOTHING`,
		userID, domain.CategoryNames(),
	)
	if err != nil {
		return fmt.Errorf("EnsureDefaultCategories: inserting categories for %s: %w", userID, err)
	}
	return nil
}

// InsertExpense writes e and returns the stored row.
func (s *Store) InsertExpense(ctx context.Context, e domain.NewExpense) (*domain.Expense, error) {
	var (
		id        string
		createdAt time.Time
	)
	err := s.db.QueryRow(ctx, `
		INSERT INTO expenses (
			user_id, amount, description, category, date,
			extracted_data, receipt_url, processing_status, ai_confidence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at`,
		e.UserID,
		e.Amount.StringFixed(2),
		e.Description,
		e.Category,
		e.Date.In(time.UTC),
		jsonArg(e.ExtractedData),
		e.ReceiptURL,
		e.ProcessingStatus,
		e.AIConfidence,
	).Scan(&id, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("InsertExpense: %w", err)
	}

	return &domain.Expense{
		ID:               id,
		UserID:           e.UserID,
		Amount:           e.Amount.Round(2),
		Description:      e.Description,
		Category:         e.Category,
		Date:             e.Date,
		ExtractedData:    e.ExtractedData,
		ProcessingStatus: e.ProcessingStatus,
		AIConfidence:     e.AIConfidence,
		ReceiptURL:       e.ReceiptURL,
		CreatedAt:        createdAt,
	}, nil
}

const expenseColumns = `id::text, user_id, amount::text, description, category, date,
	extracted_data, receipt_url, processing_status, ai_confidence, created_at`

// ListExpenses returns the user's expenses, newest first.
func (s *Store) ListExpenses(ctx context.Context, f domain.ExpenseFilter) ([]*domain.Expense, error) {
	where := []string{"user_id = $1"}
	args := []any{f.UserID}
	if f.StartDate != nil {
		args = append(args, f.StartDate.In(time.UTC))
		where = append(where, fmt.Sprintf("date >= $%d", len(args)))
	}
	if f.EndDate != nil {
		args = append(args, f.EndDate.In(time.UTC))
		where = append(where, fmt.Sprintf("date <= $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}

	query := "SELECT " + expenseColumns + " FROM expenses WHERE " + strings.Join(where, " AND ") +
		" ORDER BY date DESC, created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: query: %w", err)
	}
	defer rows.Close()

	var out []*domain.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("ListExpenses: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListExpenses: iterating rows: %w", err)
	}
	return out, nil
}

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var (
		e         domain.Expense
		amount    string
		date      time.Time
		extracted []byte
	)
	if err := row.Scan(
		&e.ID, &e.UserID, &amount, &e.Description, &e.Category, &date,
		&extracted, &e.ReceiptURL, &e.ProcessingStatus, &e.AIConfidence, &e.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning expense: %w", err)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", amount, err)
	}
	e.Amount = d
	e.Date = civil.DateOf(date)
	if len(extracted) > 0 {
		e.ExtractedData = extracted
	}
	return &e, nil
}

// DeleteExpense removes one of the user's expenses.
func (s *Store) DeleteExpense(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("DeleteExpense: %q: %w", id, domain.ErrNotFound)
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM expenses WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("DeleteExpense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("DeleteExpense: %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

var modelOutputColumns = []string{
	"id", "expense_id", "user_id", "model_name", "attempt_index",
	"raw_text", "error_message", "parsed", "duration_ms", "created_at",
}

// InsertModelOutputs bulk-loads attempt audit rows with COPY.
func (s *Store) InsertModelOutputs(ctx context.Context, outputs []domain.ModelOutput) error {
	if len(outputs) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(outputs))
	for _, o := range outputs {
		id := o.ID
		if id == "" {
			id = uuid.NewString()
		}
		rows = append(rows, []any{
			id, nullString(o.ExpenseID), o.UserID, o.ModelName, o.AttemptIndex,
			o.RawText, nullString(o.ErrorMessage), o.Parsed, o.DurationMS, o.CreatedAt,
		})
	}

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{"model_outputs"}, modelOutputColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("InsertModelOutputs: copy: %w", err)
	}
	if n != int64(len(rows)) {
		return fmt.Errorf("InsertModelOutputs: copied %d of %d rows", n, len(rows))
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func jsonArg(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
