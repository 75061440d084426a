package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// InsertExpense writes e with a generated id. Uses DML INSERT to avoid
// streaming buffer issues with later deletes.
func (s *Store) InsertExpense(ctx context.Context, e domain.NewExpense) (*domain.Expense, error) {
	row := expenseRowFromDomain(uuid.NewString(), time.Now().UTC(), e)

	sql := `
		INSERT INTO ` + s.table("expenses") + ` (
			id, user_id, amount, description, category, date,
			extracted_data, receipt_url, processing_status, ai_confidence, created_at
		)
		VALUES (
			@id, @user_id, @amount, @description, @category, @date,
			@extracted_data, @receipt_url, @processing_status, @ai_confidence, @created_at
		)
	`
	if _, err := runDML(ctx, s.client, sql, row.params()); err != nil {
		return nil, fmt.Errorf("InsertExpense: %w", err)
	}
	return row.toDomain()
}

// listExpensesQuery builds the SELECT for f and its parameters.
func (s *Store) listExpensesQuery(f domain.ExpenseFilter) (string, []bigquery.QueryParameter) {
	where := []string{"user_id = @user_id"}
	params := []bigquery.QueryParameter{{Name: "user_id", Value: f.UserID}}
	if f.StartDate != nil {
		where = append(where, "date >= @start_date")
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: *f.StartDate})
	}
	if f.EndDate != nil {
		where = append(where, "date <= @end_date")
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: *f.EndDate})
	}
	if f.Category != "" {
		where = append(where, "category = @category")
		params = append(params, bigquery.QueryParameter{Name: "category", Value: f.Category})
	}

	sql := `
		SELECT
		  id, user_id, amount, description, category, date,
		  extracted_data, receipt_url, processing_status, ai_confidence, created_at
		FROM ` + s.table("expenses") + `
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date DESC, created_at DESC`
	if f.Limit > 0 {
		sql += "\n\t\tLIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: f.Limit})
	}
	return sql, params
}

// ListExpenses returns the user's expenses, newest first.
func (s *Store) ListExpenses(ctx context.Context, f domain.ExpenseFilter) ([]*domain.Expense, error) {
	sql, params := s.listExpensesQuery(f)
	q := s.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListExpenses: query read: %w", err)
	}

	var out []*domain.Expense
	for {
		var r ExpenseRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExpenses: iter next: %w", err)
		}
		e, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListExpenses: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
