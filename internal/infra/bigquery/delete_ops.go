package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
)

// DeleteExpense removes one of the user's expenses and its model outputs.
// It returns domain.ErrNotFound when no expense matched.
func (s *Store) DeleteExpense(ctx context.Context, userID, id string) error {
	params := []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "user_id", Value: userID},
	}

	status, err := runDML(ctx, s.client, `
		DELETE FROM `+s.table("expenses")+`
		WHERE id = @id AND user_id = @user_id
	`, params)
	if err != nil {
		return fmt.Errorf("DeleteExpense: deleting expense: %w", err)
	}
	if affectedRows(status) == 0 {
		return domain.ErrNotFound
	}

	if _, err := runDML(ctx, s.client, `
		DELETE FROM `+s.table("model_outputs")+`
		WHERE expense_id = @id AND user_id = @user_id
	`, params); err != nil {
		return fmt.Errorf("DeleteExpense: deleting model outputs: %w", err)
	}
	return nil
}
