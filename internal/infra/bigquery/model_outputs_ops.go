package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
)

// InsertModelOutputs writes attempt audit rows to model_outputs, one DML
// INSERT per row. DML keeps them out of the streaming buffer so
// DeleteExpense can remove them straight away.
func (s *Store) InsertModelOutputs(ctx context.Context, outputs []domain.ModelOutput) error {
	for _, o := range outputs {
		if err := s.insertModelOutput(ctx, modelOutputRowFromDomain(o)); err != nil {
			return fmt.Errorf("InsertModelOutputs: attempt %d (%s): %w", o.AttemptIndex, o.ModelName, err)
		}
	}
	return nil
}

func (s *Store) insertModelOutput(ctx context.Context, row *ModelOutputRow) error {
	sql := `
		INSERT INTO ` + s.table("model_outputs") + ` (
			id, expense_id, user_id, model_name, attempt_index,
			raw_text, error_message, parsed, duration_ms, created_at
		)
		VALUES (
			@id, @expense_id, @user_id, @model_name, @attempt_index,
			@raw_text, @error_message, @parsed, @duration_ms, @created_at
		)
	`
	params := []bigquery.QueryParameter{
		{Name: "id", Value: row.ID},
		{Name: "expense_id", Value: row.ExpenseID},
		{Name: "user_id", Value: row.UserID},
		{Name: "model_name", Value: row.ModelName},
		{Name: "attempt_index", Value: row.AttemptIndex},
		{Name: "raw_text", Value: row.RawText},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "parsed", Value: row.Parsed},
		{Name: "duration_ms", Value: row.DurationMS},
		{Name: "created_at", Value: row.CreatedAt},
	}
	_, err := runDML(ctx, s.client, sql, params)
	return err
}
