package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/google/uuid"
)

type ModelOutputRow struct {
	ID        string              `bigquery:"id"`         // REQUIRED
	ExpenseID bigquery.NullString `bigquery:"expense_id"` // NULLABLE
	UserID    string              `bigquery:"user_id"`    // REQUIRED

	ModelName    string `bigquery:"model_name"`    // REQUIRED
	AttemptIndex int64  `bigquery:"attempt_index"` // REQUIRED

	RawText      bigquery.NullString `bigquery:"raw_text"`      // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE
	Parsed       bool                `bigquery:"parsed"`        // REQUIRED
	DurationMS   int64               `bigquery:"duration_ms"`   // REQUIRED

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func modelOutputRowFromDomain(o domain.ModelOutput) *ModelOutputRow {
	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &ModelOutputRow{
		ID:           id,
		ExpenseID:    nullString(o.ExpenseID),
		UserID:       o.UserID,
		ModelName:    o.ModelName,
		AttemptIndex: int64(o.AttemptIndex),
		RawText:      nullString(o.RawText),
		ErrorMessage: nullString(o.ErrorMessage),
		Parsed:       o.Parsed,
		DurationMS:   o.DurationMS,
		CreatedAt:    o.CreatedAt,
	}
}
