package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

type ExpenseRow struct {
	ID     string `bigquery:"id"`      // REQUIRED
	UserID string `bigquery:"user_id"` // REQUIRED

	Amount      *big.Rat            `bigquery:"amount"`      // NUMERIC, REQUIRED
	Description bigquery.NullString `bigquery:"description"` // NULLABLE
	Category    string              `bigquery:"category"`    // REQUIRED
	Date        civil.Date          `bigquery:"date"`        // DATE, REQUIRED

	ExtractedData    bigquery.NullJSON    `bigquery:"extracted_data"`    // JSON, NULLABLE
	ReceiptURL       bigquery.NullString  `bigquery:"receipt_url"`       // NULLABLE
	ProcessingStatus string               `bigquery:"processing_status"` // REQUIRED
	AIConfidence     bigquery.NullFloat64 `bigquery:"ai_confidence"`     // NULLABLE

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

// expenseRowFromDomain builds the row for a new expense with the given id
// and creation time.
func expenseRowFromDomain(id string, createdAt time.Time, e domain.NewExpense) *ExpenseRow {
	row := &ExpenseRow{
		ID:               id,
		UserID:           e.UserID,
		Amount:           e.Amount.Round(2).Rat(),
		Description:      bigquery.NullString{StringVal: e.Description, Valid: e.Description != ""},
		Category:         e.Category,
		Date:             e.Date,
		ProcessingStatus: e.ProcessingStatus,
		CreatedAt:        createdAt,
	}
	if len(e.ExtractedData) > 0 {
		row.ExtractedData = bigquery.NullJSON{JSONVal: string(e.ExtractedData), Valid: true}
	}
	if e.ReceiptURL != nil {
		row.ReceiptURL = bigquery.NullString{StringVal: *e.ReceiptURL, Valid: true}
	}
	if e.AIConfidence != nil {
		row.AIConfidence = bigquery.NullFloat64{Float64: *e.AIConfidence, Valid: true}
	}
	return row
}

// toDomain converts a scanned row back into an Expense.
func (r *ExpenseRow) toDomain() (*domain.Expense, error) {
	amount := decimal.Zero
	if r.Amount != nil {
		var err error
		amount, err = decimal.NewFromString(r.Amount.FloatString(2))
		if err != nil {
			return nil, fmt.Errorf("toDomain: amount %s: %w", r.Amount.String(), err)
		}
	}

	e := &domain.Expense{
		ID:               r.ID,
		UserID:           r.UserID,
		Amount:           amount,
		Description:      r.Description.StringVal,
		Category:         r.Category,
		Date:             r.Date,
		ProcessingStatus: r.ProcessingStatus,
		CreatedAt:        r.CreatedAt,
	}
	if r.ExtractedData.Valid {
		e.ExtractedData = json.RawMessage(r.ExtractedData.JSONVal)
	}
	if r.ReceiptURL.Valid {
		url := r.ReceiptURL.StringVal
		e.ReceiptURL = &url
	}
	if r.AIConfidence.Valid {
		conf := r.AIConfidence.Float64
		e.AIConfidence = &conf
	}
	return e, nil
}

// params returns the named query parameters for an INSERT of r.
func (r *ExpenseRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "id", Value: r.ID},
		{Name: "user_id", Value: r.UserID},
		{Name: "amount", Value: r.Amount},
		{Name: "description", Value: r.Description},
		{Name: "category", Value: r.Category},
		{Name: "date", Value: r.Date},
		{Name: "extracted_data", Value: r.ExtractedData},
		{Name: "receipt_url", Value: r.ReceiptURL},
		{Name: "processing_status", Value: r.ProcessingStatus},
		{Name: "ai_confidence", Value: r.AIConfidence},
		{Name: "created_at", Value: r.CreatedAt},
	}
}
