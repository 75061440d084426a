package domain

import (
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by stores when a record does not exist for the caller.
var ErrNotFound = errors.New("not found")

// Processing statuses stored on an expense.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Expense is one persisted receipt expense. It is created once by the
// processing pipeline and afterwards may only be deleted.
type Expense struct {
	ID               string
	UserID           string
	Amount           decimal.Decimal
	Description      string
	Category         string
	Date             civil.Date
	ExtractedData    json.RawMessage
	ProcessingStatus string
	AIConfidence     *float64
	ReceiptURL       *string
	CreatedAt        time.Time
}

// NewExpense carries the values the pipeline hands to a store; the store
// assigns ID and CreatedAt.
type NewExpense struct {
	UserID           string
	Amount           decimal.Decimal
	Description      string
	Category         string
	Date             civil.Date
	ExtractedData    json.RawMessage
	ProcessingStatus string
	AIConfidence     *float64
	ReceiptURL       *string
}

type expenseJSON struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Amount           json.Number     `json:"amount"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	Date             civil.Date      `json:"date"`
	ExtractedData    json.RawMessage `json:"extracted_data,omitempty"`
	ProcessingStatus string          `json:"processing_status"`
	AIConfidence     *float64        `json:"ai_confidence"`
	ReceiptURL       *string         `json:"receipt_url"`
	CreatedAt        time.Time       `json:"created_at"`
}

// MarshalJSON renders the amount as a plain number with two decimals.
func (e Expense) MarshalJSON() ([]byte, error) {
	return json.Marshal(expenseJSON{
		ID:               e.ID,
		UserID:           e.UserID,
		Amount:           json.Number(e.Amount.StringFixed(2)),
		Description:      e.Description,
		Category:         e.Category,
		Date:             e.Date,
		ExtractedData:    e.ExtractedData,
		ProcessingStatus: e.ProcessingStatus,
		AIConfidence:     e.AIConfidence,
		ReceiptURL:       e.ReceiptURL,
		CreatedAt:        e.CreatedAt,
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (e *Expense) UnmarshalJSON(data []byte) error {
	var raw expenseJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil {
		return err
	}
	*e = Expense{
		ID:               raw.ID,
		UserID:           raw.UserID,
		Amount:           amount,
		Description:      raw.Description,
		Category:         raw.Category,
		Date:             raw.Date,
		ExtractedData:    raw.ExtractedData,
		ProcessingStatus: raw.ProcessingStatus,
		AIConfidence:     raw.AIConfidence,
		ReceiptURL:       raw.ReceiptURL,
		CreatedAt:        raw.CreatedAt,
	}
	return nil
}

// ExpenseFilter narrows ListExpenses. Zero values mean "no constraint".
type ExpenseFilter struct {
	UserID    string
	StartDate *civil.Date
	EndDate   *civil.Date
	Category  string
	Limit     int
}

// ModelOutput is the audit row written for every extraction attempt.
type ModelOutput struct {
	ID           string
	ExpenseID    string
	UserID       string
	ModelName    string
	AttemptIndex int
	RawText      string
	ErrorMessage string
	Parsed       bool
	DurationMS   int64
	CreatedAt    time.Time
}
