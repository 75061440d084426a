package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/vision"
)

type mockExtractor struct {
	mu          sync.Mutex
	calls       []string
	ExtractFunc func(ctx context.Context, model string, req vision.Request) (string, error)
}

func (m *mockExtractor) Extract(ctx context.Context, model string, req vision.Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, model)
	m.mu.Unlock()
	return m.ExtractFunc(ctx, model, req)
}

func (m *mockExtractor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// replies returns an extractor answering from a model → reply table; models
// missing from the table fail with errModelDown.
func replies(table map[string]string) *mockExtractor {
	return &mockExtractor{
		ExtractFunc: func(ctx context.Context, model string, req vision.Request) (string, error) {
			if text, ok := table[model]; ok {
				return text, nil
			}
			return "", errModelDown
		},
	}
}

type mockRepository struct {
	EnsureUserFunc              func(ctx context.Context, userID string) error
	EnsureDefaultCategoriesFunc func(ctx context.Context, userID string) error
	InsertExpenseFunc           func(ctx context.Context, e domain.NewExpense) (*domain.Expense, error)
	InsertModelOutputsFunc      func(ctx context.Context, outputs []domain.ModelOutput) error

	inserted []domain.NewExpense
	outputs  []domain.ModelOutput
}

func (m *mockRepository) EnsureUser(ctx context.Context, userID string) error {
	if m.EnsureUserFunc != nil {
		return m.EnsureUserFunc(ctx, userID)
	}
	return nil
}

func (m *mockRepository) EnsureDefaultCategories(ctx context.Context, userID string) error {
	if m.EnsureDefaultCategoriesFunc != nil {
		return m.EnsureDefaultCategoriesFunc(ctx, userID)
	}
	return nil
}

func (m *mockRepository) InsertExpense(ctx context.Context, e domain.NewExpense) (*domain.Expense, error) {
	m.inserted = append(m.inserted, e)
	if m.InsertExpenseFunc != nil {
		return m.InsertExpenseFunc(ctx, e)
	}
	return &domain.Expense{
		ID:               "exp-1",
		UserID:           e.UserID,
		Amount:           e.Amount,
		Description:      e.Description,
		Category:         e.Category,
		Date:             e.Date,
		ExtractedData:    e.ExtractedData,
		ProcessingStatus: e.ProcessingStatus,
		AIConfidence:     e.AIConfidence,
		ReceiptURL:       e.ReceiptURL,
		CreatedAt:        time.Now(),
	}, nil
}

func (m *mockRepository) ListExpenses(ctx context.Context, filter domain.ExpenseFilter) ([]*domain.Expense, error) {
	return nil, nil
}

func (m *mockRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	return nil
}

func (m *mockRepository) InsertModelOutputs(ctx context.Context, outputs []domain.ModelOutput) error {
	m.outputs = append(m.outputs, outputs...)
	if m.InsertModelOutputsFunc != nil {
		return m.InsertModelOutputsFunc(ctx, outputs)
	}
	return nil
}

func (m *mockRepository) Close() error { return nil }

type mockArchiver struct {
	SaveReceiptImageFunc func(ctx context.Context, userID string, data []byte, contentType, ext string) (string, error)
}

func (m *mockArchiver) SaveReceiptImage(ctx context.Context, userID string, data []byte, contentType, ext string) (string, error) {
	return m.SaveReceiptImageFunc(ctx, userID, data, contentType, ext)
}
