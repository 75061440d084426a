package handlers

import (
	"context"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
)

// onePixelPNG is a valid 1x1 PNG.
const onePixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type mockProcessor struct {
	ProcessFunc func(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
	calls       int
}

func (m *mockProcessor) Process(ctx context.Context, in pipeline.Input) (*pipeline.Result, error) {
	m.calls++
	return m.ProcessFunc(ctx, in)
}

type mockExpenseStore struct {
	ListExpensesFunc  func(ctx context.Context, f domain.ExpenseFilter) ([]*domain.Expense, error)
	DeleteExpenseFunc func(ctx context.Context, userID, id string) error
}

func (m *mockExpenseStore) InsertExpense(ctx context.Context, e domain.NewExpense) (*domain.Expense, error) {
	panic("not used by handlers")
}

func (m *mockExpenseStore) ListExpenses(ctx context.Context, f domain.ExpenseFilter) ([]*domain.Expense, error) {
	return m.ListExpensesFunc(ctx, f)
}

func (m *mockExpenseStore) DeleteExpense(ctx context.Context, userID, id string) error {
	return m.DeleteExpenseFunc(ctx, userID, id)
}

type mockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.ProcessReceiptJob) error
	published   []*jobs.ProcessReceiptJob
}

func (m *mockPublisher) PublishProcessReceipt(ctx context.Context, job *jobs.ProcessReceiptJob) error {
	if m.PublishFunc != nil {
		if err := m.PublishFunc(ctx, job); err != nil {
			return err
		}
	}
	if job.JobID == "" {
		job.JobID = "job-1"
	}
	m.published = append(m.published, job)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
