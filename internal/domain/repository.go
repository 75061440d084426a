package domain

import "context"

// UserProvisioner makes sure a user and their default categories exist.
// Both calls are idempotent.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, userID string) error
	EnsureDefaultCategories(ctx context.Context, userID string) error
}

// ExpenseStore persists expenses.
type ExpenseStore interface {
	InsertExpense(ctx context.Context, e NewExpense) (*Expense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]*Expense, error)
	// DeleteExpense returns ErrNotFound when no expense with id belongs to userID.
	DeleteExpense(ctx context.Context, userID, id string) error
}

// ModelOutputStore records extraction attempts for auditing.
type ModelOutputStore interface {
	InsertModelOutputs(ctx context.Context, outputs []ModelOutput) error
}

// Repository is the full set of storage operations a backend provides.
type Repository interface {
	UserProvisioner
	ExpenseStore
	ModelOutputStore
	Close() error
}
