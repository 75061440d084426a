package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestEnsureUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users .+ ON CONFLICT \\(id\\) DO NOTHING").
		WithArgs("user-1", placeholderEmail, placeholderName).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.EnsureUser(context.Background(), "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureUser_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO users").
		WithArgs("user-1", placeholderEmail, placeholderName).
		WillReturnError(errors.New("relation \"users\" does not exist"))

	err := store.EnsureUser(context.Background(), "user-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EnsureUser")
}

func TestEnsureDefaultCategories(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO categories .+ unnest").
		WithArgs("user-1", domain.CategoryNames()).
		WillReturnResult(pgxmock.NewResult("INSERT", 10))

	require.NoError(t, store.EnsureDefaultCategories(context.Background(), "user-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertExpense(t *testing.T) {
	store, mock := newMockStore(t)
	created := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	conf := 0.85

	mock.ExpectQuery("INSERT INTO expenses .+ RETURNING id::text, created_at").
		WithArgs(
			"user-1", "1400.00", "Big Bazaar", "Groceries",
			time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
			`{"total":1400}`, pgxmock.AnyArg(), domain.StatusCompleted, &conf,
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).
			AddRow("6f1c2a9e-3b1d-4a57-9a53-1a0c6e2f4b11", created))

	got, err := store.InsertExpense(context.Background(), domain.NewExpense{
		UserID:           "user-1",
		Amount:           decimal.RequireFromString("1400"),
		Description:      "Big Bazaar",
		Category:         "Groceries",
		Date:             civil.Date{Year: 2024, Month: time.March, Day: 9},
		ExtractedData:    json.RawMessage(`{"total":1400}`),
		ProcessingStatus: domain.StatusCompleted,
		AIConfidence:     &conf,
	})
	require.NoError(t, err)
	assert.Equal(t, "6f1c2a9e-3b1d-4a57-9a53-1a0c6e2f4b11", got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, "1400.00", got.Amount.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertExpense_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO expenses").
		WithArgs(
			"user-1", "0.00", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(errors.New(`new row for relation "expenses" violates check constraint "expenses_amount_check"`))

	_, err := store.InsertExpense(context.Background(), domain.NewExpense{
		UserID: "user-1",
		Amount: decimal.Zero,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "violates check constraint")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expenseRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "amount", "description", "category", "date",
		"extracted_data", "receipt_url", "processing_status", "ai_confidence", "created_at",
	})
}

func TestListExpenses(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	conf := 0.85
	url := "gs://bucket/receipts/a.jpg"
	start := civil.Date{Year: 2024, Month: time.January, Day: 1}

	mock.ExpectQuery(`SELECT .+ FROM expenses WHERE user_id = \$1 AND date >= \$2 AND category = \$3 ORDER BY date DESC, created_at DESC LIMIT \$4`).
		WithArgs("user-1", start.In(time.UTC), "Dining", 50).
		WillReturnRows(expenseRows().
			AddRow("id-1", "user-1", "250.50", "Cafe", "Dining", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
				[]byte(`{"total":250.5}`), &url, domain.StatusCompleted, &conf, now).
			AddRow("id-2", "user-1", "10.00", "Receipt Upload", "Dining", time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
				[]byte(nil), (*string)(nil), domain.StatusFailed, (*float64)(nil), now))

	got, err := store.ListExpenses(context.Background(), domain.ExpenseFilter{
		UserID:    "user-1",
		StartDate: &start,
		Category:  "Dining",
		Limit:     50,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "250.50", got[0].Amount.StringFixed(2))
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 1}, got[0].Date)
	require.NotNil(t, got[0].ReceiptURL)
	assert.Equal(t, url, *got[0].ReceiptURL)
	assert.JSONEq(t, `{"total":250.5}`, string(got[0].ExtractedData))

	assert.Nil(t, got[1].AIConfidence)
	assert.Nil(t, got[1].ExtractedData)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListExpenses_QueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM expenses").
		WithArgs("user-1").
		WillReturnError(errors.New("connection reset"))

	_, err := store.ListExpenses(context.Background(), domain.ExpenseFilter{UserID: "user-1"})
	assert.Error(t, err)
}

func TestDeleteExpense(t *testing.T) {
	const id = "6f1c2a9e-3b1d-4a57-9a53-1a0c6e2f4b11"

	t.Run("deleted", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM expenses WHERE id = \\$1 AND user_id = \\$2").
			WithArgs(id, "user-1").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, store.DeleteExpense(context.Background(), "user-1", id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other user's expense", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec("DELETE FROM expenses").
			WithArgs(id, "user-2").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := store.DeleteExpense(context.Background(), "user-2", id)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("malformed id", func(t *testing.T) {
		store, mock := newMockStore(t)
		err := store.DeleteExpense(context.Background(), "user-1", "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsertModelOutputs(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"model_outputs"}, modelOutputColumns).WillReturnResult(2)

	err := store.InsertModelOutputs(context.Background(), []domain.ModelOutput{
		{ID: "a", ExpenseID: "e", UserID: "u", ModelName: "gemini-2.5-flash", ErrorMessage: "quota"},
		{ID: "b", ExpenseID: "e", UserID: "u", ModelName: "gemini-1.5-flash", Parsed: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertModelOutputs_Empty(t *testing.T) {
	store, mock := newMockStore(t)
	require.NoError(t, store.InsertModelOutputs(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
