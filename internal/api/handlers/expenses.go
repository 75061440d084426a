package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/go-chi/chi/v5"
)

// maxListLimit caps GET /api/expenses page size.
const maxListLimit = 500

// ExpensesHandler handles expense listing and deletion.
type ExpensesHandler struct {
	store domain.ExpenseStore
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(store domain.ExpenseStore) *ExpensesHandler {
	return &ExpensesHandler{store: store}
}

// ListExpenses handles GET /api/expenses
func (h *ExpensesHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := domain.ExpenseFilter{
		UserID: strings.TrimSpace(query.Get("user_id")),
		Limit:  100,
	}
	if filter.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if s := query.Get("start_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid start_date format")
			return
		}
		filter.StartDate = &d
	}
	if s := query.Get("end_date"); s != "" {
		d, err := civil.ParseDate(s)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid end_date format")
			return
		}
		filter.EndDate = &d
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		middleware.WriteError(w, http.StatusBadRequest, "end_date is before start_date")
		return
	}

	if c := strings.TrimSpace(query.Get("category")); c != "" {
		filter.Category = domain.NormalizeCategory(c)
		if filter.Category == domain.CategoryOther && !strings.EqualFold(c, domain.CategoryOther) {
			middleware.WriteError(w, http.StatusBadRequest, "Unknown category")
			return
		}
	}

	if s := query.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}

	expenses, err := h.store.ListExpenses(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list expenses")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list expenses")
		return
	}

	if expenses == nil {
		expenses = []*domain.Expense{}
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"expenses": expenses,
		"count":    len(expenses),
	})
}

// DeleteExpense handles DELETE /api/expenses/{id}
func (h *ExpensesHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	id := chi.URLParam(r, "id")
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.store.DeleteExpense(ctx, userID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Expense not found")
			return
		}
		log.Error().Err(err).Str("expense_id", id).Msg("Failed to delete expense")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete expense")
		return
	}

	log.Info().Str("expense_id", id).Str("user_id", userID).Msg("Expense deleted")
	w.WriteHeader(http.StatusNoContent)
}
