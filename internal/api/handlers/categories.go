package handlers

import (
	"net/http"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
)

// ListCategories handles GET /api/categories
func ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": domain.Categories,
		"count":      len(domain.Categories),
	})
}
