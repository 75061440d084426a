// Package api assembles the HTTP surface of the expense tracker.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/expense-tracker/internal/api/handlers"
	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Deps are the collaborators the router needs. Publisher and JobStore may be
// nil when async processing is off.
type Deps struct {
	Processor handlers.ReceiptProcessor
	Expenses  domain.ExpenseStore
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Metrics   *metrics.Metrics
	Log       zerolog.Logger

	// MaxBodyBytes caps upload bodies.
	MaxBodyBytes int64
	// RateLimit and RateBurst bound uploads per client per second.
	RateLimit float64
	RateBurst int
	// TrustProxy takes the client address from X-Real-IP / X-Forwarded-For.
	// Only set it when a proxy in front of the server overwrites those headers.
	TrustProxy bool
}

// NewRouter builds the chi router with the middleware chain and all routes.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.Recovery(d.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         3600,
	}))

	receipts := handlers.NewReceiptsHandler(d.Processor, d.Publisher, d.Metrics)
	expenses := handlers.NewExpensesHandler(d.Expenses)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.MaxBodyBytes > 0 {
				r.Use(middleware.BodyLimit(d.MaxBodyBytes))
			}
			if d.RateLimit > 0 {
				r.Use(middleware.NewRateLimiter(d.RateLimit, max(d.RateBurst, 1)).Middleware)
			}
			r.Post("/process-receipt", receipts.ProcessReceipt)
			r.Post("/process-receipt/async", receipts.ProcessReceiptAsync)
		})

		r.Get("/expenses", expenses.ListExpenses)
		r.Delete("/expenses/{id}", expenses.DeleteExpense)
		r.Get("/categories", handlers.ListCategories)

		if d.JobStore != nil {
			jobsHandler := handlers.NewJobsHandler(d.JobStore)
			r.Get("/jobs", jobsHandler.ListJobs)
			r.Get("/jobs/{id}", jobsHandler.GetJob)
		}
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})

	return r
}
