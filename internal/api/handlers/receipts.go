package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dvloznov/expense-tracker/internal/api/middleware"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/metrics"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
)

// ReceiptProcessor runs the receipt pipeline. *pipeline.Processor satisfies it.
type ReceiptProcessor interface {
	Process(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// ReceiptsHandler handles receipt upload endpoints.
type ReceiptsHandler struct {
	processor ReceiptProcessor
	publisher jobs.Publisher
	metrics   *metrics.Metrics
}

// NewReceiptsHandler creates a new receipts handler. publisher may be nil,
// in which case the async endpoint answers 503.
func NewReceiptsHandler(processor ReceiptProcessor, publisher jobs.Publisher, m *metrics.Metrics) *ReceiptsHandler {
	return &ReceiptsHandler{
		processor: processor,
		publisher: publisher,
		metrics:   m,
	}
}

type processReceiptRequest struct {
	Image  string `json:"image"`
	UserID string `json:"userId"`
}

type processReceiptResponse struct {
	Success       bool                        `json:"success"`
	Expense       *domain.Expense             `json:"expense"`
	ExtractedData *pipeline.ReconciledExpense `json:"extractedData"`
	Message       string                      `json:"message"`
	Debug         debugInfo                   `json:"debug"`
}

type debugInfo struct {
	ModelsAttempted int    `json:"modelsAttempted"`
	ModelUsed       string `json:"modelUsed,omitempty"`
	LastError       string `json:"lastError"`
	ExpenseID       string `json:"expenseId"`
	UserID          string `json:"userId"`
}

// decodeReceiptRequest reads the upload body. It writes the error response
// itself and returns false when the request cannot be used.
func decodeReceiptRequest(w http.ResponseWriter, r *http.Request) (processReceiptRequest, bool) {
	var req processReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return req, false
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Image) == "" || strings.TrimSpace(req.UserID) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Missing required fields")
		return req, false
	}
	return req, true
}

// ProcessReceipt handles POST /api/process-receipt
func (h *ReceiptsHandler) ProcessReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	req, ok := decodeReceiptRequest(w, r)
	if !ok {
		return
	}

	res, err := h.processor.Process(ctx, pipeline.Input{UserID: req.UserID, Image: req.Image})
	if err != nil {
		var persistErr *pipeline.PersistenceError
		switch {
		case errors.Is(err, pipeline.ErrInvalidInput):
			log.Warn().Err(err).Msg("Rejected receipt upload")
			middleware.WriteError(w, http.StatusBadRequest, "Invalid image")
		case errors.As(err, &persistErr):
			log.Error().Err(err).Msg("Failed to save expense")
			middleware.WriteError(w, http.StatusInternalServerError, persistErr.Message())
		default:
			log.Error().Err(err).Msg("Receipt processing failed")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to process receipt")
		}
		return
	}

	lastError := res.LastErrorMsg
	if lastError == "" {
		lastError = "No errors"
	}
	middleware.WriteJSON(w, http.StatusOK, processReceiptResponse{
		Success:       true,
		Expense:       res.Expense,
		ExtractedData: res.Extracted,
		Message:       res.Message,
		Debug: debugInfo{
			ModelsAttempted: res.ModelsTried,
			ModelUsed:       res.ModelUsed,
			LastError:       lastError,
			ExpenseID:       res.Expense.ID,
			UserID:          res.Expense.UserID,
		},
	})
}

// ProcessReceiptAsync handles POST /api/process-receipt/async
func (h *ReceiptsHandler) ProcessReceiptAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Async processing is disabled")
		return
	}

	req, ok := decodeReceiptRequest(w, r)
	if !ok {
		return
	}
	if _, err := pipeline.DecodeImage(req.Image); err != nil {
		log.Warn().Err(err).Msg("Rejected receipt upload")
		middleware.WriteError(w, http.StatusBadRequest, "Invalid image")
		return
	}

	job := &jobs.ProcessReceiptJob{
		UserID: strings.TrimSpace(req.UserID),
		Image:  req.Image,
	}
	if err := h.publisher.PublishProcessReceipt(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			h.metrics.IncJobDropped()
			log.Warn().Msg("Receipt queue is full")
			middleware.WriteError(w, http.StatusServiceUnavailable, "Receipt queue is full, try again later")
			return
		}
		log.Error().Err(err).Msg("Failed to enqueue receipt job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue receipt")
		return
	}
	h.metrics.IncJobEnqueued()

	log.Info().Str("job_id", job.JobID).Str("user_id", job.UserID).Msg("Receipt job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(jobs.JobStatusPending),
	})
}
