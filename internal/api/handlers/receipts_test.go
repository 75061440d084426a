package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/metrics"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/process-receipt", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func storedResult() *pipeline.Result {
	conf := 0.85
	return &pipeline.Result{
		Expense: &domain.Expense{
			ID:               "exp-1",
			UserID:           "user-1",
			Amount:           decimal.RequireFromString("1400"),
			Description:      "Big Bazaar",
			Category:         "Groceries",
			Date:             civil.Date{Year: 2024, Month: time.March, Day: 9},
			ProcessingStatus: domain.StatusCompleted,
			AIConfidence:     &conf,
		},
		Extracted: &pipeline.ReconciledExpense{
			StoreName: "Big Bazaar",
			Date:      civil.Date{Year: 2024, Month: time.March, Day: 9},
			Total:     1400,
			Subtotal:  1400,
			Category:  "Groceries",
		},
		Message:     "✨ Successfully extracted: ₹1400.00 from Big Bazaar",
		ModelUsed:   "gemini-2.5-flash",
		ModelsTried: 1,
	}
}

func TestProcessReceipt_Success(t *testing.T) {
	var got pipeline.Input
	proc := &mockProcessor{ProcessFunc: func(ctx context.Context, in pipeline.Input) (*pipeline.Result, error) {
		got = in
		return storedResult(), nil
	}}
	h := NewReceiptsHandler(proc, nil, nil)

	rec := postJSON(t, h.ProcessReceipt, fmt.Sprintf(`{"image":%q,"userId":"user-1"}`, onePixelPNG))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.Input{UserID: "user-1", Image: onePixelPNG}, got)

	var body struct {
		Success       bool            `json:"success"`
		Expense       json.RawMessage `json:"expense"`
		ExtractedData json.RawMessage `json:"extractedData"`
		Message       string          `json:"message"`
		Debug         map[string]any  `json:"debug"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Contains(t, string(body.Expense), `"amount":1400.00`)
	assert.Contains(t, string(body.ExtractedData), `"store_name":"Big Bazaar"`)
	assert.Equal(t, "✨ Successfully extracted: ₹1400.00 from Big Bazaar", body.Message)
	assert.Equal(t, map[string]any{
		"modelsAttempted": float64(1),
		"modelUsed":       "gemini-2.5-flash",
		"lastError":       "No errors",
		"expenseId":       "exp-1",
		"userId":          "user-1",
	}, body.Debug)
}

func TestProcessReceipt_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"not json", `{`, "Invalid request body"},
		{"missing image", `{"userId":"user-1"}`, "Missing required fields"},
		{"missing user", `{"image":"abc"}`, "Missing required fields"},
		{"blank user", `{"image":"abc","userId":"  "}`, "Missing required fields"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{}
			h := NewReceiptsHandler(proc, nil, nil)

			rec := postJSON(t, h.ProcessReceipt, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.wantMsg), rec.Body.String())
			assert.Zero(t, proc.calls, "no pipeline work for a bad request")
		})
	}
}

func TestProcessReceipt_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "undecodable image",
			err:        fmt.Errorf("Process: %w", pipeline.ErrInvalidInput),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid image",
		},
		{
			name:       "store failure returns store message",
			err:        fmt.Errorf("Process: %w", &pipeline.PersistenceError{Err: errors.New(`insert or update on table "expenses" violates foreign key constraint`)}),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    `insert or update on table "expenses" violates foreign key constraint`,
		},
		{
			name:       "anything else",
			err:        context.Canceled,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to process receipt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &mockProcessor{ProcessFunc: func(ctx context.Context, in pipeline.Input) (*pipeline.Result, error) {
				return nil, tt.err
			}}
			h := NewReceiptsHandler(proc, nil, nil)

			rec := postJSON(t, h.ProcessReceipt, `{"image":"abc","userId":"user-1"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, fmt.Sprintf(`{"error":%q}`, tt.wantMsg), rec.Body.String())
		})
	}
}

func TestProcessReceipt_BodyTooLarge(t *testing.T) {
	h := NewReceiptsHandler(&mockProcessor{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/process-receipt", strings.NewReader(`{"image":"`+strings.Repeat("A", 100)+`"}`))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 16)
	h.ProcessReceipt(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestProcessReceiptAsync(t *testing.T) {
	m := metrics.New()
	pub := &mockPublisher{}
	h := NewReceiptsHandler(&mockProcessor{}, pub, m)

	rec := postJSON(t, h.ProcessReceiptAsync, fmt.Sprintf(`{"image":%q,"userId":" user-1 "}`, onePixelPNG))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"job_id":"job-1","status":"pending"}`, rec.Body.String())

	require.Len(t, pub.published, 1)
	assert.Equal(t, "user-1", pub.published[0].UserID)
	assert.Equal(t, onePixelPNG, pub.published[0].Image)
	assert.Contains(t, scrape(t, m), "expense_tracker_jobs_enqueued_total 1")
}

func TestProcessReceiptAsync_Rejections(t *testing.T) {
	t.Run("invalid image never enqueued", func(t *testing.T) {
		pub := &mockPublisher{}
		h := NewReceiptsHandler(&mockProcessor{}, pub, nil)

		rec := postJSON(t, h.ProcessReceiptAsync, `{"image":"data:text/plain;base64,aGVsbG8=","userId":"u"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, pub.published)
	})

	t.Run("queue full", func(t *testing.T) {
		m := metrics.New()
		pub := &mockPublisher{PublishFunc: func(ctx context.Context, job *jobs.ProcessReceiptJob) error {
			return jobs.ErrQueueFull
		}}
		h := NewReceiptsHandler(&mockProcessor{}, pub, m)

		rec := postJSON(t, h.ProcessReceiptAsync, fmt.Sprintf(`{"image":%q,"userId":"u"}`, onePixelPNG))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, scrape(t, m), "expense_tracker_jobs_dropped_total 1")
	})

	t.Run("async disabled", func(t *testing.T) {
		h := NewReceiptsHandler(&mockProcessor{}, nil, nil)
		rec := postJSON(t, h.ProcessReceiptAsync, `{}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
