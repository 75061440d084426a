package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/metrics"
	"github.com/dvloznov/expense-tracker/internal/vision"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PipelineStep is one stage of receipt processing.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState is shared by the steps of a single request.
type PipelineState struct {
	UserID       string
	EncodedImage string

	Image       *Image
	Prompt      string
	Sequence    *SequenceResult
	Extracted   *ReconciledExpense
	Adjustments []Adjustment
	Fallback    bool
	ReceiptURL  *string
	Expense     *domain.Expense
}

// ImageArchiver stores the original receipt image and returns its URI.
type ImageArchiver interface {
	SaveReceiptImage(ctx context.Context, userID string, data []byte, contentType, ext string) (string, error)
}

// ValidateInputStep rejects requests with no user or an unusable image
// before anything external is called.
type ValidateInputStep struct{}

func (s *ValidateInputStep) Name() string { return "validate_input" }

func (s *ValidateInputStep) Execute(ctx context.Context, state *PipelineState) error {
	state.UserID = strings.TrimSpace(state.UserID)
	if state.UserID == "" || strings.TrimSpace(state.EncodedImage) == "" {
		return fmt.Errorf("ValidateInputStep: missing required fields: %w", ErrInvalidInput)
	}

	img, err := DecodeImage(state.EncodedImage)
	if err != nil {
		return err
	}
	state.Image = img
	return nil
}

// ProvisionUserStep upserts the user and their default categories. Failures
// are logged and processing continues.
type ProvisionUserStep struct {
	Users domain.UserProvisioner
}

func (s *ProvisionUserStep) Name() string { return "provision_user" }

func (s *ProvisionUserStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Users == nil {
		return nil
	}
	log := logger.FromContext(ctx)

	if err := s.Users.EnsureUser(ctx, state.UserID); err != nil {
		log.Warn().Err(err).Msg("could not provision user, continuing")
		return nil
	}
	if err := s.Users.EnsureDefaultCategories(ctx, state.UserID); err != nil {
		log.Warn().Err(err).Msg("could not provision default categories, continuing")
	}
	return nil
}

// ExtractStep runs the model sequence and reconciles the result, or
// synthesizes a fallback record when no model produced usable output.
type ExtractStep struct {
	Sequencer  *Sequencer
	Reconciler *Reconciler
	Metrics    *metrics.Metrics
}

func (s *ExtractStep) Name() string { return "extract" }

func (s *ExtractStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	state.Prompt = BuildReceiptPrompt(s.now())
	seq, err := s.Sequencer.Run(ctx, vision.Request{
		Prompt:   state.Prompt,
		Image:    state.Image.Data,
		MIMEType: state.Image.MIMEType,
	})
	state.Sequence = seq
	if err != nil {
		return err
	}

	if seq.Extraction == nil {
		state.Extracted = s.Reconciler.Fallback()
		state.Fallback = true
		s.Metrics.IncFallback()
		log.Warn().Err(seq.LastError()).Msg("no model produced a usable reply, using fallback record")
		return nil
	}

	state.Extracted, state.Adjustments = s.Reconciler.Reconcile(seq.Extraction)
	for _, a := range state.Adjustments {
		s.Metrics.IncAdjustment(a.Rule)
		log.Info().Str("rule", a.Rule).Str("model", seq.Model).Msg(a.Detail)
	}
	return nil
}

func (s *ExtractStep) now() time.Time {
	if s.Reconciler != nil && s.Reconciler.Now != nil {
		return s.Reconciler.Now()
	}
	return time.Now()
}

// ArchiveImageStep uploads the decoded image when an archiver is configured.
// Upload failures leave ReceiptURL nil.
type ArchiveImageStep struct {
	Archive ImageArchiver
}

func (s *ArchiveImageStep) Name() string { return "archive_image" }

func (s *ArchiveImageStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Archive == nil {
		return nil
	}
	uri, err := s.Archive.SaveReceiptImage(ctx, state.UserID, state.Image.Data, state.Image.MIMEType, state.Image.Extension)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("could not archive receipt image, continuing without receipt_url")
		return nil
	}
	state.ReceiptURL = &uri
	return nil
}

// PersistExpenseStep writes the expense. Store failures become a *PersistenceError.
type PersistExpenseStep struct {
	Expenses domain.ExpenseStore
	Metrics  *metrics.Metrics
}

func (s *PersistExpenseStep) Name() string { return "persist_expense" }

func (s *PersistExpenseStep) Execute(ctx context.Context, state *PipelineState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	extracted, err := json.Marshal(state.Extracted)
	if err != nil {
		return fmt.Errorf("PersistExpenseStep: marshal extracted data: %w", err)
	}

	status := domain.StatusCompleted
	if state.Fallback {
		status = domain.StatusFailed
	}

	description := state.Extracted.StoreName
	if description == "" {
		description = DefaultStoreName
	}

	expense, err := s.Expenses.InsertExpense(ctx, domain.NewExpense{
		UserID:           state.UserID,
		Amount:           decimal.NewFromFloat(state.Extracted.Total).Round(2),
		Description:      description,
		Category:         state.Extracted.Category,
		Date:             state.Extracted.Date,
		ExtractedData:    extracted,
		ProcessingStatus: status,
		AIConfidence:     state.Extracted.Confidence,
		ReceiptURL:       state.ReceiptURL,
	})
	if err != nil {
		s.Metrics.IncPersistenceError()
		return &PersistenceError{Err: err}
	}

	s.Metrics.IncPersisted(status)
	state.Expense = expense
	log := logger.FromContext(ctx)
	log.Info().
		Str("expense_id", expense.ID).
		Str("status", status).
		Str("amount", expense.Amount.StringFixed(2)).
		Msg("expense saved")
	return nil
}

// RecordModelOutputsStep writes one audit row per extraction attempt.
// It never fails the request.
type RecordModelOutputsStep struct {
	Outputs domain.ModelOutputStore
}

func (s *RecordModelOutputsStep) Name() string { return "record_model_outputs" }

func (s *RecordModelOutputsStep) Execute(ctx context.Context, state *PipelineState) error {
	if s.Outputs == nil || state.Sequence == nil || len(state.Sequence.Attempts) == 0 {
		return nil
	}

	expenseID := ""
	if state.Expense != nil {
		expenseID = state.Expense.ID
	}

	now := time.Now().UTC()
	rows := make([]domain.ModelOutput, 0, len(state.Sequence.Attempts))
	for _, a := range state.Sequence.Attempts {
		row := domain.ModelOutput{
			ID:           uuid.NewString(),
			ExpenseID:    expenseID,
			UserID:       state.UserID,
			ModelName:    a.Model,
			AttemptIndex: a.Index,
			RawText:      a.RawText,
			Parsed:       a.Parsed,
			DurationMS:   a.Duration.Milliseconds(),
			CreatedAt:    now,
		}
		if a.Err != nil {
			row.ErrorMessage = a.Err.Error()
		}
		rows = append(rows, row)
	}

	if err := s.Outputs.InsertModelOutputs(ctx, rows); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int("rows", len(rows)).Msg("could not record model outputs")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first error.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}
