package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/metrics"
)

// Input is one receipt upload.
type Input struct {
	UserID string
	// Image is a base64 data URI or bare base64.
	Image string
}

// Result describes a stored expense and how it was produced.
type Result struct {
	Expense      *domain.Expense
	Extracted    *ReconciledExpense
	Adjustments  []Adjustment
	Message      string
	ModelUsed    string
	Fallback     bool
	Attempts     []Attempt
	ModelsTried  int
	LastErrorMsg string
}

// Processor turns an uploaded receipt into a stored expense.
type Processor struct {
	Users      domain.UserProvisioner
	Expenses   domain.ExpenseStore
	Outputs    domain.ModelOutputStore
	Archive    ImageArchiver
	Sequencer  *Sequencer
	Reconciler *Reconciler
	Metrics    *metrics.Metrics
}

// NewProcessor wires a Processor around a repository. The sequencer's
// metrics are replaced by m. Set Archive afterwards to enable image archival.
func NewProcessor(repo domain.Repository, seq *Sequencer, rec *Reconciler, m *metrics.Metrics) *Processor {
	if rec == nil {
		rec = NewReconciler()
	}
	seq.Metrics = m

	return &Processor{
		Users:      repo,
		Expenses:   repo,
		Outputs:    repo,
		Sequencer:  seq,
		Reconciler: rec,
		Metrics:    m,
	}
}

func (p *Processor) pipeline() *Pipeline {
	steps := []PipelineStep{
		&ValidateInputStep{},
		&ProvisionUserStep{Users: p.Users},
		&ExtractStep{Sequencer: p.Sequencer, Reconciler: p.Reconciler, Metrics: p.Metrics},
	}
	if p.Archive != nil {
		steps = append(steps, &ArchiveImageStep{Archive: p.Archive})
	}
	steps = append(steps,
		&PersistExpenseStep{Expenses: p.Expenses, Metrics: p.Metrics},
	)
	if p.Outputs != nil {
		steps = append(steps, &RecordModelOutputsStep{Outputs: p.Outputs})
	}
	return NewPipeline(steps...)
}

// Process runs the full pipeline for one upload. Only input validation
// errors (ErrInvalidInput), persistence errors (*PersistenceError) and
// context cancellation are returned; model failures end in a fallback record.
func (p *Processor) Process(ctx context.Context, in Input) (*Result, error) {
	log := logger.FromContext(ctx).With().Str("user_id", in.UserID).Logger()
	ctx = logger.WithContext(ctx, log)

	state := &PipelineState{UserID: in.UserID, EncodedImage: in.Image}
	if err := p.pipeline().Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Process: %w", err)
	}

	res := &Result{
		Expense:     state.Expense,
		Extracted:   state.Extracted,
		Adjustments: state.Adjustments,
		Fallback:    state.Fallback,
	}
	if state.Sequence != nil {
		res.ModelUsed = state.Sequence.Model
		res.Attempts = state.Sequence.Attempts
		res.ModelsTried = len(state.Sequence.Attempts)
		if err := state.Sequence.LastError(); err != nil {
			res.LastErrorMsg = err.Error()
		}
	}
	res.Message = summary(state)
	return res, nil
}

func summary(state *PipelineState) string {
	amount := state.Expense.Amount.StringFixed(2)
	if state.Fallback {
		return fmt.Sprintf("Could not read the receipt, saved a placeholder of ₹%s for review", amount)
	}
	return fmt.Sprintf("✨ Successfully extracted: ₹%s from %s", amount, state.Expense.Description)
}
