package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/metrics"
	"github.com/dvloznov/expense-tracker/internal/vision"
)

// Extractor sends one request to the named model and returns its reply text.
type Extractor interface {
	Extract(ctx context.Context, model string, req vision.Request) (string, error)
}

// Attempt is the outcome of calling one model.
type Attempt struct {
	Index    int
	Model    string
	RawText  string
	Err      error
	Parsed   bool
	Duration time.Duration
	// Extraction is the parsed reply when Parsed is true.
	Extraction *RawExtraction
}

// SequenceResult is what the sequencer found. Extraction is nil when every
// attempt failed.
type SequenceResult struct {
	Extraction *RawExtraction
	Model      string
	Attempts   []Attempt
}

// LastError returns the most recent attempt error, or nil.
func (r *SequenceResult) LastError() error {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].Err != nil {
			return r.Attempts[i].Err
		}
	}
	return nil
}

// Sequencer tries models in order until one returns a parseable reply.
type Sequencer struct {
	Extractor Extractor
	Models    []string
	Timeout   time.Duration
	Metrics   *metrics.Metrics
}

// Run calls each model in turn, strictly one at a time. A failed or
// unparseable attempt moves on to the next model. Cancellation of ctx stops
// the sequence and returns ctx's error.
func (s *Sequencer) Run(ctx context.Context, req vision.Request) (*SequenceResult, error) {
	if len(s.Models) == 0 {
		return nil, ErrNoModels
	}
	log := logger.FromContext(ctx)

	result := &SequenceResult{Attempts: make([]Attempt, 0, len(s.Models))}
	for i, model := range s.Models {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("Sequencer.Run: cancelled before %s: %w", model, err)
		}

		attempt := s.try(ctx, i, model, req)
		result.Attempts = append(result.Attempts, attempt)

		ev := log.Debug()
		if attempt.Err != nil {
			ev = log.Warn().Err(attempt.Err)
		}
		ev.Str("model", model).
			Int("attempt", i+1).
			Bool("parsed", attempt.Parsed).
			Dur("duration", attempt.Duration).
			Msg("extraction attempt finished")

		if attempt.Parsed {
			result.Extraction = attempt.Extraction
			result.Model = model
			return result, nil
		}

		// The attempt may have failed only because the request went away.
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("Sequencer.Run: cancelled during %s: %w", model, err)
		}
	}

	log.Warn().Int("attempts", len(result.Attempts)).Msg("all extraction attempts failed")
	return result, nil
}

func (s *Sequencer) try(ctx context.Context, index int, model string, req vision.Request) Attempt {
	attemptCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.Extractor.Extract(attemptCtx, model, req)
	attempt := Attempt{
		Index:    index,
		Model:    model,
		RawText:  text,
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("attempt timed out after %s: %w", s.Timeout, err)
		}
		attempt.Err = err
		s.Metrics.ObserveAttempt(model, metrics.OutcomeError, attempt.Duration)
		return attempt
	}

	attempt.Extraction = ParseRawExtraction(text)
	if attempt.Extraction == nil {
		attempt.Err = fmt.Errorf("%s: reply contained no JSON object", model)
		s.Metrics.ObserveAttempt(model, metrics.OutcomeUnparseable, attempt.Duration)
		return attempt
	}
	attempt.Parsed = true
	s.Metrics.ObserveAttempt(model, metrics.OutcomeSuccess, attempt.Duration)
	return attempt
}
