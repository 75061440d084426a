package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/dvloznov/expense-tracker/internal/pipeline"
)

// ReceiptProcessor runs the receipt pipeline. *pipeline.Processor satisfies it.
type ReceiptProcessor interface {
	Process(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

// NewReceiptHandler returns a JobHandler that runs p for each
// ProcessReceiptJob and records the stored expense on the job. Invalid
// uploads fail without retry; persistence errors are retried.
func NewReceiptHandler(p ReceiptProcessor) JobHandler {
	return func(ctx context.Context, job Job) error {
		receiptJob, ok := job.(*ProcessReceiptJob)
		if !ok {
			return Permanent(fmt.Errorf("unexpected job type: %s", job.GetType()))
		}

		log := logger.FromContext(ctx).With().
			Str("job_id", receiptJob.JobID).
			Str("user_id", receiptJob.UserID).
			Logger()
		ctx = logger.WithContext(ctx, log)
		log.Info().Int("retry", receiptJob.RetryCount).Msg("Processing receipt job")

		res, err := p.Process(ctx, pipeline.Input{UserID: receiptJob.UserID, Image: receiptJob.Image})
		if err != nil {
			log.Error().Err(err).Msg("Receipt job failed")
			if errors.Is(err, pipeline.ErrInvalidInput) {
				return Permanent(err)
			}
			return err
		}

		receiptJob.ExpenseID = res.Expense.ID
		receiptJob.Fallback = res.Fallback
		receiptJob.Message = res.Message
		log.Info().Str("expense_id", res.Expense.ID).Bool("fallback", res.Fallback).Msg("Receipt job completed")
		return nil
	}
}
