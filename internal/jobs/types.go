package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessReceipt runs the receipt pipeline for one upload.
	JobTypeProcessReceipt JobType = "process_receipt"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

var (
	// ErrJobNotFound is returned by a JobStore for an unknown id.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned when the queue buffer has no room.
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned after Stop.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrNoRetry marks handler errors that retrying cannot fix.
	ErrNoRetry = errors.New("not retryable")
)

// Permanent wraps err so the queue fails the job without retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrNoRetry, err)
}

// ProcessReceiptJob represents one queued receipt upload.
type ProcessReceiptJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	UserID string `json:"user_id"`

	// Image is the encoded upload. It is dropped once the job reaches a
	// terminal status.
	Image string `json:"-"`

	// ExpenseID is set when the job stored an expense.
	ExpenseID string `json:"expense_id,omitempty"`
	// Fallback reports whether the stored expense is a placeholder.
	Fallback bool   `json:"fallback,omitempty"`
	Message  string `json:"message,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ProcessReceiptJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ProcessReceiptJob) GetType() JobType {
	return JobTypeProcessReceipt
}

// GetStatus implements the Job interface.
func (j *ProcessReceiptJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishProcessReceipt enqueues a receipt job without blocking. It
	// returns ErrQueueFull when the buffer has no room.
	PublishProcessReceipt(ctx context.Context, job *ProcessReceiptJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ProcessReceiptJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ProcessReceiptJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessReceiptJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UserID filters jobs by user.
	UserID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
