package inmemory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dvloznov/expense-tracker/internal/jobs"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/google/uuid"
)

// DefaultMaxRetries applies to jobs published without MaxRetries.
const DefaultMaxRetries = 2

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs are lost on restart.
type Queue struct {
	jobChan   chan *jobs.ProcessReceiptJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	closed    bool

	// Backoff is multiplied by the retry count before a failed job is
	// re-enqueued.
	Backoff time.Duration
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can wait before publishing fails
// with jobs.ErrQueueFull; workers is the number of concurrent handlers.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan *jobs.ProcessReceiptJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		Backoff:   time.Second,
	}
}

// PublishProcessReceipt implements the Publisher interface.
func (q *Queue) PublishProcessReceipt(ctx context.Context, job *jobs.ProcessReceiptJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	q.save(ctx, job)

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		q.abandon(ctx, job, ctx.Err())
		return ctx.Err()
	default:
		q.abandon(ctx, job, jobs.ErrQueueFull)
		return jobs.ErrQueueFull
	}
}

// abandon marks a job that never reached a worker as failed.
func (q *Queue) abandon(ctx context.Context, job *jobs.ProcessReceiptJob, err error) {
	job.Status = jobs.JobStatusFailed
	job.Error = err.Error()
	job.Image = ""
	q.save(context.WithoutCancel(ctx), job)
}

// Start implements the Consumer interface. It starts the configured number
// of workers, each calling handler for one job at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.ProcessReceiptJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx)

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	retry := err != nil && !errors.Is(err, jobs.ErrNoRetry) && job.RetryCount < job.MaxRetries
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		job.Image = ""
	case retry:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
	default:
		job.Error = err.Error()
		job.Status = jobs.JobStatusFailed
		job.Image = ""
	}
	q.save(ctx, job)

	if !retry {
		return
	}
	backoff := time.Duration(job.RetryCount) * q.Backoff
	time.AfterFunc(backoff, func() {
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.PublishProcessReceipt(ctx, job); err != nil {
			log.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to re-enqueue job")
			if errors.Is(err, jobs.ErrQueueClosed) {
				q.abandon(ctx, job, err)
			}
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.ProcessReceiptJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to save job state")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
