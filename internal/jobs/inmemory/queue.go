package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/isony10/EntryChecker/internal/jobs"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/rs/zerolog"
)

// Queue is a channel-backed Publisher and Consumer for a single instance.
type Queue struct {
	jobChan   chan *jobs.ReviewJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.Store
	workers   int
	log       zerolog.Logger
	closed    bool
}

// NewQueue creates a queue. Publish blocks once bufferSize jobs are waiting.
func NewQueue(bufferSize, workers int, store jobs.Store, log zerolog.Logger) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan *jobs.ReviewJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		log:       log,
	}
}

// Publish assigns an ID, records the job as pending and enqueues it.
func (q *Queue) Publish(ctx context.Context, job *jobs.ReviewJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return fmt.Errorf("Publish: %w", jobs.ErrQueueClosed)
	}

	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.Status = jobs.StatusPending
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := q.store.Save(ctx, job); err != nil {
		return fmt.Errorf("Publish: save job: %w", err)
	}

	select {
	case q.jobChan <- job:
		// Stop may have drained the buffer between the closed check and the send.
		q.mu.RLock()
		closed = q.closed
		q.mu.RUnlock()
		if closed {
			q.drain()
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return fmt.Errorf("Publish: %w", jobs.ErrQueueClosed)
	}
}

// Start launches the worker goroutines and returns immediately.
func (q *Queue) Start(ctx context.Context, handler jobs.Handler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("Start: %w", jobs.ErrQueueClosed)
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			select {
			case <-q.closeChan:
				q.abandon(job)
				return
			default:
			}
			q.process(ctx, job, handler)
		}
	}
}

func (q *Queue) jobLogger(job *jobs.ReviewJob) zerolog.Logger {
	return logger.WithFields(q.log, map[string]interface{}{
		"job_id": job.JobID,
		"source": job.Source,
		"rows":   job.Rows,
	})
}

func (q *Queue) process(ctx context.Context, job *jobs.ReviewJob, handler jobs.Handler) {
	log := q.jobLogger(job)
	ctx = logger.WithContext(ctx, log)

	started := time.Now()
	job.Status = jobs.StatusRunning
	job.StartedAt = &started
	q.save(ctx, job, log)

	findings, err := handler(ctx, job)

	completed := time.Now()
	job.CompletedAt = &completed
	job.Ledger = nil
	if err != nil {
		job.Status = jobs.StatusFailed
		job.Error = err.Error()
		log.Error().Err(err).Msg("Review job failed")
	} else {
		job.Status = jobs.StatusCompleted
		job.Findings = findings
		log.Info().Int("findings", len(findings)).Dur("duration", completed.Sub(started)).Msg("Review job completed")
	}
	q.save(ctx, job, log)
}

func (q *Queue) save(ctx context.Context, job *jobs.ReviewJob, log zerolog.Logger) {
	// the job context may already be cancelled during shutdown
	if err := q.store.Save(context.WithoutCancel(ctx), job); err != nil {
		log.Error().Err(err).Msg("Failed to save job state")
	}
}

// abandon marks a job that will never run as failed.
func (q *Queue) abandon(job *jobs.ReviewJob) {
	now := time.Now()
	job.Status = jobs.StatusFailed
	job.Error = jobs.ErrQueueClosed.Error()
	job.CompletedAt = &now
	job.Ledger = nil

	log := q.jobLogger(job)
	log.Warn().Msg("Review job dropped at shutdown")
	q.save(context.Background(), job, log)
}

// drain fails every job still waiting in the buffer.
func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobChan:
			q.abandon(job)
		default:
			return
		}
	}
}

// Stop closes the queue, fails jobs that never started and waits for
// in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	q.drain()

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

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)
