// Package jobs runs AI voucher reviews in the background so HTTP callers can
// poll for the result instead of holding a request open for every batch.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/journal"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrQueueClosed = errors.New("queue is closed")
)

// Status represents the current status of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ReviewJob is one batched review of a journal's unbalanced voucher sets.
type ReviewJob struct {
	JobID string `json:"job_id"`

	// Source names where the journal came from (upload file name or gs:// URI).
	Source string `json:"source"`
	Rows   int    `json:"rows"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	Findings []coach.Finding `json:"findings,omitempty"`

	// Ledger is the parsed journal. It is dropped once the job finishes.
	Ledger *journal.Ledger `json:"-"`
}

// Done reports whether the job reached a terminal status.
func (j *ReviewJob) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Publisher enqueues review jobs.
type Publisher interface {
	Publish(ctx context.Context, job *ReviewJob) error
	Close() error
}

// Handler reviews one job and returns its findings.
type Handler func(ctx context.Context, job *ReviewJob) ([]coach.Finding, error)

// Consumer runs queued jobs through a Handler.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	// Stop stops consuming and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// Store tracks job state for polling.
type Store interface {
	Save(ctx context.Context, job *ReviewJob) error
	Get(ctx context.Context, jobID string) (*ReviewJob, error)
	List(ctx context.Context, filter Filter) ([]*ReviewJob, error)
}

// Filter defines filtering criteria for listing jobs.
type Filter struct {
	Status Status
	Limit  int
	Offset int
}
