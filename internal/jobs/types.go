package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestTransactions writes a batch of pending transactions.
	JobTypeIngestTransactions JobType = "ingest_transactions"
	// JobTypeDeleteTransactions removes transactions and their splits.
	JobTypeDeleteTransactions JobType = "delete_transactions"
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

// DefaultMaxRetries applies to retryable jobs that do not set MaxRetries.
const DefaultMaxRetries = 3

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// JobResult is the outcome of a finished bulk operation.
type JobResult struct {
	domain.Result
	RunID            string   `json:"run_id,omitempty"`
	Strategy         string   `json:"strategy,omitempty"`
	Allocation       string   `json:"allocation,omitempty"`
	ReferenceNumbers []string `json:"reference_numbers,omitempty"`
}

// IngestJob is a bulk ingest or bulk delete request processed in the background.
type IngestJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	Type JobType `json:"type"`

	// Transactions is the ingest payload. Not echoed back to clients.
	Transactions []domain.PendingTransaction `json:"-"`

	// TransactionIDs is the delete payload.
	TransactionIDs []string `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Progress is the latest progress event reported by the operation.
	Progress domain.Progress `json:"progress"`

	Result *JobResult `json:"result,omitempty"`

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

// Size is the number of records the job operates on.
func (j *IngestJob) Size() int {
	if j.Type == JobTypeDeleteTransactions {
		return len(j.TransactionIDs)
	}
	return len(j.Transactions)
}

// Retryable reports whether re-running the whole job is safe. Deletes are
// idempotent. A repeated ingest would allocate new reference numbers and
// duplicate whatever the first attempt wrote.
func (j *IngestJob) Retryable() bool {
	return j.Type == JobTypeDeleteTransactions
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// Publish enqueues a job.
	Publish(ctx context.Context, job *IngestJob) error

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

// JobHandler processes a job. It should return an error if the job failed.
type JobHandler func(ctx context.Context, job *IngestJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *IngestJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*IngestJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error

	// UpdateProgress stores the latest progress event of a running job.
	UpdateProgress(ctx context.Context, jobID string, progress domain.Progress) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Type   JobType
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
