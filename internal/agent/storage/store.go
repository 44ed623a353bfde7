package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
)

// Store persists agent jobs through their lifecycle:
// awaiting_payment (pending → locked) → running → completed | failed.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// ListAwaitingPayment returns unclaimed jobs positioned after the cursor, oldest first.
	// A nil cursor starts from the oldest job.
	ListAwaitingPayment(ctx context.Context, after *JobCursor, limit int) ([]domain.Job, error)

	// MarkPaymentLocked flips payment_status pending → locked.
	// It reports false when the job was already locked.
	MarkPaymentLocked(ctx context.Context, jobID string) (bool, error)

	// ClaimJob moves a paid job to running for one worker, or returns domain.ErrJobAlreadyClaimed
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)

	CompleteJob(ctx context.Context, jobID, result string) error
	FailJob(ctx context.Context, jobID, errorMsg string) error

	// ReleaseJob returns a running job to the claimable state and counts the retry
	ReleaseJob(ctx context.Context, jobID, errorMsg string) error

	MarkResultSubmitted(ctx context.Context, jobID string) error
	UpdateHeartbeat(ctx context.Context, jobID string) error
}

// JobCursor is a keyset position in created_at, job_id order
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// CursorOf returns the position of a job
func CursorOf(job *domain.Job) *JobCursor {
	return &JobCursor{CreatedAt: job.CreatedAt, JobID: job.JobID}
}
