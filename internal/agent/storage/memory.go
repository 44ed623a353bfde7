package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
)

// MemoryStore keeps jobs in process memory
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("failed to create job: duplicate job_id %s", job.JobID)
	}

	stored := *job
	s.jobs[job.JobID] = &stored
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	out := *job
	return &out, nil
}

func (s *MemoryStore) ListAwaitingPayment(_ context.Context, after *JobCursor, limit int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusAwaitingPayment {
			continue
		}
		if after != nil && !cursorLess(after, CursorOf(job)) {
			continue
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return cursorLess(CursorOf(&jobs[i]), CursorOf(&jobs[j]))
	})

	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *MemoryStore) MarkPaymentLocked(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if job.PaymentStatus != domain.PaymentStatusPending {
		return false, nil
	}
	job.PaymentStatus = domain.PaymentStatusLocked
	job.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) ClaimJob(_ context.Context, jobID, workerID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusAwaitingPayment || job.PaymentStatus != domain.PaymentStatusLocked {
		return nil, domain.ErrJobAlreadyClaimed
	}

	now := s.now()
	job.Status = domain.JobStatusRunning
	job.WorkerID = workerID
	job.StartedAt = &now
	job.UpdatedAt = now

	out := *job
	return &out, nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, jobID, result string) error {
	return s.update(jobID, func(job *domain.Job, now time.Time) {
		job.Status = domain.JobStatusCompleted
		job.Result = result
		job.ErrorMessage = ""
		job.CompletedAt = &now
	})
}

func (s *MemoryStore) FailJob(_ context.Context, jobID, errorMsg string) error {
	return s.update(jobID, func(job *domain.Job, now time.Time) {
		job.Status = domain.JobStatusFailed
		job.Result = ""
		job.ErrorMessage = errorMsg
		job.CompletedAt = &now
	})
}

func (s *MemoryStore) ReleaseJob(_ context.Context, jobID, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusRunning {
		return fmt.Errorf("failed to release job: %w", domain.ErrJobNotFound)
	}
	job.Status = domain.JobStatusAwaitingPayment
	job.WorkerID = ""
	job.ErrorMessage = errorMsg
	job.RetryCount++
	job.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkResultSubmitted(_ context.Context, jobID string) error {
	return s.update(jobID, func(job *domain.Job, _ time.Time) {
		job.PaymentStatus = domain.PaymentStatusResultSubmitted
	})
}

func (s *MemoryStore) UpdateHeartbeat(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[jobID]; ok && job.Status == domain.JobStatusRunning {
		job.UpdatedAt = s.now()
	}
	return nil
}

func (s *MemoryStore) update(jobID string, fn func(job *domain.Job, now time.Time)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	now := s.now()
	fn(job, now)
	job.UpdatedAt = now
	return nil
}

func cursorLess(a, b *JobCursor) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.JobID < b.JobID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
