package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, identifier_from_purchaser, input_data, input_hash, blockchain_identifier,
	seller_vkey, unlock_time, external_dispute_unlock_time, submit_result_time, pay_by_time,
	amounts, status, payment_status, result, error_message, worker_id, retry_count, max_retries,
	created_at, updated_at, started_at, completed_at`

// PostgresStore handles all job database operations on PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sqlx.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, identifier_from_purchaser, input_data, input_hash, blockchain_identifier,
			seller_vkey, unlock_time, external_dispute_unlock_time, submit_result_time, pay_by_time,
			amounts, status, payment_status, max_retries, created_at, updated_at
		) VALUES (
			:job_id, :identifier_from_purchaser, :input_data, :input_hash, :blockchain_identifier,
			:seller_vkey, :unlock_time, :external_dispute_unlock_time, :submit_result_time, :pay_by_time,
			:amounts, :status, :payment_status, :max_retries, :created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("blockchain_identifier", job.BlockchainIdentifier),
	)

	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT` + jobColumns + ` FROM jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

func (s *PostgresStore) ListAwaitingPayment(ctx context.Context, after *JobCursor, limit int) ([]domain.Job, error) {
	query := `SELECT` + jobColumns + `
		FROM jobs
		WHERE status = $1`
	args := []any{domain.JobStatusAwaitingPayment}

	if after != nil {
		query += ` AND (created_at, job_id) > ($2, $3)`
		args = append(args, after.CreatedAt, after.JobID)
	}

	query += fmt.Sprintf(` ORDER BY created_at ASC, job_id ASC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs awaiting payment: %w", err)
	}

	return jobs, nil
}

func (s *PostgresStore) MarkPaymentLocked(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE jobs
		SET payment_status = $1,
		    updated_at = NOW()
		WHERE job_id = $2 AND payment_status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.PaymentStatusLocked, jobID, domain.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment locked: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

// ClaimJob claims a paid job using optimistic locking
func (s *PostgresStore) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		  AND payment_status = $5
		RETURNING` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query,
		domain.JobStatusRunning, workerID, jobID, domain.JobStatusAwaitingPayment, domain.PaymentStatusLocked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not paid",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return &job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID, result string) error {
	return s.finish(ctx, jobID, domain.JobStatusCompleted, result, "")
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID, errorMsg string) error {
	return s.finish(ctx, jobID, domain.JobStatusFailed, "", errorMsg)
}

func (s *PostgresStore) finish(ctx context.Context, jobID, status, result, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    error_message = $3,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4
	`

	if err := s.execOne(ctx, query, status, result, errorMsg, jobID); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}

func (s *PostgresStore) ReleaseJob(ctx context.Context, jobID, errorMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = '',
		    error_message = $2,
		    retry_count = retry_count + 1,
		    updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`

	if err := s.execOne(ctx, query, domain.JobStatusAwaitingPayment, errorMsg, jobID, domain.JobStatusRunning); err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkResultSubmitted(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET payment_status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
	`

	if err := s.execOne(ctx, query, domain.PaymentStatusResultSubmitted, jobID); err != nil {
		return fmt.Errorf("failed to mark result submitted: %w", err)
	}
	return nil
}

// UpdateHeartbeat updates the last_heartbeat_at timestamp for a running job
func (s *PostgresStore) UpdateHeartbeat(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET last_heartbeat_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $1 AND status = $2
	`

	result, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job heartbeat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job heartbeat update - no rows affected (job may not be running)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// execOne runs an update that must touch exactly one row
func (s *PostgresStore) execOne(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}
