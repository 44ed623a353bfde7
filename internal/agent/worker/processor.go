package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/cuongbtq/paid-agent/internal/agent/email"
)

// finalizeTimeout bounds the store and payment calls made after a job ran
const finalizeTimeout = 15 * time.Second

// processJob claims a paid job, runs the email task and records the outcome.
// A nil return means the delivery is settled and can be acked.
func (w *Worker) processJob(ctx context.Context, workerName, jobID string) error {
	logger := w.logger.With(slog.String("job_id", jobID), slog.String("worker_name", workerName))

	// Step 1: Claim (awaiting_payment + locked → running)
	job, err := w.store.ClaimJob(ctx, jobID, workerName)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			logger.Warn("Job already claimed or not paid, skipping")
			return fmt.Errorf("job already claimed: %w", err)
		}
		logger.Error("Failed to claim job", slog.Any("error", err))
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	// Survive shutdown long enough to record what happened
	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancelFinish()

	// Step 2: Decode input
	var input email.Input
	if err := json.Unmarshal([]byte(job.InputData), &input); err != nil {
		logger.Error("Failed to parse job input", slog.Any("error", err))
		msg := fmt.Sprintf("Invalid input_data JSON: %s", err.Error())
		if failErr := w.store.FailJob(finishCtx, job.JobID, msg); failErr != nil {
			logger.Error("Failed to update job status to FAILED", slog.Any("error", failErr))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	// Step 3: Execute with timeout and heartbeat
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.JobID, heartbeatDone)

	result := w.executor.Execute(jobCtx, input)
	close(heartbeatDone)

	// Step 4: Record the outcome
	if ctx.Err() != nil && !result.Success {
		// interrupted by shutdown; hand the job back
		if relErr := w.store.ReleaseJob(finishCtx, job.JobID, "interrupted by shutdown"); relErr != nil {
			logger.Error("Failed to release interrupted job", slog.Any("error", relErr))
		}
		return domain.NewRetryableError(fmt.Errorf("job interrupted: %w", ctx.Err()))
	}

	if !result.Success {
		return w.handleFailure(finishCtx, logger, job, result)
	}

	text := result.Text()
	if err := w.store.CompleteJob(finishCtx, job.JobID, text); err != nil {
		// the email is out; do not send it twice
		logger.Error("Failed to update job status to COMPLETED", slog.Any("error", err))
		return nil
	}
	logger.Info("Job completed successfully", slog.String("message_id", result.MessageID))

	// Step 5: Release the payment by submitting the result hash
	w.submitResult(finishCtx, logger, job, text)
	return nil
}

func (w *Worker) handleFailure(ctx context.Context, logger *slog.Logger, job *domain.Job, result email.Result) error {
	if result.Retryable && job.RetryCount < job.MaxRetries {
		logger.Info("Job will be retried",
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
			slog.String("reason", result.Message),
		)
		if err := w.store.ReleaseJob(ctx, job.JobID, result.Message); err != nil {
			logger.Error("Failed to release job for retry", slog.Any("error", err))
			return fmt.Errorf("release job: %w", err)
		}
		return domain.NewRetryableError(errors.New(result.Message))
	}

	if err := w.store.FailJob(ctx, job.JobID, result.Message); err != nil {
		logger.Error("Failed to update job status to FAILED", slog.Any("error", err))
	}

	if result.Retryable {
		logger.Warn("Job exceeded max retries",
			slog.Int("retry_count", job.RetryCount),
			slog.Int("max_retries", job.MaxRetries),
		)
		return fmt.Errorf("%w: %s", domain.ErrMaxRetriesExceeded, result.Message)
	}

	logger.Warn("Job failed", slog.String("reason", result.Message))
	return nil
}

func (w *Worker) submitResult(ctx context.Context, logger *slog.Logger, job *domain.Job, text string) {
	if w.payments == nil {
		return
	}

	if err := w.payments.SubmitResult(ctx, job.BlockchainIdentifier, text); err != nil {
		logger.Error("Failed to submit result to payment service",
			slog.String("blockchain_identifier", job.BlockchainIdentifier),
			slog.Any("error", err),
		)
		return
	}

	if err := w.store.MarkResultSubmitted(ctx, job.JobID); err != nil {
		logger.Error("Failed to record result submission", slog.Any("error", err))
	}
}

// sendJobHeartbeat periodically updates the job's heartbeat timestamp
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.UpdateHeartbeat(ctx, jobID); err != nil {
				w.logger.Warn("Failed to update job heartbeat",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
			}
		}
	}
}
