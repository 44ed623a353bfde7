package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/cuongbtq/paid-agent/internal/agent/queue"
)

// startMessageDispatcher hands deliveries to the pool, nacking with requeue on shutdown
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan *queue.Delivery) {
	w.logger.Info("Message dispatcher started", slog.String("worker_id", w.workerID))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return
		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - stopChan closed")
			return

		case d, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Delivery channel closed")
				return
			}

			select {
			case w.jobsChan <- d:
				w.logger.Debug("Job dispatched to worker pool", slog.String("job_id", d.JobID))
			case <-ctx.Done():
				w.requeueOnShutdown(d)
				return
			case <-w.stopChan:
				w.requeueOnShutdown(d)
				return
			}
		}
	}
}

func (w *Worker) requeueOnShutdown(d *queue.Delivery) {
	if err := d.Nack(true); err != nil {
		w.logger.Error("Failed to NACK message on shutdown",
			slog.String("job_id", d.JobID),
			slog.Any("error", err),
		)
	}
}

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully", slog.Int("worker_count", w.concurrency))
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-w.stopChan:
			logger.Debug("Worker goroutine stopping - stopChan closed")
			return
		case <-ctx.Done():
			logger.Debug("Worker goroutine stopping - context canceled")
			return

		case d := <-w.jobsChan:
			logger.Info("Worker received job", slog.String("job_id", d.JobID))

			err := w.processJob(ctx, workerName, d.JobID)
			if err == nil {
				if ackErr := d.Ack(); ackErr != nil {
					logger.Error("Failed to ACK message",
						slog.String("job_id", d.JobID),
						slog.Any("error", ackErr),
					)
				}
				continue
			}

			requeue := shouldRequeueJob(err)
			logger.Warn("Job not finished",
				slog.String("job_id", d.JobID),
				slog.Bool("requeue", requeue),
				slog.Any("error", err),
			)
			if nackErr := d.Nack(requeue); nackErr != nil {
				logger.Error("Failed to NACK message",
					slog.String("job_id", d.JobID),
					slog.Any("error", nackErr),
				)
			}
		}
	}
}

// shouldRequeueJob determines if a job should be requeued based on the error type
func shouldRequeueJob(err error) bool {
	switch {
	case errors.Is(err, domain.ErrJobAlreadyClaimed),
		errors.Is(err, domain.ErrMaxRetriesExceeded),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrJobNotFound):
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
