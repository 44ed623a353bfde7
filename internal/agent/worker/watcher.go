package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/cuongbtq/paid-agent/internal/agent/queue"
	"github.com/cuongbtq/paid-agent/internal/agent/storage"
)

// PaymentStateResolver looks up the on-chain state of a payment request
type PaymentStateResolver interface {
	OnChainState(ctx context.Context, blockchainIdentifier string) (string, error)
}

// WatcherConfig holds payment watcher configuration
type WatcherConfig struct {
	Logger       *slog.Logger
	Store        storage.Store
	Payments     PaymentStateResolver
	Publisher    queue.Publisher
	Interval     time.Duration
	Batch        int
	RequeueAfter time.Duration
}

// Watcher promotes funded jobs to the queue.
// Pending jobs are checked on chain; locked jobs nobody picked up are announced again.
type Watcher struct {
	logger       *slog.Logger
	store        storage.Store
	payments     PaymentStateResolver
	publisher    queue.Publisher
	interval     time.Duration
	batch        int
	requeueAfter time.Duration
	now          func() time.Time

	// start of the next page of awaiting jobs, nil means oldest
	cursor *storage.JobCursor
}

// NewWatcher creates a payment watcher
func NewWatcher(cfg *WatcherConfig) *Watcher {
	w := &Watcher{
		logger:       cfg.Logger,
		store:        cfg.Store,
		payments:     cfg.Payments,
		publisher:    cfg.Publisher,
		interval:     cfg.Interval,
		batch:        cfg.Batch,
		requeueAfter: cfg.RequeueAfter,
		now:          time.Now,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.interval <= 0 {
		w.interval = 10 * time.Second
	}
	if w.batch <= 0 {
		w.batch = 50
	}
	if w.requeueAfter <= 0 {
		w.requeueAfter = time.Minute
	}
	return w
}

// Run ticks until ctx is canceled
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("Payment watcher started", slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Tick(ctx); err != nil {
			w.logger.Error("Payment watcher tick failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Payment watcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick checks the next batch of unclaimed jobs and returns how many were published.
// Successive ticks walk the whole backlog and wrap around after the newest job.
func (w *Watcher) Tick(ctx context.Context) (int, error) {
	jobs, err := w.store.ListAwaitingPayment(ctx, w.cursor, w.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs awaiting payment: %w", err)
	}

	if len(jobs) < w.batch {
		w.cursor = nil
	} else {
		w.cursor = storage.CursorOf(&jobs[len(jobs)-1])
	}

	published := 0
	for i := range jobs {
		if ctx.Err() != nil {
			return published, ctx.Err()
		}

		job := &jobs[i]
		var ready bool
		switch job.PaymentStatus {
		case domain.PaymentStatusPending:
			ready = w.checkPayment(ctx, job)
		case domain.PaymentStatusLocked:
			ready = w.now().Sub(job.UpdatedAt) >= w.requeueAfter
		}
		if !ready {
			continue
		}

		if err := w.publisher.Publish(ctx, job.JobID); err != nil {
			w.logger.Error("Failed to publish paid job",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
			continue
		}
		published++
	}

	return published, nil
}

// checkPayment resolves a pending job and reports whether it just became payable
func (w *Watcher) checkPayment(ctx context.Context, job *domain.Job) bool {
	logger := w.logger.With(slog.String("job_id", job.JobID))

	state, err := w.payments.OnChainState(ctx, job.BlockchainIdentifier)
	if err != nil {
		logger.Warn("Failed to resolve payment state", slog.Any("error", err))
		return false
	}

	if state != domain.OnChainStateFundsLocked {
		if deadline, ok := domain.ParseTimestamp(job.PayByTime); ok && w.now().After(deadline) {
			logger.Info("Payment window expired", slog.Time("pay_by_time", deadline))
			if err := w.store.FailJob(ctx, job.JobID, "payment not received before pay-by time"); err != nil {
				logger.Error("Failed to expire job", slog.Any("error", err))
			}
		}
		return false
	}

	locked, err := w.store.MarkPaymentLocked(ctx, job.JobID)
	if err != nil {
		logger.Error("Failed to mark payment locked", slog.Any("error", err))
		return false
	}
	if locked {
		logger.Info("Payment locked, job queued", slog.String("blockchain_identifier", job.BlockchainIdentifier))
	}
	return locked
}
