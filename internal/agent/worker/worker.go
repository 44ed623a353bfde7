package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/email"
	"github.com/cuongbtq/paid-agent/internal/agent/queue"
	"github.com/cuongbtq/paid-agent/internal/agent/storage"
)

// Executor runs the paid task of one job
type Executor interface {
	Execute(ctx context.Context, in email.Input) email.Result
}

// ResultSubmitter reports a finished job to the payment service
type ResultSubmitter interface {
	SubmitResult(ctx context.Context, blockchainIdentifier, result string) error
}

// Config holds worker configuration
type Config struct {
	Logger            *slog.Logger
	Store             storage.Store
	Queue             queue.Consumer
	Executor          Executor
	Payments          ResultSubmitter
	WorkerID          string
	Concurrency       int
	JobTimeout        time.Duration
	HeartbeatInterval time.Duration
}

// Worker consumes paid jobs and executes them on a fixed pool of goroutines
type Worker struct {
	logger            *slog.Logger
	store             storage.Store
	queue             queue.Consumer
	executor          Executor
	payments          ResultSubmitter
	workerID          string
	concurrency       int
	jobTimeout        time.Duration
	heartbeatInterval time.Duration

	jobsChan chan *queue.Delivery
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:            cfg.Logger,
		store:             cfg.Store,
		queue:             cfg.Queue,
		executor:          cfg.Executor,
		payments:          cfg.Payments,
		workerID:          cfg.WorkerID,
		concurrency:       cfg.Concurrency,
		jobTimeout:        cfg.JobTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		stopChan:          make(chan struct{}),
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.jobTimeout <= 0 {
		w.jobTimeout = 2 * time.Minute
	}
	if w.heartbeatInterval <= 0 {
		w.heartbeatInterval = 30 * time.Second
	}
	w.jobsChan = make(chan *queue.Delivery, w.concurrency)
	return w
}

// Start subscribes to the queue and spawns the pool. It returns once consuming has begun.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.queue.Consume(ctx, w.workerID)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.startMessageDispatcher(ctx, deliveries)
	}()

	return nil
}

// Stop signals every goroutine to exit and waits for in-flight jobs
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
