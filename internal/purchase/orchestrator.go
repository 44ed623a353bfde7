package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
)

// Compute is the agent surface the orchestrator needs
type Compute interface {
	CheckAvailability(ctx context.Context) error
	StartJob(ctx context.Context, req domain.StartJobRequest) (*domain.JobOffer, error)
}

// Payer submits purchases
type Payer interface {
	Purchase(ctx context.Context, desc domain.PaymentDescriptor) (*domain.PaymentReceipt, error)
}

// Watcher monitors a paid job
type Watcher interface {
	Watch(ctx context.Context, jobID string) (*MonitorResult, error)
}

// Config holds orchestrator dependencies
type Config struct {
	Compute Compute
	Payer   Payer
	Watcher Watcher
	Logger  *slog.Logger
	Network string
}

// Orchestrator runs the purchase pipeline: availability, job creation,
// payment, monitoring. Each stage gates the next.
type Orchestrator struct {
	compute Compute
	payer   Payer
	watcher Watcher
	logger  *slog.Logger
	network string
}

// Request is the purchaser's input for one run
type Request struct {
	PurchaserID string
	Input       json.RawMessage
}

// Summary accumulates what is known about a run
type Summary struct {
	Network        string
	Job            domain.JobHandle
	Descriptor     *domain.PaymentDescriptor
	AmountLovelace string
	AmountDisplay  string
	Receipt        *domain.PaymentReceipt
	Monitor        *MonitorResult
	FailedStage    domain.Stage
}

// Outcome returns the terminal outcome, or "" if monitoring never finished
func (s *Summary) Outcome() domain.Outcome {
	if s.Monitor == nil {
		return ""
	}
	return s.Monitor.Outcome
}

// New creates a new orchestrator
func New(cfg *Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		compute: cfg.Compute,
		payer:   cfg.Payer,
		watcher: cfg.Watcher,
		logger:  logger,
		network: cfg.Network,
	}
}

// Run executes one purchase. The returned summary holds everything learned
// so far, also when an error is returned.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Summary, error) {
	defer o.releaseConnections()

	summary := &Summary{Network: o.network}

	// Step 1: availability
	o.logger.Info("Checking service availability")
	if err := o.compute.CheckAvailability(ctx); err != nil {
		return o.fail(ctx, summary, domain.StageAvailability, err)
	}
	o.logger.Info("Service is online")

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, summary, domain.StageJobCreation, err)
	}

	// Step 2: job creation
	o.logger.Info("Creating job", slog.String("purchaser_id", req.PurchaserID))
	offer, err := o.compute.StartJob(ctx, domain.StartJobRequest{
		IdentifierFromPurchaser: req.PurchaserID,
		InputData:               req.Input,
	})
	if err != nil {
		return o.fail(ctx, summary, domain.StageJobCreation, err)
	}
	if len(offer.Amounts) == 0 {
		return o.fail(ctx, summary, domain.StageJobCreation,
			&domain.ContractViolationError{Fields: []string{"amounts"}, Detail: "no payment amount offered"})
	}

	desc := offer.Descriptor(o.network)
	summary.Job = offer.Handle()
	summary.Descriptor = &desc
	summary.AmountLovelace = offer.Amounts[0].Value()
	if display, convErr := domain.FormatMajorUnits(summary.AmountLovelace); convErr == nil {
		summary.AmountDisplay = display
	} else {
		summary.AmountDisplay = summary.AmountLovelace
	}

	o.logger.Info("Job created",
		slog.String("job_id", summary.Job.JobID),
		slog.String("blockchain_identifier", summary.Job.BlockchainIdentifier),
		slog.String("amount", summary.AmountDisplay),
		slog.String("amount_lovelace", summary.AmountLovelace),
	)

	if err := ctx.Err(); err != nil {
		return o.fail(ctx, summary, domain.StagePayment, err)
	}

	// Step 3: payment
	o.logger.Info("Submitting payment", slog.String("amount", summary.AmountDisplay))
	receipt, err := o.payer.Purchase(ctx, desc)
	if err != nil {
		return o.fail(ctx, summary, domain.StagePayment, err)
	}
	summary.Receipt = receipt

	o.logger.Info("Payment submitted",
		slog.String("tx_hash", receipt.TxHash),
		slog.String("blockchain_identifier", desc.BlockchainIdentifier),
	)

	// Step 4: monitoring
	result, err := o.watcher.Watch(ctx, summary.Job.JobID)
	summary.Monitor = result
	if err != nil {
		return o.fail(ctx, summary, domain.StageMonitoring, err)
	}

	o.logger.Info("Run finished",
		slog.String("job_id", summary.Job.JobID),
		slog.String("outcome", string(result.Outcome)),
		slog.Duration("elapsed", result.Elapsed),
	)

	return summary, nil
}

func (o *Orchestrator) fail(ctx context.Context, summary *Summary, stage domain.Stage, err error) (*Summary, error) {
	summary.FailedStage = stage

	if ctx.Err() != nil && !errors.Is(err, domain.ErrInterrupted) && !errors.Is(err, domain.ErrPaymentTransport) {
		err = fmt.Errorf("%w during %s: %v", domain.ErrInterrupted, stage, err)
	}

	o.logger.Error("Run aborted",
		slog.String("stage", string(stage)),
		slog.Any("error", err),
	)
	return summary, err
}

// releaseConnections closes idle network handles held by the clients
func (o *Orchestrator) releaseConnections() {
	for _, dep := range []any{o.compute, o.payer, o.watcher} {
		if c, ok := dep.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
}
