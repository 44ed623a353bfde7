package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/email"
	"github.com/cuongbtq/paid-agent/internal/agent/payment"
	"github.com/cuongbtq/paid-agent/internal/agent/storage"
)

// PaymentRequester opens payment requests for new jobs
type PaymentRequester interface {
	CreatePaymentRequest(ctx context.Context, in payment.RequestInput) (*payment.Request, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger            *slog.Logger
	Store             storage.Store
	Payments          PaymentRequester
	Validator         *email.Validator
	AgentIdentifier   string
	Price             []payment.Amount
	PayByWindow       time.Duration
	SubmitResultAfter time.Duration
	MaxRetries        int
	Now               func() time.Time
}

// JobHandler serves the agent's job endpoints
type JobHandler struct {
	logger            *slog.Logger
	store             storage.Store
	payments          PaymentRequester
	validator         *email.Validator
	agentIdentifier   string
	price             []payment.Amount
	payByWindow       time.Duration
	submitResultAfter time.Duration
	maxRetries        int
	now               func() time.Time
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &JobHandler{
		logger:            deps.Logger,
		store:             deps.Store,
		payments:          deps.Payments,
		validator:         deps.Validator,
		agentIdentifier:   deps.AgentIdentifier,
		price:             deps.Price,
		payByWindow:       deps.PayByWindow,
		submitResultAfter: deps.SubmitResultAfter,
		maxRetries:        deps.MaxRetries,
		now:               now,
	}
}
