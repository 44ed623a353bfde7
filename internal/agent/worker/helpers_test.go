package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/cuongbtq/paid-agent/internal/agent/email"
	"github.com/cuongbtq/paid-agent/internal/agent/storage"
	"github.com/stretchr/testify/require"
)

const (
	jobA = "6f1c2a9e-0b7d-4d0e-9f53-2a3c7f1e8b10"
	jobB = "0b9e8cf4-6a3c-4a51-9a3e-1f2d3c4b5a69"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedJob(t *testing.T, store storage.Store, id string, mutate func(j *domain.Job)) {
	t.Helper()
	now := time.Now()
	job := &domain.Job{
		JobID:                   id,
		IdentifierFromPurchaser: "buyer",
		InputData:               `{"recipient_email":"user@example.com","subject":"Hi","body":"Hello"}`,
		InputHash:               "hash",
		BlockchainIdentifier:    "block_" + id[:8],
		Amounts:                 `[{"amount":"5000000","unit":""}]`,
		Status:                  domain.JobStatusAwaitingPayment,
		PaymentStatus:           domain.PaymentStatusLocked,
		MaxRetries:              3,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if mutate != nil {
		mutate(job)
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
}

func getJob(t *testing.T, store storage.Store, id string) *domain.Job {
	t.Helper()
	job, err := store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

type stubExecutor struct {
	mu     sync.Mutex
	result email.Result
	inputs []email.Input
}

func (e *stubExecutor) Execute(_ context.Context, in email.Input) email.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, in)
	r := e.result
	r.Recipient = in.RecipientEmail
	return r
}

type submission struct {
	blockchainIdentifier string
	result               string
}

type stubSubmitter struct {
	mu   sync.Mutex
	err  error
	seen []submission
}

func (s *stubSubmitter) SubmitResult(_ context.Context, blockchainIdentifier, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, submission{blockchainIdentifier, result})
	return s.err
}

func (s *stubSubmitter) submissions() []submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submission(nil), s.seen...)
}

type stubResolver struct {
	states map[string]string
	err    error
}

func (r *stubResolver) OnChainState(_ context.Context, blockchainIdentifier string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.states[blockchainIdentifier], nil
}

type recordingPublisher struct {
	ids []string
	err error
}

func (p *recordingPublisher) Publish(_ context.Context, jobID string) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, jobID)
	return nil
}

var errBoom = errors.New("boom")
