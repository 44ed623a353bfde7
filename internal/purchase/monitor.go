package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
)

const (
	// DefaultMaxWait is the monitoring budget per job
	DefaultMaxWait = 300 * time.Second
	// DefaultPollInterval is the fixed delay between status polls
	DefaultPollInterval = 5 * time.Second
)

// StatusQuerier fetches a job status snapshot
type StatusQuerier interface {
	JobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error)
}

// SessionState is the state of a monitoring session
type SessionState string

const (
	SessionCreated    SessionState = "created"
	SessionMonitoring SessionState = "monitoring"
	SessionCompleted  SessionState = "completed"
	SessionFailed     SessionState = "failed"
	SessionTimedOut   SessionState = "timed_out"
)

// MonitorConfig holds monitor configuration
type MonitorConfig struct {
	Querier      StatusQuerier
	Clock        Clock
	Logger       *slog.Logger
	MaxWait      time.Duration
	PollInterval time.Duration
}

// Monitor polls a job until it reaches a terminal state or the budget runs out
type Monitor struct {
	querier      StatusQuerier
	clock        Clock
	logger       *slog.Logger
	maxWait      time.Duration
	pollInterval time.Duration
}

// MonitorResult is the outcome of one session
type MonitorResult struct {
	Outcome     domain.Outcome
	Final       *domain.JobStatus // last successful snapshot, nil if none
	Transitions []domain.Transition
	Polls       int
	Misses      int
	Elapsed     time.Duration
}

// session is the transient state of one Watch call
type session struct {
	jobID        string
	start        time.Time
	deadline     time.Time
	lastObserved string
	state        SessionState
	result       MonitorResult
}

// NewMonitor creates a new monitor
func NewMonitor(cfg *MonitorConfig) *Monitor {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Monitor{
		querier:      cfg.Querier,
		clock:        clock,
		logger:       logger,
		maxWait:      orDefault(cfg.MaxWait, DefaultMaxWait),
		pollInterval: orDefault(cfg.PollInterval, DefaultPollInterval),
	}
}

// Watch runs one monitoring session for jobID. A failed or timed-out job is
// an outcome, not an error; the only error is ErrInterrupted on cancellation.
func (m *Monitor) Watch(ctx context.Context, jobID string) (*MonitorResult, error) {
	start := m.clock.Now()
	s := &session{
		jobID:    jobID,
		start:    start,
		deadline: start.Add(m.maxWait),
		state:    SessionCreated,
	}

	m.logger.Info("Monitoring job",
		slog.String("job_id", jobID),
		slog.Duration("max_wait", m.maxWait),
		slog.Duration("poll_interval", m.pollInterval),
	)
	s.state = SessionMonitoring

	for m.clock.Now().Before(s.deadline) {
		status, err := m.querier.JobStatus(ctx, jobID)
		s.result.Polls++

		if err != nil {
			if ctx.Err() != nil {
				return m.interrupt(s, ctx.Err())
			}
			s.result.Misses++
			m.logger.Warn("Status check failed, retrying",
				slog.String("job_id", jobID),
				slog.Duration("elapsed", m.elapsed(s)),
				slog.Any("error", err),
			)
		} else {
			s.result.Final = status
			m.observe(s, status)

			switch status.Status {
			case domain.JobStatusCompleted:
				return m.finish(s, SessionCompleted), nil
			case domain.JobStatusFailed:
				return m.finish(s, SessionFailed), nil
			}
		}

		if err := m.clock.Sleep(ctx, m.pollInterval); err != nil {
			return m.interrupt(s, err)
		}
	}

	return m.finish(s, SessionTimedOut), nil
}

// observe records a transition when the job status changed since the last poll
func (m *Monitor) observe(s *session, status *domain.JobStatus) {
	if status.Status == s.lastObserved {
		return
	}

	t := domain.Transition{
		Elapsed:       m.elapsed(s),
		JobStatus:     status.Status,
		PaymentStatus: status.PaymentStatus,
	}
	s.result.Transitions = append(s.result.Transitions, t)
	s.lastObserved = status.Status

	m.logger.Info("Job status changed",
		slog.String("job_id", s.jobID),
		slog.Duration("elapsed", t.Elapsed.Truncate(time.Second)),
		slog.String("job_status", t.JobStatus),
		slog.String("payment_status", t.PaymentStatus),
	)
}

func (m *Monitor) finish(s *session, state SessionState) *MonitorResult {
	s.state = state
	s.result.Elapsed = m.elapsed(s)

	switch state {
	case SessionCompleted:
		s.result.Outcome = domain.OutcomeCompleted
		if s.result.Final.HasResult() {
			m.logger.Info("Job completed",
				slog.String("job_id", s.jobID),
				slog.String("result", s.result.Final.ResultText()),
			)
		} else {
			m.logger.Warn("Job completed without a result",
				slog.String("job_id", s.jobID),
			)
		}
	case SessionFailed:
		s.result.Outcome = domain.OutcomeFailed
		m.logger.Error("Job failed",
			slog.String("job_id", s.jobID),
			slog.String("status_payload", string(s.result.Final.Raw)),
		)
	default:
		s.result.Outcome = domain.OutcomeTimedOut
		m.logger.Warn("Monitoring budget exhausted, job outcome unknown",
			slog.String("job_id", s.jobID),
			slog.String("last_status", s.lastObserved),
			slog.Int("polls", s.result.Polls),
			slog.Int("misses", s.result.Misses),
		)
	}

	return &s.result
}

func (m *Monitor) interrupt(s *session, cause error) (*MonitorResult, error) {
	s.result.Elapsed = m.elapsed(s)
	m.logger.Warn("Monitoring interrupted",
		slog.String("job_id", s.jobID),
		slog.String("state", string(s.state)),
	)
	return &s.result, fmt.Errorf("%w: %v", domain.ErrInterrupted, cause)
}

func (m *Monitor) elapsed(s *session) time.Duration {
	return m.clock.Now().Sub(s.start)
}
