package purchase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/paid-agent/internal/purchase/domain"
)

// fakeClock advances only when Sleep is called
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type pollReply struct {
	status string
	result string
	err    error
}

// scriptedQuerier answers polls from a script; the last entry repeats
type scriptedQuerier struct {
	clock    *fakeClock
	script   []pollReply
	calls    int
	calledAt []time.Time
	onPoll   func(call int)
}

func (q *scriptedQuerier) JobStatus(ctx context.Context, jobID string) (*domain.JobStatus, error) {
	q.calledAt = append(q.calledAt, q.clock.Now())
	idx := q.calls
	if idx >= len(q.script) {
		idx = len(q.script) - 1
	}
	q.calls++
	if q.onPoll != nil {
		q.onPoll(q.calls)
	}

	reply := q.script[idx]
	if reply.err != nil {
		return nil, reply.err
	}

	status := &domain.JobStatus{
		JobID:         jobID,
		Status:        reply.status,
		PaymentStatus: "locked",
		Raw:           []byte(`{"status":"` + reply.status + `"}`),
	}
	if reply.result != "" {
		status.Result = []byte(`"` + reply.result + `"`)
	}
	return status, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
