package worker

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/cuongbtq/paid-agent/internal/agent/email"
	"github.com/cuongbtq/paid-agent/internal/agent/queue"
	"github.com/cuongbtq/paid-agent/internal/agent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_ConsumesQueue(t *testing.T) {
	store := storage.NewMemoryStore()
	seedJob(t, store, jobA, nil)
	seedJob(t, store, jobB, nil)

	q := queue.NewMemoryQueue(8)
	defer q.Close()

	payments := &stubSubmitter{}
	w := NewWorker(&Config{
		Logger:      quietLogger(),
		Store:       store,
		Queue:       q,
		Executor:    &stubExecutor{result: email.Result{Success: true, Message: "sent"}},
		Payments:    payments,
		WorkerID:    "worker-test",
		Concurrency: 2,
		JobTimeout:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, q.Publish(ctx, jobA))
	require.NoError(t, q.Publish(ctx, jobB))
	// duplicate announcement of a job that is already running or done
	require.NoError(t, q.Publish(ctx, jobA))

	require.Eventually(t, func() bool {
		return getJob(t, store, jobA).Status == domain.JobStatusCompleted &&
			getJob(t, store, jobB).Status == domain.JobStatusCompleted &&
			q.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	w.Stop()
	w.Stop()

	assert.Len(t, payments.submissions(), 2, "each job is executed once")
}

type failingConsumer struct{}

func (failingConsumer) Consume(context.Context, string) (<-chan *queue.Delivery, error) {
	return nil, errBoom
}

func TestWorker_StartFailsWithoutConsumer(t *testing.T) {
	w := NewWorker(&Config{Logger: quietLogger(), Queue: failingConsumer{}})
	err := w.Start(context.Background())
	assert.ErrorIs(t, err, errBoom)
}
