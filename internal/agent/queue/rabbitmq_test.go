package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobID = "6f1c2a9e-0b7d-4d0e-9f53-2a3c7f1e8b10"

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu   sync.Mutex
	seen []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, settlement{tag: tag, ack: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen = append(a.seen, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) settlements() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.seen...)
}

type fakeBroker struct {
	published  [][]byte
	publishErr error
	deliveries chan amqp.Delivery
	prefetch   int
	closed     bool
}

func (b *fakeBroker) PublishWithRetry(_ context.Context, body []byte, contentType string) error {
	if contentType != "application/json" {
		return errors.New("unexpected content type " + contentType)
	}
	b.published = append(b.published, body)
	return b.publishErr
}

func (b *fakeBroker) Consume(_ string, prefetch int) (<-chan amqp.Delivery, error) {
	b.prefetch = prefetch
	return b.deliveries, nil
}

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}

func newRabbitQueue(b *fakeBroker) *RabbitMQQueue {
	return NewRabbitMQQueue(b, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRabbitMQQueue_Publish(t *testing.T) {
	b := &fakeBroker{}
	q := newRabbitQueue(b)

	require.NoError(t, q.Publish(context.Background(), testJobID))
	require.Len(t, b.published, 1)
	assert.JSONEq(t, `{"job_id":"`+testJobID+`"}`, string(b.published[0]))

	b.publishErr = errors.New("channel closed")
	err := q.Publish(context.Background(), testJobID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel closed")
}

func TestRabbitMQQueue_Consume(t *testing.T) {
	ack := &fakeAcknowledger{}
	b := &fakeBroker{deliveries: make(chan amqp.Delivery, 4)}
	q := newRabbitQueue(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := q.Consume(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.prefetch, "prefetch defaults to one")

	b.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("not json")}
	b.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte(`{"job_id":"nope"}`)}
	b.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte(`{"job_id":"` + testJobID + `"}`)}

	d := receive(t, out)
	assert.Equal(t, testJobID, d.JobID)
	require.NoError(t, d.Nack(true))

	assert.Equal(t, []settlement{
		{tag: 1},
		{tag: 2},
		{tag: 3, requeue: true},
	}, ack.settlements())

	close(b.deliveries)
	select {
	case _, ok := <-out:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("output channel not closed")
	}
}

func TestRabbitMQQueue_AckAndClose(t *testing.T) {
	ack := &fakeAcknowledger{}
	b := &fakeBroker{deliveries: make(chan amqp.Delivery, 1)}
	q := newRabbitQueue(b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := q.Consume(ctx, "worker-1")
	require.NoError(t, err)

	b.deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 7, Body: []byte(`{"job_id":"` + testJobID + `"}`)}
	require.NoError(t, receive(t, out).Ack())
	assert.Equal(t, []settlement{{tag: 7, ack: true}}, ack.settlements())

	require.NoError(t, q.Close())
	assert.True(t, b.closed)
}

func TestDecodeJobMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"job_id":"` + testJobID + `"}`},
		{name: "malformed", body: `{`, wantErr: "invalid message JSON"},
		{name: "missing id", body: `{}`, wantErr: "invalid job_id"},
		{name: "not a uuid", body: `{"job_id":"123"}`, wantErr: "invalid job_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := decodeJobMessage([]byte(tt.body))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testJobID, id)
		})
	}
}

var _ Queue = (*RabbitMQQueue)(nil)
