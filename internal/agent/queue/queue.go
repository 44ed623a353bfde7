// Package queue carries paid job ids from the payment watcher to the workers.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned when publishing to a closed queue
var ErrClosed = errors.New("queue closed")

// Publisher enqueues a job id
type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

// Consumer delivers job ids until ctx ends or the queue closes
type Consumer interface {
	Consume(ctx context.Context, consumerTag string) (<-chan *Delivery, error)
}

// Queue is both ends of the job queue
type Queue interface {
	Publisher
	Consumer
	Close() error
}

// Delivery is one received job id that must be acked or nacked exactly once
type Delivery struct {
	JobID string

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery builds a delivery from backend callbacks
func NewDelivery(jobID string, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{JobID: jobID, ack: ack, nack: nack}
}

// Ack confirms the job was handled
func (d *Delivery) Ack() error {
	return d.ack()
}

// Nack rejects the delivery, putting it back on the queue when requeue is set
func (d *Delivery) Nack(requeue bool) error {
	return d.nack(requeue)
}
