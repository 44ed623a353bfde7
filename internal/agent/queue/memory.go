package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process queue backed by a buffered channel
type MemoryQueue struct {
	messages  chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue holding up to buffer undelivered ids
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1
	}
	return &MemoryQueue{
		messages: make(chan string, buffer),
		done:     make(chan struct{}),
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, jobID string) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.messages <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, _ string) (<-chan *Delivery, error) {
	out := make(chan *Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			case jobID := <-q.messages:
				select {
				case out <- q.delivery(jobID):
				case <-ctx.Done():
					q.putBack(jobID)
					return
				case <-q.done:
					return
				}
			}
		}
	}()

	return out, nil
}

func (q *MemoryQueue) delivery(jobID string) *Delivery {
	var once sync.Once
	settle := func(requeue bool) error {
		once.Do(func() {
			if requeue {
				go q.putBack(jobID)
			}
		})
		return nil
	}

	return NewDelivery(jobID,
		func() error { return settle(false) },
		settle,
	)
}

func (q *MemoryQueue) putBack(jobID string) {
	select {
	case q.messages <- jobID:
	case <-q.done:
	}
}

// Close stops all consumers; undelivered ids are dropped
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

// Len reports the number of undelivered ids
func (q *MemoryQueue) Len() int {
	return len(q.messages)
}
