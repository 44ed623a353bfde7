package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/paid-agent/internal/agent/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// broker is the part of shared/rabbitmq.Client the queue needs
type broker interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
	Consume(consumerTag string, prefetch int) (<-chan amqp.Delivery, error)
	Close() error
}

// RabbitMQQueue sends job messages through a RabbitMQ exchange
type RabbitMQQueue struct {
	broker   broker
	prefetch int
	logger   *slog.Logger
}

// NewRabbitMQQueue wraps a connected client; prefetch bounds unacked deliveries per consumer
func NewRabbitMQQueue(b broker, prefetch int, logger *slog.Logger) *RabbitMQQueue {
	if prefetch <= 0 {
		prefetch = 1
	}
	return &RabbitMQQueue{broker: b, prefetch: prefetch, logger: logger}
}

func (q *RabbitMQQueue) Publish(ctx context.Context, jobID string) error {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to encode job message: %w", err)
	}

	if err := q.broker.PublishWithRetry(ctx, body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish job %s: %w", jobID, err)
	}
	return nil
}

func (q *RabbitMQQueue) Consume(ctx context.Context, consumerTag string) (<-chan *Delivery, error) {
	deliveries, err := q.broker.Consume(consumerTag, q.prefetch)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	out := make(chan *Delivery)
	go q.dispatch(ctx, deliveries, out)
	return out, nil
}

// dispatch forwards well-formed deliveries; malformed ones are dropped without requeue
func (q *RabbitMQQueue) dispatch(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- *Delivery) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			return

		case d, ok := <-deliveries:
			if !ok {
				q.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			jobID, err := decodeJobMessage(d.Body)
			if err != nil {
				q.logger.Error("Dropping malformed job message",
					slog.String("body", string(d.Body)),
					slog.Any("error", err),
				)
				if nackErr := d.Nack(false, false); nackErr != nil {
					q.logger.Error("Failed to NACK malformed message", slog.Any("error", nackErr))
				}
				continue
			}

			delivery := NewDelivery(jobID,
				func() error { return d.Ack(false) },
				func(requeue bool) error { return d.Nack(false, requeue) },
			)

			select {
			case out <- delivery:
			case <-ctx.Done():
				if nackErr := d.Nack(false, true); nackErr != nil {
					q.logger.Error("Failed to NACK message on shutdown", slog.Any("error", nackErr))
				}
				return
			}
		}
	}
}

func (q *RabbitMQQueue) Close() error {
	return q.broker.Close()
}

func decodeJobMessage(body []byte) (string, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", fmt.Errorf("invalid message JSON: %w", err)
	}
	if _, err := uuid.Parse(msg.JobID); err != nil {
		return "", fmt.Errorf("invalid job_id %q: %w", msg.JobID, err)
	}
	return msg.JobID, nil
}
