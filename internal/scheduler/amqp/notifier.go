// Package amqp delivers scheduler notifications through RabbitMQ.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/bg-uploader/internal/scheduler"
)

const contentType = "application/json"

// Broker is the RabbitMQ client surface the notifier needs
type Broker interface {
	Publish(ctx context.Context, body []byte, contentType string) error
	Consume(ctx context.Context, consumerTag string) (<-chan amqp.Delivery, error)
}

type message struct {
	JobID string `json:"job_id"`
}

// Notifier publishes one persistent message per scheduled job
type Notifier struct {
	broker      Broker
	consumerTag string
	logger      *slog.Logger
}

// NewNotifier creates a notifier consuming under consumerTag
func NewNotifier(broker Broker, consumerTag string, logger *slog.Logger) *Notifier {
	return &Notifier{
		broker:      broker,
		consumerTag: consumerTag,
		logger:      logger,
	}
}

func (n *Notifier) Notify(ctx context.Context, jobID string) error {
	body, err := json.Marshal(message{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := n.broker.Publish(ctx, body, contentType); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Deliveries consumes the queue until ctx is done. Malformed messages are
// rejected without requeue so they end up in the dead letter queue.
func (n *Notifier) Deliveries(ctx context.Context) (<-chan scheduler.Delivery, error) {
	messages, err := n.broker.Consume(ctx, n.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	out := make(chan scheduler.Delivery)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				n.logger.Info("Notification consumer stopped - context canceled")
				return

			case msg, ok := <-messages:
				if !ok {
					n.logger.Warn("RabbitMQ delivery channel closed")
					return
				}

				d, ok := n.translate(msg)
				if !ok {
					continue
				}

				select {
				case out <- d:
				case <-ctx.Done():
					// hand the message back so another consumer can take it
					if err := msg.Nack(false, true); err != nil {
						n.logger.Error("Failed to NACK message on shutdown", slog.Any("error", err))
					}
					return
				}
			}
		}
	}()

	return out, nil
}

func (n *Notifier) translate(msg amqp.Delivery) (scheduler.Delivery, bool) {
	var m message
	if err := json.Unmarshal(msg.Body, &m); err != nil || strings.TrimSpace(m.JobID) == "" {
		n.logger.Error("Rejecting malformed notification",
			slog.Any("error", err),
			slog.String("body", string(msg.Body)),
		)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			n.logger.Error("Failed to NACK malformed message", slog.Any("error", nackErr))
		}
		return scheduler.Delivery{}, false
	}

	return scheduler.NewDelivery(m.JobID,
		func() error { return msg.Ack(false) },
		func(requeue bool) error { return msg.Nack(false, requeue) },
	), true
}
