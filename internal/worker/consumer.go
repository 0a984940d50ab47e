package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the delivery stream
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// eventMessage is a decoded callback event together with its delivery
type eventMessage struct {
	Event    domain.CallbackEvent
	Delivery amqp.Delivery
}

// setupConsumer starts consuming the callback queue
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	deliveries, err := w.consumer.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.String("consumer_tag", w.workerID),
		slog.String("queue", w.queueName),
	)

	return deliveries, nil
}

// startMessageDispatcher decodes deliveries and hands them to the worker pool
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return nil

		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker stopping")
			return nil

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return ErrDeliveriesClosed
			}

			var event domain.CallbackEvent
			if err := json.Unmarshal(delivery.Body, &event); err != nil {
				w.reject(delivery, "Failed to parse callback event JSON", err)
				continue
			}
			if err := event.Validate(); err != nil {
				w.reject(delivery, "Invalid callback event", err)
				continue
			}

			select {
			case w.eventsChan <- &eventMessage{Event: event, Delivery: delivery}:
				w.logger.Debug("Event dispatched to worker pool",
					slog.String("kind", string(event.Kind)),
					slog.String("correlation_id", event.CorrelationID),
					slog.Uint64("delivery_tag", delivery.DeliveryTag),
				)
			case <-ctx.Done():
				w.logger.Info("Message dispatcher stopped while dispatching event")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.String("error", nackErr.Error()),
					)
				}
				return nil
			}
		}
	}
}

// reject drops a malformed delivery without requeue
func (w *Worker) reject(delivery amqp.Delivery, msg string, err error) {
	w.logger.Error(msg,
		slog.String("error", err.Error()),
		slog.Uint64("delivery_tag", delivery.DeliveryTag),
		slog.Int("body_size", len(delivery.Body)),
	)
	if nackErr := delivery.Nack(false, false); nackErr != nil {
		w.logger.Error("Failed to NACK malformed message",
			slog.String("error", nackErr.Error()),
		)
	}
}
