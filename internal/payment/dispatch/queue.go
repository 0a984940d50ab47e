package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher publishes a message under a routing key, retrying transient failures; shared/rabbitmq.Client satisfies it
type Publisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Queue publishes callbacks to RabbitMQ for the worker service.
// If publishing fails and a fallback is set, the event goes to the fallback.
type Queue struct {
	publisher Publisher
	fallback  Dispatcher
	logger    *slog.Logger
	timeout   time.Duration
}

// NewQueue creates a queue dispatcher; fallback may be nil
func NewQueue(publisher Publisher, fallback Dispatcher, logger *slog.Logger) *Queue {
	return &Queue{
		publisher: publisher,
		fallback:  fallback,
		logger:    logger,
		timeout:   defaultPublishTimeout,
	}
}

// Dispatch publishes the event JSON with routing key payments.callback.<kind>
func (q *Queue) Dispatch(ctx context.Context, event domain.CallbackEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
	defer cancel()

	err = q.publisher.PublishWithRetry(pubCtx, RoutingKey(event.Kind), body, "application/json")
	if err == nil {
		q.logger.Debug("Callback event queued",
			slog.String("kind", string(event.Kind)),
			slog.String("correlation_id", event.CorrelationID),
		)
		return nil
	}

	if q.fallback == nil {
		q.logger.Error("Failed to queue callback event, dropping",
			slog.String("kind", string(event.Kind)),
			slog.String("correlation_id", event.CorrelationID),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", ErrDropped, err)
	}

	q.logger.Warn("Failed to queue callback event, processing inline",
		slog.String("kind", string(event.Kind)),
		slog.String("correlation_id", event.CorrelationID),
		slog.Any("error", err),
	)
	return q.fallback.Dispatch(ctx, event)
}
