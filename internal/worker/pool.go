package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop processes events until the events channel is closed.
// Buffered events are still settled after ctx is canceled.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)

	for msg := range w.eventsChan {
		err := w.processEvent(ctx, msg)
		w.settle(workerName, msg, err)
	}

	w.logger.Info("Worker goroutine stopping - events channel closed",
		slog.String("worker_name", workerName),
	)
}

// settle acknowledges the delivery based on the processing result
func (w *Worker) settle(workerName string, msg *eventMessage, err error) {
	attrs := []any{
		slog.String("worker_name", workerName),
		slog.String("kind", string(msg.Event.Kind)),
		slog.String("correlation_id", msg.Event.CorrelationID),
	}

	if err == nil || domain.IsDiscardable(err) {
		if ackErr := msg.Delivery.Ack(false); ackErr != nil {
			w.logger.Error("Failed to ACK message", append(attrs, slog.String("error", ackErr.Error()))...)
		}
		return
	}

	requeue := w.shouldRequeue(err, msg.Delivery.Redelivered)
	if nackErr := msg.Delivery.Nack(false, requeue); nackErr != nil {
		w.logger.Error("Failed to NACK message", append(attrs, slog.String("error", nackErr.Error()))...)
		return
	}

	w.logger.Warn("Message NACKed", append(attrs,
		slog.Bool("requeue", requeue),
		slog.String("error", err.Error()),
	)...)
}

// shouldRequeue requeues transient failures once; a redelivered message that
// fails again is dead-lettered
func (w *Worker) shouldRequeue(err error, redelivered bool) bool {
	if redelivered {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
