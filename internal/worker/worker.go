// Package worker consumes gateway callback events from RabbitMQ and applies
// them to the job ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/dispatch"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultProcessTimeout = 30 * time.Second

// Consumer opens a delivery stream; shared/rabbitmq.Client satisfies it
type Consumer interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// Config holds worker configuration
type Config struct {
	Logger         *slog.Logger
	Consumer       Consumer
	Applier        dispatch.Applier
	QueueName      string
	Concurrency    int
	ProcessTimeout time.Duration
}

// Worker represents the callback event worker
type Worker struct {
	logger         *slog.Logger
	consumer       Consumer
	applier        dispatch.Applier
	queueName      string
	workerID       string
	concurrency    int
	processTimeout time.Duration
	eventsChan     chan *eventMessage
	wg             sync.WaitGroup
	stopOnce       sync.Once
	stopChan       chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	timeout := cfg.ProcessTimeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}

	return &Worker{
		logger:         cfg.Logger,
		consumer:       cfg.Consumer,
		applier:        cfg.Applier,
		queueName:      cfg.QueueName,
		workerID:       "worker-" + uuid.NewString()[:8],
		concurrency:    concurrency,
		processTimeout: timeout,
		eventsChan:     make(chan *eventMessage, concurrency),
		stopChan:       make(chan struct{}),
	}
}

// Start consumes deliveries until ctx is canceled. If the broker closes the
// stream it returns ErrDeliveriesClosed once buffered events are handed off.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("process_timeout", w.processTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	err = w.startMessageDispatcher(ctx, deliveries)

	// No more deliveries will be handed to the pool
	close(w.eventsChan)
	return err
}

// Stop waits for in-flight events to settle
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
