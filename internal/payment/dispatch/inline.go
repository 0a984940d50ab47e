package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"golang.org/x/sync/semaphore"
)

// Inline dispatcher defaults
const (
	DefaultInlineWorkers  = 4
	DefaultInlineBuffer   = 256
	DefaultInlineOverflow = 64
	DefaultInlineRetries  = 2
	defaultApplyTimeout   = 30 * time.Second
	defaultRetryDelay     = 500 * time.Millisecond
)

// InlineConfig configures the in-process dispatcher
type InlineConfig struct {
	Applier      Applier
	Logger       *slog.Logger
	Workers      int
	Buffer       int
	Overflow     int64
	ApplyTimeout time.Duration
	// Retries bounds re-applies of an event that failed with a RetryableError
	Retries      int
	RetryDelay   time.Duration
}

// Inline reconciles callbacks on a fixed pool of goroutines inside the API
// process. When the buffer is full, up to Overflow extra goroutines are
// spawned; beyond that the event is dropped and logged.
type Inline struct {
	applier    Applier
	logger     *slog.Logger
	events     chan domain.CallbackEvent
	overflow   *semaphore.Weighted
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	workers    int

	// mu orders hand-offs before Stop: Dispatch holds it shared from the
	// stopped check through the enqueue or wg.Add
	mu       sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewInline creates an in-process dispatcher. Call Start before dispatching.
func NewInline(cfg InlineConfig) *Inline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultInlineWorkers
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = DefaultInlineBuffer
	}
	overflow := cfg.Overflow
	if overflow <= 0 {
		overflow = DefaultInlineOverflow
	}
	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = defaultApplyTimeout
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = DefaultInlineRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Inline{
		applier:  cfg.Applier,
		logger:   cfg.Logger,
		events:   make(chan domain.CallbackEvent, buffer),
		overflow: semaphore.NewWeighted(overflow),
		timeout:    timeout,
		retries:    retries,
		retryDelay: retryDelay,
		workers:    workers,
		stopChan:   make(chan struct{}),
	}
}

// Start spawns the worker goroutines
func (d *Inline) Start(ctx context.Context) {
	d.logger.Info("Starting inline callback dispatcher",
		slog.Int("workers", d.workers),
		slog.Int("buffer", cap(d.events)),
	)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(ctx, i)
	}
}

// Dispatch queues the event, never blocking on the ledger
func (d *Inline) Dispatch(ctx context.Context, event domain.CallbackEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return fmt.Errorf("%w: dispatcher stopped", ErrDropped)
	}

	select {
	case d.events <- event:
		return nil
	default:
	}

	if !d.overflow.TryAcquire(1) {
		d.logger.Error("Callback buffer full, dropping event",
			slog.String("kind", string(event.Kind)),
			slog.String("correlation_id", event.CorrelationID),
			slog.Int("result_code", event.ResultCode),
		)
		return fmt.Errorf("%w: buffer full", ErrDropped)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.overflow.Release(1)
		d.apply(context.WithoutCancel(ctx), event)
	}()
	return nil
}

// Stop stops accepting events, drains the buffer and waits for the workers
func (d *Inline) Stop() {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.stopChan)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Inline callback dispatcher stopped")
}

func (d *Inline) workerLoop(ctx context.Context, workerNum int) {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.events:
			d.apply(ctx, event)
		case <-d.stopChan:
			d.drain(ctx)
			return
		case <-ctx.Done():
			d.logger.Info("Callback worker stopping - context canceled",
				slog.Int("worker_num", workerNum),
			)
			return
		}
	}
}

func (d *Inline) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.events:
			d.apply(ctx, event)
		default:
			return
		}
	}
}

// apply reconciles one event, re-applying transient failures since the
// gateway has already been acknowledged
func (d *Inline) apply(ctx context.Context, event domain.CallbackEvent) {
	var err error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
			}
		}

		err = d.applyOnce(ctx, event)
		var retryableErr *domain.RetryableError
		if !errors.As(err, &retryableErr) {
			break
		}

		d.logger.Warn("Callback reconciliation failed, retrying",
			slog.String("kind", string(event.Kind)),
			slog.String("correlation_id", event.CorrelationID),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err),
		)
	}

	if err == nil || domain.IsDiscardable(err) {
		// Discards are logged by the reconciler
		return
	}

	d.logger.Error("Callback reconciliation failed",
		slog.String("kind", string(event.Kind)),
		slog.String("correlation_id", event.CorrelationID),
		slog.Any("error", err),
	)
}

func (d *Inline) applyOnce(ctx context.Context, event domain.CallbackEvent) error {
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	return d.applier.Apply(applyCtx, event)
}
