// Package sweeper removes pending collection sessions that outlived their
// expiry window.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/session"
	"github.com/robfig/cron/v3"
)

const (
	// DefaultInterval is how often the sweep runs
	DefaultInterval = 5 * time.Minute
	// DefaultExpiry is how old a session must be before it is swept
	DefaultExpiry = 15 * time.Minute
)

// Config holds sweeper settings
type Config struct {
	Store    session.Store
	Logger   *slog.Logger
	Interval time.Duration
	Expiry   time.Duration
}

// Sweeper deletes expired sessions on a cron schedule
type Sweeper struct {
	store    session.Store
	logger   *slog.Logger
	interval time.Duration
	expiry   time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a new session sweeper
func New(cfg Config) *Sweeper {
	s := &Sweeper{
		store:    cfg.Store,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		expiry:   cfg.Expiry,
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.expiry <= 0 {
		s.expiry = DefaultExpiry
	}
	return s
}

// Start schedules the sweep. Runs never overlap.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if _, err := s.Sweep(ctx, time.Now()); err != nil {
			s.logger.Error("Session sweep failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	c.Start()
	s.cron = c

	s.logger.Info("Session sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("expiry", s.expiry),
	)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Session sweeper stopped")
}

// Sweep deletes every session created before now minus the expiry window and
// returns how many it removed. A session consumed between listing and
// deletion is left to its consumer.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-s.expiry)

	expired, err := s.store.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	removed := 0
	for _, sess := range expired {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}

		ok, err := s.store.Expire(ctx, sess.Token, cutoff)
		if err != nil {
			s.logger.Warn("Failed to expire session",
				slog.String("job_id", sess.JobID),
				slog.Any("error", err),
			)
			continue
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Expired collection sessions",
			slog.Int("count", removed),
			slog.Time("cutoff", cutoff),
		)
	}
	return removed, nil
}
