// Package service implements the escrow payment flow: collection into
// escrow, reconciliation of gateway callbacks, disbursement to the provider
// and close-out.
//
// Outbound gateway calls are guarded by an initiation lease written to the
// job before the call, so at most one collection and one disbursement can be
// in flight per job. A failed call releases the lease and leaves the status
// untouched, which makes a fresh initiation always a safe retry.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/gateway"
	"github.com/cuongbtq/escrow-pay/internal/payment/ledger"
	"github.com/cuongbtq/escrow-pay/internal/payment/session"
)

const (
	// DefaultInitiationLease bounds how long an outbound initiation may hold a job
	DefaultInitiationLease = 60 * time.Second
	// DefaultSessionTTL is the pending collection session expiry window
	DefaultSessionTTL = 15 * time.Minute
)

// errLeaseLost aborts a lease release when another initiation owns the job
var errLeaseLost = errors.New("initiation lease no longer held")

// Config holds the collaborators shared by the payment services
type Config struct {
	Ledger          ledger.Ledger
	Sessions        session.Store
	Gateway         gateway.Client
	Logger          *slog.Logger
	InitiationLease time.Duration
	SessionTTL      time.Duration
}

func (c *Config) lease() time.Duration {
	if c.InitiationLease <= 0 {
		return DefaultInitiationLease
	}
	return c.InitiationLease
}

func (c *Config) sessionTTL() time.Duration {
	if c.SessionTTL <= 0 {
		return DefaultSessionTTL
	}
	return c.SessionTTL
}

// leaseDeadline is truncated to the precision PostgreSQL keeps, so the value
// read back compares equal to the one written
func leaseDeadline(now time.Time, d time.Duration) time.Time {
	return now.Add(d).UTC().Truncate(time.Microsecond)
}

// releaseLease clears the initiation lease if it is still the one we took
func releaseLease(ctx context.Context, l ledger.Ledger, logger *slog.Logger, jobID string, lease time.Time) {
	_, err := l.Update(ctx, jobID, func(job *domain.Job) error {
		if !job.InitiationLeaseUntil.Equal(lease) {
			return errLeaseLost
		}
		job.InitiationLeaseUntil = time.Time{}
		return nil
	})
	if err != nil && !errors.Is(err, errLeaseLost) {
		logger.Warn("Failed to release initiation lease",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}
