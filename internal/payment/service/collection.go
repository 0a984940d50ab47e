package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/gateway"
	"github.com/google/uuid"
)

// CollectionRequest initiates a push payment from the payer into escrow
type CollectionRequest struct {
	JobID        string
	Amount       int64
	PayerAddress string
	Reference    string
}

func (r *CollectionRequest) validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	if r.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if strings.TrimSpace(r.PayerAddress) == "" {
		return fmt.Errorf("%w: payer address is required", domain.ErrValidation)
	}
	return nil
}

// CollectionResult is returned once the gateway accepted the collection.
// Payment confirmation arrives later through the collection callback.
type CollectionResult struct {
	JobID           string
	CorrelationID   string
	SessionToken    string
	Status          domain.Status
	CustomerMessage string
}

// SessionOutcome is what a pending collection session resolves to
type SessionOutcome struct {
	JobID          string
	CorrelationID  string
	Status         domain.Status
	PaymentReceipt string
	FailureReason  string
	Pending        bool
}

// Collector is the collection orchestrator
type Collector struct {
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewCollector creates a new collection orchestrator
func NewCollector(cfg *Config) *Collector {
	return &Collector{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// InitiateCollection reserves the job, asks the gateway to collect and
// records the returned correlation id
func (c *Collector) InitiateCollection(ctx context.Context, req CollectionRequest) (*CollectionResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	lease := leaseDeadline(c.now(), c.cfg.lease())

	// Step 1: Reserve the job for one outbound call
	_, err := c.cfg.Ledger.Update(ctx, req.JobID, func(job *domain.Job) error {
		if job.Status == domain.StatusCollectionInitiated {
			return fmt.Errorf("%w: collection %s already outstanding", domain.ErrConflict, job.CollectionCorrelationID)
		}
		if !job.Status.CollectionRetryable() {
			return fmt.Errorf("%w: job is %s", domain.ErrConflict, job.Status)
		}
		if job.LeaseHeld(c.now()) {
			return fmt.Errorf("%w: initiation already in progress", domain.ErrConflict)
		}
		job.InitiationLeaseUntil = lease
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The reservation must be resolved even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	// Step 2: Call the gateway; the call may not outlive the lease
	callCtx, cancel := context.WithDeadline(ctx, lease)
	resp, err := c.cfg.Gateway.Collect(callCtx, gateway.CollectRequest{
		Amount:       req.Amount,
		PayerAddress: req.PayerAddress,
		Reference:    req.Reference,
	})
	cancel()
	if err != nil {
		c.logger.Error("Collection request failed",
			slog.String("job_id", req.JobID),
			slog.Any("error", err),
		)
		releaseLease(ctx, c.cfg.Ledger, c.logger, req.JobID, lease)
		return nil, domain.NewGatewayError("collect", err)
	}

	// Step 3: Commit the correlation id
	job, err := c.cfg.Ledger.Update(ctx, req.JobID, func(job *domain.Job) error {
		if !job.InitiationLeaseUntil.Equal(lease) {
			return fmt.Errorf("%w: initiation lease lost", domain.ErrConflict)
		}
		job.Amount = req.Amount
		job.PayerAddress = req.PayerAddress
		job.Reference = req.Reference
		job.CollectionCorrelationID = resp.CorrelationID
		job.PaymentReceipt = ""
		job.CollectionMetadata = nil
		job.FailureReason = ""
		job.InitiationLeaseUntil = time.Time{}
		return job.TransitionTo(domain.StatusCollectionInitiated)
	})
	if err != nil {
		c.logger.Error("Failed to record collection correlation",
			slog.String("job_id", req.JobID),
			slog.String("correlation_id", resp.CorrelationID),
			slog.Any("error", err),
		)
		releaseLease(ctx, c.cfg.Ledger, c.logger, req.JobID, lease)
		if errors.Is(err, domain.ErrCorrelationInUse) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return nil, err
	}

	c.logger.Info("Collection initiated",
		slog.String("job_id", job.ID),
		slog.String("correlation_id", job.CollectionCorrelationID),
		slog.Int64("amount", job.Amount),
	)

	// Step 4: Open the pending session the client resolves later
	token := c.openSession(ctx, job)

	return &CollectionResult{
		JobID:           job.ID,
		CorrelationID:   job.CollectionCorrelationID,
		SessionToken:    token,
		Status:          job.Status,
		CustomerMessage: resp.CustomerMessage,
	}, nil
}

// openSession stores a pending session; failure only costs the client the token
func (c *Collector) openSession(ctx context.Context, job *domain.Job) string {
	payload, _ := json.Marshal(map[string]any{
		"amount":    job.Amount,
		"reference": job.Reference,
	})

	s := &domain.Session{
		Token:         uuid.NewString(),
		JobID:         job.ID,
		CorrelationID: job.CollectionCorrelationID,
		CreatedAt:     c.now().UTC(),
		Payload:       payload,
	}

	if err := c.cfg.Sessions.Put(ctx, s); err != nil {
		c.logger.Warn("Failed to open collection session",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return ""
	}
	return s.Token
}

// ResolveSession consumes the session once its collection has an outcome.
// While the collection is still pending the session stays in place.
func (c *Collector) ResolveSession(ctx context.Context, token string) (*SessionOutcome, error) {
	s, err := c.cfg.Sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if s.ExpiredAt(c.now().Add(-c.cfg.sessionTTL())) {
		return nil, domain.ErrSessionNotFound
	}

	job, err := c.cfg.Ledger.Get(ctx, s.JobID)
	if err != nil {
		return nil, err
	}

	outcome := &SessionOutcome{
		JobID:         s.JobID,
		CorrelationID: s.CorrelationID,
		Status:        job.Status,
	}

	if job.CollectionCorrelationID == s.CorrelationID && job.Status == domain.StatusCollectionInitiated {
		outcome.Pending = true
		return outcome, nil
	}

	if _, err := c.cfg.Sessions.Consume(ctx, token); err != nil {
		return nil, err
	}

	if job.CollectionCorrelationID == s.CorrelationID {
		outcome.PaymentReceipt = job.PaymentReceipt
		outcome.FailureReason = job.FailureReason
	}

	c.logger.Info("Collection session consumed",
		slog.String("job_id", s.JobID),
		slog.String("correlation_id", s.CorrelationID),
		slog.String("status", job.Status.String()),
	)

	return outcome, nil
}
