package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/gateway"
)

// DisbursementResult is returned once the gateway accepted the payout
type DisbursementResult struct {
	JobID         string
	CorrelationID string
	Status        domain.Status
}

// Disburser is the disbursement orchestrator
type Disburser struct {
	cfg    *Config
	logger *slog.Logger
	now    func() time.Time
}

// NewDisburser creates a new disbursement orchestrator
func NewDisburser(cfg *Config) *Disburser {
	return &Disburser{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}
}

// InitiateDisbursement pays the escrowed amount out to the provider.
// initiatedBy must be the paying party that owns the job.
func (d *Disburser) InitiateDisbursement(ctx context.Context, jobID, initiatedBy string) (*DisbursementResult, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(initiatedBy) == "" {
		return nil, fmt.Errorf("%w: initiated_by is required", domain.ErrValidation)
	}

	lease := leaseDeadline(d.now(), d.cfg.lease())
	var amount int64
	var target, reference string

	// Step 1: Authorize and reserve the job
	_, err := d.cfg.Ledger.Update(ctx, jobID, func(job *domain.Job) error {
		if job.OwnerID != initiatedBy {
			return fmt.Errorf("%w: %s does not own job %s", domain.ErrForbidden, initiatedBy, job.ID)
		}
		if job.Status == domain.StatusDisbursementInitiated {
			return fmt.Errorf("%w: disbursement %s already outstanding", domain.ErrConflict, job.DisbursementCorrelationID)
		}
		if !job.Status.DisbursementRetryable() {
			return fmt.Errorf("%w: job is %s", domain.ErrConflict, job.Status)
		}
		if job.ProviderPayoutTarget == "" {
			return fmt.Errorf("%w: provider payout target is required", domain.ErrValidation)
		}
		if job.LeaseHeld(d.now()) {
			return fmt.Errorf("%w: initiation already in progress", domain.ErrConflict)
		}
		amount = job.Amount
		target = job.ProviderPayoutTarget
		reference = job.Reference
		if reference == "" {
			reference = job.ID
		}
		job.InitiationLeaseUntil = lease
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)

	// Step 2: Call the gateway; the call may not outlive the lease
	callCtx, cancel := context.WithDeadline(ctx, lease)
	resp, err := d.cfg.Gateway.Disburse(callCtx, gateway.DisburseRequest{
		Amount:       amount,
		PayeeAddress: target,
		Reference:    reference,
	})
	cancel()
	if err != nil {
		d.logger.Error("Disbursement request failed",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		releaseLease(ctx, d.cfg.Ledger, d.logger, jobID, lease)
		return nil, domain.NewGatewayError("disburse", err)
	}

	// Step 3: Commit the correlation id
	job, err := d.cfg.Ledger.Update(ctx, jobID, func(job *domain.Job) error {
		if !job.InitiationLeaseUntil.Equal(lease) {
			return fmt.Errorf("%w: initiation lease lost", domain.ErrConflict)
		}
		job.DisbursementCorrelationID = resp.CorrelationID
		job.DisbursementReceipt = ""
		job.DisbursementMetadata = nil
		job.DisbursementResolution = domain.ResolutionNone
		job.FailureReason = ""
		job.InitiationLeaseUntil = time.Time{}
		return job.TransitionTo(domain.StatusDisbursementInitiated)
	})
	if err != nil {
		d.logger.Error("Failed to record disbursement correlation",
			slog.String("job_id", jobID),
			slog.String("correlation_id", resp.CorrelationID),
			slog.Any("error", err),
		)
		releaseLease(ctx, d.cfg.Ledger, d.logger, jobID, lease)
		if errors.Is(err, domain.ErrCorrelationInUse) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return nil, err
	}

	d.logger.Info("Disbursement initiated",
		slog.String("job_id", job.ID),
		slog.String("correlation_id", job.DisbursementCorrelationID),
		slog.String("initiated_by", initiatedBy),
		slog.Int64("amount", job.Amount),
	)

	return &DisbursementResult{
		JobID:         job.ID,
		CorrelationID: job.DisbursementCorrelationID,
		Status:        job.Status,
	}, nil
}
