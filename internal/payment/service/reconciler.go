package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/ledger"
)

// Reconciler applies gateway callbacks to the job ledger.
//
// Every handler correlates the event to a job and applies the transition
// only if the job is still waiting on that correlation. Unknown and repeated
// callbacks come back as ErrCorrelationNotFound / ErrDuplicateCallback; they
// are logged here and must never reach the gateway as a failure.
type Reconciler struct {
	ledger ledger.Ledger
	logger *slog.Logger
}

// NewReconciler creates a new callback reconciler
func NewReconciler(cfg *Config) *Reconciler {
	return &Reconciler{
		ledger: cfg.Ledger,
		logger: cfg.Logger,
	}
}

// Apply routes the event to its handler
func (r *Reconciler) Apply(ctx context.Context, event domain.CallbackEvent) error {
	if err := event.Validate(); err != nil {
		r.logger.Warn("Discarding invalid callback",
			slog.String("kind", string(event.Kind)),
			slog.Any("error", err),
		)
		return err
	}

	switch event.Kind {
	case domain.CallbackCollection:
		return r.HandleCollectionCallback(ctx, event)
	case domain.CallbackDisbursementResult:
		return r.HandleDisbursementResult(ctx, event)
	default:
		return r.HandleDisbursementTimeout(ctx, event.CorrelationID)
	}
}

// HandleCollectionCallback moves a collection_initiated job to in_escrow or payment_failed
func (r *Reconciler) HandleCollectionCallback(ctx context.Context, event domain.CallbackEvent) error {
	cid := event.CorrelationID

	job, err := r.ledger.FindByCollectionCorrelation(ctx, cid)
	if err != nil {
		return r.outcome(event.Kind, cid, "", err)
	}

	metadata := eventMetadata(&event)

	updated, err := r.ledger.Update(ctx, job.ID, func(j *domain.Job) error {
		if j.CollectionCorrelationID != cid {
			return domain.ErrCorrelationNotFound
		}
		if j.Status != domain.StatusCollectionInitiated {
			return fmt.Errorf("%w: job already %s", domain.ErrDuplicateCallback, j.Status)
		}

		j.CollectionMetadata = metadata
		if event.Succeeded() {
			j.PaymentReceipt = event.Lookup(domain.MetadataKeyCollectionReceipt)
			j.FailureReason = ""
			return j.TransitionTo(domain.StatusInEscrow)
		}

		j.FailureReason = failureReason(&event)
		return j.TransitionTo(domain.StatusPaymentFailed)
	})
	if err != nil {
		return r.outcome(event.Kind, cid, job.ID, err)
	}

	r.logger.Info("Collection callback applied",
		slog.String("job_id", updated.ID),
		slog.String("correlation_id", cid),
		slog.String("status", updated.Status.String()),
		slog.String("receipt", updated.PaymentReceipt),
	)
	return nil
}

// HandleDisbursementResult moves a disbursement to paid or disbursement_failed.
// A result that arrives after a timeout is still honored while the job
// carries the same correlation and no earlier result was recorded.
func (r *Reconciler) HandleDisbursementResult(ctx context.Context, event domain.CallbackEvent) error {
	cid := event.CorrelationID

	job, err := r.ledger.FindByDisbursementCorrelation(ctx, cid)
	if err != nil {
		return r.outcome(event.Kind, cid, "", err)
	}

	metadata := eventMetadata(&event)

	updated, err := r.ledger.Update(ctx, job.ID, func(j *domain.Job) error {
		if j.DisbursementCorrelationID != cid {
			return domain.ErrCorrelationNotFound
		}

		lateAfterTimeout := j.Status == domain.StatusDisbursementFailed &&
			j.DisbursementResolution == domain.ResolutionTimeout
		if j.Status != domain.StatusDisbursementInitiated && !lateAfterTimeout {
			return fmt.Errorf("%w: job already %s", domain.ErrDuplicateCallback, j.Status)
		}

		j.DisbursementResolution = domain.ResolutionResult
		j.DisbursementMetadata = metadata
		if event.Succeeded() {
			j.DisbursementReceipt = event.Lookup(domain.MetadataKeyDisbursementReceipt)
			j.FailureReason = ""
			return j.TransitionTo(domain.StatusPaid)
		}

		j.FailureReason = failureReason(&event)
		if lateAfterTimeout {
			return nil
		}
		return j.TransitionTo(domain.StatusDisbursementFailed)
	})
	if err != nil {
		return r.outcome(event.Kind, cid, job.ID, err)
	}

	r.logger.Info("Disbursement result applied",
		slog.String("job_id", updated.ID),
		slog.String("correlation_id", cid),
		slog.String("status", updated.Status.String()),
		slog.String("receipt", updated.DisbursementReceipt),
	)
	return nil
}

// HandleDisbursementTimeout resolves a disbursement stuck waiting on the gateway
func (r *Reconciler) HandleDisbursementTimeout(ctx context.Context, correlationID string) error {
	kind := domain.CallbackDisbursementTimeout

	job, err := r.ledger.FindByDisbursementCorrelation(ctx, correlationID)
	if err != nil {
		return r.outcome(kind, correlationID, "", err)
	}

	updated, err := r.ledger.Update(ctx, job.ID, func(j *domain.Job) error {
		if j.DisbursementCorrelationID != correlationID {
			return domain.ErrCorrelationNotFound
		}
		if j.Status != domain.StatusDisbursementInitiated {
			return fmt.Errorf("%w: job already %s", domain.ErrDuplicateCallback, j.Status)
		}

		j.DisbursementResolution = domain.ResolutionTimeout
		j.FailureReason = "disbursement timed out at gateway"
		return j.TransitionTo(domain.StatusDisbursementFailed)
	})
	if err != nil {
		return r.outcome(kind, correlationID, job.ID, err)
	}

	r.logger.Warn("Disbursement timed out",
		slog.String("job_id", updated.ID),
		slog.String("correlation_id", correlationID),
	)
	return nil
}

// outcome logs discarded callbacks and classifies the remaining errors
func (r *Reconciler) outcome(kind domain.CallbackKind, correlationID, jobID string, err error) error {
	if domain.IsDiscardable(err) {
		r.logger.Info("Discarding callback",
			slog.String("kind", string(kind)),
			slog.String("correlation_id", correlationID),
			slog.String("job_id", jobID),
			slog.String("reason", err.Error()),
		)
		return err
	}

	r.logger.Error("Failed to apply callback",
		slog.String("kind", string(kind)),
		slog.String("correlation_id", correlationID),
		slog.String("job_id", jobID),
		slog.Any("error", err),
	)

	var retryable *domain.RetryableError
	if errors.As(err, &retryable) || errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	return domain.NewRetryableError(err)
}

// eventMetadata keeps the raw gateway body when present, the parsed items otherwise
func eventMetadata(event *domain.CallbackEvent) json.RawMessage {
	if len(event.Raw) > 0 {
		return append(json.RawMessage(nil), event.Raw...)
	}
	if len(event.Metadata) == 0 {
		return nil
	}
	data, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil
	}
	return data
}

func failureReason(event *domain.CallbackEvent) string {
	if event.ResultDesc != "" {
		return event.ResultDesc
	}
	return fmt.Sprintf("gateway result code %d", event.ResultCode)
}
