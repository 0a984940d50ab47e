// Package ledger holds the job ledger: the durable store of job records,
// their payment status and correlation ids.
//
// All read-modify-write access goes through Update, which applies the
// mutation as one atomic unit scoped to a single job. Unrelated jobs never
// contend with each other.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

const (
	// DefaultPageSize is used when a list filter carries no page size
	DefaultPageSize = 20
	// MaxPageSize caps list requests
	MaxPageSize = 100
)

// MutateFunc changes a job in place. Returning an error aborts the update
// and nothing is written.
type MutateFunc func(job *domain.Job) error

// Ledger is the job ledger contract consumed by the payment services
type Ledger interface {
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	FindByCollectionCorrelation(ctx context.Context, correlationID string) (*domain.Job, error)
	FindByDisbursementCorrelation(ctx context.Context, correlationID string) (*domain.Job, error)
	Update(ctx context.Context, jobID string, fn MutateFunc) (*domain.Job, error)
	List(ctx context.Context, filter Filter) ([]domain.Job, error)
}

// Filter narrows List results. Results are ordered by created_at DESC, id DESC
// and one extra row past PageSize is returned so callers can detect more pages.
type Filter struct {
	OwnerID  string
	Status   domain.Status
	PageSize int
	Cursor   *Cursor
}

// Cursor is the keyset position of the last row of a previous page
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

func (f Filter) limit() int {
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return size + 1
}

func (f Filter) matches(job *domain.Job) bool {
	if f.OwnerID != "" && job.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.Cursor != nil {
		if job.CreatedAt.After(f.Cursor.CreatedAt) {
			return false
		}
		if job.CreatedAt.Equal(f.Cursor.CreatedAt) && job.ID >= f.Cursor.JobID {
			return false
		}
	}
	return true
}

// prepareNew validates and stamps a job before its first write
func prepareNew(job *domain.Job, now time.Time) (*domain.Job, error) {
	if job.ID == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrValidation)
	}
	if job.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if job.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", domain.ErrValidation)
	}

	next := job.Clone()
	next.Status = domain.StatusCreated
	next.CollectionCorrelationID = ""
	next.DisbursementCorrelationID = ""
	next.PaymentReceipt = ""
	next.DisbursementReceipt = ""
	next.DisbursementResolution = domain.ResolutionNone
	next.Escrowed = false
	next.Version = 1
	next.CreatedAt = now
	next.UpdatedAt = now
	return next, nil
}

// checkMutation enforces the ledger invariants on a mutated copy
func checkMutation(before, after *domain.Job) error {
	if after.ID != before.ID || after.OwnerID != before.OwnerID || !after.CreatedAt.Equal(before.CreatedAt) {
		return fmt.Errorf("%w: job identity is immutable", domain.ErrValidation)
	}
	if after.Status != before.Status && !domain.CanTransition(before.Status, after.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, before.Status, after.Status)
	}
	if before.Escrowed && after.Amount != before.Amount {
		return fmt.Errorf("%w: amount is fixed once in escrow", domain.ErrValidation)
	}
	if after.DisbursementCorrelationID != "" && !after.Escrowed {
		return fmt.Errorf("%w: disbursement correlation requires escrow", domain.ErrValidation)
	}
	return nil
}
