package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Resolution records how a disbursement correlation was last resolved
type Resolution string

const (
	ResolutionNone    Resolution = ""
	ResolutionResult  Resolution = "result"
	ResolutionTimeout Resolution = "timeout"
)

// Job is one unit of paid work as held by the job ledger
type Job struct {
	ID                        string          `json:"id"`
	OwnerID                   string          `json:"owner_id"`
	Status                    Status          `json:"status"`
	Amount                    int64           `json:"amount"`
	PayerAddress              string          `json:"payer_address,omitempty"`
	Reference                 string          `json:"reference,omitempty"`
	CollectionCorrelationID   string          `json:"collection_correlation_id,omitempty"`
	PaymentReceipt            string          `json:"payment_receipt,omitempty"`
	CollectionMetadata        json.RawMessage `json:"collection_metadata,omitempty"`
	ProviderPayoutTarget      string          `json:"provider_payout_target,omitempty"`
	DisbursementCorrelationID string          `json:"disbursement_correlation_id,omitempty"`
	DisbursementReceipt       string          `json:"disbursement_receipt,omitempty"`
	DisbursementMetadata      json.RawMessage `json:"disbursement_metadata,omitempty"`
	DisbursementResolution    Resolution      `json:"disbursement_resolution,omitempty"`
	FailureReason             string          `json:"failure_reason,omitempty"`
	Escrowed                  bool            `json:"escrowed"`
	InitiationLeaseUntil      time.Time       `json:"-"`
	Version                   int64           `json:"version"`
	CreatedAt                 time.Time       `json:"created_at"`
	UpdatedAt                 time.Time       `json:"updated_at"`
}

// TransitionTo moves the job to the given status if the state machine allows it
func (j *Job) TransitionTo(to Status) error {
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	if to == StatusInEscrow {
		j.Escrowed = true
	}
	return nil
}

// LeaseHeld reports whether an outbound initiation call is currently in flight
func (j *Job) LeaseHeld(now time.Time) bool {
	return j.InitiationLeaseUntil.After(now)
}

// Clone returns a deep copy of the job
func (j *Job) Clone() *Job {
	c := *j
	if j.CollectionMetadata != nil {
		c.CollectionMetadata = append(json.RawMessage(nil), j.CollectionMetadata...)
	}
	if j.DisbursementMetadata != nil {
		c.DisbursementMetadata = append(json.RawMessage(nil), j.DisbursementMetadata...)
	}
	return &c
}
