package domain

// Status is the payment status of a job
type Status string

// Job payment status constants
const (
	StatusCreated               Status = "created"
	StatusCollectionInitiated   Status = "collection_initiated"
	StatusInEscrow              Status = "in_escrow"
	StatusPaymentFailed         Status = "payment_failed"
	StatusDisbursementInitiated Status = "disbursement_initiated"
	StatusPaid                  Status = "paid"
	StatusDisbursementFailed    Status = "disbursement_failed"
	StatusCompleted             Status = "completed"
)

// transitions lists every edge of the payment state machine.
// disbursement_failed -> paid exists only for a late result that supersedes a timeout.
var transitions = map[Status][]Status{
	StatusCreated:               {StatusCollectionInitiated},
	StatusPaymentFailed:         {StatusCollectionInitiated},
	StatusCollectionInitiated:   {StatusInEscrow, StatusPaymentFailed},
	StatusInEscrow:              {StatusDisbursementInitiated},
	StatusDisbursementFailed:    {StatusDisbursementInitiated, StatusPaid},
	StatusDisbursementInitiated: {StatusPaid, StatusDisbursementFailed},
	StatusPaid:                  {StatusCompleted},
}

// CanTransition reports whether from -> to is an edge of the state machine
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusCollectionInitiated, StatusInEscrow, StatusPaymentFailed,
		StatusDisbursementInitiated, StatusPaid, StatusDisbursementFailed, StatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// CollectionRetryable reports whether a new collection may be initiated from s
func (s Status) CollectionRetryable() bool {
	return s == StatusCreated || s == StatusPaymentFailed
}

// DisbursementRetryable reports whether a new disbursement may be initiated from s
func (s Status) DisbursementRetryable() bool {
	return s == StatusInEscrow || s == StatusDisbursementFailed
}

func (s Status) String() string {
	return string(s)
}
