package domain

import "errors"

var (
	// ErrValidation is returned for malformed input such as a non-positive amount
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when the job is not in the required state or a
	// correlation is already outstanding for it
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the acting party does not own the job
	ErrForbidden = errors.New("forbidden")

	// ErrJobNotFound is returned when a job cannot be found in the ledger
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when creating a job whose id is already taken
	ErrJobExists = errors.New("job already exists")

	// ErrCorrelationNotFound is returned when a callback references an unknown correlation id
	ErrCorrelationNotFound = errors.New("correlation not found")

	// ErrCorrelationInUse is returned when a correlation id is already held by another job
	ErrCorrelationInUse = errors.New("correlation id already in use")

	// ErrDuplicateCallback is returned when a callback was already applied for its correlation
	ErrDuplicateCallback = errors.New("duplicate callback")

	// ErrInvalidTransition is returned when a status change is not an edge of the state machine
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrSessionNotFound is returned when a session token is unknown, consumed or expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidEvent is returned when a callback event cannot be decoded or is incomplete
	ErrInvalidEvent = errors.New("invalid callback event")
)

// GatewayError wraps a failed outbound call to the payment gateway.
// Job state is left unchanged, so the caller may retry.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return "gateway " + e.Op + " failed: " + e.Err.Error()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new gateway error for the named operation
func NewGatewayError(op string, err error) error {
	return &GatewayError{Op: op, Err: err}
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsDiscardable reports whether a callback error means the event should be
// acknowledged and dropped rather than retried
func IsDiscardable(err error) bool {
	return errors.Is(err, ErrCorrelationNotFound) ||
		errors.Is(err, ErrDuplicateCallback) ||
		errors.Is(err, ErrInvalidEvent)
}
