// Package dispatch hands parsed gateway callbacks off for processing so the
// webhook handler can acknowledge the gateway without waiting on the ledger.
package dispatch

import (
	"context"
	"errors"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// ErrDropped is returned when an event could not be handed off at all
var ErrDropped = errors.New("callback event dropped")

// Dispatcher accepts a callback event for asynchronous reconciliation.
// Dispatch must return promptly.
type Dispatcher interface {
	Dispatch(ctx context.Context, event domain.CallbackEvent) error
}

// Applier applies a callback event; the service Reconciler satisfies it
type Applier interface {
	Apply(ctx context.Context, event domain.CallbackEvent) error
}

// RoutingKey is the queue routing key for a callback kind
func RoutingKey(kind domain.CallbackKind) string {
	return "payments.callback." + string(kind)
}
