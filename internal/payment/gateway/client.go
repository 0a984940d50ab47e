// Package gateway talks to the external push-payment gateway.
//
// Both operations are asynchronous at the gateway: the response only carries
// the correlation id that a later webhook will reference. There is no retry
// inside this package; a failed call leaves it to the caller to try again.
package gateway

import (
	"context"
	"errors"
)

var (
	// ErrRejected is returned when the gateway answers but refuses the request
	ErrRejected = errors.New("gateway rejected request")

	// ErrMissingCredentials indicates that the client was configured without credentials
	ErrMissingCredentials = errors.New("gateway: consumer key and secret are required")
)

// Client is the outbound gateway contract
type Client interface {
	Collect(ctx context.Context, req CollectRequest) (*CollectResponse, error)
	Disburse(ctx context.Context, req DisburseRequest) (*DisburseResponse, error)
}

// CollectRequest asks the payer to authorize a push payment
type CollectRequest struct {
	Amount       int64
	PayerAddress string
	Reference    string
	Description  string
}

// CollectResponse carries the correlation id of the pending collection
type CollectResponse struct {
	CorrelationID     string
	MerchantRequestID string
	CustomerMessage   string
}

// DisburseRequest pays out to a payee
type DisburseRequest struct {
	Amount       int64
	PayeeAddress string
	Reference    string
	Remarks      string
}

// DisburseResponse carries the correlation id of the pending payout
type DisburseResponse struct {
	CorrelationID            string
	OriginatorConversationID string
}
