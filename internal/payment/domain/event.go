package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// CallbackKind identifies which asynchronous gateway notification an event carries
type CallbackKind string

const (
	CallbackCollection          CallbackKind = "collection"
	CallbackDisbursementResult  CallbackKind = "disbursement_result"
	CallbackDisbursementTimeout CallbackKind = "disbursement_timeout"
)

// ResultCodeSuccess is the gateway result code for a successful operation
const ResultCodeSuccess = 0

// Well-known metadata keys
const (
	MetadataKeyCollectionReceipt   = "MpesaReceiptNumber"
	MetadataKeyDisbursementReceipt = "TransactionReceipt"
)

// MetadataItem is one key/value entry of callback metadata
type MetadataItem struct {
	Name  string `json:"name"`
	Value any    `json:"value,omitempty"`
}

// CallbackEvent is a parsed gateway webhook, ready for reconciliation
type CallbackEvent struct {
	Kind          CallbackKind    `json:"kind"`
	CorrelationID string          `json:"correlation_id"`
	ResultCode    int             `json:"result_code"`
	ResultDesc    string          `json:"result_desc,omitempty"`
	Metadata      []MetadataItem  `json:"metadata,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	ReceivedAt    time.Time       `json:"received_at"`
}

// Validate checks that the event can be correlated
func (e *CallbackEvent) Validate() error {
	switch e.Kind {
	case CallbackCollection, CallbackDisbursementResult, CallbackDisbursementTimeout:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if e.CorrelationID == "" {
		return fmt.Errorf("%w: missing correlation id", ErrInvalidEvent)
	}
	return nil
}

// Succeeded reports whether the gateway reported success
func (e *CallbackEvent) Succeeded() bool {
	return e.Kind != CallbackDisbursementTimeout && e.ResultCode == ResultCodeSuccess
}

// Lookup returns the metadata value for name as a string, or "" if absent
func (e *CallbackEvent) Lookup(name string) string {
	for _, item := range e.Metadata {
		if item.Name != name {
			continue
		}
		switch v := item.Value.(type) {
		case nil:
			return ""
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}
