package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// STKCallback is the collection webhook body
type STKCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// B2CResult is the disbursement result and timeout webhook body
type B2CResult struct {
	Result struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               *int   `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
		ResultParameters         struct {
			ResultParameter []struct {
				Key   string `json:"Key"`
				Value any    `json:"Value"`
			} `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

func decode(raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidEvent)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, err)
	}
	return nil
}

// ParseCollectionCallback turns a collection webhook body into a callback event
func ParseCollectionCallback(raw []byte, receivedAt time.Time) (domain.CallbackEvent, error) {
	var body STKCallback
	if err := decode(raw, &body); err != nil {
		return domain.CallbackEvent{}, err
	}

	cb := body.Body.StkCallback
	if cb.ResultCode == nil {
		return domain.CallbackEvent{}, fmt.Errorf("%w: missing result code", domain.ErrInvalidEvent)
	}

	event := domain.CallbackEvent{
		Kind:          domain.CallbackCollection,
		CorrelationID: cb.CheckoutRequestID,
		ResultCode:    *cb.ResultCode,
		ResultDesc:    cb.ResultDesc,
		Raw:           append(json.RawMessage(nil), raw...),
		ReceivedAt:    receivedAt,
	}
	for _, item := range cb.CallbackMetadata.Item {
		event.Metadata = append(event.Metadata, domain.MetadataItem{Name: item.Name, Value: item.Value})
	}

	return event, event.Validate()
}

// ParseDisbursementResult turns a disbursement result webhook body into a callback event
func ParseDisbursementResult(raw []byte, receivedAt time.Time) (domain.CallbackEvent, error) {
	event, err := parseB2C(raw, receivedAt, domain.CallbackDisbursementResult)
	if err != nil {
		return event, err
	}
	return event, event.Validate()
}

// ParseDisbursementTimeout turns a queue timeout webhook body into a callback event
func ParseDisbursementTimeout(raw []byte, receivedAt time.Time) (domain.CallbackEvent, error) {
	event, err := parseB2C(raw, receivedAt, domain.CallbackDisbursementTimeout)
	if err != nil {
		return event, err
	}
	return event, event.Validate()
}

func parseB2C(raw []byte, receivedAt time.Time, kind domain.CallbackKind) (domain.CallbackEvent, error) {
	var body B2CResult
	if err := decode(raw, &body); err != nil {
		return domain.CallbackEvent{}, err
	}

	res := body.Result
	if kind == domain.CallbackDisbursementResult && res.ResultCode == nil {
		return domain.CallbackEvent{}, fmt.Errorf("%w: missing result code", domain.ErrInvalidEvent)
	}

	event := domain.CallbackEvent{
		Kind:          kind,
		CorrelationID: res.ConversationID,
		ResultDesc:    res.ResultDesc,
		Raw:           append(json.RawMessage(nil), raw...),
		ReceivedAt:    receivedAt,
	}
	if res.ResultCode != nil {
		event.ResultCode = *res.ResultCode
	}

	hasReceipt := false
	for _, p := range res.ResultParameters.ResultParameter {
		if p.Key == domain.MetadataKeyDisbursementReceipt {
			hasReceipt = true
		}
		event.Metadata = append(event.Metadata, domain.MetadataItem{Name: p.Key, Value: p.Value})
	}
	if !hasReceipt && res.TransactionID != "" {
		event.Metadata = append(event.Metadata, domain.MetadataItem{
			Name:  domain.MetadataKeyDisbursementReceipt,
			Value: res.TransactionID,
		})
	}

	return event, nil
}
