package dto

import (
	"testing"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stkSuccess = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const stkCancelled = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

const b2cSuccess = `{
  "Result": {
    "ResultType": 0,
    "ResultCode": 0,
    "ResultDesc": "The service request is processed successfully.",
    "OriginatorConversationID": "10571-7910404-1",
    "ConversationID": "AG_20191219_00004e48cf7e3533f581",
    "TransactionID": "NLJ41HAY6Q",
    "ResultParameters": {
      "ResultParameter": [
        {"Key": "TransactionAmount", "Value": 10},
        {"Key": "TransactionReceipt", "Value": "NLJ41HAY6Q"}
      ]
    }
  }
}`

func TestParseCollectionCallback(t *testing.T) {
	now := time.Now()

	event, err := ParseCollectionCallback([]byte(stkSuccess), now)
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackCollection, event.Kind)
	assert.Equal(t, "ws_CO_191220191020363925", event.CorrelationID)
	assert.True(t, event.Succeeded())
	assert.Equal(t, "NLJ7RT61SV", event.Lookup(domain.MetadataKeyCollectionReceipt))
	assert.Equal(t, "254708374149", event.Lookup("PhoneNumber"))
	assert.Empty(t, event.Lookup("Balance"))
	assert.JSONEq(t, stkSuccess, string(event.Raw))
	assert.Equal(t, now, event.ReceivedAt)

	event, err = ParseCollectionCallback([]byte(stkCancelled), now)
	require.NoError(t, err)
	assert.False(t, event.Succeeded())
	assert.Equal(t, 1032, event.ResultCode)
	assert.Equal(t, "Request cancelled by user", event.ResultDesc)
}

func TestParseCollectionCallback_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "ResultCode=0"},
		{"missing correlation", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{"missing result code", `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCollectionCallback([]byte(tt.body), time.Now())
			assert.ErrorIs(t, err, domain.ErrInvalidEvent)
		})
	}
}

func TestParseDisbursementResult(t *testing.T) {
	event, err := ParseDisbursementResult([]byte(b2cSuccess), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackDisbursementResult, event.Kind)
	assert.Equal(t, "AG_20191219_00004e48cf7e3533f581", event.CorrelationID)
	assert.True(t, event.Succeeded())
	assert.Equal(t, "NLJ41HAY6Q", event.Lookup(domain.MetadataKeyDisbursementReceipt))
	assert.Equal(t, "10", event.Lookup("TransactionAmount"))
}

func TestParseDisbursementResult_ReceiptFromTransactionID(t *testing.T) {
	body := `{"Result":{"ResultCode":0,"ConversationID":"AG_1","TransactionID":"TX123"}}`

	event, err := ParseDisbursementResult([]byte(body), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "TX123", event.Lookup(domain.MetadataKeyDisbursementReceipt))
}

func TestParseDisbursementResult_Invalid(t *testing.T) {
	_, err := ParseDisbursementResult([]byte(`{"Result":{"ConversationID":"AG_1"}}`), time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	_, err = ParseDisbursementResult([]byte(`{"Result":{"ResultCode":0}}`), time.Now())
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestParseDisbursementTimeout(t *testing.T) {
	body := `{"Result":{"ResultType":1,"ResultDesc":"The request timed out","ConversationID":"AG_1"}}`

	event, err := ParseDisbursementTimeout([]byte(body), time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.CallbackDisbursementTimeout, event.Kind)
	assert.Equal(t, "AG_1", event.CorrelationID)
	assert.False(t, event.Succeeded())
}
