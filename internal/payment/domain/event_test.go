package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackEvent_Lookup(t *testing.T) {
	event := &CallbackEvent{
		Kind:          CallbackCollection,
		CorrelationID: "C1",
		Metadata: []MetadataItem{
			{Name: "Amount", Value: float64(500)},
			{Name: MetadataKeyCollectionReceipt, Value: "R1"},
			{Name: "PhoneNumber", Value: float64(254708374149)},
			{Name: "Balance"},
		},
	}

	assert.Equal(t, "R1", event.Lookup(MetadataKeyCollectionReceipt))
	assert.Equal(t, "500", event.Lookup("Amount"))
	assert.Equal(t, "254708374149", event.Lookup("PhoneNumber"))
	assert.Equal(t, "", event.Lookup("Balance"))
	assert.Equal(t, "", event.Lookup("Missing"))
}

func TestCallbackEvent_LookupJSONNumber(t *testing.T) {
	event := &CallbackEvent{Metadata: []MetadataItem{{Name: "Amount", Value: json.Number("12.50")}}}
	assert.Equal(t, "12.50", event.Lookup("Amount"))
}

func TestCallbackEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   CallbackEvent
		wantErr bool
	}{
		{name: "valid collection", event: CallbackEvent{Kind: CallbackCollection, CorrelationID: "C1"}},
		{name: "valid timeout", event: CallbackEvent{Kind: CallbackDisbursementTimeout, CorrelationID: "C4"}},
		{name: "unknown kind", event: CallbackEvent{Kind: "refund", CorrelationID: "C1"}, wantErr: true},
		{name: "missing correlation", event: CallbackEvent{Kind: CallbackCollection}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCallbackEvent_Succeeded(t *testing.T) {
	assert.True(t, (&CallbackEvent{Kind: CallbackCollection, ResultCode: 0}).Succeeded())
	assert.False(t, (&CallbackEvent{Kind: CallbackCollection, ResultCode: 1032}).Succeeded())
	assert.False(t, (&CallbackEvent{Kind: CallbackDisbursementTimeout, ResultCode: 0}).Succeeded())
}
