package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "created to collection initiated", from: StatusCreated, to: StatusCollectionInitiated, want: true},
		{name: "retry collection after failure", from: StatusPaymentFailed, to: StatusCollectionInitiated, want: true},
		{name: "collection success", from: StatusCollectionInitiated, to: StatusInEscrow, want: true},
		{name: "collection failure", from: StatusCollectionInitiated, to: StatusPaymentFailed, want: true},
		{name: "escrow to disbursement", from: StatusInEscrow, to: StatusDisbursementInitiated, want: true},
		{name: "disbursement success", from: StatusDisbursementInitiated, to: StatusPaid, want: true},
		{name: "disbursement failure", from: StatusDisbursementInitiated, to: StatusDisbursementFailed, want: true},
		{name: "late result after timeout", from: StatusDisbursementFailed, to: StatusPaid, want: true},
		{name: "retry disbursement", from: StatusDisbursementFailed, to: StatusDisbursementInitiated, want: true},
		{name: "close out", from: StatusPaid, to: StatusCompleted, want: true},
		{name: "created straight to escrow", from: StatusCreated, to: StatusInEscrow, want: false},
		{name: "escrow back to collection", from: StatusInEscrow, to: StatusCollectionInitiated, want: false},
		{name: "escrow to escrow", from: StatusInEscrow, to: StatusInEscrow, want: false},
		{name: "completed is terminal", from: StatusCompleted, to: StatusPaid, want: false},
		{name: "payment failed to paid", from: StatusPaymentFailed, to: StatusPaid, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestJob_TransitionTo(t *testing.T) {
	t.Run("escrow marks job as escrowed", func(t *testing.T) {
		job := &Job{ID: "J1", Status: StatusCollectionInitiated}

		require.NoError(t, job.TransitionTo(StatusInEscrow))
		assert.Equal(t, StatusInEscrow, job.Status)
		assert.True(t, job.Escrowed)
	})

	t.Run("invalid edge leaves status unchanged", func(t *testing.T) {
		job := &Job{ID: "J1", Status: StatusCreated}

		err := job.TransitionTo(StatusPaid)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
		assert.Equal(t, StatusCreated, job.Status)
		assert.False(t, job.Escrowed)
	})
}

func TestStatus_Predicates(t *testing.T) {
	assert.True(t, StatusCreated.CollectionRetryable())
	assert.True(t, StatusPaymentFailed.CollectionRetryable())
	assert.False(t, StatusCollectionInitiated.CollectionRetryable())

	assert.True(t, StatusInEscrow.DisbursementRetryable())
	assert.True(t, StatusDisbursementFailed.DisbursementRetryable())
	assert.False(t, StatusDisbursementInitiated.DisbursementRetryable())

	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusPaid.Terminal())

	assert.True(t, StatusPaid.Valid())
	assert.False(t, Status("bogus").Valid())
}

func TestJob_Clone(t *testing.T) {
	job := &Job{ID: "J1", CollectionMetadata: []byte(`{"a":1}`)}

	clone := job.Clone()
	clone.CollectionMetadata[2] = 'b'

	assert.Equal(t, `{"a":1}`, string(job.CollectionMetadata))
}

func TestErrorWrappers(t *testing.T) {
	cause := errors.New("connection reset")

	gwErr := NewGatewayError("collect", cause)
	var target *GatewayError
	require.True(t, errors.As(gwErr, &target))
	assert.Equal(t, "collect", target.Op)
	assert.True(t, errors.Is(gwErr, cause))
	assert.Equal(t, "gateway collect failed: connection reset", gwErr.Error())

	retryErr := NewRetryableError(cause)
	var retryable *RetryableError
	assert.True(t, errors.As(retryErr, &retryable))

	assert.True(t, IsDiscardable(ErrDuplicateCallback))
	assert.True(t, IsDiscardable(ErrCorrelationNotFound))
	assert.False(t, IsDiscardable(retryErr))
}
