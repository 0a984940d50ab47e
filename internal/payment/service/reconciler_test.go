package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// disbursing drives a seeded job to disbursement_initiated
func (f *fixture) disbursing(t *testing.T, id string) {
	t.Helper()
	f.expectCollect("CO-" + id).Once()
	f.escrow(t, id, "CO-"+id, 1000)
	f.expectDisburse("AG-" + id).Once()
	_, err := f.disburser.InitiateDisbursement(context.Background(), id, "payer-"+id)
	require.NoError(t, err)
}

func TestReconciler_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.disbursing(t, "J1")

	job := f.job(t, "J1")
	assert.Equal(t, "RCPT-J1", job.PaymentReceipt)
	assert.True(t, job.Escrowed)

	require.NoError(t, f.reconciler.Apply(ctx, disbursementEvent("AG-J1", 0,
		domain.MetadataItem{Name: domain.MetadataKeyDisbursementReceipt, Value: "NLJ41HAY6Q"},
		domain.MetadataItem{Name: "TransactionAmount", Value: float64(1000)},
	)))

	job = f.job(t, "J1")
	assert.Equal(t, domain.StatusPaid, job.Status)
	assert.Equal(t, "NLJ41HAY6Q", job.DisbursementReceipt)
	assert.Equal(t, domain.ResolutionResult, job.DisbursementResolution)
	assert.NotEmpty(t, job.DisbursementMetadata)

	completed, err := f.closer.CompleteJob(ctx, "J1", "payer-J1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
}

func TestReconciler_CollectionSuccessWithoutReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.expectCollect("ws_CO_1").Once()

	_, err := f.collector.InitiateCollection(ctx, CollectionRequest{JobID: "J1", Amount: 10, PayerAddress: "2547"})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.HandleCollectionCallback(ctx, collectionEvent("ws_CO_1", 0)))

	job := f.job(t, "J1")
	assert.Equal(t, domain.StatusInEscrow, job.Status)
	assert.Empty(t, job.PaymentReceipt)
}

func TestReconciler_CollectionMetadataOverwritten(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.expectCollect("ws_CO_1").Once()

	_, err := f.collector.InitiateCollection(ctx, CollectionRequest{JobID: "J1", Amount: 10, PayerAddress: "2547"})
	require.NoError(t, err)

	event := collectionEvent("ws_CO_1", 0)
	event.Raw = json.RawMessage(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`)
	require.NoError(t, f.reconciler.Apply(ctx, event))

	assert.JSONEq(t, string(event.Raw), string(f.job(t, "J1").CollectionMetadata))
}

func TestReconciler_DuplicateCallbacksDiscarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.expectCollect("ws_CO_1").Once()
	f.escrow(t, "J1", "ws_CO_1", 100)

	before := f.job(t, "J1")

	err := f.reconciler.Apply(ctx, collectionEvent("ws_CO_1", 0,
		domain.MetadataItem{Name: domain.MetadataKeyCollectionReceipt, Value: "OTHER"},
	))
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)
	assert.True(t, domain.IsDiscardable(err))

	// A late failure must not undo the escrow either
	err = f.reconciler.Apply(ctx, collectionEvent("ws_CO_1", 1))
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)

	after := f.job(t, "J1")
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, "RCPT-J1", after.PaymentReceipt)
	assert.Equal(t, domain.StatusInEscrow, after.Status)
}

func TestReconciler_UnknownCorrelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events := []domain.CallbackEvent{
		collectionEvent("nope", 0),
		disbursementEvent("nope", 0),
		{Kind: domain.CallbackDisbursementTimeout, CorrelationID: "nope"},
	}
	for _, event := range events {
		err := f.reconciler.Apply(ctx, event)
		assert.ErrorIs(t, err, domain.ErrCorrelationNotFound, string(event.Kind))
		assert.True(t, domain.IsDiscardable(err))
	}
}

func TestReconciler_InvalidEvent(t *testing.T) {
	f := newFixture(t)

	err := f.reconciler.Apply(context.Background(), domain.CallbackEvent{Kind: domain.CallbackCollection})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	err = f.reconciler.Apply(context.Background(), domain.CallbackEvent{Kind: "refund", CorrelationID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}

func TestReconciler_DisbursementFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.disbursing(t, "J1")

	event := disbursementEvent("AG-J1", 2001)
	event.ResultDesc = "The initiator information is invalid."
	require.NoError(t, f.reconciler.Apply(ctx, event))

	job := f.job(t, "J1")
	assert.Equal(t, domain.StatusDisbursementFailed, job.Status)
	assert.Equal(t, "The initiator information is invalid.", job.FailureReason)
	assert.Equal(t, domain.ResolutionResult, job.DisbursementResolution)

	// The escrow is still held after a failed payout
	assert.True(t, job.Escrowed)
	assert.Equal(t, int64(1000), job.Amount)
}

func TestReconciler_TimeoutThenLateSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.disbursing(t, "J1")

	require.NoError(t, f.reconciler.HandleDisbursementTimeout(ctx, "AG-J1"))

	job := f.job(t, "J1")
	assert.Equal(t, domain.StatusDisbursementFailed, job.Status)
	assert.Equal(t, domain.ResolutionTimeout, job.DisbursementResolution)

	require.NoError(t, f.reconciler.Apply(ctx, disbursementEvent("AG-J1", 0,
		domain.MetadataItem{Name: domain.MetadataKeyDisbursementReceipt, Value: "LATE1"},
	)))

	job = f.job(t, "J1")
	assert.Equal(t, domain.StatusPaid, job.Status)
	assert.Equal(t, "LATE1", job.DisbursementReceipt)
	assert.Empty(t, job.FailureReason)

	// Once a result is recorded, further results and timeouts are duplicates
	err := f.reconciler.Apply(ctx, disbursementEvent("AG-J1", 0))
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)
	err = f.reconciler.HandleDisbursementTimeout(ctx, "AG-J1")
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)
}

func TestReconciler_TimeoutThenLateFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.disbursing(t, "J1")

	require.NoError(t, f.reconciler.HandleDisbursementTimeout(ctx, "AG-J1"))

	event := disbursementEvent("AG-J1", 2040)
	event.ResultDesc = "Credit party customer type can't be supported"
	require.NoError(t, f.reconciler.Apply(ctx, event))

	job := f.job(t, "J1")
	assert.Equal(t, domain.StatusDisbursementFailed, job.Status)
	assert.Equal(t, domain.ResolutionResult, job.DisbursementResolution)
	assert.Equal(t, "Credit party customer type can't be supported", job.FailureReason)

	err := f.reconciler.Apply(ctx, disbursementEvent("AG-J1", 0))
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)
}

func TestReconciler_TimeoutAfterResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.disbursing(t, "J1")

	require.NoError(t, f.reconciler.Apply(ctx, disbursementEvent("AG-J1", 0)))

	err := f.reconciler.HandleDisbursementTimeout(ctx, "AG-J1")
	assert.ErrorIs(t, err, domain.ErrDuplicateCallback)
	assert.Equal(t, domain.StatusPaid, f.job(t, "J1").Status)
}

func TestReconciler_StaleDisbursementCorrelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.disbursing(t, "J1")

	require.NoError(t, f.reconciler.HandleDisbursementTimeout(ctx, "AG-J1"))

	f.expectDisburse("AG-J1-retry").Once()
	_, err := f.disburser.InitiateDisbursement(ctx, "J1", "payer-J1")
	require.NoError(t, err)

	// The first attempt's result arrives after the job moved on to a new correlation
	err = f.reconciler.Apply(ctx, disbursementEvent("AG-J1", 0))
	assert.ErrorIs(t, err, domain.ErrCorrelationNotFound)
	assert.Equal(t, domain.StatusDisbursementInitiated, f.job(t, "J1").Status)
}

func TestReconciler_ConcurrentJobsAreIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const jobs = 20
	f.gateway.On("Collect", mock.Anything, mock.Anything).Return(
		func(_ context.Context, req gateway.CollectRequest) *gateway.CollectResponse {
			return &gateway.CollectResponse{CorrelationID: "CO-" + req.Reference}
		}, nil)

	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("J%02d", i)
		f.seed(t, id)
		_, err := f.collector.InitiateCollection(ctx, CollectionRequest{
			JobID: id, Amount: int64(100 + i), PayerAddress: "2547", Reference: id,
		})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("J%02d", i)
			code := 0
			if i%2 == 1 {
				code = 1032
			}
			// Each callback is delivered twice
			for n := 0; n < 2; n++ {
				_ = f.reconciler.Apply(ctx, collectionEvent("CO-"+id, code,
					domain.MetadataItem{Name: domain.MetadataKeyCollectionReceipt, Value: "R-" + id},
				))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < jobs; i++ {
		id := fmt.Sprintf("J%02d", i)
		job := f.job(t, id)
		assert.Equal(t, int64(100+i), job.Amount, id)
		if i%2 == 1 {
			assert.Equal(t, domain.StatusPaymentFailed, job.Status, id)
			assert.Empty(t, job.PaymentReceipt, id)
		} else {
			assert.Equal(t, domain.StatusInEscrow, job.Status, id)
			assert.Equal(t, "R-"+id, job.PaymentReceipt, id)
		}
	}
}
