package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/gateway"
	"github.com/cuongbtq/escrow-pay/internal/payment/ledger"
	"github.com/cuongbtq/escrow-pay/internal/payment/session"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Collect(ctx context.Context, req gateway.CollectRequest) (*gateway.CollectResponse, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, gateway.CollectRequest) *gateway.CollectResponse); ok {
		return fn(ctx, req), args.Error(1)
	}
	resp, _ := args.Get(0).(*gateway.CollectResponse)
	return resp, args.Error(1)
}

func (m *mockGateway) Disburse(ctx context.Context, req gateway.DisburseRequest) (*gateway.DisburseResponse, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*gateway.DisburseResponse)
	return resp, args.Error(1)
}

type fixture struct {
	cfg        *Config
	ledger     *ledger.Memory
	sessions   *session.Memory
	gateway    *mockGateway
	collector  *Collector
	disburser  *Disburser
	reconciler *Reconciler
	closer     *Closer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		ledger:   ledger.NewMemory(logger),
		sessions: session.NewMemory(),
		gateway:  &mockGateway{},
	}
	f.cfg = &Config{
		Ledger:   f.ledger,
		Sessions: f.sessions,
		Gateway:  f.gateway,
		Logger:   logger,
	}
	f.collector = NewCollector(f.cfg)
	f.disburser = NewDisburser(f.cfg)
	f.reconciler = NewReconciler(f.cfg)
	f.closer = NewCloser(f.cfg)

	t.Cleanup(func() { f.gateway.AssertExpectations(t) })
	return f
}

func (f *fixture) seed(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := f.ledger.Create(context.Background(), &domain.Job{
		ID:                   id,
		OwnerID:              "payer-" + id,
		ProviderPayoutTarget: "254700000002",
	})
	require.NoError(t, err)
	return job
}

func (f *fixture) expectCollect(correlationID string) *mock.Call {
	return f.gateway.On("Collect", mock.Anything, mock.AnythingOfType("gateway.CollectRequest")).
		Return(&gateway.CollectResponse{CorrelationID: correlationID, CustomerMessage: "Success. Request accepted"}, nil)
}

func (f *fixture) expectDisburse(correlationID string) *mock.Call {
	return f.gateway.On("Disburse", mock.Anything, mock.AnythingOfType("gateway.DisburseRequest")).
		Return(&gateway.DisburseResponse{CorrelationID: correlationID, OriginatorConversationID: "orig-" + correlationID}, nil)
}

func (f *fixture) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := f.ledger.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

func collectionEvent(correlationID string, code int, items ...domain.MetadataItem) domain.CallbackEvent {
	return domain.CallbackEvent{
		Kind:          domain.CallbackCollection,
		CorrelationID: correlationID,
		ResultCode:    code,
		ResultDesc:    "The service request is processed successfully.",
		Metadata:      items,
	}
}

func disbursementEvent(correlationID string, code int, items ...domain.MetadataItem) domain.CallbackEvent {
	return domain.CallbackEvent{
		Kind:          domain.CallbackDisbursementResult,
		CorrelationID: correlationID,
		ResultCode:    code,
		ResultDesc:    "The service request is processed successfully.",
		Metadata:      items,
	}
}

// escrow drives a seeded job into in_escrow through the public operations
func (f *fixture) escrow(t *testing.T, id, correlationID string, amount int64) {
	t.Helper()
	ctx := context.Background()

	_, err := f.collector.InitiateCollection(ctx, CollectionRequest{
		JobID: id, Amount: amount, PayerAddress: "254700000001", Reference: "REF-" + id,
	})
	require.NoError(t, err)

	require.NoError(t, f.reconciler.Apply(ctx, collectionEvent(correlationID, 0,
		domain.MetadataItem{Name: domain.MetadataKeyCollectionReceipt, Value: "RCPT-" + id},
	)))
}
