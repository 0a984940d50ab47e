package ledger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPostgres connects to TEST_DATABASE_DSN; the tests are skipped without it
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewPostgres(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, p.Migrate(context.Background()))
	return p
}

func TestPostgres_Lifecycle(t *testing.T) {
	p := newTestPostgres(t)
	ctx := context.Background()

	jobID := uuid.NewString()
	correlationID := "ws_CO_" + uuid.NewString()

	created, err := p.Create(ctx, &domain.Job{ID: jobID, OwnerID: "owner", ProviderPayoutTarget: "254700000001"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, created.Status)

	_, err = p.Create(ctx, &domain.Job{ID: jobID, OwnerID: "owner"})
	assert.ErrorIs(t, err, domain.ErrJobExists)

	updated, err := p.Update(ctx, jobID, func(job *domain.Job) error {
		job.Amount = 500
		job.CollectionCorrelationID = correlationID
		return job.TransitionTo(domain.StatusCollectionInitiated)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	found, err := p.FindByCollectionCorrelation(ctx, correlationID)
	require.NoError(t, err)
	assert.Equal(t, jobID, found.ID)

	_, err = p.Update(ctx, jobID, func(job *domain.Job) error {
		job.PaymentReceipt = "R1"
		job.CollectionMetadata = []byte(`[{"name":"MpesaReceiptNumber","value":"R1"}]`)
		return job.TransitionTo(domain.StatusInEscrow)
	})
	require.NoError(t, err)

	job, err := p.Get(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInEscrow, job.Status)
	assert.True(t, job.Escrowed)
	assert.Equal(t, "R1", job.PaymentReceipt)
	assert.JSONEq(t, `[{"name":"MpesaReceiptNumber","value":"R1"}]`, string(job.CollectionMetadata))

	otherID := uuid.NewString()
	_, err = p.Create(ctx, &domain.Job{ID: otherID, OwnerID: "owner"})
	require.NoError(t, err)

	_, err = p.Update(ctx, otherID, func(job *domain.Job) error {
		job.CollectionCorrelationID = correlationID
		return nil
	})
	assert.ErrorIs(t, err, domain.ErrCorrelationInUse)

	jobs, err := p.List(ctx, Filter{OwnerID: "owner", PageSize: 1})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(jobs), 2)
}
