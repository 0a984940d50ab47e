package service

import (
	"context"
	"testing"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloser_CompleteJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "J1")
	f.disbursing(t, "J1")

	_, err := f.closer.CompleteJob(ctx, "J1", "payer-J1")
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, f.reconciler.Apply(ctx, disbursementEvent("AG-J1", 0)))

	_, err = f.closer.CompleteJob(ctx, "J1", "intruder")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, domain.StatusPaid, f.job(t, "J1").Status)

	job, err := f.closer.CompleteJob(ctx, "J1", "payer-J1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, job.Status)

	_, err = f.closer.CompleteJob(ctx, "J1", "payer-J1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCloser_UnknownJob(t *testing.T) {
	f := newFixture(t)

	_, err := f.closer.CompleteJob(context.Background(), "missing", "payer")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
