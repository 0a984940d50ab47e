package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// Closer moves paid jobs to completed once the owner closes them out
type Closer struct {
	cfg    *Config
	logger *slog.Logger
}

// NewCloser creates a new Closer
func NewCloser(cfg *Config) *Closer {
	return &Closer{cfg: cfg, logger: cfg.Logger}
}

// CompleteJob transitions a paid job to completed
func (c *Closer) CompleteJob(ctx context.Context, jobID, actor string) (*domain.Job, error) {
	job, err := c.cfg.Ledger.Update(ctx, jobID, func(job *domain.Job) error {
		if job.OwnerID != actor {
			return fmt.Errorf("%w: %s does not own job %s", domain.ErrForbidden, actor, job.ID)
		}
		if job.Status != domain.StatusPaid {
			return fmt.Errorf("%w: job is %s", domain.ErrConflict, job.Status)
		}
		return job.TransitionTo(domain.StatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("actor", actor),
	)

	return job, nil
}
