package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// entry is the per-job slot; its mutex scopes every read-modify-write to one job
type entry struct {
	mu  sync.Mutex
	job *domain.Job
}

// Memory is an in-process ledger safe for concurrent use.
// Correlation indexes are updated while the owning job's slot is locked.
type Memory struct {
	jobs            sync.Map // job id -> *entry
	collectionIdx   sync.Map // correlation id -> job id
	disbursementIdx sync.Map // correlation id -> job id
	logger          *slog.Logger
	now             func() time.Time
}

// NewMemory creates an empty in-memory ledger
func NewMemory(logger *slog.Logger) *Memory {
	return &Memory{
		logger: logger,
		now:    time.Now,
	}
}

// Create inserts a new job in the created status
func (m *Memory) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	next, err := prepareNew(job, m.now().UTC())
	if err != nil {
		return nil, err
	}

	e := &entry{job: next}
	if _, loaded := m.jobs.LoadOrStore(next.ID, e); loaded {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobExists, next.ID)
	}

	m.logger.Info("Job created",
		slog.String("job_id", next.ID),
		slog.String("owner_id", next.OwnerID),
	)

	return next.Clone(), nil
}

// Get returns a snapshot of the job
func (m *Memory) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	e, ok := m.entry(jobID)
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// FindByCollectionCorrelation returns the job currently holding the collection correlation
func (m *Memory) FindByCollectionCorrelation(ctx context.Context, correlationID string) (*domain.Job, error) {
	return m.findBy(&m.collectionIdx, correlationID, func(j *domain.Job) string {
		return j.CollectionCorrelationID
	})
}

// FindByDisbursementCorrelation returns the job currently holding the disbursement correlation
func (m *Memory) FindByDisbursementCorrelation(ctx context.Context, correlationID string) (*domain.Job, error) {
	return m.findBy(&m.disbursementIdx, correlationID, func(j *domain.Job) string {
		return j.DisbursementCorrelationID
	})
}

func (m *Memory) findBy(idx *sync.Map, correlationID string, field func(*domain.Job) string) (*domain.Job, error) {
	if correlationID == "" {
		return nil, domain.ErrCorrelationNotFound
	}

	v, ok := idx.Load(correlationID)
	if !ok {
		return nil, domain.ErrCorrelationNotFound
	}

	e, ok := m.entry(v.(string))
	if !ok {
		return nil, domain.ErrCorrelationNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The index may have been moved on between Load and Lock
	if field(e.job) != correlationID {
		return nil, domain.ErrCorrelationNotFound
	}
	return e.job.Clone(), nil
}

// Update applies fn to the job under its slot lock
func (m *Memory) Update(ctx context.Context, jobID string, fn MutateFunc) (*domain.Job, error) {
	e, ok := m.entry(jobID)
	if !ok {
		return nil, domain.ErrJobNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	before := e.job
	next := before.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	if err := checkMutation(before, next); err != nil {
		return nil, err
	}

	if err := m.reindex(&m.collectionIdx, jobID, before.CollectionCorrelationID, next.CollectionCorrelationID); err != nil {
		return nil, err
	}
	if err := m.reindex(&m.disbursementIdx, jobID, before.DisbursementCorrelationID, next.DisbursementCorrelationID); err != nil {
		// Roll the collection index back to the committed value
		_ = m.reindex(&m.collectionIdx, jobID, next.CollectionCorrelationID, before.CollectionCorrelationID)
		return nil, err
	}

	next.Version = before.Version + 1
	next.UpdatedAt = m.now().UTC()
	e.job = next

	if before.Status != next.Status {
		m.logger.Info("Job status updated",
			slog.String("job_id", jobID),
			slog.String("from", before.Status.String()),
			slog.String("to", next.Status.String()),
		)
	}

	return next.Clone(), nil
}

// List returns jobs matching the filter, newest first
func (m *Memory) List(ctx context.Context, filter Filter) ([]domain.Job, error) {
	var jobs []domain.Job

	m.jobs.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		job := e.job.Clone()
		e.mu.Unlock()

		if filter.matches(job) {
			jobs = append(jobs, *job)
		}
		return true
	})

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID > jobs[k].ID
		}
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})

	if limit := filter.limit(); len(jobs) > limit {
		jobs = jobs[:limit]
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	return jobs, nil
}

func (m *Memory) entry(jobID string) (*entry, bool) {
	v, ok := m.jobs.Load(jobID)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

// reindex moves a job's correlation from old to next, refusing ids owned by another job
func (m *Memory) reindex(idx *sync.Map, jobID, old, next string) error {
	if old == next {
		return nil
	}
	if next != "" {
		owner, loaded := idx.LoadOrStore(next, jobID)
		if loaded && owner.(string) != jobID {
			return fmt.Errorf("%w: %s", domain.ErrCorrelationInUse, next)
		}
	}
	if old != "" {
		idx.CompareAndDelete(old, jobID)
	}
	return nil
}
