package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the PostgreSQL SQLSTATE for a unique index conflict
const uniqueViolation = "23505"

const jobColumns = `
	id, owner_id, status, amount, payer_address, reference,
	collection_correlation_id, payment_receipt, collection_metadata,
	provider_payout_target, disbursement_correlation_id, disbursement_receipt,
	disbursement_metadata, disbursement_resolution, failure_reason, escrowed,
	initiation_lease_until, version, created_at, updated_at
`

// jobRow is the payment_jobs row shape
type jobRow struct {
	ID                        string         `db:"id"`
	OwnerID                   string         `db:"owner_id"`
	Status                    string         `db:"status"`
	Amount                    int64          `db:"amount"`
	PayerAddress              string         `db:"payer_address"`
	Reference                 string         `db:"reference"`
	CollectionCorrelationID   sql.NullString `db:"collection_correlation_id"`
	PaymentReceipt            string         `db:"payment_receipt"`
	CollectionMetadata        []byte         `db:"collection_metadata"`
	ProviderPayoutTarget      string         `db:"provider_payout_target"`
	DisbursementCorrelationID sql.NullString `db:"disbursement_correlation_id"`
	DisbursementReceipt       string         `db:"disbursement_receipt"`
	DisbursementMetadata      []byte         `db:"disbursement_metadata"`
	DisbursementResolution    string         `db:"disbursement_resolution"`
	FailureReason             string         `db:"failure_reason"`
	Escrowed                  bool           `db:"escrowed"`
	InitiationLeaseUntil      time.Time      `db:"initiation_lease_until"`
	Version                   int64          `db:"version"`
	CreatedAt                 time.Time      `db:"created_at"`
	UpdatedAt                 time.Time      `db:"updated_at"`
}

func (r *jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:                        r.ID,
		OwnerID:                   r.OwnerID,
		Status:                    domain.Status(r.Status),
		Amount:                    r.Amount,
		PayerAddress:              r.PayerAddress,
		Reference:                 r.Reference,
		CollectionCorrelationID:   r.CollectionCorrelationID.String,
		PaymentReceipt:            r.PaymentReceipt,
		CollectionMetadata:        r.CollectionMetadata,
		ProviderPayoutTarget:      r.ProviderPayoutTarget,
		DisbursementCorrelationID: r.DisbursementCorrelationID.String,
		DisbursementReceipt:       r.DisbursementReceipt,
		DisbursementMetadata:      r.DisbursementMetadata,
		DisbursementResolution:    domain.Resolution(r.DisbursementResolution),
		FailureReason:             r.FailureReason,
		Escrowed:                  r.Escrowed,
		InitiationLeaseUntil:      r.InitiationLeaseUntil,
		Version:                   r.Version,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
}

func fromDomain(j *domain.Job) *jobRow {
	return &jobRow{
		ID:                        j.ID,
		OwnerID:                   j.OwnerID,
		Status:                    string(j.Status),
		Amount:                    j.Amount,
		PayerAddress:              j.PayerAddress,
		Reference:                 j.Reference,
		CollectionCorrelationID:   nullString(j.CollectionCorrelationID),
		PaymentReceipt:            j.PaymentReceipt,
		CollectionMetadata:        nullJSON(j.CollectionMetadata),
		ProviderPayoutTarget:      j.ProviderPayoutTarget,
		DisbursementCorrelationID: nullString(j.DisbursementCorrelationID),
		DisbursementReceipt:       j.DisbursementReceipt,
		DisbursementMetadata:      nullJSON(j.DisbursementMetadata),
		DisbursementResolution:    string(j.DisbursementResolution),
		FailureReason:             j.FailureReason,
		Escrowed:                  j.Escrowed,
		InitiationLeaseUntil:      j.InitiationLeaseUntil,
		Version:                   j.Version,
		CreatedAt:                 j.CreatedAt,
		UpdatedAt:                 j.UpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Postgres is a ledger backed by the payment_jobs table.
// Update locks the single job row with SELECT ... FOR UPDATE for the
// duration of the mutation.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgres creates a new PostgreSQL ledger
func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Migrate creates the ledger table and indexes if they do not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}

// Create inserts a new job in the created status
func (p *Postgres) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	next, err := prepareNew(job, p.now().UTC())
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO payment_jobs (
			id, owner_id, status, amount, payer_address, reference,
			provider_payout_target, version, created_at, updated_at
		) VALUES (
			:id, :owner_id, :status, :amount, :payer_address, :reference,
			:provider_payout_target, :version, :created_at, :updated_at
		)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := p.db.NamedExecContext(ctx, query, fromDomain(next))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobExists, next.ID)
	}

	p.logger.Info("Job created",
		slog.String("job_id", next.ID),
		slog.String("owner_id", next.OwnerID),
	)

	return next, nil
}

// Get retrieves a job by its ID
func (p *Postgres) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return p.getBy(ctx, p.db, "id", jobID, domain.ErrJobNotFound)
}

// FindByCollectionCorrelation returns the job holding the collection correlation id
func (p *Postgres) FindByCollectionCorrelation(ctx context.Context, correlationID string) (*domain.Job, error) {
	return p.getBy(ctx, p.db, "collection_correlation_id", correlationID, domain.ErrCorrelationNotFound)
}

// FindByDisbursementCorrelation returns the job holding the disbursement correlation id
func (p *Postgres) FindByDisbursementCorrelation(ctx context.Context, correlationID string) (*domain.Job, error) {
	return p.getBy(ctx, p.db, "disbursement_correlation_id", correlationID, domain.ErrCorrelationNotFound)
}

// getBy is only called with fixed column names
func (p *Postgres) getBy(ctx context.Context, q sqlx.QueryerContext, column, value string, notFound error) (*domain.Job, error) {
	if value == "" {
		return nil, notFound
	}

	query := "SELECT " + jobColumns + " FROM payment_jobs WHERE " + column + " = $1"

	var row jobRow
	if err := sqlx.GetContext(ctx, q, &row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toDomain(), nil
}

// Update applies fn to the job inside a transaction holding its row lock
func (p *Postgres) Update(ctx context.Context, jobID string, fn MutateFunc) (*domain.Job, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck

	var row jobRow
	query := "SELECT " + jobColumns + " FROM payment_jobs WHERE id = $1 FOR UPDATE"
	if err := tx.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, domain.NewRetryableError(fmt.Errorf("failed to lock job: %w", err))
	}

	before := row.toDomain()
	next := before.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}

	if err := checkMutation(before, next); err != nil {
		return nil, err
	}

	next.Version = before.Version + 1
	next.UpdatedAt = p.now().UTC()

	update := `
		UPDATE payment_jobs
		SET status = :status,
			amount = :amount,
			payer_address = :payer_address,
			reference = :reference,
			collection_correlation_id = :collection_correlation_id,
			payment_receipt = :payment_receipt,
			collection_metadata = :collection_metadata,
			provider_payout_target = :provider_payout_target,
			disbursement_correlation_id = :disbursement_correlation_id,
			disbursement_receipt = :disbursement_receipt,
			disbursement_metadata = :disbursement_metadata,
			disbursement_resolution = :disbursement_resolution,
			failure_reason = :failure_reason,
			escrowed = :escrowed,
			initiation_lease_until = :initiation_lease_until,
			version = :version,
			updated_at = :updated_at
		WHERE id = :id
	`

	if _, err := tx.NamedExecContext(ctx, update, fromDomain(next)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", domain.ErrCorrelationInUse, pqErr.Constraint)
		}
		return nil, domain.NewRetryableError(fmt.Errorf("failed to update job: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.NewRetryableError(fmt.Errorf("failed to commit job update: %w", err))
	}

	if before.Status != next.Status {
		p.logger.Info("Job status updated",
			slog.String("job_id", jobID),
			slog.String("from", before.Status.String()),
			slog.String("to", next.Status.String()),
		)
	}

	return next, nil
}

// List returns jobs matching the filter, newest first
func (p *Postgres) List(ctx context.Context, filter Filter) ([]domain.Job, error) {
	query := "SELECT " + jobColumns + " FROM payment_jobs WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIdx)
		args = append(args, filter.OwnerID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.limit())

	var rows []jobRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]domain.Job, len(rows))
	for i := range rows {
		jobs[i] = *rows[i].toDomain()
	}
	return jobs, nil
}
