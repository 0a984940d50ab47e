package dto

import (
	"time"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

type CreateJobRequest struct {
	JobID                string `json:"jobId"`
	OwnerID              string `json:"ownerId" binding:"required"`
	ProviderPayoutTarget string `json:"providerPayoutTarget"`
	Reference            string `json:"reference"`
}

type ListJobsRequest struct {
	OwnerID  string `form:"owner_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type CompleteJobRequest struct {
	Actor string `json:"actor" binding:"required"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

type JobDTO struct {
	JobID                     string `json:"jobId"`
	OwnerID                   string `json:"ownerId"`
	Status                    string `json:"status"`
	Amount                    int64  `json:"amount"`
	PayerAddress              string `json:"payerAddress,omitempty"`
	Reference                 string `json:"reference,omitempty"`
	CollectionCorrelationID   string `json:"collectionCorrelationId,omitempty"`
	PaymentReceipt            string `json:"paymentReceipt,omitempty"`
	ProviderPayoutTarget      string `json:"providerPayoutTarget,omitempty"`
	DisbursementCorrelationID string `json:"disbursementCorrelationId,omitempty"`
	DisbursementReceipt       string `json:"disbursementReceipt,omitempty"`
	FailureReason             string `json:"failureReason,omitempty"`
	Escrowed                  bool   `json:"escrowed"`
	CreatedAt                 string `json:"createdAt"`
	UpdatedAt                 string `json:"updatedAt"`
}

// NewJobDTO converts a ledger job to its API shape
func NewJobDTO(job *domain.Job) JobDTO {
	return JobDTO{
		JobID:                     job.ID,
		OwnerID:                   job.OwnerID,
		Status:                    job.Status.String(),
		Amount:                    job.Amount,
		PayerAddress:              job.PayerAddress,
		Reference:                 job.Reference,
		CollectionCorrelationID:   job.CollectionCorrelationID,
		PaymentReceipt:            job.PaymentReceipt,
		ProviderPayoutTarget:      job.ProviderPayoutTarget,
		DisbursementCorrelationID: job.DisbursementCorrelationID,
		DisbursementReceipt:       job.DisbursementReceipt,
		FailureReason:             job.FailureReason,
		Escrowed:                  job.Escrowed,
		CreatedAt:                 job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:                 job.UpdatedAt.Format(time.RFC3339),
	}
}
