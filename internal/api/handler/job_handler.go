package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/escrow-pay/internal/api/dto"
	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateJob handles POST /jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	job, err := h.ledger.Create(c.Request.Context(), &domain.Job{
		ID:                   req.JobID,
		OwnerID:              req.OwnerID,
		ProviderPayoutTarget: req.ProviderPayoutTarget,
		Reference:            req.Reference,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to create job", err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewJobDTO(job))
}

// GetJob handles GET /jobs/:job_id
// Clients poll this to follow the payment status
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.ledger.Get(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to get job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}

// ListJobs handles GET /jobs
// Lists jobs with optional filtering and keyset pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = ledger.DefaultPageSize
	}
	if req.PageSize > ledger.MaxPageSize {
		req.PageSize = ledger.MaxPageSize
	}

	status := domain.Status(req.Status)
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unknown status %q", req.Status),
		})
		return
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.ledger.List(c.Request.Context(), ledger.Filter{
		OwnerID:  req.OwnerID,
		Status:   status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to list jobs", err)
		return
	}

	// List returns one extra row when another page exists
	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = dto.NewJobDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&ledger.Cursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// CompleteJob handles POST /jobs/:job_id/complete
// Closes out a paid job
func (h *JobHandler) CompleteJob(c *gin.Context) {
	jobID := c.Param("job_id")

	var req dto.CompleteJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := h.closer.CompleteJob(c.Request.Context(), jobID, req.Actor)
	if err != nil {
		respondError(c, h.logger, "Failed to complete job", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobDTO(job))
}
