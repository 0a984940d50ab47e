package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/escrow-pay/internal/api/dto"
	"github.com/cuongbtq/escrow-pay/internal/payment/service"
	"github.com/gin-gonic/gin"
)

// Collect handles POST /payments/collect
func (h *PaymentHandler) Collect(c *gin.Context) {
	var req dto.CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid collect request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	res, err := h.collector.InitiateCollection(c.Request.Context(), service.CollectionRequest{
		JobID:        req.JobID,
		Amount:       req.Amount,
		PayerAddress: req.PayerAddress,
		Reference:    req.Reference,
	})
	if err != nil {
		respondError(c, h.logger, "Failed to initiate collection", err)
		return
	}

	c.JSON(http.StatusAccepted, dto.CollectResponse{
		JobID:           res.JobID,
		CorrelationID:   res.CorrelationID,
		SessionToken:    res.SessionToken,
		Status:          res.Status.String(),
		CustomerMessage: res.CustomerMessage,
	})
}

// ResolveSession handles GET /payments/collect/sessions/:token
// 202 while the collection is pending, 200 once the session is consumed
func (h *PaymentHandler) ResolveSession(c *gin.Context) {
	outcome, err := h.collector.ResolveSession(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, h.logger, "Failed to resolve session", err)
		return
	}

	status := http.StatusOK
	if outcome.Pending {
		status = http.StatusAccepted
	}

	c.JSON(status, dto.SessionResponse{
		JobID:          outcome.JobID,
		CorrelationID:  outcome.CorrelationID,
		Status:         outcome.Status.String(),
		Pending:        outcome.Pending,
		PaymentReceipt: outcome.PaymentReceipt,
		FailureReason:  outcome.FailureReason,
	})
}

// Disburse handles POST /payments/disburse
func (h *PaymentHandler) Disburse(c *gin.Context) {
	var req dto.DisburseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid disburse request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	res, err := h.disburser.InitiateDisbursement(c.Request.Context(), req.JobID, req.InitiatedBy)
	if err != nil {
		respondError(c, h.logger, "Failed to initiate disbursement", err)
		return
	}

	c.JSON(http.StatusAccepted, dto.DisburseResponse{
		JobID:         res.JobID,
		CorrelationID: res.CorrelationID,
		Status:        res.Status.String(),
	})
}
