package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/escrow-pay/internal/api/dto"
	"github.com/cuongbtq/escrow-pay/internal/payment/dispatch"
	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

type parseFunc func(raw []byte, receivedAt time.Time) (domain.CallbackEvent, error)

// CollectionCallback handles POST /payments/collect/callback
func (h *CallbackHandler) CollectionCallback(c *gin.Context) {
	h.accept(c, domain.CallbackCollection, dto.ParseCollectionCallback)
}

// DisbursementResult handles POST /payments/disburse/result
func (h *CallbackHandler) DisbursementResult(c *gin.Context) {
	h.accept(c, domain.CallbackDisbursementResult, dto.ParseDisbursementResult)
}

// DisbursementTimeout handles POST /payments/disburse/timeout
func (h *CallbackHandler) DisbursementTimeout(c *gin.Context) {
	h.accept(c, domain.CallbackDisbursementTimeout, dto.ParseDisbursementTimeout)
}

// accept parses the webhook and acknowledges it before any ledger work.
// A parsed event gets 200 whatever its business outcome; only an event that
// could not be handed off is refused with 503 so the gateway redelivers it.
func (h *CallbackHandler) accept(c *gin.Context, kind domain.CallbackKind, parse parseFunc) {
	raw, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("Failed to read webhook body",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := parse(raw, time.Now().UTC())
	if err != nil {
		h.logger.Warn("Rejecting unparseable webhook",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
			slog.Int("body_size", len(raw)),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.dispatcher.Dispatch(c.Request.Context(), event); err != nil {
		h.logger.Error("Failed to dispatch webhook",
			slog.String("kind", string(kind)),
			slog.String("correlation_id", event.CorrelationID),
			slog.Any("error", err),
		)
		if errors.Is(err, dispatch.ErrDropped) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "callback not accepted, retry later"})
			return
		}
	}

	c.JSON(http.StatusOK, dto.Accepted)
}
