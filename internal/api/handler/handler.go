package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/escrow-pay/internal/payment/dispatch"
	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
	"github.com/cuongbtq/escrow-pay/internal/payment/ledger"
	"github.com/cuongbtq/escrow-pay/internal/payment/service"
	"github.com/gin-gonic/gin"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger     *slog.Logger
	Ledger     ledger.Ledger
	Collector  *service.Collector
	Disburser  *service.Disburser
	Closer     *service.Closer
	Dispatcher dispatch.Dispatcher

	// HealthChecks are probed by GET /health, keyed by component name
	HealthChecks map[string]func(ctx context.Context) error
}

// JobHandler handles job ledger HTTP requests
type JobHandler struct {
	logger *slog.Logger
	ledger ledger.Ledger
	closer *service.Closer
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		ledger: deps.Ledger,
		closer: deps.Closer,
	}
}

// PaymentHandler handles collection and disbursement requests
type PaymentHandler struct {
	logger    *slog.Logger
	collector *service.Collector
	disburser *service.Disburser
}

// NewPaymentHandler creates a new PaymentHandler instance
func NewPaymentHandler(deps *Dependencies) *PaymentHandler {
	return &PaymentHandler{
		logger:    deps.Logger,
		collector: deps.Collector,
		disburser: deps.Disburser,
	}
}

// CallbackHandler receives gateway webhooks
type CallbackHandler struct {
	logger     *slog.Logger
	dispatcher dispatch.Dispatcher
}

// NewCallbackHandler creates a new CallbackHandler instance
func NewCallbackHandler(deps *Dependencies) *CallbackHandler {
	return &CallbackHandler{
		logger:     deps.Logger,
		dispatcher: deps.Dispatcher,
	}
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var gwErr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrJobExists),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &gwErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the error body; internal errors are not echoed
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg,
			slog.String("path", c.Request.URL.Path),
			slog.Any("error", err),
		)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	logger.Warn(msg,
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	c.JSON(status, gin.H{"error": err.Error()})
}
