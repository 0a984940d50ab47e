package router

import (
	"net/http"

	"github.com/cuongbtq/escrow-pay/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		failed := gin.H{}
		for name, check := range deps.HealthChecks {
			if err := check(c.Request.Context()); err != nil {
				failed[name] = err.Error()
			}
		}

		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": "escrow-api-service",
				"checks":  failed,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "escrow-api-service",
		})
	})

	paymentHandler := handler.NewPaymentHandler(deps)
	callbackHandler := handler.NewCallbackHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	payments := r.Group("/payments")
	{
		// Client-initiated operations
		payments.POST("/collect", paymentHandler.Collect)
		payments.GET("/collect/sessions/:token", paymentHandler.ResolveSession)
		payments.POST("/disburse", paymentHandler.Disburse)

		// Gateway webhooks
		payments.POST("/collect/callback", callbackHandler.CollectionCallback)
		payments.POST("/disburse/result", callbackHandler.DisbursementResult)
		payments.POST("/disburse/timeout", callbackHandler.DisbursementTimeout)
	}

	jobs := r.Group("/jobs")
	{
		jobs.POST("", jobHandler.CreateJob)
		jobs.GET("", jobHandler.ListJobs)
		jobs.GET("/:job_id", jobHandler.GetJob)
		jobs.POST("/:job_id/complete", jobHandler.CompleteJob)
	}

	return r
}
