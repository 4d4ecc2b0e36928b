package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/secret-bridge/internal/handler"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler, appConfig *config.AppConfig, logger *logger.Logger) {
	v1 := r.Group("/api/v1")

	v1.POST("/transfers", h.OperationHandler.CreateTransfer)

	operations := v1.Group("/operations")
	{
		operations.GET("", h.OperationHandler.ListOperations)
		operations.GET("/:id", h.OperationHandler.GetOperation)
		operations.DELETE("/:id", h.OperationHandler.DeleteOperation)
		operations.POST("/:id/poll", h.OperationHandler.PollOperation)
		operations.POST("/:id/abandon", h.OperationHandler.AbandonOperation)
	}

	v1.GET("/swaps/:id", h.OperationHandler.GetSwap)

	health := v1.Group("/health")
	{
		health.GET("/external", h.HealthHandler.External)
		health.GET("/jobs", h.HealthHandler.Jobs)
		health.GET("/jobs/:name", h.HealthHandler.Job)
	}

	r.GET("/metrics", h.MetricsHandler.Handler())

	// health check
	r.GET("/healthz", h.HealthHandler.Basic)
}
