package handler

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/secret-bridge/internal/handler/health"
	"github.com/dwarvesf/secret-bridge/internal/handler/metrics"
	"github.com/dwarvesf/secret-bridge/internal/handler/operation"
	"github.com/dwarvesf/secret-bridge/internal/mirror"
	"github.com/dwarvesf/secret-bridge/internal/monitoring"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

type Handler struct {
	OperationHandler operation.IHandler
	HealthHandler    health.IHealthHandler
	MetricsHandler   *metrics.MetricsHandler
}

// Deps is everything the HTTP handlers read from.
type Deps struct {
	Orchestrator     operation.IOrchestrator
	Mirror           mirror.IMirror
	Store            operationstore.IOperationStore
	Checkers         map[string]health.Checker
	JobStatusManager *monitoring.JobStatusManager
	Registry         *prometheus.Registry
}

func New(logger *logger.Logger, deps Deps) *Handler {
	return &Handler{
		OperationHandler: operation.New(deps.Orchestrator, deps.Mirror, deps.Store, logger),
		HealthHandler:    health.New(logger, deps.Checkers, deps.Mirror, deps.JobStatusManager),
		MetricsHandler:   metrics.NewMetricsHandler(deps.Registry),
	}
}
