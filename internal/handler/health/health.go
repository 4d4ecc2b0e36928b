package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/mirror"
	"github.com/dwarvesf/secret-bridge/internal/monitoring"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

// HealthHandler implements IHealthHandler interface
type HealthHandler struct {
	logger           *logger.Logger
	checkers         map[string]Checker
	mirror           mirror.IMirror
	jobStatusManager *monitoring.JobStatusManager
	checkTimeout     time.Duration
}

// New creates a health handler probing every checker by name.
func New(logger *logger.Logger, checkers map[string]Checker, mirror mirror.IMirror, jobStatusManager *monitoring.JobStatusManager) IHealthHandler {
	return &HealthHandler{
		logger:           logger,
		checkers:         checkers,
		mirror:           mirror,
		jobStatusManager: jobStatusManager,
		checkTimeout:     monitoring.DefaultTimeoutConfig.HealthCheckTimeout,
	}
}

// Basic handles the basic health check endpoint (/healthz)
// @Summary Basic health check
// @Description Returns basic system availability status
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} BasicHealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Basic(c *gin.Context) {
	response := BasicHealthResponse{
		Message: "ok",
	}
	c.JSON(http.StatusOK, response)
}

// External handles the chain and record service health check endpoint
// @Summary External dependencies health check
// @Description Probes both chain gateways, the operation record service and the local mirror
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /api/v1/health/external [get]
func (h *HealthHandler) External(c *gin.Context) {
	start := time.Now()

	response := HealthResponse{
		Timestamp: start,
		Checks:    make(map[string]HealthCheck),
	}

	baseCtx := context.Background()
	if c.Request != nil {
		baseCtx = c.Request.Context()
	}
	ctx, cancel := context.WithTimeout(baseCtx, 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, checker := range h.checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()
			check := h.probe(ctx, name, checker)
			mu.Lock()
			response.Checks[name] = check
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	response.Checks[consts.CHECK_LOCAL_MIRROR] = h.checkMirror()
	response.DurationMs = time.Since(start).Milliseconds()

	allHealthy := true
	for _, check := range response.Checks {
		if check.Status != "healthy" {
			allHealthy = false
			break
		}
	}

	if allHealthy {
		response.Status = "healthy"
		c.JSON(http.StatusOK, response)
	} else {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

// probe runs one checker under the per-check timeout. A checker that
// ignores its context still loses the race against the timer.
func (h *HealthHandler) probe(ctx context.Context, name string, checker Checker) HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Metadata: make(map[string]interface{}),
	}

	if checker == nil {
		check.Status = "unhealthy"
		check.Error = name + " not available"
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- checker.HealthCheck(checkCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			check.Status = "unhealthy"
			check.Error = err.Error()
			h.logger.Warn("[HealthHandler][probe]", map[string]string{
				"check": name,
				"error": err.Error(),
			})
		} else {
			check.Status = "healthy"
		}
	case <-checkCtx.Done():
		check.Status = "unhealthy"
		if checkCtx.Err() == context.DeadlineExceeded {
			check.Error = "timeout"
		} else {
			check.Error = checkCtx.Err().Error()
		}
	}

	check.Latency = time.Since(start).Milliseconds()
	return check
}

func (h *HealthHandler) checkMirror() HealthCheck {
	start := time.Now()

	check := HealthCheck{
		Metadata: make(map[string]interface{}),
	}
	if h.mirror == nil {
		check.Status = "unhealthy"
		check.Error = "local mirror not available"
		check.Latency = time.Since(start).Milliseconds()
		return check
	}

	check.Status = "healthy"
	check.Metadata["driver"] = "bbolt"
	check.Metadata["in_flight"] = len(h.mirror.ListInFlight())
	check.Latency = time.Since(start).Milliseconds()
	return check
}
