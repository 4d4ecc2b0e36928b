package health

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/monitoring"
)

// Jobs handles the background jobs health check endpoint
// @Summary Background jobs health check
// @Description Reports the recovery sweep and token refresh cron jobs
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} JobsHealthResponse
// @Failure 503 {object} JobsHealthResponse
// @Router /api/v1/health/jobs [get]
func (h *HealthHandler) Jobs(c *gin.Context) {
	start := time.Now()

	// Handle case where job status manager is not available
	if h.jobStatusManager == nil {
		response := JobsHealthResponse{
			Status:     "unhealthy",
			Timestamp:  time.Now(),
			Jobs:       make(map[string]monitoring.JobStatus),
			Summary:    monitoring.JobsSummary{},
			DurationMs: time.Since(start).Milliseconds(),
		}
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	// Get job statuses
	jobs := h.jobStatusManager.GetAllJobStatuses()
	summary := h.jobStatusManager.GetJobsSummary()

	// Determine overall status
	overallStatus := "healthy"
	if summary.StalledJobs > 0 {
		overallStatus = "unhealthy"
	} else if summary.UnhealthyJobs > 0 {
		// a failing recovery sweep means restarted operations are not being resumed
		criticalJobsUnhealthy := false
		criticalJobs := []string{
			consts.JOB_OPERATION_RECOVERY,
		}

		for _, criticalJob := range criticalJobs {
			if jobStatus, exists := jobs[criticalJob]; exists {
				if jobStatus.Status == monitoring.JobStatusFailed &&
					jobStatus.ConsecutiveFailures > 2 {
					criticalJobsUnhealthy = true
					break
				}
			}
		}

		if criticalJobsUnhealthy {
			overallStatus = "unhealthy"
		} else {
			overallStatus = "degraded"
		}
	}

	response := JobsHealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Jobs:       jobs,
		Summary:    summary,
		DurationMs: time.Since(start).Milliseconds(),
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	} else if overallStatus == "degraded" {
		statusCode = http.StatusPartialContent // 206
	}

	h.logger.Debug("[HealthHandler][Jobs]", map[string]string{
		"overall_status": overallStatus,
		"duration":       fmt.Sprintf("%dms", response.DurationMs),
		"total_jobs":     fmt.Sprintf("%d", summary.TotalJobs),
		"unhealthy_jobs": fmt.Sprintf("%d", summary.UnhealthyJobs),
		"stalled_jobs":   fmt.Sprintf("%d", summary.StalledJobs),
		"running_jobs":   fmt.Sprintf("%d", summary.RunningJobs),
	})

	c.JSON(statusCode, response)
}

// Job reports one background job
// @Summary Background job status
// @Tags health
// @Produce json
// @Param name path string true "Job name"
// @Success 200 {object} monitoring.JobStatus
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/health/jobs/{name} [get]
func (h *HealthHandler) Job(c *gin.Context) {
	if h.jobStatusManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job status unavailable"})
		return
	}

	name := c.Param("name")
	status, ok := h.jobStatusManager.GetJobStatus(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job " + name})
		return
	}
	c.JSON(http.StatusOK, status)
}
