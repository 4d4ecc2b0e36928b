package monitoring

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

// JobExecutionStatus represents different job execution states
type JobExecutionStatus string

const (
	JobStatusPending JobExecutionStatus = "pending"
	JobStatusRunning JobExecutionStatus = "running"
	JobStatusSuccess JobExecutionStatus = "success"
	JobStatusFailed  JobExecutionStatus = "failed"
	JobStatusStalled JobExecutionStatus = "stalled"
)

// JobStatus contains complete status information for a background job
type JobStatus struct {
	JobName             string                 `json:"job_name"`
	Status              JobExecutionStatus     `json:"status"`
	LastRunTime         time.Time              `json:"last_run_time"`
	LastDuration        time.Duration          `json:"last_duration_ms"`
	SuccessCount        int64                  `json:"success_count"`
	FailureCount        int64                  `json:"failure_count"`
	ConsecutiveFailures int64                  `json:"consecutive_failures"`
	LastError           string                 `json:"last_error,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
}

// JobsSummary provides an overview of all job statuses
type JobsSummary struct {
	TotalJobs      int       `json:"total_jobs"`
	RunningJobs    int       `json:"running_jobs"`
	HealthyJobs    int       `json:"healthy_jobs"`
	UnhealthyJobs  int       `json:"unhealthy_jobs"`
	StalledJobs    int       `json:"stalled_jobs"`
	LastUpdateTime time.Time `json:"last_update_time"`
}

// JobStatusManager tracks the cron jobs of the daemon, the recovery sweep
// being the one that matters.
type JobStatusManager struct {
	mu               sync.RWMutex
	statuses         map[string]*JobStatus
	logger           *logger.Logger
	metrics          *BackgroundJobMetrics
	stalledThreshold time.Duration
}

func NewJobStatusManager(logger *logger.Logger, metrics *BackgroundJobMetrics) *JobStatusManager {
	return &JobStatusManager{
		statuses:         make(map[string]*JobStatus),
		logger:           logger,
		metrics:          metrics,
		stalledThreshold: 5 * time.Minute,
	}
}

// WatchStalled flags long running jobs every interval until ctx is done.
func (jsm *JobStatusManager) WatchStalled(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jsm.detectStalledJobs()
		}
	}
}

func (jsm *JobStatusManager) RegisterJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	if _, exists := jsm.statuses[jobName]; exists {
		return
	}
	now := time.Now()
	jsm.statuses[jobName] = &JobStatus{
		JobName:   jobName,
		Status:    JobStatusPending,
		Metadata:  make(map[string]interface{}),
		CreatedAt: now,
		UpdatedAt: now,
	}

	jsm.logger.Info("[JobStatusManager][RegisterJob]", map[string]string{
		"job_name": jobName,
	})
}

func (jsm *JobStatusManager) StartJob(jobName string) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	now := time.Now()
	status, exists := jsm.statuses[jobName]
	if !exists {
		status = &JobStatus{
			JobName:   jobName,
			Metadata:  make(map[string]interface{}),
			CreatedAt: now,
		}
		jsm.statuses[jobName] = status
	}
	status.Status = JobStatusRunning
	status.LastRunTime = now
	status.UpdatedAt = now

	jsm.metrics.activeJobs.Inc()
}

func (jsm *JobStatusManager) CompleteJob(jobName string, err error, metadata map[string]interface{}) {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		jsm.logger.Error("[JobStatusManager][CompleteJob] unregistered job", map[string]string{
			"job_name": jobName,
		})
		return
	}

	duration := time.Since(status.LastRunTime)
	status.LastDuration = duration
	status.UpdatedAt = time.Now()
	for key, value := range metadata {
		status.Metadata[key] = value
	}

	if err != nil {
		status.Status = JobStatusFailed
		status.FailureCount++
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		status.Metadata["error_type"] = classifyJobError(err)

		jsm.metrics.jobRuns.WithLabelValues(jobName, "error").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "failed").Observe(duration.Seconds())

		jsm.logger.Error("[JobStatusManager][CompleteJob] job failed", map[string]string{
			"job_name":             jobName,
			"duration":             duration.String(),
			"error":                err.Error(),
			"consecutive_failures": fmt.Sprintf("%d", status.ConsecutiveFailures),
		})
	} else {
		status.Status = JobStatusSuccess
		status.SuccessCount++
		status.ConsecutiveFailures = 0
		status.LastError = ""

		jsm.metrics.jobRuns.WithLabelValues(jobName, "success").Inc()
		jsm.metrics.jobDuration.WithLabelValues(jobName, "success").Observe(duration.Seconds())
	}

	jsm.metrics.activeJobs.Dec()
}

func (jsm *JobStatusManager) GetJobStatus(jobName string) (*JobStatus, bool) {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	status, exists := jsm.statuses[jobName]
	if !exists {
		return nil, false
	}
	statusCopy := copyStatus(status)
	return &statusCopy, true
}

func (jsm *JobStatusManager) GetAllJobStatuses() map[string]JobStatus {
	jsm.mu.RLock()
	defer jsm.mu.RUnlock()

	result := make(map[string]JobStatus, len(jsm.statuses))
	now := time.Now()
	for name, status := range jsm.statuses {
		statusCopy := copyStatus(status)
		if status.Status == JobStatusRunning && now.Sub(status.LastRunTime) > jsm.stalledThreshold {
			statusCopy.Status = JobStatusStalled
		}
		result[name] = statusCopy
	}

	return result
}

func (jsm *JobStatusManager) GetJobsSummary() JobsSummary {
	statuses := jsm.GetAllJobStatuses()

	summary := JobsSummary{
		TotalJobs:      len(statuses),
		LastUpdateTime: time.Now(),
	}

	for _, status := range statuses {
		switch status.Status {
		case JobStatusRunning:
			summary.RunningJobs++
		case JobStatusSuccess, JobStatusPending:
			summary.HealthyJobs++
		case JobStatusFailed:
			summary.UnhealthyJobs++
		case JobStatusStalled:
			summary.StalledJobs++
		}
	}

	return summary
}

func (jsm *JobStatusManager) detectStalledJobs() {
	jsm.mu.Lock()
	defer jsm.mu.Unlock()

	now := time.Now()
	stalledCount := 0
	for jobName, status := range jsm.statuses {
		if status.Status != JobStatusRunning || now.Sub(status.LastRunTime) <= jsm.stalledThreshold {
			continue
		}
		status.Status = JobStatusStalled
		status.UpdatedAt = now
		stalledCount++

		jsm.logger.Error("[JobStatusManager][detectStalledJobs] job stalled", map[string]string{
			"job_name":      jobName,
			"last_run_time": status.LastRunTime.Format(time.RFC3339),
		})
	}

	jsm.metrics.stalledJobs.Set(float64(stalledCount))
}

func copyStatus(status *JobStatus) JobStatus {
	statusCopy := *status
	statusCopy.Metadata = make(map[string]interface{}, len(status.Metadata))
	for k, v := range status.Metadata {
		statusCopy.Metadata[k] = v
	}
	return statusCopy
}

// InstrumentedJob runs a job with status tracking, a timeout and panic recovery.
type InstrumentedJob struct {
	jobName       string
	jobFunc       func(ctx context.Context) error
	statusManager *JobStatusManager
	logger        *logger.Logger
	timeout       time.Duration
}

func NewInstrumentedJob(
	jobName string,
	jobFunc func(ctx context.Context) error,
	statusManager *JobStatusManager,
	logger *logger.Logger,
	timeout time.Duration,
) *InstrumentedJob {
	statusManager.RegisterJob(jobName)

	return &InstrumentedJob{
		jobName:       jobName,
		jobFunc:       jobFunc,
		statusManager: statusManager,
		logger:        logger,
		timeout:       timeout,
	}
}

// Run satisfies cron.Job.
func (ij *InstrumentedJob) Run() {
	ij.Execute(context.Background())
}

func (ij *InstrumentedJob) Execute(parent context.Context) {
	ij.statusManager.StartJob(ij.jobName)

	ctx, cancel := context.WithTimeout(parent, ij.timeout)
	defer cancel()

	type outcome struct {
		err      error
		metadata map[string]interface{}
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ij.logger.Error("[InstrumentedJob][Execute] job panicked", map[string]string{
					"job_name": ij.jobName,
					"panic":    fmt.Sprintf("%v", r),
				})
				done <- outcome{
					err: fmt.Errorf("job panicked: %v", r),
					metadata: map[string]interface{}{
						"panic":       fmt.Sprintf("%v", r),
						"stack_trace": string(debug.Stack()),
					},
				}
			}
		}()
		done <- outcome{err: ij.jobFunc(ctx)}
	}()

	var result outcome
	select {
	case result = <-done:
	case <-ctx.Done():
		ij.statusManager.metrics.jobTimeouts.WithLabelValues(ij.jobName).Inc()
		result = outcome{
			err:      fmt.Errorf("job timeout after %v", ij.timeout),
			metadata: map[string]interface{}{"timeout": ij.timeout.String()},
		}
	}

	ij.statusManager.CompleteJob(ij.jobName, result.err, result.metadata)
}

// BackgroundJobMetrics contains all Prometheus metrics for background job monitoring
type BackgroundJobMetrics struct {
	jobDuration *prometheus.HistogramVec
	jobRuns     *prometheus.CounterVec
	activeJobs  prometheus.Gauge
	stalledJobs prometheus.Gauge
	jobTimeouts *prometheus.CounterVec
}

func NewBackgroundJobMetrics() *BackgroundJobMetrics {
	return &BackgroundJobMetrics{
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "secret_bridge_background_job_duration_seconds",
				Help:    "Background job execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"job_name", "status"},
		),
		jobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secret_bridge_background_job_runs_total",
				Help: "Total number of background job runs",
			},
			[]string{"job_name", "status"},
		),
		activeJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "secret_bridge_background_jobs_active",
				Help: "Number of currently running background jobs",
			},
		),
		stalledJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "secret_bridge_background_jobs_stalled",
				Help: "Number of stalled background jobs",
			},
		),
		jobTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "secret_bridge_job_timeouts_total",
				Help: "Total job timeouts",
			},
			[]string{"job_name"},
		),
	}
}

func (m *BackgroundJobMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.jobDuration,
		m.jobRuns,
		m.activeJobs,
		m.stalledJobs,
		m.jobTimeouts,
	)
}

func classifyJobError(err error) string {
	if err == nil {
		return ""
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return "timeout"
	case strings.Contains(errStr, "panic"):
		return "panic"
	case strings.Contains(errStr, "bolt"), strings.Contains(errStr, "mirror"):
		return "mirror"
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"):
		return "network"
	case strings.Contains(errStr, "record service"), strings.Contains(errStr, "rpc"), strings.Contains(errStr, "lcd"):
		return "external_api"
	default:
		return "unknown"
	}
}
