package monitoring

import (
	"time"
)

// CircuitBreakerConfig defines the configuration for circuit breakers
type CircuitBreakerConfig struct {
	MaxRequests                 uint32        `json:"max_requests"`
	Interval                    time.Duration `json:"interval"`
	Timeout                     time.Duration `json:"timeout"`
	ConsecutiveFailureThreshold int           `json:"consecutive_failure_threshold"`
}

// TimeoutConfig bounds a single read. Submissions are never bounded.
type TimeoutConfig struct {
	RequestTimeout     time.Duration `json:"request_timeout"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout"`
}

// APIErrorType represents different types of API errors for classification
type APIErrorType string

const (
	ErrorTypeTimeout      APIErrorType = "timeout"
	ErrorTypeNetworkError APIErrorType = "network_error"
	ErrorTypeServerError  APIErrorType = "server_error"
	ErrorTypeClientError  APIErrorType = "client_error"
	ErrorTypeBreakerOpen  APIErrorType = "breaker_open"
	ErrorTypeUnknown      APIErrorType = "unknown"
)

const (
	APIEvmRPC         = "evm_rpc"
	APISecretLCD      = "secret_lcd"
	APIOperationStore = "operation_store"
)

// CircuitBreakerConfigs provides default configurations for different services
var CircuitBreakerConfigs = map[string]CircuitBreakerConfig{
	APIEvmRPC: {
		MaxRequests:                 3,
		Interval:                    45 * time.Second,
		Timeout:                     60 * time.Second,
		ConsecutiveFailureThreshold: 5,
	},
	APISecretLCD: {
		MaxRequests:                 3,
		Interval:                    45 * time.Second,
		Timeout:                     60 * time.Second,
		ConsecutiveFailureThreshold: 5,
	},
	// the store retries reads on its own, so one failed call is already several requests
	APIOperationStore: {
		MaxRequests:                 5,
		Interval:                    30 * time.Second,
		Timeout:                     30 * time.Second,
		ConsecutiveFailureThreshold: 3,
	},
}

// DefaultTimeoutConfig provides default timeout configurations
var DefaultTimeoutConfig = TimeoutConfig{
	RequestTimeout:     10 * time.Second,
	HealthCheckTimeout: 3 * time.Second,
}

// RetryingTimeoutConfig bounds a read made by a client that retries on its
// own: every attempt plus the backoff between them fits in RequestTimeout.
func RetryingTimeoutConfig(attemptTimeout time.Duration, retries int, baseDelay time.Duration) TimeoutConfig {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultTimeoutConfig.RequestTimeout
	}
	if retries < 1 {
		retries = 1
	}

	total := time.Duration(retries) * attemptTimeout
	for attempt := 2; attempt <= retries; attempt++ {
		total += baseDelay * time.Duration(1<<(attempt-2))
	}
	return TimeoutConfig{
		RequestTimeout:     total,
		HealthCheckTimeout: DefaultTimeoutConfig.HealthCheckTimeout,
	}
}
