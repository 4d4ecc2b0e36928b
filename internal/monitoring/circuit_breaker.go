package monitoring

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dwarvesf/secret-bridge/internal/gateway"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

// breaker guards the read side of one external API. Errors for which
// expected returns true are answers, not outages, and never trip it.
type breaker struct {
	apiName        string
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
	timeoutConfig  TimeoutConfig
	expected       func(error) bool
}

func newBreaker(apiName string, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger, expected func(error) bool) *breaker {
	b := &breaker{
		apiName:       apiName,
		metrics:       metrics,
		logger:        logger,
		timeoutConfig: timeoutConfig,
		expected:      expected,
	}

	settings := gobreaker.Settings{
		Name:        apiName,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return b.expected != nil && b.expected(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("[CircuitBreaker][StateChange]", map[string]string{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(apiName, to)
		},
	}

	b.circuitBreaker = gobreaker.NewCircuitBreaker(settings)
	metrics.UpdateCircuitBreakerState(apiName, gobreaker.StateClosed)
	return b
}

func (b *breaker) execute(ctx context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	return b.circuitBreaker.Execute(func() (interface{}, error) {
		return b.executeWithTimeout(ctx, operation, fn)
	})
}

// executeWithTimeout executes a function with timeout and metrics recording
func (b *breaker) executeWithTimeout(parent context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	timeout := b.timeoutConfig.RequestTimeout
	if operation == "health_check" {
		timeout = b.timeoutConfig.HealthCheckTimeout
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	done := make(chan struct{})
	var result interface{}
	var err error

	go func() {
		defer close(done)
		result, err = fn(ctx)
	}()

	select {
	case <-done:
		duration := time.Since(start).Seconds()
		status := "success"
		if err != nil && (b.expected == nil || !b.expected(err)) {
			status = "error"
			b.logError(operation, duration, err)
		}
		b.metrics.RecordAPICall(b.apiName, operation, status, duration)
		return result, err

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		b.metrics.RecordTimeout(b.apiName, operation)
		b.logError(operation, time.Since(start).Seconds(), ctx.Err())
		return nil, fmt.Errorf("timeout: %w", ctx.Err())
	}
}

func (b *breaker) logError(operation string, duration float64, err error) {
	b.logger.Error("[CircuitBreaker][ExternalCall]", map[string]string{
		"service":    b.apiName,
		"operation":  operation,
		"duration":   strconv.FormatFloat(duration, 'f', 3, 64),
		"error":      err.Error(),
		"error_type": string(classifyError(err)),
		"cb_state":   b.circuitBreaker.State().String(),
	})
}

func (b *breaker) State() gobreaker.State {
	return b.circuitBreaker.State()
}

// CircuitBreakerGateway wraps a chain gateway. Queries go through the
// breaker and a timeout, submissions pass straight to the wrapped gateway.
type CircuitBreakerGateway struct {
	wrapped gateway.IChainGateway
	*breaker
}

func GatewayAPIName(chain gateway.Chain) string {
	if chain == gateway.ChainSecret {
		return APISecretLCD
	}
	return APIEvmRPC
}

func NewCircuitBreakerGatewayWithTimeout(wrapped gateway.IChainGateway, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerGateway {
	expected := func(err error) bool {
		return errors.Is(err, gateway.ErrCapabilityUnsupported)
	}
	return &CircuitBreakerGateway{
		wrapped: wrapped,
		breaker: newBreaker(GatewayAPIName(wrapped.Chain()), config, timeoutConfig, metrics, logger, expected),
	}
}

func (cb *CircuitBreakerGateway) Chain() gateway.Chain {
	return cb.wrapped.Chain()
}

func (cb *CircuitBreakerGateway) SignerAddress() string {
	return cb.wrapped.SignerAddress()
}

func (cb *CircuitBreakerGateway) SubmitLock(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, destAddress string) (string, error) {
	return cb.wrapped.SubmitLock(ctx, asset, amount, destAddress)
}

func (cb *CircuitBreakerGateway) SubmitApprove(ctx context.Context, asset model.CanonicalAsset, spender string, amount *model.Web3BigInt) (string, error) {
	return cb.wrapped.SubmitApprove(ctx, asset, spender, amount)
}

func (cb *CircuitBreakerGateway) SubmitBurn(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, destAddress string, opts gateway.BurnOptions) (string, error) {
	return cb.wrapped.SubmitBurn(ctx, asset, amount, destAddress, opts)
}

func (cb *CircuitBreakerGateway) SubmitUnlock(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, recipient string) (string, error) {
	return cb.wrapped.SubmitUnlock(ctx, asset, amount, recipient)
}

func (cb *CircuitBreakerGateway) QueryAllowance(ctx context.Context, owner, spender string, asset model.CanonicalAsset) (model.AllowanceSnapshot, error) {
	result, err := cb.execute(ctx, "query_allowance", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.QueryAllowance(ctx, owner, spender, asset)
	})
	if err != nil {
		return model.AllowanceSnapshot{}, err
	}

	return result.(model.AllowanceSnapshot), nil
}

func (cb *CircuitBreakerGateway) QueryReceipt(ctx context.Context, txHash string) (model.TxReceipt, error) {
	result, err := cb.execute(ctx, "query_receipt", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.QueryReceipt(ctx, txHash)
	})
	if err != nil {
		return model.TxReceipt{}, err
	}

	return result.(model.TxReceipt), nil
}

func (cb *CircuitBreakerGateway) QueryBalance(ctx context.Context, owner string, asset model.CanonicalAsset) (*model.Web3BigInt, error) {
	result, err := cb.execute(ctx, "query_balance", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.QueryBalance(ctx, owner, asset)
	})
	if err != nil {
		return nil, err
	}

	return result.(*model.Web3BigInt), nil
}

func (cb *CircuitBreakerGateway) HealthCheck(ctx context.Context) error {
	_, err := cb.execute(ctx, "health_check", func(ctx context.Context) (interface{}, error) {
		return nil, cb.wrapped.HealthCheck(ctx)
	})
	return err
}

// CircuitBreakerOperationStore guards the reads of the record service.
// Writes are left to the caller's own retry budget.
type CircuitBreakerOperationStore struct {
	wrapped operationstore.IOperationStore
	*breaker
}

func NewCircuitBreakerOperationStore(wrapped operationstore.IOperationStore, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerOperationStore {
	expected := func(err error) bool {
		return errors.Is(err, operationstore.ErrNotFound)
	}
	return &CircuitBreakerOperationStore{
		wrapped: wrapped,
		breaker: newBreaker(APIOperationStore, config, timeoutConfig, metrics, logger, expected),
	}
}

func (cb *CircuitBreakerOperationStore) CreateOperation(ctx context.Context, id, transactionHash string) (*model.OperationRecord, error) {
	return cb.wrapped.CreateOperation(ctx, id, transactionHash)
}

func (cb *CircuitBreakerOperationStore) UpdateOperation(ctx context.Context, id string, req model.UpdateOperationRequest) (*model.OperationRecord, error) {
	return cb.wrapped.UpdateOperation(ctx, id, req)
}

func (cb *CircuitBreakerOperationStore) GetOperation(ctx context.Context, id string) (*model.OperationEnvelope, error) {
	result, err := cb.execute(ctx, "get_operation", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.GetOperation(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	return result.(*model.OperationEnvelope), nil
}

func (cb *CircuitBreakerOperationStore) GetSwap(ctx context.Context, id string) (*model.SwapRecord, error) {
	result, err := cb.execute(ctx, "get_swap", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.GetSwap(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	return result.(*model.SwapRecord), nil
}

func (cb *CircuitBreakerOperationStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	result, err := cb.execute(ctx, "list_tokens", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.ListTokens(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.([]model.Token), nil
}

func (cb *CircuitBreakerOperationStore) HealthCheck(ctx context.Context) error {
	_, err := cb.execute(ctx, "health_check", func(ctx context.Context) (interface{}, error) {
		return nil, cb.wrapped.HealthCheck(ctx)
	})
	return err
}

// classifyError classifies errors into different types for metrics and logging
func classifyError(err error) APIErrorType {
	if err == nil {
		return ""
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorTypeBreakerOpen
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline exceeded") ||
		strings.Contains(errMsg, "context canceled") {
		return ErrorTypeTimeout
	}

	if strings.Contains(errMsg, "network") ||
		strings.Contains(errMsg, "connection") ||
		strings.Contains(errMsg, "unreachable") ||
		strings.Contains(errMsg, "dns") {
		return ErrorTypeNetworkError
	}

	if strings.Contains(errMsg, "500") ||
		strings.Contains(errMsg, "502") ||
		strings.Contains(errMsg, "503") ||
		strings.Contains(errMsg, "504") ||
		strings.Contains(errMsg, "internal server error") ||
		strings.Contains(errMsg, "bad gateway") ||
		strings.Contains(errMsg, "service unavailable") {
		return ErrorTypeServerError
	}

	if strings.Contains(errMsg, "400") ||
		strings.Contains(errMsg, "401") ||
		strings.Contains(errMsg, "403") ||
		strings.Contains(errMsg, "404") ||
		strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "bad request") ||
		strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "forbidden") ||
		strings.Contains(errMsg, "not found") ||
		strings.Contains(errMsg, "rate limit") {
		return ErrorTypeClientError
	}

	return ErrorTypeUnknown
}

// ValidateCircuitBreakerConfig validates circuit breaker configuration
func ValidateCircuitBreakerConfig(config CircuitBreakerConfig) error {
	if config.MaxRequests == 0 {
		return fmt.Errorf("max_requests must be greater than 0")
	}

	if config.ConsecutiveFailureThreshold <= 0 {
		return fmt.Errorf("consecutive_failure_threshold must be greater than 0")
	}

	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	if config.Interval < 0 {
		return fmt.Errorf("interval must be non-negative")
	}

	return nil
}
