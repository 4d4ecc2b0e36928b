package operationstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrRecordRejected = errors.New("record service reported failure")
)

type operationStore struct {
	client      *resty.Client
	readRetries int
	baseDelay   time.Duration
	logger      *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) IOperationStore {
	retries := appConfig.OperationStore.ReadRetries
	if retries < 1 {
		retries = 1
	}

	return &operationStore{
		client: resty.New().
			SetBaseURL(strings.TrimRight(appConfig.OperationStore.BaseURL, "/")).
			SetTimeout(appConfig.OperationStore.RequestTimeout).
			SetHeader("Content-Type", "application/json"),
		readRetries: retries,
		baseDelay:   appConfig.Orchestrator.RetryBaseDelay,
		logger:      logger,
	}
}

func (s *operationStore) CreateOperation(ctx context.Context, id, transactionHash string) (*model.OperationRecord, error) {
	body := map[string]string{"id": id}
	if transactionHash != "" {
		body["transactionHash"] = transactionHash
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/operations")
	if err != nil {
		s.logger.Error("[CreateOperation][Post]", map[string]string{"error": err.Error(), "operation_id": id})
		return nil, errors.Wrap(err, "create operation")
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status code: %v, failed to create operation: %s", resp.StatusCode(), string(resp.Body()))
	}

	return decodeRecord(resp.Body())
}

func (s *operationStore) UpdateOperation(ctx context.Context, id string, req model.UpdateOperationRequest) (*model.OperationRecord, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/operations/" + id)
	if err != nil {
		s.logger.Error("[UpdateOperation][Post]", map[string]string{"error": err.Error(), "operation_id": id})
		return nil, errors.Wrap(err, "update operation")
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, errors.Wrapf(ErrNotFound, "operation %s", id)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("status code: %v, failed to update operation: %s", resp.StatusCode(), string(resp.Body()))
	}

	return decodeRecord(resp.Body())
}

func (s *operationStore) GetOperation(ctx context.Context, id string) (*model.OperationEnvelope, error) {
	var out model.OperationEnvelope
	if err := s.getWithRetry(ctx, "GetOperation", "/operations/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *operationStore) GetSwap(ctx context.Context, id string) (*model.SwapRecord, error) {
	var out model.SwapRecord
	if err := s.getWithRetry(ctx, "GetSwap", "/swaps/"+id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *operationStore) ListTokens(ctx context.Context) ([]model.Token, error) {
	var out struct {
		Tokens []model.Token `json:"tokens"`
	}
	if err := s.getWithRetry(ctx, "ListTokens", "/tokens/", &out); err != nil {
		return nil, err
	}
	return out.Tokens, nil
}

func (s *operationStore) HealthCheck(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Get("/tokens/")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("record service unhealthy: status %d", resp.StatusCode())
	}
	return nil
}

// getWithRetry retries a read with exponential backoff. 4xx answers are final.
func (s *operationStore) getWithRetry(ctx context.Context, method, path string, out interface{}) error {
	var lastErr error

	for attempt := 1; attempt <= s.readRetries; attempt++ {
		if attempt > 1 {
			delay := s.baseDelay * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := s.client.R().SetContext(ctx).Get(path)
		if err != nil {
			lastErr = errors.Wrapf(err, "get %s", path)
			s.logger.Error("["+method+"][Get]", map[string]string{
				"error":   err.Error(),
				"attempt": strconv.Itoa(attempt),
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if resp.StatusCode() == http.StatusNotFound {
			return errors.Wrap(ErrNotFound, path)
		}
		if resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError {
			return fmt.Errorf("status code: %v, failed to get %s: %s", resp.StatusCode(), path, string(resp.Body()))
		}
		if resp.IsError() {
			lastErr = fmt.Errorf("status code: %v, failed to get %s", resp.StatusCode(), path)
			s.logger.Error("["+method+"] server error", map[string]string{
				"statusCode": strconv.Itoa(resp.StatusCode()),
				"attempt":    strconv.Itoa(attempt),
			})
			continue
		}

		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return errors.Wrapf(err, "decode %s", path)
		}
		return nil
	}

	return lastErr
}

// decodeRecord reads a record, or the {result:"failed"} answer the service
// gives when it refuses a write.
func decodeRecord(body []byte) (*model.OperationRecord, error) {
	var result struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err == nil && strings.EqualFold(result.Result, "failed") {
		return nil, ErrRecordRejected
	}

	var wrapped struct {
		Operation *model.OperationRecord `json:"operation"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Operation != nil {
		return wrapped.Operation, nil
	}

	var record model.OperationRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, errors.Wrap(err, "decode operation record")
	}
	return &record, nil
}
