package webhook

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

// Payload is what the webhook receives for every terminal operation.
type Payload struct {
	ID           string                `json:"id"`
	Status       model.OperationStatus `json:"status"`
	Direction    model.Direction       `json:"direction"`
	Amount       string                `json:"amount"`
	Symbol       string                `json:"symbol"`
	SourceTxHash string                `json:"sourceTxHash,omitempty"`
	DestTxHash   string                `json:"destTxHash,omitempty"`
	At           time.Time             `json:"at"`
}

// Client posts terminal status changes to a configured URL.
type Client struct {
	client *resty.Client
	url    string
	logger *logger.Logger
}

// New creates a new webhook client with timeout
func New(url string, logger *logger.Logger) *Client {
	return &Client{
		client: resty.New().
			SetTimeout(10*time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500*time.Millisecond).
			SetHeader("Content-Type", "application/json"),
		url:    url,
		logger: logger,
	}
}

// Notify posts a single change. Non-terminal changes are ignored.
func (c *Client) Notify(ctx context.Context, change model.StatusChange) error {
	if c.url == "" || !change.To.IsTerminal() {
		return nil
	}

	payload := Payload{
		ID:           change.OperationID,
		Status:       change.To,
		Direction:    change.Operation.Direction,
		Amount:       change.Operation.AmountBigInt().String(),
		Symbol:       change.Operation.Asset.Symbol,
		SourceTxHash: change.Operation.SourceTxHash,
		DestTxHash:   change.Operation.DestTxHash,
		At:           change.At,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.url)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	if resp.IsError() {
		return errors.Errorf("webhook responded %s", resp.Status())
	}

	c.logger.Info("[Webhook][Notify] delivered", map[string]string{
		"operation_id": change.OperationID,
		"status":       string(change.To),
		"status_code":  resp.Status(),
	})
	return nil
}

// Consume notifies every terminal change until changes closes or ctx ends.
// Delivery failures are logged and dropped.
func (c *Client) Consume(ctx context.Context, changes <-chan model.StatusChange) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			if err := c.Notify(ctx, change); err != nil {
				c.logger.Error("[Webhook][Notify]", map[string]string{
					"operation_id": change.OperationID,
					"url":          c.url,
					"error":        err.Error(),
				})
			}
		}
	}
}
