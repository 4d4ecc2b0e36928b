package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/handler/operation"
	"github.com/dwarvesf/secret-bridge/internal/model"
)

var ErrNotFound = errors.New("not found")

type envelope struct {
	Data        json.RawMessage `json:"data"`
	Error       *string         `json:"error"`
	Message     string          `json:"message"`
	OperationID string          `json:"operationId"`
	TxHash      string          `json:"txHash"`
}

// Client talks to the daemon's /api/v1.
type Client struct {
	client *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")+"/api/v1").
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func (c *Client) GetOperation(id string) (*operation.OperationResponse, error) {
	var out operation.OperationResponse
	if err := c.do(c.client.R().SetPathParam("id", id), "GET", "/operations/{id}", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListOperations(inFlight bool) ([]model.OperationSummary, error) {
	req := c.client.R()
	if inFlight {
		req.SetQueryParam("inflight", "true")
	}

	var out []model.OperationSummary
	if err := c.do(req, "GET", "/operations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Abandon(id string) error {
	return c.do(c.client.R().SetPathParam("id", id), "POST", "/operations/{id}/abandon", nil)
}

func (c *Client) do(req *resty.Request, method, path string, out interface{}) error {
	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return errors.Wrapf(err, "decode response (status %s)", resp.Status())
	}

	if resp.IsError() {
		msg := resp.Status()
		if env.Error != nil {
			msg = *env.Error
		}
		if env.TxHash != "" {
			msg += ", tx " + env.TxHash
		}
		if resp.StatusCode() == 404 {
			return errors.Wrap(ErrNotFound, msg)
		}
		return errors.New(msg)
	}

	if out == nil {
		return nil
	}
	return errors.Wrap(json.Unmarshal(env.Data, out), "decode data")
}
