package secret

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
)

var errTxNotFound = errors.New("tx not found")

type txResponse struct {
	TxResponse struct {
		Height string `json:"height"`
		TxHash string `json:"txhash"`
		Code   uint32 `json:"code"`
		RawLog string `json:"raw_log"`
	} `json:"tx_response"`
}

type latestBlockResponse struct {
	Block struct {
		Header struct {
			Height string `json:"height"`
		} `json:"header"`
	} `json:"block"`
}

type balanceResponse struct {
	Balance struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
}

// lcdClient reads chain state through the Cosmos REST gateway.
type lcdClient struct {
	client *resty.Client
}

func newLCDClient(endpoint string, timeout time.Duration) *lcdClient {
	return &lcdClient{
		client: resty.New().
			SetBaseURL(strings.TrimRight(endpoint, "/")).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

func (c *lcdClient) tx(ctx context.Context, hash string) (*txResponse, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/cosmos/tx/v1beta1/txs/" + hash)
	if err != nil {
		return nil, errors.Wrap(err, "lcd tx request")
	}

	// the gateway answers 404 or a grpc NotFound wrapped in 400 for unknown hashes
	if resp.StatusCode() == http.StatusNotFound ||
		(resp.IsError() && strings.Contains(strings.ToLower(string(resp.Body())), "not found")) {
		return nil, errTxNotFound
	}
	if resp.IsError() {
		return nil, fmt.Errorf("lcd tx request failed with status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	var out txResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Wrap(err, "decode lcd tx")
	}
	return &out, nil
}

func (c *lcdClient) latestHeight(ctx context.Context) (uint64, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get("/cosmos/base/tendermint/v1beta1/blocks/latest")
	if err != nil {
		return 0, errors.Wrap(err, "lcd latest block request")
	}
	if resp.IsError() {
		return 0, fmt.Errorf("lcd latest block failed with status %d", resp.StatusCode())
	}

	var out latestBlockResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return 0, errors.Wrap(err, "decode lcd latest block")
	}
	return strconv.ParseUint(out.Block.Header.Height, 10, 64)
}

func (c *lcdClient) balance(ctx context.Context, address, denom string) (string, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("denom", denom).
		Get("/cosmos/bank/v1beta1/balances/" + address + "/by_denom")
	if err != nil {
		return "", errors.Wrap(err, "lcd balance request")
	}
	if resp.IsError() {
		return "", fmt.Errorf("lcd balance failed with status %d", resp.StatusCode())
	}

	var out balanceResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", errors.Wrap(err, "decode lcd balance")
	}
	if out.Balance.Amount == "" {
		return "0", nil
	}
	return out.Balance.Amount, nil
}
