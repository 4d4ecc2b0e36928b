package secret

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Wallet signs and broadcasts Secret transactions. Compute messages are
// encrypted for the chain enclave by the wallet, so it receives plain msgs.
type Wallet interface {
	Address() string
	SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, memo string) (string, error)
}

type signRequest struct {
	ChainID string          `json:"chain_id"`
	Memo    string          `json:"memo,omitempty"`
	Msgs    []executeMsgDoc `json:"msgs"`
}

type executeMsgDoc struct {
	Sender   string          `json:"sender"`
	Contract string          `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
	Funds    sdk.Coins       `json:"sent_funds,omitempty"`
}

type signResponse struct {
	TxHash string `json:"txhash"`
	Code   uint32 `json:"code"`
	RawLog string `json:"raw_log"`
}

// RemoteWallet hands execute messages to a signing service that holds the key.
// No timeout is set: the service may be waiting on a person to approve.
type RemoteWallet struct {
	client  *resty.Client
	chainID string
	address string
}

func NewRemoteWallet(signerURL, chainID, address string) *RemoteWallet {
	return &RemoteWallet{
		client:  resty.New().SetBaseURL(strings.TrimRight(signerURL, "/")),
		chainID: chainID,
		address: address,
	}
}

func (w *RemoteWallet) Address() string {
	return w.address
}

func (w *RemoteWallet) SignAndBroadcast(ctx context.Context, msgs []sdk.Msg, memo string) (string, error) {
	req := signRequest{ChainID: w.chainID, Memo: memo}
	for _, m := range msgs {
		exec, ok := m.(*wasmtypes.MsgExecuteContract)
		if !ok {
			return "", fmt.Errorf("unsupported msg %T", m)
		}
		req.Msgs = append(req.Msgs, executeMsgDoc{
			Sender:   exec.Sender,
			Contract: exec.Contract,
			Msg:      json.RawMessage(exec.Msg),
			Funds:    exec.Funds,
		})
	}

	var out signResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/sign")
	if err != nil {
		return "", errors.Wrap(err, "signer request")
	}
	if resp.IsError() {
		return "", fmt.Errorf("signer rejected with status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	if out.Code != 0 {
		return "", fmt.Errorf("broadcast failed with code %d: %s", out.Code, out.RawLog)
	}
	if out.TxHash == "" {
		return "", errors.New("signer returned no tx hash")
	}
	return strings.ToUpper(out.TxHash), nil
}
