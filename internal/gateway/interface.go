package gateway

import (
	"context"
	"errors"

	"github.com/dwarvesf/secret-bridge/internal/model"
)

type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainSecret   Chain = "secret"
)

var (
	ErrCapabilityUnsupported = errors.New("capability not supported on this chain")
	ErrInvalidAddress        = errors.New("invalid address")
	ErrInvalidAmount         = errors.New("invalid amount")
)

type BurnOptions struct {
	// Recipient of the SNIP-20 send, the bridge contract or a proxy
	Recipient string
	// Memo carried in the send msg, base64 of the destination address
	Memo string
}

// IChainGateway is the capability surface both chains are driven through.
// Every Submit* call makes exactly one chain mutation and is never retried
// by the gateway.
type IChainGateway interface {
	Chain() Chain
	// SignerAddress is the account the gateway signs with.
	SignerAddress() string

	SubmitLock(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, destAddress string) (string, error)
	SubmitApprove(ctx context.Context, asset model.CanonicalAsset, spender string, amount *model.Web3BigInt) (string, error)
	SubmitBurn(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, destAddress string, opts BurnOptions) (string, error)
	SubmitUnlock(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, recipient string) (string, error)

	QueryAllowance(ctx context.Context, owner, spender string, asset model.CanonicalAsset) (model.AllowanceSnapshot, error)
	QueryReceipt(ctx context.Context, txHash string) (model.TxReceipt, error)
	QueryBalance(ctx context.Context, owner string, asset model.CanonicalAsset) (*model.Web3BigInt, error)

	HealthCheck(ctx context.Context) error
}

// SecretRecordHash is the id the record service knows a Secret send by.
func SecretRecordHash(txHash string, asset model.CanonicalAsset) string {
	return txHash + "|" + asset.RecordContract()
}
