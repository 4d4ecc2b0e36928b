package secret

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/gateway"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

type snip20Send struct {
	Send struct {
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
		Msg       string `json:"msg,omitempty"`
	} `json:"send"`
}

type Gateway struct {
	lcd    *lcdClient
	wallet Wallet
	bridge string
	prefix string
	logger *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) (*Gateway, error) {
	wallet := NewRemoteWallet(appConfig.Secret.SignerURL, appConfig.Secret.ChainID, appConfig.Secret.SignerAddress)
	return NewWithWallet(appConfig, wallet, logger)
}

func NewWithWallet(appConfig *config.AppConfig, wallet Wallet, logger *logger.Logger) (*Gateway, error) {
	prefix := appConfig.Secret.Bech32Prefix
	if prefix == "" {
		prefix = consts.SECRET_BECH32_PREFIX
	}
	if err := ValidateAddress(appConfig.Secret.BridgeContractAddr, prefix); err != nil {
		return nil, errors.Wrap(err, "bridge contract")
	}

	return &Gateway{
		lcd:    newLCDClient(appConfig.Secret.LCDEndpoint, appConfig.OperationStore.RequestTimeout),
		wallet: wallet,
		bridge: appConfig.Secret.BridgeContractAddr,
		prefix: prefix,
		logger: logger,
	}, nil
}

func (g *Gateway) Chain() gateway.Chain {
	return gateway.ChainSecret
}

func (g *Gateway) SignerAddress() string {
	return g.wallet.Address()
}

func (g *Gateway) BridgeAddress() string {
	return g.bridge
}

func (g *Gateway) ValidateAddress(address string) error {
	return ValidateAddress(address, g.prefix)
}

func (g *Gateway) SubmitLock(context.Context, model.CanonicalAsset, *model.Web3BigInt, string) (string, error) {
	return "", errors.Wrap(gateway.ErrCapabilityUnsupported, "lock on secret")
}

func (g *Gateway) SubmitApprove(context.Context, model.CanonicalAsset, string, *model.Web3BigInt) (string, error) {
	return "", errors.Wrap(gateway.ErrCapabilityUnsupported, "approve on secret")
}

func (g *Gateway) SubmitUnlock(context.Context, model.CanonicalAsset, *model.Web3BigInt, string) (string, error) {
	return "", errors.Wrap(gateway.ErrCapabilityUnsupported, "unlock on secret")
}

// SubmitBurn sends SNIP-20 tokens to the bridge (or the asset's proxy) with
// the destination address in the send msg. The leaders release on the other
// side once they see it.
func (g *Gateway) SubmitBurn(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, destAddress string, opts gateway.BurnOptions) (string, error) {
	if !common.IsHexAddress(destAddress) {
		return "", errors.Wrapf(gateway.ErrInvalidAddress, "destination %q", destAddress)
	}
	if err := ValidateAddress(asset.CanonicalAddress, g.prefix); err != nil {
		return "", errors.Wrap(err, "token contract")
	}
	if amount == nil {
		return "", gateway.ErrInvalidAmount
	}
	if v, ok := amount.BigInt(); !ok || v.Sign() <= 0 {
		return "", errors.Wrapf(gateway.ErrInvalidAmount, "%q", amount.Value)
	}

	recipient := opts.Recipient
	if recipient == "" {
		recipient = asset.SendRecipient(g.bridge)
	}
	memo := opts.Memo
	if memo == "" {
		memo = base64.StdEncoding.EncodeToString([]byte(destAddress))
	}

	var send snip20Send
	send.Send.Recipient = recipient
	send.Send.Amount = amount.Value
	send.Send.Msg = memo
	raw, err := json.Marshal(send)
	if err != nil {
		return "", errors.Wrap(err, "encode send msg")
	}

	msg := &wasmtypes.MsgExecuteContract{
		Sender:   g.wallet.Address(),
		Contract: asset.CanonicalAddress,
		Msg:      wasmtypes.RawContractMessage(raw),
	}

	txHash, err := g.wallet.SignAndBroadcast(ctx, []sdk.Msg{msg}, "")
	if err != nil {
		g.logger.Error("[SubmitBurn][SignAndBroadcast]", map[string]string{
			"error":    err.Error(),
			"contract": asset.CanonicalAddress,
		})
		return "", err
	}

	g.logger.Info("[SubmitBurn] snip20 send broadcast", map[string]string{
		"tx_hash":   txHash,
		"contract":  asset.CanonicalAddress,
		"recipient": recipient,
	})
	return txHash, nil
}

// QueryAllowance is unsupported: SNIP-20 allowances are private and need a
// viewing key.
func (g *Gateway) QueryAllowance(context.Context, string, string, model.CanonicalAsset) (model.AllowanceSnapshot, error) {
	return model.AllowanceSnapshot{}, errors.Wrap(gateway.ErrCapabilityUnsupported, "allowance on secret")
}

func (g *Gateway) QueryReceipt(ctx context.Context, txHash string) (model.TxReceipt, error) {
	result := model.TxReceipt{TxHash: txHash}

	tx, err := g.lcd.tx(ctx, txHash)
	if errors.Is(err, errTxNotFound) {
		return result, nil
	}
	if err != nil {
		return result, err
	}

	height, err := parseHeight(tx.TxResponse.Height)
	if err != nil {
		return result, err
	}
	head, err := g.lcd.latestHeight(ctx)
	if err != nil {
		return result, err
	}

	result.Found = true
	result.BlockNumber = height
	result.HeadNumber = head
	result.Reverted = tx.TxResponse.Code != 0
	// tendermint blocks are final once committed
	result.Confirmed = !result.Reverted
	return result, nil
}

// QueryBalance only knows the native denom, token balances need viewing keys.
func (g *Gateway) QueryBalance(ctx context.Context, owner string, asset model.CanonicalAsset) (*model.Web3BigInt, error) {
	if asset.CanonicalAddress != consts.SECRET_NATIVE_DENOM {
		return nil, errors.Wrap(gateway.ErrCapabilityUnsupported, "snip20 balance without viewing key")
	}
	if err := ValidateAddress(owner, g.prefix); err != nil {
		return nil, err
	}

	amount, err := g.lcd.balance(ctx, owner, consts.SECRET_NATIVE_DENOM)
	if err != nil {
		return nil, err
	}
	return &model.Web3BigInt{Value: amount, Decimal: consts.SCRT_DECIMALS}, nil
}

func (g *Gateway) HealthCheck(ctx context.Context) error {
	_, err := g.lcd.latestHeight(ctx)
	return err
}

func parseHeight(h string) (uint64, error) {
	height, err := strconv.ParseUint(h, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid height %q", h)
	}
	return height, nil
}
