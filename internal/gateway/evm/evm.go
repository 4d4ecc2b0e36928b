package evm

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/gateway"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

// EthClient is the part of ethclient.Client the gateway uses.
type EthClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type Gateway struct {
	client                EthClient
	signer                Signer
	chainID               *big.Int
	bridge                common.Address
	requiredConfirmations uint64
	logger                *logger.Logger
}

func New(appConfig *config.AppConfig, logger *logger.Logger) (*Gateway, error) {
	if !common.IsHexAddress(appConfig.Ethereum.BridgeContractAddr) {
		return nil, errors.Wrapf(gateway.ErrInvalidAddress, "bridge contract %q", appConfig.Ethereum.BridgeContractAddr)
	}

	client, err := ethclient.Dial(appConfig.Ethereum.RPCEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to eth rpc")
	}

	signer, err := NewPrivateKeySigner(appConfig.Ethereum.SignerPrivateKey)
	if err != nil {
		return nil, err
	}

	return NewWithClient(
		client,
		signer,
		big.NewInt(appConfig.Ethereum.ChainID),
		common.HexToAddress(appConfig.Ethereum.BridgeContractAddr),
		appConfig.Ethereum.RequiredConfirmations,
		logger,
	), nil
}

func NewWithClient(client EthClient, signer Signer, chainID *big.Int, bridge common.Address, requiredConfirmations uint64, logger *logger.Logger) *Gateway {
	return &Gateway{
		client:                client,
		signer:                signer,
		chainID:               chainID,
		bridge:                bridge,
		requiredConfirmations: requiredConfirmations,
		logger:                logger,
	}
}

func (g *Gateway) Chain() gateway.Chain {
	return gateway.ChainEthereum
}

func (g *Gateway) SignerAddress() string {
	return g.signer.Address().Hex()
}

func (g *Gateway) BridgeAddress() string {
	return g.bridge.Hex()
}

// SubmitLock sends funds into the bridge manager, native coins as value and
// tokens through swapToken.
func (g *Gateway) SubmitLock(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, destAddress string) (string, error) {
	value, err := toBigInt(amount)
	if err != nil {
		return "", err
	}
	recipient := []byte(destAddress)

	switch asset.Kind {
	case model.AssetKindNative:
		data, err := bridgeABI.Pack("swap", recipient)
		if err != nil {
			return "", errors.Wrap(err, "pack swap")
		}
		return g.send(ctx, "SubmitLock", g.bridge, value, data)
	case model.AssetKindERC20:
		if !common.IsHexAddress(asset.EthAddress) {
			return "", errors.Wrapf(gateway.ErrInvalidAddress, "token %q", asset.EthAddress)
		}
		data, err := bridgeABI.Pack("swapToken", recipient, value, common.HexToAddress(asset.EthAddress))
		if err != nil {
			return "", errors.Wrap(err, "pack swapToken")
		}
		return g.send(ctx, "SubmitLock", g.bridge, big.NewInt(0), data)
	default:
		return "", errors.Wrapf(gateway.ErrCapabilityUnsupported, "lock of %s asset", asset.Kind)
	}
}

func (g *Gateway) SubmitApprove(ctx context.Context, asset model.CanonicalAsset, spender string, amount *model.Web3BigInt) (string, error) {
	if asset.Kind != model.AssetKindERC20 {
		return "", errors.Wrapf(gateway.ErrCapabilityUnsupported, "approve of %s asset", asset.Kind)
	}
	if !common.IsHexAddress(spender) {
		return "", errors.Wrapf(gateway.ErrInvalidAddress, "spender %q", spender)
	}
	value, err := toBigInt(amount)
	if err != nil {
		return "", err
	}

	data, err := erc20ABI.Pack("approve", common.HexToAddress(spender), value)
	if err != nil {
		return "", errors.Wrap(err, "pack approve")
	}
	return g.send(ctx, "SubmitApprove", common.HexToAddress(asset.EthAddress), big.NewInt(0), data)
}

func (g *Gateway) SubmitBurn(_ context.Context, _ model.CanonicalAsset, _ *model.Web3BigInt, _ string, _ gateway.BurnOptions) (string, error) {
	return "", errors.Wrap(gateway.ErrCapabilityUnsupported, "burn on ethereum")
}

// SubmitUnlock proposes a release through the multisig manager. The value
// only moves once enough owners confirm.
func (g *Gateway) SubmitUnlock(ctx context.Context, asset model.CanonicalAsset, amount *model.Web3BigInt, recipient string) (string, error) {
	if !common.IsHexAddress(recipient) {
		return "", errors.Wrapf(gateway.ErrInvalidAddress, "recipient %q", recipient)
	}
	value, err := toBigInt(amount)
	if err != nil {
		return "", err
	}

	var data []byte
	switch asset.Kind {
	case model.AssetKindNative:
		data, err = bridgeABI.Pack("submitTransaction", common.HexToAddress(recipient), value, []byte{})
	case model.AssetKindERC20, model.AssetKindSecretToken:
		if !common.IsHexAddress(asset.EthAddress) {
			return "", errors.Wrapf(gateway.ErrInvalidAddress, "token %q", asset.EthAddress)
		}
		var transfer []byte
		transfer, err = erc20ABI.Pack("transfer", common.HexToAddress(recipient), value)
		if err != nil {
			return "", errors.Wrap(err, "pack transfer")
		}
		data, err = bridgeABI.Pack("submitTransaction", common.HexToAddress(asset.EthAddress), big.NewInt(0), transfer)
	default:
		return "", errors.Wrapf(gateway.ErrCapabilityUnsupported, "unlock of %s asset", asset.Kind)
	}
	if err != nil {
		return "", errors.Wrap(err, "pack submitTransaction")
	}

	return g.send(ctx, "SubmitUnlock", g.bridge, big.NewInt(0), data)
}

func (g *Gateway) QueryAllowance(ctx context.Context, owner, spender string, asset model.CanonicalAsset) (model.AllowanceSnapshot, error) {
	if asset.Kind != model.AssetKindERC20 {
		return model.AllowanceSnapshot{}, errors.Wrapf(gateway.ErrCapabilityUnsupported, "allowance of %s asset", asset.Kind)
	}
	if !common.IsHexAddress(owner) || !common.IsHexAddress(spender) {
		return model.AllowanceSnapshot{}, errors.Wrapf(gateway.ErrInvalidAddress, "owner %q spender %q", owner, spender)
	}

	out, err := g.call(ctx, common.HexToAddress(asset.EthAddress), "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		g.logger.Error("[QueryAllowance][CallContract]", map[string]string{
			"error": err.Error(),
			"token": asset.EthAddress,
		})
		return model.AllowanceSnapshot{}, err
	}

	return model.AllowanceSnapshot{
		Owner:   owner,
		Spender: spender,
		Asset:   asset.EthAddress,
		Amount:  out.String(),
	}, nil
}

func (g *Gateway) QueryReceipt(ctx context.Context, txHash string) (model.TxReceipt, error) {
	result := model.TxReceipt{TxHash: txHash}

	receipt, err := g.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if errors.Is(err, ethereum.NotFound) {
		return result, nil
	}
	if err != nil {
		return result, errors.Wrapf(err, "receipt of %s", txHash)
	}

	head, err := g.client.BlockNumber(ctx)
	if err != nil {
		return result, errors.Wrap(err, "block number")
	}

	result.Found = true
	result.BlockNumber = receipt.BlockNumber.Uint64()
	result.HeadNumber = head
	result.Reverted = receipt.Status == types.ReceiptStatusFailed
	result.Confirmed = !result.Reverted && result.Depth() >= g.requiredConfirmations

	return result, nil
}

func (g *Gateway) QueryBalance(ctx context.Context, owner string, asset model.CanonicalAsset) (*model.Web3BigInt, error) {
	if !common.IsHexAddress(owner) {
		return nil, errors.Wrapf(gateway.ErrInvalidAddress, "owner %q", owner)
	}

	switch asset.Kind {
	case model.AssetKindNative:
		balance, err := g.client.BalanceAt(ctx, common.HexToAddress(owner), nil)
		if err != nil {
			return nil, errors.Wrap(err, "balance")
		}
		return &model.Web3BigInt{Value: balance.String(), Decimal: consts.ETH_DECIMALS}, nil
	case model.AssetKindERC20, model.AssetKindSecretToken:
		balance, err := g.call(ctx, common.HexToAddress(asset.EthAddress), "balanceOf", common.HexToAddress(owner))
		if err != nil {
			return nil, err
		}
		return &model.Web3BigInt{Value: balance.String(), Decimal: asset.Decimals}, nil
	default:
		return nil, errors.Wrapf(gateway.ErrCapabilityUnsupported, "balance of %s asset", asset.Kind)
	}
}

func (g *Gateway) HealthCheck(ctx context.Context) error {
	_, err := g.client.BlockNumber(ctx)
	return err
}

// send builds, signs and broadcasts one transaction.
func (g *Gateway) send(ctx context.Context, method string, to common.Address, value *big.Int, data []byte) (string, error) {
	from := g.signer.Address()

	nonce, err := g.client.PendingNonceAt(ctx, from)
	if err != nil {
		g.logger.Error("["+method+"][PendingNonceAt]", map[string]string{"error": err.Error()})
		return "", errors.Wrap(err, "failed to get nonce")
	}

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		g.logger.Error("["+method+"][SuggestGasPrice]", map[string]string{"error": err.Error()})
		return "", errors.Wrap(err, "failed to get gas price")
	}

	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		g.logger.Error("["+method+"][EstimateGas]", map[string]string{"error": err.Error()})
		return "", errors.Wrap(err, "failed to estimate gas")
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := g.signer.SignTx(ctx, tx, g.chainID)
	if err != nil {
		g.logger.Error("["+method+"][SignTx]", map[string]string{"error": err.Error()})
		return "", errors.Wrap(err, "failed to sign transaction")
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		g.logger.Error("["+method+"][SendTransaction]", map[string]string{"error": err.Error()})
		return "", errors.Wrap(err, "failed to send transaction")
	}

	g.logger.Info("["+method+"] transaction sent", map[string]string{
		"tx_hash": signed.Hash().Hex(),
		"to":      to.Hex(),
	})
	return signed.Hash().Hex(), nil
}

func (g *Gateway) call(ctx context.Context, contract common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "pack %s", method)
	}

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}

	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "unpack %s", method)
	}
	if len(values) != 1 {
		return nil, errors.Errorf("unexpected %s output", method)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected %s output type", method)
	}
	return v, nil
}

func toBigInt(amount *model.Web3BigInt) (*big.Int, error) {
	if amount == nil {
		return nil, gateway.ErrInvalidAmount
	}
	v, ok := amount.BigInt()
	if !ok || v.Sign() <= 0 {
		return nil, errors.Wrapf(gateway.ErrInvalidAmount, "%q", amount.Value)
	}
	return v, nil
}

// IsTxHash reports whether s looks like an EVM transaction hash.
func IsTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") {
		return false
	}
	s = s[2:]
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
