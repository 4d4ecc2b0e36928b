package evm

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/secret-bridge/internal/gateway"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/types/environments"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

var (
	bridgeAddr = common.HexToAddress("0x00000000000000000000000000000000000b71d6")
	tokenAddr  = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	secretDest = "secret1fc3fzy78ttp0lwuujw7e52rhspxn8uj52zfyne"
)

type fakeEthClient struct {
	mu        sync.Mutex
	sent      []*types.Transaction
	callOut   []byte
	callErr   error
	sendErr   error
	receipt   *types.Receipt
	head      uint64
	balance   *big.Int
	lastCall  ethereum.CallMsg
	nonceSeen common.Address
}

func (f *fakeEthClient) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceSeen = account
	return uint64(len(f.sent)), nil
}

func (f *fakeEthClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeEthClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90_000, nil
}

func (f *fakeEthClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeEthClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.lastCall = msg
	return f.callOut, f.callErr
}

func (f *fakeEthClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if f.receipt == nil {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeEthClient) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func (f *fakeEthClient) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func newTestGateway(t *testing.T) (*Gateway, *fakeEthClient) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := NewPrivateKeySigner("0x" + hex.EncodeToString(crypto.FromECDSA(key)))
	require.NoError(t, err)

	client := &fakeEthClient{head: 120}
	return NewWithClient(client, signer, big.NewInt(1), bridgeAddr, 12, logger.New(environments.Test)), client
}

func erc20Asset() model.CanonicalAsset {
	return model.CanonicalAsset{Symbol: "USDT", Decimals: 6, Kind: model.AssetKindERC20, EthAddress: tokenAddr.Hex()}
}

func TestGateway_SubmitLockNative(t *testing.T) {
	g, client := newTestGateway(t)
	asset := model.CanonicalAsset{Symbol: "ETH", Decimals: 18, Kind: model.AssetKindNative, EthAddress: "native"}

	hash, err := g.SubmitLock(context.Background(), asset, &model.Web3BigInt{Value: "1500000000000000000", Decimal: 18}, secretDest)
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	assert.Equal(t, tx.Hash().Hex(), hash)
	assert.Equal(t, bridgeAddr, *tx.To())
	assert.Equal(t, "1500000000000000000", tx.Value().String())

	method, err := bridgeABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "swap", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, []byte(secretDest), args[0])

	// the signer pays, so the nonce is read for it
	assert.Equal(t, g.signer.Address(), client.nonceSeen)
}

func TestGateway_SubmitLockERC20(t *testing.T) {
	g, client := newTestGateway(t)

	_, err := g.SubmitLock(context.Background(), erc20Asset(), &model.Web3BigInt{Value: "100000000", Decimal: 6}, secretDest)
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	assert.Equal(t, int64(0), tx.Value().Int64())
	method, err := bridgeABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "swapToken", method.Name)

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, []byte(secretDest), args[0])
	assert.Equal(t, "100000000", args[1].(*big.Int).String())
	assert.Equal(t, tokenAddr, args[2])
}

func TestGateway_SubmitLockRejectsBadInput(t *testing.T) {
	g, client := newTestGateway(t)

	_, err := g.SubmitLock(context.Background(), erc20Asset(), &model.Web3BigInt{Value: "0", Decimal: 6}, secretDest)
	assert.ErrorIs(t, err, gateway.ErrInvalidAmount)

	secretAsset := model.CanonicalAsset{Kind: model.AssetKindSecretToken}
	_, err = g.SubmitLock(context.Background(), secretAsset, &model.Web3BigInt{Value: "1", Decimal: 6}, secretDest)
	assert.ErrorIs(t, err, gateway.ErrCapabilityUnsupported)

	assert.Empty(t, client.sent)
}

func TestGateway_SubmitLockSendFailure(t *testing.T) {
	g, client := newTestGateway(t)
	client.sendErr = errors.New("insufficient funds for gas")

	hash, err := g.SubmitLock(context.Background(), erc20Asset(), &model.Web3BigInt{Value: "1", Decimal: 6}, secretDest)
	assert.Error(t, err)
	assert.Empty(t, hash)
}

func TestGateway_SubmitApprove(t *testing.T) {
	g, client := newTestGateway(t)

	_, err := g.SubmitApprove(context.Background(), erc20Asset(), bridgeAddr.Hex(), &model.Web3BigInt{Value: "100000000", Decimal: 6})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	tx := client.sent[0]
	assert.Equal(t, tokenAddr, *tx.To())
	method, err := erc20ABI.MethodById(tx.Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", method.Name)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, bridgeAddr, args[0])

	_, err = g.SubmitApprove(context.Background(), model.CanonicalAsset{Kind: model.AssetKindNative}, bridgeAddr.Hex(), &model.Web3BigInt{Value: "1"})
	assert.ErrorIs(t, err, gateway.ErrCapabilityUnsupported)
}

func TestGateway_SubmitBurnUnsupported(t *testing.T) {
	g, client := newTestGateway(t)

	_, err := g.SubmitBurn(context.Background(), erc20Asset(), &model.Web3BigInt{Value: "1", Decimal: 6}, "0x1", gateway.BurnOptions{})
	assert.ErrorIs(t, err, gateway.ErrCapabilityUnsupported)
	assert.Empty(t, client.sent)
}

func TestGateway_SubmitUnlockERC20(t *testing.T) {
	g, client := newTestGateway(t)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	_, err := g.SubmitUnlock(context.Background(), erc20Asset(), &model.Web3BigInt{Value: "5", Decimal: 6}, recipient.Hex())
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	method, err := bridgeABI.MethodById(client.sent[0].Data()[:4])
	require.NoError(t, err)
	assert.Equal(t, "submitTransaction", method.Name)
	args, err := method.Inputs.Unpack(client.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, args[0])

	inner := args[2].([]byte)
	transfer, err := erc20ABI.MethodById(inner[:4])
	require.NoError(t, err)
	assert.Equal(t, "transfer", transfer.Name)
}

func TestGateway_QueryAllowance(t *testing.T) {
	g, client := newTestGateway(t)
	out, err := erc20ABI.Methods["allowance"].Outputs.Pack(big.NewInt(500))
	require.NoError(t, err)
	client.callOut = out

	owner := "0x00000000000000000000000000000000000000bb"
	snapshot, err := g.QueryAllowance(context.Background(), owner, bridgeAddr.Hex(), erc20Asset())
	require.NoError(t, err)
	assert.Equal(t, "500", snapshot.Amount)
	assert.Equal(t, owner, snapshot.Owner)
	assert.Equal(t, tokenAddr, *client.lastCall.To)

	client.callErr = errors.New("execution reverted")
	_, err = g.QueryAllowance(context.Background(), owner, bridgeAddr.Hex(), erc20Asset())
	assert.Error(t, err)
}

func TestGateway_QueryReceipt(t *testing.T) {
	g, client := newTestGateway(t)
	hash := "0x" + hex.EncodeToString(make([]byte, 32))

	t.Run("not mined yet", func(t *testing.T) {
		r, err := g.QueryReceipt(context.Background(), hash)
		require.NoError(t, err)
		assert.False(t, r.Found)
		assert.Equal(t, uint64(0), r.Depth())
	})

	t.Run("mined but shallow", func(t *testing.T) {
		client.receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(115)}
		r, err := g.QueryReceipt(context.Background(), hash)
		require.NoError(t, err)
		assert.True(t, r.Found)
		assert.Equal(t, uint64(5), r.Depth())
		assert.False(t, r.Confirmed)
	})

	t.Run("deep enough", func(t *testing.T) {
		client.receipt = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}
		r, err := g.QueryReceipt(context.Background(), hash)
		require.NoError(t, err)
		assert.True(t, r.Confirmed)
	})

	t.Run("reverted", func(t *testing.T) {
		client.receipt = &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}
		r, err := g.QueryReceipt(context.Background(), hash)
		require.NoError(t, err)
		assert.True(t, r.Reverted)
		assert.False(t, r.Confirmed)
	})
}

func TestGateway_QueryBalance(t *testing.T) {
	g, client := newTestGateway(t)
	client.balance = big.NewInt(42)

	b, err := g.QueryBalance(context.Background(), "0x00000000000000000000000000000000000000bb", model.CanonicalAsset{Kind: model.AssetKindNative})
	require.NoError(t, err)
	assert.Equal(t, "42", b.Value)
	assert.Equal(t, 18, b.Decimal)
}

func TestIsTxHash(t *testing.T) {
	assert.True(t, IsTxHash("0x"+hex.EncodeToString(make([]byte, 32))))
	assert.False(t, IsTxHash(hex.EncodeToString(make([]byte, 32))))
	assert.False(t, IsTxHash("0x1234"))
	assert.False(t, IsTxHash("ABCDEF|secret1proxy"))
}
