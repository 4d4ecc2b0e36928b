package model

import (
	"time"
)

type Direction string

const (
	DirectionEthToScrt Direction = "eth_to_scrt"
	DirectionScrtToEth Direction = "scrt_to_eth"
)

type AssetKind string

const (
	AssetKindNative      AssetKind = "native"
	AssetKindERC20       AssetKind = "erc20"
	AssetKindSecretToken AssetKind = "secret_token"
)

// TransferIntent is what a user asks for before anything touches a chain.
type TransferIntent struct {
	Direction       Direction `json:"direction" binding:"required" validate:"required,oneof=eth_to_scrt scrt_to_eth"`
	AssetKind       AssetKind `json:"assetKind" binding:"required" validate:"required,oneof=native erc20 secret_token"`
	SourceAddress   string    `json:"sourceAddress" binding:"required" validate:"required"`
	DestAddress     string    `json:"destAddress" binding:"required" validate:"required"`
	Amount          string    `json:"amount" binding:"required" validate:"required,numeric"`
	AssetIdentifier string    `json:"assetIdentifier" binding:"required" validate:"required"`
}

// CanonicalAsset is the on-chain identity of a display asset after proxy rewriting.
type CanonicalAsset struct {
	Symbol     string    `json:"symbol"`
	Decimals   int       `json:"decimals"`
	Kind       AssetKind `json:"kind"`
	SrcNetwork string    `json:"srcNetwork"`
	// erc20 contract on the EVM side, "native" for the chain coin
	EthAddress string `json:"ethAddress"`
	// SNIP-20 contract on the Secret side
	CanonicalAddress string `json:"canonicalAddress"`
	ProxyContract    string `json:"proxyContract,omitempty"`
	Image            string `json:"image,omitempty"`
}

func (a CanonicalAsset) IsProxied() bool {
	return a.ProxyContract != ""
}

// RecordContract is the contract half of a Secret record hash.
func (a CanonicalAsset) RecordContract() string {
	if a.ProxyContract != "" {
		return a.ProxyContract
	}
	return a.CanonicalAddress
}

// SendRecipient is where a SNIP-20 send has to go: the proxy for proxied
// assets, the bridge contract otherwise.
func (a CanonicalAsset) SendRecipient(bridge string) string {
	if a.ProxyContract != "" {
		return a.ProxyContract
	}
	return bridge
}

type Operation struct {
	ID              string          `json:"id"`
	Direction       Direction       `json:"direction"`
	AssetKind       AssetKind       `json:"assetKind"`
	AssetIdentifier string          `json:"assetIdentifier"`
	Asset           CanonicalAsset  `json:"asset"`
	Amount          string          `json:"amount"`
	Decimals        int             `json:"decimals"`
	SourceAddress   string          `json:"sourceAddress"`
	DestAddress     string          `json:"destAddress"`
	ApproveTxHash   string          `json:"approveTxHash,omitempty"`
	SourceTxHash    string          `json:"sourceTxHash,omitempty"`
	DestTxHash      string          `json:"destTxHash,omitempty"`
	RecordHash      string          `json:"recordHash,omitempty"`
	Status          OperationStatus `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastUpdatedAt   time.Time       `json:"lastUpdatedAt"`
}

func (o *Operation) NeedsApproval() bool {
	return o.Direction == DirectionEthToScrt && o.AssetKind == AssetKindERC20
}

// EthTxHash is the EVM side transaction used for confirmation depth.
func (o *Operation) EthTxHash() string {
	if o.Direction == DirectionEthToScrt {
		return o.SourceTxHash
	}
	return o.DestTxHash
}

// AmountBigInt returns the normalized amount together with its decimals.
func (o *Operation) AmountBigInt() *Web3BigInt {
	return &Web3BigInt{Value: o.Amount, Decimal: o.Decimals}
}

type AllowanceSnapshot struct {
	Owner   string    `json:"owner"`
	Spender string    `json:"spender"`
	Asset   string    `json:"asset"`
	Amount  string    `json:"amount"`
	Expiry  time.Time `json:"expiry"`
}

type ConfirmationProgress struct {
	Required uint64 `json:"requiredConfirmations"`
	Observed uint64 `json:"observedConfirmations"`
}

func (c ConfirmationProgress) Done() bool {
	return c.Required > 0 && c.Observed >= c.Required
}

type TxReceipt struct {
	TxHash      string `json:"txHash"`
	Found       bool   `json:"found"`
	BlockNumber uint64 `json:"blockNumber"`
	HeadNumber  uint64 `json:"headNumber"`
	Confirmed   bool   `json:"confirmed"`
	Reverted    bool   `json:"reverted"`
}

// Depth is the number of blocks mined on top of the receipt's block.
func (r TxReceipt) Depth() uint64 {
	if !r.Found || r.HeadNumber < r.BlockNumber {
		return 0
	}
	return r.HeadNumber - r.BlockNumber
}

type StatusChange struct {
	OperationID string          `json:"id"`
	From        OperationStatus `json:"from"`
	To          OperationStatus `json:"to"`
	Operation   Operation       `json:"operation"`
	At          time.Time       `json:"at"`
}
