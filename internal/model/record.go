package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// BackendStatus is the status enum used by the operation record service.
type BackendStatus int

const (
	BackendStatusUnsigned    BackendStatus = 1
	BackendStatusSigned      BackendStatus = 2
	BackendStatusSubmitted   BackendStatus = 3
	BackendStatusConfirmed   BackendStatus = 4
	BackendStatusFailed      BackendStatus = 5
	BackendStatusRetry       BackendStatus = 6
	BackendStatusWaitSend    BackendStatus = 7
	BackendStatusWaitApprove BackendStatus = 8
)

var backendStatusNames = map[BackendStatus]string{
	BackendStatusUnsigned:    "unsigned",
	BackendStatusSigned:      "signed",
	BackendStatusSubmitted:   "submitted",
	BackendStatusConfirmed:   "confirmed",
	BackendStatusFailed:      "failed",
	BackendStatusRetry:       "retry",
	BackendStatusWaitSend:    "wait_send",
	BackendStatusWaitApprove: "wait_approve",
}

func (b BackendStatus) String() string {
	if name, ok := backendStatusNames[b]; ok {
		return name
	}
	return "unknown"
}

func (b BackendStatus) IsTerminal() bool {
	return b == BackendStatusConfirmed || b == BackendStatusFailed
}

// ToOperationStatus maps a record status onto the local lifecycle. Anything
// that is not terminal means the record exists and is still being worked on.
func (b BackendStatus) ToOperationStatus() OperationStatus {
	switch b {
	case BackendStatusConfirmed:
		return OperationStatusConfirmed
	case BackendStatusFailed:
		return OperationStatusFailed
	default:
		return OperationStatusAwaitingConfirmation
	}
}

func (b *BackendStatus) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = 0
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*b = BackendStatus(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid backend status %s", string(data))
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "swap_")
	if n, err := strconv.Atoi(s); err == nil {
		*b = BackendStatus(n)
		return nil
	}
	for status, name := range backendStatusNames {
		if name == s {
			*b = status
			return nil
		}
	}
	return fmt.Errorf("unknown backend status %q", s)
}

// OperationRecord is the operation as stored by the record service.
type OperationRecord struct {
	ID              string        `json:"id"`
	Status          BackendStatus `json:"status,omitempty"`
	TransactionHash string        `json:"transactionHash,omitempty"`
	EthAddress      string        `json:"ethAddress,omitempty"`
	SecretAddress   string        `json:"secretAddress,omitempty"`
	Asset           string        `json:"asset,omitempty"`
	Amount          string        `json:"amount,omitempty"`
	Timestamp       int64         `json:"timestamp,omitempty"`
}

// SwapRecord is attached to an operation once the bridge leaders pick it up.
type SwapRecord struct {
	ID         string        `json:"_id,omitempty"`
	SrcNetwork string        `json:"src_network"`
	SrcTxHash  string        `json:"src_tx_hash"`
	SrcAddress string        `json:"src_address"`
	SrcCoin    string        `json:"src_coin"`
	DstNetwork string        `json:"dst_network"`
	DstTxHash  string        `json:"dst_tx_hash"`
	DstAddress string        `json:"dst_address"`
	DstCoin    string        `json:"dst_coin"`
	Amount     string        `json:"amount"`
	CreatedOn  string        `json:"created_on,omitempty"`
	Status     BackendStatus `json:"status"`
}

func (s *SwapRecord) FromSecret() bool {
	return strings.EqualFold(s.SrcNetwork, "secret")
}

type OperationEnvelope struct {
	Operation OperationRecord `json:"operation"`
	Swap      *SwapRecord     `json:"swap,omitempty"`
}

// UpdateOperationRequest is the body sent once the source transaction exists.
type UpdateOperationRequest struct {
	TransactionHash string `json:"transactionHash"`
	EthAddress      string `json:"ethAddress"`
	SecretAddress   string `json:"secretAddress"`
	Asset           string `json:"asset"`
	Amount          string `json:"amount"`
}

type TokenDisplayProps struct {
	Symbol string `json:"symbol"`
	Image  string `json:"image,omitempty"`
	Label  string `json:"label,omitempty"`
	Hidden bool   `json:"hidden,omitempty"`
	Proxy  bool   `json:"proxy,omitempty"`
}

// Token is one bridged asset pair as listed by the record service.
type Token struct {
	SrcNetwork   string            `json:"src_network"`
	SrcCoin      string            `json:"src_coin"`
	SrcAddress   string            `json:"src_address"`
	DstNetwork   string            `json:"dst_network"`
	DstAddress   string            `json:"dst_address"`
	Decimals     int               `json:"decimals"`
	Name         string            `json:"name,omitempty"`
	DisplayProps TokenDisplayProps `json:"display_props"`
}
