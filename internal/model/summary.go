package model

// OperationSummary is the local history entry kept for in-flight recovery.
type OperationSummary struct {
	ID         string     `json:"id"`
	TokenImage string     `json:"tokenImage"`
	Amount     string     `json:"amount"`
	FromToken  string     `json:"fromToken"`
	ToToken    string     `json:"toToken"`
	Mode       Direction  `json:"mode"`
	Operation  *Operation `json:"operation,omitempty"`
}

func NewOperationSummary(op *Operation) OperationSummary {
	return OperationSummary{
		ID:         op.ID,
		TokenImage: op.Asset.Image,
		Amount:     op.AmountBigInt().String(),
		FromToken:  op.Asset.Symbol,
		ToToken:    op.Asset.Symbol,
		Mode:       op.Direction,
		Operation:  op,
	}
}
