package operationstore

import (
	"context"

	"github.com/dwarvesf/secret-bridge/internal/model"
)

// IOperationStore is the client of the external operation record service.
// Reads retry on their own, writes are attempted once and left to the caller.
type IOperationStore interface {
	CreateOperation(ctx context.Context, id, transactionHash string) (*model.OperationRecord, error)
	UpdateOperation(ctx context.Context, id string, req model.UpdateOperationRequest) (*model.OperationRecord, error)
	GetOperation(ctx context.Context, id string) (*model.OperationEnvelope, error)
	GetSwap(ctx context.Context, id string) (*model.SwapRecord, error)
	ListTokens(ctx context.Context) ([]model.Token, error)
	HealthCheck(ctx context.Context) error
}
