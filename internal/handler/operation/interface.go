package operation

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/orchestrator"
)

type IHandler interface {
	CreateTransfer(c *gin.Context)
	GetOperation(c *gin.Context)
	ListOperations(c *gin.Context)
	DeleteOperation(c *gin.Context)
	PollOperation(c *gin.Context)
	AbandonOperation(c *gin.Context)
	GetSwap(c *gin.Context)
}

// IOrchestrator is the part of the orchestrator the API drives.
type IOrchestrator interface {
	Begin(ctx context.Context, intent model.TransferIntent) (*model.Operation, error)
	ContinueInBackground(id string) error
	Get(id string) (*model.Operation, error)
	Confirmations(id string) (model.ConfirmationProgress, error)
	LastIssue(id string) (*orchestrator.Issue, error)
	Polling(id string) bool
	StartPolling(id string) error
	Abandon(id string) error
}
