package mirror

import (
	"github.com/dwarvesf/secret-bridge/internal/model"
)

// IMirror is the local history of operations. It is only read to resume
// work after a restart, never to decide an operation's status.
type IMirror interface {
	Save(op *model.Operation) error
	Remove(id string) error
	Get(id string) (model.OperationSummary, bool)
	List() []model.OperationSummary
	ListInFlight() []model.Operation
	Close() error
}
