package orchestrator

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrApprovalTimeout    = errors.New("approval timeout")
	ErrSubmissionRejected = errors.New("submission rejected")
	ErrRecordingFailed    = errors.New("recording failed")
	ErrPollingExhausted   = errors.New("polling exhausted")

	ErrAlreadySubmitted    = errors.New("operation already submitted")
	ErrOperationNotFound   = errors.New("operation not found")
	ErrInvalidState        = errors.New("invalid operation state")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	errAbandoned = errors.New("abandoned before submission")
)

// OperationError is what callers of the orchestrator get back. It always
// names the operation once one exists, and the chain transaction when one
// was broadcast, so the transfer can be traced by hand.
type OperationError struct {
	Kind        error
	OperationID string
	TxHash      string
	Cause       error
}

func (e *OperationError) Error() string {
	msg := e.Kind.Error()
	if e.OperationID != "" {
		msg = fmt.Sprintf("%s: operation %s", msg, e.OperationID)
	}
	if e.TxHash != "" {
		msg = fmt.Sprintf("%s (tx %s)", msg, e.TxHash)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *OperationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newOperationError(kind error, id, txHash string, cause error) *OperationError {
	return &OperationError{
		Kind:        kind,
		OperationID: id,
		TxHash:      txHash,
		Cause:       cause,
	}
}

// IsRecoverable reports errors after which the operation is still alive
// and worth checking on later.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecordingFailed) ||
		errors.Is(err, ErrPollingExhausted) ||
		errors.Is(err, ErrUpstreamUnavailable)
}

// AsOperationError extracts the operation error from err, if any.
func AsOperationError(err error) (*OperationError, bool) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr, true
	}
	return nil, false
}

// Issue is the latest error an operation ran into after Begin. A
// recoverable issue leaves the operation alive. For recording failures
// TxHash is the transaction that is on chain without a record.
type Issue struct {
	Kind        string    `json:"kind"`
	TxHash      string    `json:"txHash,omitempty"`
	Message     string    `json:"message"`
	Recoverable bool      `json:"recoverable"`
	At          time.Time `json:"at"`
}

func newIssue(err error, at time.Time) *Issue {
	issue := &Issue{
		Kind:        "unknown",
		Message:     err.Error(),
		Recoverable: IsRecoverable(err),
		At:          at,
	}
	if opErr, ok := AsOperationError(err); ok {
		issue.Kind = opErr.Kind.Error()
		issue.TxHash = opErr.TxHash
	}
	return issue
}
