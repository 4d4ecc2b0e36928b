package model

type OperationStatus string

const (
	OperationStatusPendingSubmit        OperationStatus = "pending_submit"
	OperationStatusAwaitingApproval     OperationStatus = "awaiting_approval"
	OperationStatusSubmitted            OperationStatus = "submitted"
	OperationStatusAwaitingConfirmation OperationStatus = "awaiting_confirmation"
	OperationStatusConfirmed            OperationStatus = "confirmed"
	OperationStatusFailed               OperationStatus = "failed"
)

// rank orders the forward path, failed sits outside of it
var rank = map[OperationStatus]int{
	OperationStatusPendingSubmit:        1,
	OperationStatusAwaitingApproval:     2,
	OperationStatusSubmitted:            3,
	OperationStatusAwaitingConfirmation: 4,
	OperationStatusConfirmed:            5,
}

func (s OperationStatus) IsValid() bool {
	if s == OperationStatusFailed {
		return true
	}
	_, ok := rank[s]
	return ok
}

func (s OperationStatus) IsTerminal() bool {
	return s == OperationStatusConfirmed || s == OperationStatusFailed
}

// IsSubmitted reports whether a chain transaction may already exist for the operation.
func (s OperationStatus) IsSubmitted() bool {
	if s == OperationStatusFailed {
		return false
	}
	return rank[s] >= rank[OperationStatusSubmitted]
}

// CanTransitionTo allows forward moves along the path and failed from any
// non-terminal status. Staying in place is not a transition.
func (s OperationStatus) CanTransitionTo(next OperationStatus) bool {
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	if next == OperationStatusFailed {
		return true
	}
	return rank[next] > rank[s]
}
