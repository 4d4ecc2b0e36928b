package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/gateway"
	"github.com/dwarvesf/secret-bridge/internal/model"
)

// SubmitTransfer broadcasts the operation's source transaction, then
// records it with the record service. The broadcast happens at most once
// per operation. Only the record write is retried.
func (o *Orchestrator) SubmitTransfer(ctx context.Context, id string) error {
	t, err := o.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.submitting || t.op.SourceTxHash != "" {
		txHash := t.op.SourceTxHash
		t.mu.Unlock()
		return newOperationError(ErrAlreadySubmitted, id, txHash, nil)
	}
	if t.op.Status != model.OperationStatusPendingSubmit && t.op.Status != model.OperationStatusAwaitingApproval {
		status := t.op.Status
		t.mu.Unlock()
		return newOperationError(ErrInvalidState, id, "", errors.Errorf("cannot submit in status %s", status))
	}
	if t.op.NeedsApproval() && (!t.approved || t.approving) {
		t.mu.Unlock()
		return newOperationError(ErrInvalidState, id, "", errors.New("approval not resolved"))
	}
	t.submitting = true
	op := t.op
	t.mu.Unlock()

	log := o.logger.With(map[string]string{"operation_id": id})

	txHash, err := o.dispatch(ctx, op)
	if op.NeedsApproval() {
		// the lock spends the approved amount, the cached allowance is stale either way
		o.deps.Allowance.Invalidate(o.allowanceOwner(), o.cfg.EVMBridgeAddress, op.Asset.EthAddress)
	}
	if err != nil {
		log.Error("[SubmitTransfer][Dispatch]", map[string]string{
			"error":     err.Error(),
			"direction": string(op.Direction),
			"asset":     op.Asset.Symbol,
		})
		t.mu.Lock()
		t.submitting = false
		o.failLocked(t, err)
		t.mu.Unlock()
		return newOperationError(ErrSubmissionRejected, id, "", err)
	}

	recordHash := txHash
	if op.Direction == model.DirectionScrtToEth {
		recordHash = gateway.SecretRecordHash(txHash, op.Asset)
	}

	t.mu.Lock()
	t.submitting = false
	t.op.SourceTxHash = txHash
	t.op.RecordHash = recordHash
	if !o.transitionLocked(t, model.OperationStatusSubmitted) {
		// abandoned while the signer was busy, the transaction exists anyway
		log.Warn("[SubmitTransfer] operation left pending submit while broadcasting", map[string]string{
			"tx_hash": txHash,
			"status":  string(t.op.Status),
		})
	}
	o.persistLocked(t)
	op = t.op
	t.mu.Unlock()

	log.Info("[SubmitTransfer] source transaction broadcast", map[string]string{
		"tx_hash":     txHash,
		"record_hash": recordHash,
	})

	// the transaction is irreversible now, the record must not depend on the caller staying around
	if err := o.record(context.WithoutCancel(ctx), op); err != nil {
		log.Error("[SubmitTransfer][Record] retry budget exhausted", map[string]string{
			"error":   err.Error(),
			"tx_hash": txHash,
		})
		return newOperationError(ErrRecordingFailed, id, txHash, err)
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, op model.Operation) (string, error) {
	amount := op.AmountBigInt()

	switch op.Direction {
	case model.DirectionEthToScrt:
		switch op.AssetKind {
		case model.AssetKindNative, model.AssetKindERC20:
			return o.deps.EVM.SubmitLock(ctx, op.Asset, amount, op.DestAddress)
		}
	case model.DirectionScrtToEth:
		return o.deps.Secret.SubmitBurn(ctx, op.Asset, amount, op.DestAddress, gateway.BurnOptions{})
	}
	return "", errors.Errorf("no submission for %s %s", op.Direction, op.AssetKind)
}

// record creates the operation record and attaches the transaction to it,
// backing off exponentially between attempts. A create that went through is
// not repeated.
func (o *Orchestrator) record(ctx context.Context, op model.Operation) error {
	req := model.UpdateOperationRequest{
		TransactionHash: op.RecordHash,
		Amount:          op.Amount,
	}
	if op.Direction == model.DirectionEthToScrt {
		req.EthAddress = op.SourceAddress
		req.SecretAddress = op.DestAddress
		req.Asset = op.Asset.EthAddress
	} else {
		req.EthAddress = op.DestAddress
		req.SecretAddress = op.SourceAddress
		req.Asset = op.Asset.RecordContract()
	}

	created := false
	var lastErr error
	for attempt := 1; attempt <= o.cfg.RecordRetries; attempt++ {
		lastErr = o.recordOnce(ctx, op, req, &created)
		if lastErr == nil {
			return nil
		}
		o.logger.Warn("[SubmitTransfer][Record] attempt failed", map[string]string{
			"operation_id": op.ID,
			"attempt":      strconv.Itoa(attempt),
			"error":        lastErr.Error(),
		})

		if attempt == o.cfg.RecordRetries {
			break
		}
		delay := o.cfg.RetryBaseDelay * time.Duration(1<<uint(attempt-1))
		if err := sleepCtx(ctx, delay); err != nil {
			return errors.Wrap(lastErr, err.Error())
		}
	}
	return lastErr
}

func (o *Orchestrator) recordOnce(ctx context.Context, op model.Operation, req model.UpdateOperationRequest, created *bool) error {
	if !*created {
		if _, err := o.deps.Store.CreateOperation(ctx, op.ID, op.RecordHash); err != nil {
			return errors.Wrap(err, "create operation")
		}
		*created = true
	}
	if _, err := o.deps.Store.UpdateOperation(ctx, op.ID, req); err != nil {
		return errors.Wrap(err, "update operation")
	}
	return nil
}
