package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
)

// Poll follows a submitted operation until the record service resolves it.
// It returns nil once the operation is confirmed, ErrSubmissionRejected
// when the record reports failure and ErrPollingExhausted when the ceiling
// passes without a verdict. Calling it on a terminal operation does nothing.
func (o *Orchestrator) Poll(ctx context.Context, id string) error {
	t, err := o.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.op.Status.IsTerminal() {
		t.mu.Unlock()
		return nil
	}
	if !t.op.Status.IsSubmitted() {
		status := t.op.Status
		t.mu.Unlock()
		return newOperationError(ErrInvalidState, id, "", errors.Errorf("nothing to poll in status %s", status))
	}
	if t.op.Status == model.OperationStatusSubmitted {
		o.transitionLocked(t, model.OperationStatusAwaitingConfirmation)
		o.persistLocked(t)
	}
	txHash := t.op.SourceTxHash
	t.mu.Unlock()

	pollCtx, cancel := context.WithTimeout(ctx, o.cfg.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for tick := 1; ; tick++ {
		if status, done := o.pollOnce(pollCtx, t); done {
			if status == model.OperationStatusFailed {
				return newOperationError(ErrSubmissionRejected, id, txHash, errors.New("record service reported failure"))
			}
			return nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logger.Warn("[Poll] no verdict before ceiling", map[string]string{
				"operation_id": id,
				"tx_hash":      txHash,
				"ticks":        strconv.Itoa(tick),
			})
			return newOperationError(ErrPollingExhausted, id, txHash, pollCtx.Err())
		case <-ticker.C:
		}
	}
}

// pollOnce reads the record once and applies it. It reports the status
// afterwards and whether that status is terminal.
func (o *Orchestrator) pollOnce(ctx context.Context, t *tracked) (model.OperationStatus, bool) {
	t.mu.Lock()
	op := t.op
	t.mu.Unlock()
	if op.Status.IsTerminal() {
		return op.Status, true
	}

	log := o.logger.With(map[string]string{"operation_id": op.ID})

	var (
		next     model.OperationStatus
		swap     *model.SwapRecord
		resolved bool
	)
	env, err := o.deps.Store.GetOperation(ctx, op.ID)
	switch {
	case errors.Is(err, operationstore.ErrNotFound):
		// the record write may still be in flight, absence is not failure
		log.Debug("[Poll][GetOperation] record not visible yet")
	case err != nil:
		log.Warn("[Poll][GetOperation]", map[string]string{
			"error": err.Error(),
		})
	default:
		next, resolved = recordStatus(env)
		swap = env.Swap
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	changed := false
	if swap != nil {
		if swap.DstTxHash != "" && t.op.DestTxHash != swap.DstTxHash {
			t.op.DestTxHash = swap.DstTxHash
			changed = true
		}
		if t.op.SourceTxHash == "" && swap.SrcTxHash != "" {
			t.op.SourceTxHash = swap.SrcTxHash
			changed = true
		}
	}
	if resolved && t.op.Status.CanTransitionTo(next) {
		changed = o.transitionLocked(t, next) || changed
	}

	if ethTx := t.op.EthTxHash(); ethTx != "" {
		// receipt reads are for display only and must not hold the lock
		t.mu.Unlock()
		receipt, err := o.deps.EVM.QueryReceipt(ctx, ethTx)
		t.mu.Lock()
		if err != nil {
			log.Warn("[Poll][QueryReceipt]", map[string]string{
				"error":   err.Error(),
				"tx_hash": ethTx,
			})
		} else {
			t.progress = model.ConfirmationProgress{
				Required: o.cfg.RequiredConfirmations,
				Observed: receipt.Depth(),
			}
		}
	}

	if changed {
		if !t.op.Status.IsTerminal() {
			t.op.LastUpdatedAt = o.now()
		}
		o.persistLocked(t)
	}
	return t.op.Status, t.op.Status.IsTerminal()
}

// recordStatus maps a record onto the local status. An attached swap is
// authoritative. Without one only a terminal operation status counts, hash
// presence never decides anything.
func recordStatus(env *model.OperationEnvelope) (model.OperationStatus, bool) {
	if env == nil {
		return "", false
	}
	if env.Swap != nil && env.Swap.Status != 0 {
		return env.Swap.Status.ToOperationStatus(), true
	}
	if env.Operation.Status.IsTerminal() {
		return env.Operation.Status.ToOperationStatus(), true
	}
	return "", false
}

// waitReceipt blocks until the transaction is mined or ctx is done. Read
// errors are treated as transient.
func (o *Orchestrator) waitReceipt(ctx context.Context, txHash string) (model.TxReceipt, error) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := o.deps.EVM.QueryReceipt(ctx, txHash)
		if err != nil {
			o.logger.Warn("[waitReceipt][QueryReceipt]", map[string]string{
				"error":   err.Error(),
				"tx_hash": txHash,
			})
		} else if receipt.Found {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return model.TxReceipt{}, errors.Wrapf(ctx.Err(), "receipt for %s", txHash)
		case <-ticker.C:
		}
	}
}

// StartPolling runs Poll in the background until the operation resolves,
// the ceiling passes, StopPolling is called or the orchestrator closes. A
// second call while a poller is running does nothing.
func (o *Orchestrator) StartPolling(id string) error {
	t, err := o.lookup(id)
	if err != nil {
		return err
	}

	o.mu.RLock()
	closed := o.closed
	if !closed {
		// registered under o.mu so Close cannot miss it in wg.Wait
		o.wg.Add(1)
	}
	o.mu.RUnlock()
	if closed {
		return newOperationError(ErrInvalidState, id, "", errors.New("orchestrator closed"))
	}

	t.mu.Lock()
	if t.pollCancel != nil || t.op.Status.IsTerminal() {
		t.mu.Unlock()
		o.wg.Done()
		return nil
	}
	if !t.op.Status.IsSubmitted() {
		status := t.op.Status
		t.mu.Unlock()
		o.wg.Done()
		return newOperationError(ErrInvalidState, id, "", errors.Errorf("nothing to poll in status %s", status))
	}
	ctx, cancel := context.WithCancel(o.rootCtx)
	done := make(chan struct{})
	t.pollCancel = cancel
	t.pollDone = done
	t.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer close(done)
		defer func() {
			t.mu.Lock()
			t.pollCancel = nil
			t.pollDone = nil
			t.mu.Unlock()
			cancel()
		}()

		if err := o.Poll(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
			o.noteIssue(id, err)
			o.logger.Warn("[StartPolling] poller stopped", map[string]string{
				"operation_id": id,
				"error":        err.Error(),
			})
		}
	}()
	return nil
}

// StopPolling cancels the background poller of the operation, if any, and
// waits for it to exit. The chain transaction is not affected.
func (o *Orchestrator) StopPolling(id string) error {
	t, err := o.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	cancel, done := t.pollCancel, t.pollDone
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Polling reports whether a background poller is running for the operation.
func (o *Orchestrator) Polling(id string) bool {
	t, err := o.lookup(id)
	if err != nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pollCancel != nil
}
