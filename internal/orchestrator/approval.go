package orchestrator

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/model"
)

// ResolveApproval makes sure the bridge may pull the operation's ERC20
// amount. It only applies to eth_to_scrt erc20 operations and never issues
// an approve when the current allowance already covers the amount.
func (o *Orchestrator) ResolveApproval(ctx context.Context, id string) error {
	t, err := o.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if !t.op.NeedsApproval() || t.approved || t.op.Status.IsSubmitted() {
		t.mu.Unlock()
		return nil
	}
	if t.approving || t.submitting || t.op.Status != model.OperationStatusPendingSubmit {
		status := t.op.Status
		t.mu.Unlock()
		return newOperationError(ErrInvalidState, id, "", errors.Errorf("cannot resolve approval in status %s", status))
	}
	t.approving = true
	owner := o.allowanceOwner()
	asset := t.op.Asset
	amount := t.op.AmountBigInt()
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.approving = false
		t.mu.Unlock()
	}()

	spender := o.cfg.EVMBridgeAddress
	log := o.logger.With(map[string]string{"operation_id": id})

	current, err := o.readAllowance(ctx, owner, spender, asset, true)
	if err != nil {
		log.Error("[ResolveApproval][QueryAllowance]", map[string]string{
			"error": err.Error(),
		})
		return newOperationError(ErrUpstreamUnavailable, id, "", err)
	}
	if sufficient(current, amount) {
		log.Info("[ResolveApproval] allowance already covers amount", map[string]string{
			"allowance": current.Amount,
			"amount":    amount.Value,
		})
		return o.markApproved(t)
	}

	t.mu.Lock()
	if !o.transitionLocked(t, model.OperationStatusAwaitingApproval) {
		status := t.op.Status
		t.mu.Unlock()
		return newOperationError(ErrInvalidState, id, "", errors.Errorf("operation moved to %s", status))
	}
	t.mu.Unlock()

	// the approve waits on the signer for as long as it takes
	approveTx, err := o.deps.EVM.SubmitApprove(ctx, asset, spender, amount)
	o.deps.Allowance.Invalidate(owner, spender, asset.EthAddress)
	if err != nil {
		log.Error("[ResolveApproval][SubmitApprove]", map[string]string{
			"error": err.Error(),
		})
		t.mu.Lock()
		o.failLocked(t, err)
		t.mu.Unlock()
		return newOperationError(ErrSubmissionRejected, id, "", err)
	}

	t.mu.Lock()
	t.op.ApproveTxHash = approveTx
	t.op.LastUpdatedAt = o.now()
	t.mu.Unlock()
	log.Info("[ResolveApproval] approve submitted", map[string]string{
		"tx_hash": approveTx,
	})

	receiptCtx, cancel := context.WithTimeout(ctx, o.cfg.ReceiptTimeout)
	receipt, err := o.waitReceipt(receiptCtx, approveTx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// caller went away, the operation stays awaiting_approval and can be abandoned
			return newOperationError(ErrApprovalTimeout, id, approveTx, ctx.Err())
		}
		log.Error("[ResolveApproval][WaitReceipt]", map[string]string{
			"error":   err.Error(),
			"tx_hash": approveTx,
		})
		t.mu.Lock()
		o.failLocked(t, err)
		t.mu.Unlock()
		return newOperationError(ErrApprovalTimeout, id, approveTx, err)
	}
	if receipt.Reverted {
		t.mu.Lock()
		o.failLocked(t, errors.New("approve reverted"))
		t.mu.Unlock()
		return newOperationError(ErrSubmissionRejected, id, approveTx, errors.New("approve reverted"))
	}

	// a mined approve is not always visible to the next allowance read
	for attempt := 1; attempt <= o.cfg.ApprovalPollAttempts; attempt++ {
		current, err := o.readAllowance(ctx, owner, spender, asset, false)
		if err != nil {
			log.Warn("[ResolveApproval][PollAllowance]", map[string]string{
				"error":   err.Error(),
				"attempt": strconv.Itoa(attempt),
			})
		} else if sufficient(current, amount) {
			log.Info("[ResolveApproval] allowance reflected", map[string]string{
				"attempt":   strconv.Itoa(attempt),
				"allowance": current.Amount,
			})
			return o.markApproved(t)
		}

		if attempt == o.cfg.ApprovalPollAttempts {
			break
		}
		if err := sleepCtx(ctx, o.cfg.ApprovalPollInterval); err != nil {
			return newOperationError(ErrApprovalTimeout, id, approveTx, err)
		}
	}

	log.Error("[ResolveApproval] allowance never reflected the approve", map[string]string{
		"tx_hash":  approveTx,
		"attempts": strconv.Itoa(o.cfg.ApprovalPollAttempts),
	})
	t.mu.Lock()
	o.failLocked(t, ErrApprovalTimeout)
	t.mu.Unlock()
	return newOperationError(ErrApprovalTimeout, id, approveTx, nil)
}

func (o *Orchestrator) markApproved(t *tracked) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.op.Status.IsTerminal() {
		return newOperationError(ErrInvalidState, t.op.ID, t.op.ApproveTxHash, errors.Errorf("operation is %s", t.op.Status))
	}
	t.approved = true
	return nil
}

// readAllowance goes through the cache unless useCache is false, fresh
// reads always refill it.
func (o *Orchestrator) readAllowance(ctx context.Context, owner, spender string, asset model.CanonicalAsset, useCache bool) (model.AllowanceSnapshot, error) {
	if useCache {
		if snapshot, ok := o.deps.Allowance.Get(owner, spender, asset.EthAddress); ok {
			return snapshot, nil
		}
	}

	snapshot, err := o.deps.EVM.QueryAllowance(ctx, owner, spender, asset)
	if err != nil {
		return model.AllowanceSnapshot{}, err
	}
	snapshot.Owner = owner
	snapshot.Spender = spender
	snapshot.Asset = asset.EthAddress
	o.deps.Allowance.Set(snapshot)
	return snapshot, nil
}

// allowanceOwner is the account approves and locks are sent from.
func (o *Orchestrator) allowanceOwner() string {
	return common.HexToAddress(o.deps.EVM.SignerAddress()).Hex()
}

func sufficient(snapshot model.AllowanceSnapshot, amount *model.Web3BigInt) bool {
	current := &model.Web3BigInt{Value: snapshot.Amount, Decimal: amount.Decimal}
	if _, ok := current.BigInt(); !ok {
		return false
	}
	return current.Cmp(amount) >= 0
}
