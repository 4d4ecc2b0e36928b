package orchestrator

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/model"
)

// Recover resumes polling for every in-flight operation found in the
// mirror, including tracked ones whose poller ran out of time. It never
// submits anything: operations without a source
// transaction have nothing to resume and are skipped.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	if o.deps.Mirror == nil {
		return 0, nil
	}
	if o.isClosed() {
		return 0, newOperationError(ErrInvalidState, "", "", errors.New("orchestrator closed"))
	}

	inFlight := o.deps.Mirror.ListInFlight()
	resumed := 0
	for _, op := range inFlight {
		if err := ctx.Err(); err != nil {
			return resumed, err
		}
		if op.ID == "" || op.SourceTxHash == "" || !op.Status.IsValid() || op.Status.IsTerminal() {
			o.logger.Debug("[Recover] skipping mirrored operation", map[string]string{
				"operation_id": op.ID,
				"status":       string(op.Status),
			})
			continue
		}
		// a source hash means the transaction went out whatever the mirror says
		if !op.Status.IsSubmitted() {
			op.Status = model.OperationStatusSubmitted
		}

		t := &tracked{op: op}
		if !o.track(t) {
			if o.restartPolling(op.ID) {
				resumed++
			}
			continue
		}
		o.publish(model.StatusChange{
			OperationID: op.ID,
			To:          op.Status,
			Operation:   op,
			At:          o.now(),
		})

		if err := o.StartPolling(op.ID); err != nil {
			o.logger.Error("[Recover][StartPolling]", map[string]string{
				"operation_id": op.ID,
				"error":        err.Error(),
			})
			continue
		}
		resumed++
	}

	o.logger.Info("[Recover] resumed operations", map[string]string{
		"mirrored": strconv.Itoa(len(inFlight)),
		"resumed":  strconv.Itoa(resumed),
	})
	return resumed, nil
}

// restartPolling starts a poller for a tracked operation whose last one
// gave up before a verdict.
func (o *Orchestrator) restartPolling(id string) bool {
	t, err := o.lookup(id)
	if err != nil {
		return false
	}
	t.mu.Lock()
	idle := t.pollCancel == nil && t.op.Status.IsSubmitted() && !t.op.Status.IsTerminal()
	t.mu.Unlock()
	if !idle {
		return false
	}

	if err := o.StartPolling(id); err != nil {
		o.logger.Error("[Recover][StartPolling]", map[string]string{
			"operation_id": id,
			"error":        err.Error(),
		})
		return false
	}
	return true
}

// Continue takes a begun operation through approval and submission and
// leaves it polling in the background.
func (o *Orchestrator) Continue(ctx context.Context, id string) error {
	if err := o.ResolveApproval(ctx, id); err != nil {
		o.noteIssue(id, err)
		return err
	}

	err := o.SubmitTransfer(ctx, id)
	if err != nil {
		o.noteIssue(id, err)
		if !errors.Is(err, ErrRecordingFailed) {
			return err
		}
	}
	// a missing record does not stop the bridge, keep watching for the swap
	if perr := o.StartPolling(id); perr != nil {
		o.logger.Warn("[Continue][StartPolling]", map[string]string{
			"operation_id": id,
			"error":        perr.Error(),
		})
	}
	return err
}

// Run begins an operation for intent and continues it. The operation is
// returned whenever it was created, even if a later step failed.
func (o *Orchestrator) Run(ctx context.Context, intent model.TransferIntent) (*model.Operation, error) {
	op, err := o.Begin(ctx, intent)
	if err != nil {
		return nil, err
	}

	err = o.Continue(ctx, op.ID)
	latest, gerr := o.Get(op.ID)
	if gerr != nil {
		return op, err
	}
	return latest, err
}

// ContinueInBackground runs Continue on the orchestrator's own context, so
// the operation outlives whoever began it. Close waits for it.
func (o *Orchestrator) ContinueInBackground(id string) error {
	if _, err := o.lookup(id); err != nil {
		return err
	}

	o.mu.RLock()
	closed := o.closed
	if !closed {
		o.wg.Add(1)
	}
	o.mu.RUnlock()
	if closed {
		return newOperationError(ErrInvalidState, id, "", errors.New("orchestrator closed"))
	}

	go func() {
		defer o.wg.Done()
		if err := o.Continue(o.rootCtx, id); err != nil {
			o.logger.Error("[ContinueInBackground]", map[string]string{
				"operation_id": id,
				"error":        err.Error(),
			})
		}
	}()
	return nil
}
