package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dwarvesf/secret-bridge/internal/allowance"
	"github.com/dwarvesf/secret-bridge/internal/assets"
	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/gateway"
	"github.com/dwarvesf/secret-bridge/internal/mirror"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

type Deps struct {
	EVM       gateway.IChainGateway
	Secret    gateway.IChainGateway
	Store     operationstore.IOperationStore
	Mirror    mirror.IMirror
	Assets    assets.IRegistry
	Allowance allowance.ICache
}

type Config struct {
	PollInterval          time.Duration
	PollTimeout           time.Duration
	ApprovalPollAttempts  int
	ApprovalPollInterval  time.Duration
	ReceiptTimeout        time.Duration
	RecordRetries         int
	RetryBaseDelay        time.Duration
	RequiredConfirmations uint64
	// spender of ERC20 approvals
	EVMBridgeAddress string
	Bech32Prefix     string
}

func ConfigFromApp(appConfig *config.AppConfig) Config {
	prefix := appConfig.Secret.Bech32Prefix
	if prefix == "" {
		prefix = consts.SECRET_BECH32_PREFIX
	}
	return Config{
		PollInterval:          appConfig.Orchestrator.PollInterval,
		PollTimeout:           appConfig.Orchestrator.PollTimeout,
		ApprovalPollAttempts:  appConfig.Orchestrator.ApprovalPollAttempts,
		ApprovalPollInterval:  appConfig.Orchestrator.ApprovalPollInterval,
		ReceiptTimeout:        appConfig.Orchestrator.ReceiptTimeout,
		RecordRetries:         appConfig.Orchestrator.RecordRetries,
		RetryBaseDelay:        appConfig.Orchestrator.RetryBaseDelay,
		RequiredConfirmations: appConfig.Ethereum.RequiredConfirmations,
		EVMBridgeAddress:      appConfig.Ethereum.BridgeContractAddr,
		Bech32Prefix:          prefix,
	}
}

// tracked is the in-memory state of one operation. Everything in it is
// guarded by mu, operations never share a lock.
type tracked struct {
	mu         sync.Mutex
	op         model.Operation
	progress   model.ConfirmationProgress
	approving  bool
	approved   bool
	submitting bool
	issue      *Issue
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// Orchestrator drives operations from intent to a terminal status.
type Orchestrator struct {
	deps     Deps
	cfg      Config
	logger   *logger.Logger
	validate *validator.Validate

	mu  sync.RWMutex
	ops map[string]*tracked

	subsMu  sync.RWMutex
	subs    map[int]chan model.StatusChange
	nextSub int

	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup
	closed     bool

	now   func() time.Time
	newID func() string
}

func New(deps Deps, cfg Config, logger *logger.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Hour
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 15 * time.Minute
	}
	if cfg.ApprovalPollAttempts <= 0 {
		cfg.ApprovalPollAttempts = 1
	}
	if cfg.RecordRetries <= 0 {
		cfg.RecordRetries = 1
	}
	if cfg.Bech32Prefix == "" {
		cfg.Bech32Prefix = consts.SECRET_BECH32_PREFIX
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		deps:       deps,
		cfg:        cfg,
		logger:     logger,
		validate:   validator.New(),
		ops:        make(map[string]*tracked),
		subs:       make(map[int]chan model.StatusChange),
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (o *Orchestrator) lookup(id string) (*tracked, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	t, ok := o.ops[id]
	if !ok {
		return nil, newOperationError(ErrOperationNotFound, id, "", nil)
	}
	return t, nil
}

// track registers t unless an operation with the same id is already known.
func (o *Orchestrator) track(t *tracked) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.ops[t.op.ID]; ok {
		return false
	}
	o.ops[t.op.ID] = t
	return true
}

func (o *Orchestrator) isClosed() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.closed
}

// transitionLocked moves the operation to next and publishes the change.
// Backward or sideways moves are refused and logged. Callers hold t.mu.
func (o *Orchestrator) transitionLocked(t *tracked, next model.OperationStatus) bool {
	from := t.op.Status
	if !from.CanTransitionTo(next) {
		if from != next {
			o.logger.Warn("[Orchestrator][transition] refused", map[string]string{
				"operation_id": t.op.ID,
				"from":         string(from),
				"to":           string(next),
			})
		}
		return false
	}

	at := o.now()
	t.op.Status = next
	if next == model.OperationStatusConfirmed {
		t.issue = nil
	}
	t.op.LastUpdatedAt = at
	o.publish(model.StatusChange{
		OperationID: t.op.ID,
		From:        from,
		To:          next,
		Operation:   t.op,
		At:          at,
	})
	return true
}

// failLocked moves the operation to failed. Callers hold t.mu.
func (o *Orchestrator) failLocked(t *tracked, reason error) {
	if !o.transitionLocked(t, model.OperationStatusFailed) {
		return
	}
	fields := map[string]string{
		"operation_id": t.op.ID,
	}
	if reason != nil {
		fields["error"] = reason.Error()
	}
	o.logger.Error("[Orchestrator][fail]", fields)
	o.persistLocked(t)
}

// persistLocked mirrors operations that have a chain transaction behind them.
func (o *Orchestrator) persistLocked(t *tracked) {
	if o.deps.Mirror == nil || t.op.SourceTxHash == "" {
		return
	}
	snapshot := t.op
	if err := o.deps.Mirror.Save(&snapshot); err != nil {
		o.logger.Warn("[Orchestrator][persist] mirror save failed", map[string]string{
			"operation_id": t.op.ID,
			"error":        err.Error(),
		})
	}
}

func (o *Orchestrator) Get(id string) (*model.Operation, error) {
	t, err := o.lookup(id)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := t.op
	return &snapshot, nil
}

// LastIssue is the latest error the operation hit, nil when there is none.
func (o *Orchestrator) LastIssue(id string) (*Issue, error) {
	t, err := o.lookup(id)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.issue == nil {
		return nil, nil
	}
	issue := *t.issue
	return &issue, nil
}

func (o *Orchestrator) noteIssue(id string, err error) {
	t, lerr := o.lookup(id)
	if lerr != nil {
		return
	}
	t.mu.Lock()
	t.issue = newIssue(err, o.now())
	t.mu.Unlock()
}

// List returns every tracked operation, oldest first.
func (o *Orchestrator) List() []model.Operation {
	o.mu.RLock()
	all := make([]*tracked, 0, len(o.ops))
	for _, t := range o.ops {
		all = append(all, t)
	}
	o.mu.RUnlock()

	out := make([]model.Operation, 0, len(all))
	for _, t := range all {
		t.mu.Lock()
		out = append(out, t.op)
		t.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Confirmations is the depth last observed for the operation's EVM transaction.
func (o *Orchestrator) Confirmations(id string) (model.ConfirmationProgress, error) {
	t, err := o.lookup(id)
	if err != nil {
		return model.ConfirmationProgress{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress, nil
}

// Abandon fails an operation that has not reached the chain yet.
func (o *Orchestrator) Abandon(id string) error {
	t, err := o.lookup(id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.submitting || t.op.Status.IsSubmitted() || t.op.Status.IsTerminal() {
		return newOperationError(ErrInvalidState, id, t.op.SourceTxHash, nil)
	}
	o.failLocked(t, errAbandoned)
	o.logger.Info("[Orchestrator][Abandon]", map[string]string{
		"operation_id": id,
	})
	return nil
}

// Close stops every poller and closes subscriber channels. Submitted
// transactions are not affected.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.rootCancel()
	o.wg.Wait()

	o.subsMu.Lock()
	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
	o.subsMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
