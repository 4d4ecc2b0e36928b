package orchestrator

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/gateway/secret"
	"github.com/dwarvesf/secret-bridge/internal/model"
)

// Begin validates the intent and creates its operation in pending_submit.
// Nothing touches a chain or the record service here, a failed Begin
// leaves no trace.
func (o *Orchestrator) Begin(ctx context.Context, intent model.TransferIntent) (*model.Operation, error) {
	if o.isClosed() {
		return nil, newOperationError(ErrInvalidState, "", "", errors.New("orchestrator closed"))
	}

	op, err := o.buildOperation(intent)
	if err != nil {
		o.logger.Info("[Begin][Validate] intent rejected", map[string]string{
			"error":     err.Error(),
			"direction": string(intent.Direction),
			"asset":     intent.AssetIdentifier,
		})
		return nil, newOperationError(ErrValidation, "", "", err)
	}

	now := o.now()
	op.ID = o.newID()
	op.Status = model.OperationStatusPendingSubmit
	op.CreatedAt = now
	op.LastUpdatedAt = now

	t := &tracked{op: op}
	if !o.track(t) {
		// uuid collision, refuse rather than alias two transfers
		return nil, newOperationError(ErrInvalidState, op.ID, "", errors.New("duplicate operation id"))
	}
	o.publish(model.StatusChange{
		OperationID: op.ID,
		To:          op.Status,
		Operation:   op,
		At:          now,
	})

	o.logger.Info("[Begin] operation created", map[string]string{
		"operation_id": op.ID,
		"direction":    string(op.Direction),
		"asset":        op.Asset.Symbol,
		"amount":       op.Amount,
	})

	snapshot := op
	return &snapshot, nil
}

func (o *Orchestrator) buildOperation(intent model.TransferIntent) (model.Operation, error) {
	intent.SourceAddress = strings.TrimSpace(intent.SourceAddress)
	intent.DestAddress = strings.TrimSpace(intent.DestAddress)
	intent.Amount = strings.TrimSpace(intent.Amount)

	if err := o.validate.Struct(intent); err != nil {
		return model.Operation{}, errors.Wrap(err, "intent")
	}
	if intent.AssetKind == model.AssetKindSecretToken && intent.Direction != model.DirectionScrtToEth {
		return model.Operation{}, errors.New("secret tokens can only be sent from secret to ethereum")
	}

	ethAddress, secretAddress := intent.SourceAddress, intent.DestAddress
	if intent.Direction == model.DirectionScrtToEth {
		ethAddress, secretAddress = intent.DestAddress, intent.SourceAddress
	}
	if !common.IsHexAddress(ethAddress) {
		return model.Operation{}, errors.Errorf("invalid ethereum address %q", ethAddress)
	}
	if err := secret.ValidateAddress(secretAddress, o.cfg.Bech32Prefix); err != nil {
		return model.Operation{}, errors.Wrapf(err, "invalid secret address %q", secretAddress)
	}
	if err := o.checkSigner(intent.Direction, intent.SourceAddress); err != nil {
		return model.Operation{}, err
	}

	if o.deps.Assets == nil {
		return model.Operation{}, errors.New("no asset registry")
	}
	asset, err := o.deps.Assets.ResolveCanonicalAsset(intent.AssetIdentifier)
	if err != nil {
		return model.Operation{}, err
	}
	if asset.Kind != intent.AssetKind {
		return model.Operation{}, errors.Errorf("asset %s is %s, not %s", asset.Symbol, asset.Kind, intent.AssetKind)
	}

	amount, err := model.ParseDecimalAmount(intent.Amount, asset.Decimals)
	if err != nil {
		return model.Operation{}, errors.Wrapf(err, "amount %q", intent.Amount)
	}

	if intent.Direction == model.DirectionEthToScrt {
		intent.SourceAddress = common.HexToAddress(ethAddress).Hex()
	} else {
		intent.DestAddress = common.HexToAddress(ethAddress).Hex()
	}

	return model.Operation{
		Direction:       intent.Direction,
		AssetKind:       intent.AssetKind,
		AssetIdentifier: intent.AssetIdentifier,
		Asset:           asset,
		Amount:          amount.Value,
		Decimals:        amount.Decimal,
		SourceAddress:   intent.SourceAddress,
		DestAddress:     intent.DestAddress,
	}, nil
}

// checkSigner refuses intents whose source is not the account the source
// chain gateway signs with. The bridge only ever moves its own funds.
func (o *Orchestrator) checkSigner(direction model.Direction, source string) error {
	gw := o.deps.EVM
	if direction == model.DirectionScrtToEth {
		gw = o.deps.Secret
	}
	if gw == nil {
		return errors.Errorf("no gateway for %s", direction)
	}

	signer := gw.SignerAddress()
	if signer == "" {
		return errors.Errorf("no signer configured for %s", direction)
	}

	same := signer == source
	if direction == model.DirectionEthToScrt {
		same = common.IsHexAddress(signer) && common.HexToAddress(signer) == common.HexToAddress(source)
	}
	if !same {
		return errors.Errorf("source address %s is not the signer %s", source, signer)
	}
	return nil
}
