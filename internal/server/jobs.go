package server

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/assets"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/operationstore"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

// tokenRefresher keeps the asset registry in line with the record service.
// Tokens from the local file always stay listed.
type tokenRefresher struct {
	store      operationstore.IOperationStore
	registry   *assets.Registry
	fileTokens []model.Token
	logger     *logger.Logger
}

func (r *tokenRefresher) Refresh(ctx context.Context) error {
	remote, err := r.store.ListTokens(ctx)
	if err != nil {
		return errors.Wrap(err, "list tokens")
	}

	tokens := assets.Merge(r.fileTokens, remote)
	r.registry.Replace(tokens)

	r.logger.Debug("[TokenRefresh] registry updated", map[string]string{
		"remote": strconv.Itoa(len(remote)),
		"total":  strconv.Itoa(len(tokens)),
	})
	return nil
}

type recoverer interface {
	Recover(ctx context.Context) (int, error)
}

func recoveryJob(o recoverer) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := o.Recover(ctx)
		return err
	}
}
