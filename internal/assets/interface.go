package assets

import (
	"github.com/dwarvesf/secret-bridge/internal/model"
)

type IRegistry interface {
	// ResolveCanonicalAsset maps a symbol, EVM address or Secret address to
	// the asset the chains actually operate on.
	ResolveCanonicalAsset(identifier string) (model.CanonicalAsset, error)
	Tokens() []model.Token
	Replace(tokens []model.Token)
}
