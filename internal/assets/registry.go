package assets

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/consts"
	"github.com/dwarvesf/secret-bridge/internal/model"
)

var (
	ErrUnknownAsset   = errors.New("unknown asset")
	ErrEmptyAsset     = errors.New("empty asset identifier")
	ErrAmbiguousAsset = errors.New("ambiguous asset identifier")
)

type Registry struct {
	mu         sync.RWMutex
	tokens     []model.Token
	proxies    ProxyTokens
	showHidden bool
}

func New(tokens []model.Token, proxies ProxyTokens, showHidden bool) *Registry {
	r := &Registry{
		proxies:    proxies,
		showHidden: showHidden,
	}
	r.Replace(tokens)
	return r
}

// LoadTokensFile reads a JSON array of tokens, the same shape the record
// service returns from /tokens/.
func LoadTokensFile(path string) ([]model.Token, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read tokens file %s", path)
	}

	var tokens []model.Token
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, errors.Wrapf(err, "decode tokens file %s", path)
	}
	return tokens, nil
}

// Merge appends the tokens of b that a does not already list.
func Merge(a, b []model.Token) []model.Token {
	seen := make(map[string]bool, len(a))
	out := make([]model.Token, 0, len(a)+len(b))
	for _, t := range a {
		seen[tokenKey(t)] = true
		out = append(out, t)
	}
	for _, t := range b {
		if seen[tokenKey(t)] {
			continue
		}
		seen[tokenKey(t)] = true
		out = append(out, t)
	}
	return out
}

func tokenKey(t model.Token) string {
	return strings.ToLower(t.SrcAddress + "|" + t.DstAddress)
}

func (r *Registry) Replace(tokens []model.Token) {
	visible := make([]model.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.DisplayProps.Hidden && !r.showHidden {
			continue
		}
		visible = append(visible, t)
	}

	r.mu.Lock()
	r.tokens = visible
	r.mu.Unlock()
}

func (r *Registry) Tokens() []model.Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}

func (r *Registry) ResolveCanonicalAsset(identifier string) (model.CanonicalAsset, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return model.CanonicalAsset{}, ErrEmptyAsset
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []model.Token
	for _, t := range r.tokens {
		if r.matches(t, identifier) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return model.CanonicalAsset{}, errors.Wrap(ErrUnknownAsset, identifier)
	case 1:
	default:
		return model.CanonicalAsset{}, errors.Wrap(ErrAmbiguousAsset, identifier)
	}

	return r.canonicalize(matches[0])
}

func (r *Registry) matches(t model.Token, identifier string) bool {
	if strings.EqualFold(t.DisplayProps.Symbol, identifier) {
		return true
	}
	if common.IsHexAddress(identifier) {
		return strings.EqualFold(t.SrcAddress, identifier) || strings.EqualFold(t.DstAddress, identifier)
	}
	if identifier == consts.NATIVE_ADDRESS {
		return false
	}
	if t.SrcAddress == identifier || t.DstAddress == identifier {
		return true
	}
	// a proxied asset may also be named by its proxy or underlying contract
	if proxy, ok := r.proxies.Lookup(t.DisplayProps.Symbol); ok && t.DisplayProps.Proxy {
		return proxy.Proxy == identifier || proxy.Token == identifier
	}
	return false
}

func (r *Registry) canonicalize(t model.Token) (model.CanonicalAsset, error) {
	asset := model.CanonicalAsset{
		Symbol:     t.DisplayProps.Symbol,
		Decimals:   t.Decimals,
		SrcNetwork: t.SrcNetwork,
		Image:      t.DisplayProps.Image,
	}

	switch {
	case strings.EqualFold(t.SrcNetwork, consts.NETWORK_SECRET):
		asset.Kind = model.AssetKindSecretToken
		asset.CanonicalAddress = t.SrcAddress
		asset.EthAddress = t.DstAddress
	case t.SrcAddress == consts.NATIVE_ADDRESS:
		asset.Kind = model.AssetKindNative
		asset.CanonicalAddress = t.DstAddress
		asset.EthAddress = consts.NATIVE_ADDRESS
	case common.IsHexAddress(t.SrcAddress):
		asset.Kind = model.AssetKindERC20
		asset.CanonicalAddress = t.DstAddress
		asset.EthAddress = common.HexToAddress(t.SrcAddress).Hex()
	default:
		return model.CanonicalAsset{}, errors.Wrapf(ErrUnknownAsset, "token %s has no usable source address", t.DisplayProps.Symbol)
	}

	if t.DisplayProps.Proxy {
		proxy, ok := r.proxies.Lookup(t.DisplayProps.Symbol)
		if !ok {
			return model.CanonicalAsset{}, errors.Wrapf(ErrUnknownAsset, "no proxy configured for %s", t.DisplayProps.Symbol)
		}
		asset.CanonicalAddress = proxy.Token
		asset.ProxyContract = proxy.Proxy
	}

	return asset, nil
}
