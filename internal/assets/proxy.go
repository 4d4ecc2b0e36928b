package assets

import (
	"strings"

	"github.com/dwarvesf/secret-bridge/internal/utils/config"
)

// ProxyToken is a Secret asset whose display contract differs from the one
// the bridge burns through.
type ProxyToken struct {
	Symbol string
	Proxy  string
	Token  string
}

type ProxyTokens map[string]ProxyToken

func (p ProxyTokens) Lookup(symbol string) (ProxyToken, bool) {
	proxy, ok := p[strings.ToUpper(symbol)]
	if !ok || proxy.Proxy == "" || proxy.Token == "" {
		return ProxyToken{}, false
	}
	return proxy, true
}

func ProxyTokensFromConfig(appConfig *config.AppConfig) ProxyTokens {
	sscrt := ProxyToken{
		Symbol: "SSCRT",
		Proxy:  appConfig.Secret.SSCRTProxy,
		Token:  appConfig.Secret.SSCRTContract,
	}
	return ProxyTokens{
		"SSCRT": sscrt,
		"WSCRT": sscrt,
		"SIENNA": {
			Symbol: "SIENNA",
			Proxy:  appConfig.Secret.SiennaProxy,
			Token:  appConfig.Secret.SiennaContract,
		},
	}
}
