package secret

import (
	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/pkg/errors"

	"github.com/dwarvesf/secret-bridge/internal/gateway"
)

// ValidateAddress checks a bech32 account or contract address for the given prefix.
func ValidateAddress(address, prefix string) error {
	hrp, bz, err := bech32.DecodeAndConvert(address)
	if err != nil {
		return errors.Wrapf(gateway.ErrInvalidAddress, "%q: %v", address, err)
	}
	if hrp != prefix {
		return errors.Wrapf(gateway.ErrInvalidAddress, "%q: expected prefix %s, got %s", address, prefix, hrp)
	}
	if len(bz) != 20 && len(bz) != 32 {
		return errors.Wrapf(gateway.ErrInvalidAddress, "%q: unexpected length %d", address, len(bz))
	}
	return nil
}
