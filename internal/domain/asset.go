package domain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address identifies callers, tokens and aggregators.
type Address = common.Address

// NativeToken is the reserved identity of the chain's native asset. Its
// metadata is fixed rather than read from a token contract.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

const (
	NativeTokenName     = "Native FTM Token"
	NativeTokenSymbol   = "FTM"
	NativeTokenDecimals = 18
)

// IsNative returns true if token is the native asset sentinel.
func IsNative(token Address) bool {
	return token == NativeToken
}

// IsUnset reports whether addr is the zero address.
func IsUnset(addr Address) bool {
	return addr == (Address{})
}

// ParseAddress parses a 0x-prefixed hex address. Unlike common.HexToAddress
// it rejects malformed input instead of silently truncating it.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// Call carries the host-supplied context of a single registry operation:
// the authenticated caller and the current time in unix seconds.
type Call struct {
	Caller Address
	Now    uint64
}
