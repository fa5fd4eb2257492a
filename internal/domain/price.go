package domain

import "math/big"

// Price is the stored quote for a symbol. Value is scaled by 10^18.
// UpdatedAt == 0 means the symbol was never set.
type Price struct {
	Value     *big.Int `json:"value"`
	UpdatedAt uint64   `json:"updatedAt"`
}

// IsSet reports whether the price was ever written.
func (p Price) IsSet() bool {
	return p.UpdatedAt != 0
}

// Expired reports whether now >= UpdatedAt + period, without overflowing
// for very large periods.
func (p Price) Expired(now, period uint64) bool {
	return now >= p.UpdatedAt && now-p.UpdatedAt >= period
}

// TokenParams holds the token fields the owner may change after registration.
type TokenParams struct {
	Logo          string   `json:"logo" yaml:"logo"`
	PriceDecimals uint8    `json:"priceDecimals" yaml:"priceDecimals"`
	IsActive      bool     `json:"isActive" yaml:"isActive"`
	CanDeposit    bool     `json:"canDeposit" yaml:"canDeposit"`
	CanBorrow     bool     `json:"canBorrow" yaml:"canBorrow"`
	CanTrade      bool     `json:"canTrade" yaml:"canTrade"`
	Volatility    *big.Int `json:"volatility" yaml:"-"` // scaled by 10^8
}

// TokenInformation describes a registered token. Token, Name, Symbol and
// Decimals are fixed at registration.
type TokenInformation struct {
	Token    Address `json:"token"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
	Decimals uint8   `json:"decimals"`
	TokenParams
}

// Clone returns a copy that shares no big.Int with t.
func (t TokenInformation) Clone() TokenInformation {
	c := t
	if t.Volatility != nil {
		c.Volatility = new(big.Int).Set(t.Volatility)
	}
	return c
}
