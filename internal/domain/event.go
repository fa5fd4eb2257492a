package domain

import "math/big"

// Event is a notification emitted by a successful registry operation.
type Event interface {
	EventName() string
}

type AggregatorChanged struct {
	Token      Address `json:"token"`
	Aggregator Address `json:"aggregator"`
	Time       uint64  `json:"time"`
}

type TokenInformationAdded struct {
	Token Address `json:"token"`
	Name  string  `json:"name"`
	Index int     `json:"index"`
	Time  uint64  `json:"time"`
}

type TokenInformationChanged struct {
	Token Address `json:"token"`
	Index int     `json:"index"`
	Time  uint64  `json:"time"`
}

type PriceChanged struct {
	Symbol string   `json:"symbol"`
	Price  *big.Int `json:"price"`
}

type PriceExpirationPeriodChanged struct {
	NewPeriod uint64 `json:"newPeriod"`
}

func (AggregatorChanged) EventName() string            { return "AggregatorChanged" }
func (TokenInformationAdded) EventName() string        { return "TokenInformationAdded" }
func (TokenInformationChanged) EventName() string      { return "TokenInformationChanged" }
func (PriceChanged) EventName() string                 { return "PriceChanged" }
func (PriceExpirationPeriodChanged) EventName() string { return "PriceExpirationPeriodChanged" }
