// Package registry implements the price registries: a directly written
// PriceOracle and the redirecting PriceOracleProxy / ReferenceAggregator that
// read from per-token external aggregators.
package registry

import (
	"context"
	"math/big"

	"github.com/mtlprog/oracle/internal/domain"
)

// AggregatorHandle is an external price aggregator addressed by round.
// Errors are propagated to the caller unchanged in meaning.
type AggregatorHandle interface {
	LatestAnswer(ctx context.Context) (*big.Int, error)
	LatestTimestamp(ctx context.Context) (*big.Int, error)
	LatestRound(ctx context.Context) (*big.Int, error)
	GetAnswer(ctx context.Context, round *big.Int) (*big.Int, error)
	GetTimestamp(ctx context.Context, round *big.Int) (*big.Int, error)
}

// TokenDescriptor exposes a token's own metadata.
type TokenDescriptor interface {
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
}

// Dialer binds addresses to live handles. Binding is lazy: a registry stores
// only the address and dials on every read.
type Dialer interface {
	Aggregator(addr domain.Address) (AggregatorHandle, error)
	Token(addr domain.Address) (TokenDescriptor, error)
}

// Notifier receives the events of each successful operation, in order.
// Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, events ...domain.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, events ...domain.Event)

func (f NotifierFunc) Notify(ctx context.Context, events ...domain.Event) { f(ctx, events...) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, ...domain.Event) {}

func orNop(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}
