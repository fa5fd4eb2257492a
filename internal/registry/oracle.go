package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/mtlprog/oracle/internal/domain"
)

// PriceOracle stores prices pushed by whitelisted sources. A price is
// readable until updatedAt + expirationPeriod; staleness is evaluated lazily
// on read.
type PriceOracle struct {
	mu       sync.RWMutex
	owner    domain.Address
	period   uint64
	sources  map[domain.Address]bool
	prices   map[string]domain.Price
	notifier Notifier
}

// NewPriceOracle creates an oracle owned by owner with the given expiration
// period in seconds. Every address in sources is trusted from the start.
func NewPriceOracle(owner domain.Address, period uint64, sources []domain.Address, notifier Notifier) *PriceOracle {
	o := &PriceOracle{
		owner:    owner,
		period:   period,
		sources:  make(map[domain.Address]bool, len(sources)),
		prices:   make(map[string]domain.Price),
		notifier: orNop(notifier),
	}
	for _, s := range sources {
		o.sources[s] = true
	}
	return o
}

// Owner returns the administrative identity.
func (o *PriceOracle) Owner() domain.Address { return o.owner }

// ExpirationPeriod returns the freshness window in seconds.
func (o *PriceOracle) ExpirationPeriod() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.period
}

// ChangeExpirationPeriod replaces the freshness window for all symbols.
func (o *PriceOracle) ChangeExpirationPeriod(ctx context.Context, call domain.Call, period uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if call.Caller != o.owner {
		return fmt.Errorf("changing expiration period: %w", domain.ErrUnauthorized)
	}
	o.period = period
	o.notifier.Notify(ctx, domain.PriceExpirationPeriodChanged{NewPeriod: period})
	return nil
}

// AddSource authorizes addr to push prices. Repeated calls are harmless.
func (o *PriceOracle) AddSource(_ context.Context, call domain.Call, addr domain.Address) error {
	return o.setSource(call, addr, true)
}

// DropSource revokes addr. Dropping an unknown address is harmless.
func (o *PriceOracle) DropSource(_ context.Context, call domain.Call, addr domain.Address) error {
	return o.setSource(call, addr, false)
}

func (o *PriceOracle) setSource(call domain.Call, addr domain.Address, trusted bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if call.Caller != o.owner {
		return fmt.Errorf("updating source %s: %w", addr, domain.ErrUnauthorized)
	}
	if trusted {
		o.sources[addr] = true
	} else {
		delete(o.sources, addr)
	}
	return nil
}

// IsSource reports whether addr may push prices.
func (o *PriceOracle) IsSource(addr domain.Address) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.sources[addr]
}

// SetPrice overwrites the price of symbol with value stamped at call.Now.
// The value is not range checked. A zero call.Now is stamped as 1 so the
// entry always reads as set.
func (o *PriceOracle) SetPrice(ctx context.Context, call domain.Call, symbol string, value *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.sources[call.Caller] {
		return fmt.Errorf("setting price for %s: %w", symbol, domain.ErrUnauthorized)
	}
	if value == nil {
		value = new(big.Int)
	}
	stored := new(big.Int).Set(value)
	o.prices[symbol] = domain.Price{Value: stored, UpdatedAt: max(call.Now, 1)}
	o.notifier.Notify(ctx, domain.PriceChanged{Symbol: symbol, Price: new(big.Int).Set(stored)})
	return nil
}

// GetPrice returns the fresh price of symbol as seen at call.Now.
func (o *PriceOracle) GetPrice(call domain.Call, symbol string) (*big.Int, error) {
	p, err := o.FreshPrice(call, symbol)
	if err != nil {
		return nil, err
	}
	return p.Value, nil
}

// FreshPrice is GetPrice that also returns the update time, both read under
// one lock.
func (o *PriceOracle) FreshPrice(call domain.Call, symbol string) (domain.Price, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p, ok := o.prices[symbol]
	if !ok || !p.IsSet() {
		return domain.Price{}, fmt.Errorf("price for %s: %w", symbol, domain.ErrNotAvailable)
	}
	if p.Expired(call.Now, o.period) {
		return domain.Price{}, fmt.Errorf("price for %s: %w", symbol, domain.ErrExpired)
	}
	return domain.Price{Value: new(big.Int).Set(p.Value), UpdatedAt: p.UpdatedAt}, nil
}

// LatestPrice returns the stored entry for symbol without a freshness check.
// The zero Price is returned for symbols never set.
func (o *PriceOracle) LatestPrice(symbol string) domain.Price {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p, ok := o.prices[symbol]
	if !ok {
		return domain.Price{}
	}
	return domain.Price{Value: new(big.Int).Set(p.Value), UpdatedAt: p.UpdatedAt}
}
