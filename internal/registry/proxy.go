package registry

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/mtlprog/oracle/internal/domain"
)

// PriceOracleProxy redirects price reads for a token to the aggregator the
// owner configured for it.
type PriceOracleProxy struct {
	mu          sync.RWMutex
	owner       domain.Address
	dialer      Dialer
	aggregators map[domain.Address]domain.Address
	notifier    Notifier
}

// NewPriceOracleProxy creates a proxy owned by owner. Aggregator addresses
// are bound to handles through dialer at read time.
func NewPriceOracleProxy(owner domain.Address, dialer Dialer, notifier Notifier) *PriceOracleProxy {
	return &PriceOracleProxy{
		owner:       owner,
		dialer:      dialer,
		aggregators: make(map[domain.Address]domain.Address),
		notifier:    orNop(notifier),
	}
}

// Owner returns the administrative identity.
func (p *PriceOracleProxy) Owner() domain.Address { return p.owner }

// SetAggregator points token at aggregator, replacing any previous reference.
// The aggregator is not contacted; setting the zero address disables reads.
func (p *PriceOracleProxy) SetAggregator(ctx context.Context, call domain.Call, token, aggregator domain.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if call.Caller != p.owner {
		return fmt.Errorf("setting aggregator for %s: %w", token, domain.ErrUnauthorized)
	}
	p.notifier.Notify(ctx, p.setAggregatorLocked(call, token, aggregator))
	return nil
}

func (p *PriceOracleProxy) setAggregatorLocked(call domain.Call, token, aggregator domain.Address) domain.Event {
	p.aggregators[token] = aggregator
	return domain.AggregatorChanged{Token: token, Aggregator: aggregator, Time: call.Now}
}

// Aggregator returns the configured aggregator address for token, or the
// zero address when none is set.
func (p *PriceOracleProxy) Aggregator(token domain.Address) domain.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.aggregators[token]
}

func (p *PriceOracleProxy) handle(token domain.Address) (AggregatorHandle, error) {
	p.mu.RLock()
	addr := p.aggregators[token]
	p.mu.RUnlock()

	if domain.IsUnset(addr) {
		return nil, fmt.Errorf("aggregator for %s: %w", token, domain.ErrNotAvailable)
	}
	h, err := p.dialer.Aggregator(addr)
	if err != nil {
		return nil, fmt.Errorf("dialing aggregator %s: %w", addr, err)
	}
	return h, nil
}

// GetPrice returns the aggregator's latest answer verbatim.
func (p *PriceOracleProxy) GetPrice(ctx context.Context, token domain.Address) (*big.Int, error) {
	h, err := p.handle(token)
	if err != nil {
		return nil, err
	}
	answer, err := h.LatestAnswer(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest answer for %s: %w", token, err)
	}
	return answer, nil
}

// GetTimeStamp returns the aggregator's latest update timestamp.
func (p *PriceOracleProxy) GetTimeStamp(ctx context.Context, token domain.Address) (*big.Int, error) {
	h, err := p.handle(token)
	if err != nil {
		return nil, err
	}
	ts, err := h.LatestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest timestamp for %s: %w", token, err)
	}
	return ts, nil
}

// GetPreviousPrice returns the answer roundsBack rounds before the latest.
// roundsBack == 0 is the latest round.
func (p *PriceOracleProxy) GetPreviousPrice(ctx context.Context, token domain.Address, roundsBack uint64) (*big.Int, error) {
	h, round, err := p.lookback(ctx, token, roundsBack)
	if err != nil {
		return nil, err
	}
	answer, err := h.GetAnswer(ctx, round)
	if err != nil {
		return nil, fmt.Errorf("answer at round %s for %s: %w", round, token, err)
	}
	return answer, nil
}

// GetPreviousTimeStamp returns the timestamp roundsBack rounds before the latest.
func (p *PriceOracleProxy) GetPreviousTimeStamp(ctx context.Context, token domain.Address, roundsBack uint64) (*big.Int, error) {
	h, round, err := p.lookback(ctx, token, roundsBack)
	if err != nil {
		return nil, err
	}
	ts, err := h.GetTimestamp(ctx, round)
	if err != nil {
		return nil, fmt.Errorf("timestamp at round %s for %s: %w", round, token, err)
	}
	return ts, nil
}

// lookback resolves the round index latestRound - roundsBack.
func (p *PriceOracleProxy) lookback(ctx context.Context, token domain.Address, roundsBack uint64) (AggregatorHandle, *big.Int, error) {
	h, err := p.handle(token)
	if err != nil {
		return nil, nil, err
	}
	latest, err := h.LatestRound(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("latest round for %s: %w", token, err)
	}
	back := new(big.Int).SetUint64(roundsBack)
	if latest.Cmp(back) < 0 {
		return nil, nil, fmt.Errorf("%d rounds back from round %s for %s: %w", roundsBack, latest, token, domain.ErrInsufficientHistory)
	}
	return h, back.Sub(latest, back), nil
}
