package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/samber/lo"

	"github.com/mtlprog/oracle/internal/domain"
)

// ReferenceAggregator is a PriceOracleProxy that also keeps a curated list
// of token metadata. Tokens are registered once and never removed.
type ReferenceAggregator struct {
	*PriceOracleProxy
	tokens []domain.TokenInformation
}

// NewReferenceAggregator creates an empty aggregator owned by owner.
func NewReferenceAggregator(owner domain.Address, dialer Dialer, notifier Notifier) *ReferenceAggregator {
	return &ReferenceAggregator{PriceOracleProxy: NewPriceOracleProxy(owner, dialer, notifier)}
}

// FindTokenIndex returns the list index of token, or -1 if it is not registered.
func (r *ReferenceAggregator) FindTokenIndex(token domain.Address) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(token)
}

// findLocked is a linear scan; the list is a small owner-curated allow-list.
func (r *ReferenceAggregator) findLocked(token domain.Address) int {
	_, idx, _ := lo.FindIndexOf(r.tokens, func(t domain.TokenInformation) bool {
		return t.Token == token
	})
	return idx
}

// AddToken registers token, points it at aggregator and resolves its
// name, symbol and decimals. The native sentinel uses fixed metadata; any
// other token is queried through its descriptor and must report non-zero
// decimals.
func (r *ReferenceAggregator) AddToken(ctx context.Context, call domain.Call, token, aggregator domain.Address, params domain.TokenParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call.Caller != r.owner {
		return fmt.Errorf("adding token %s: %w", token, domain.ErrUnauthorized)
	}
	if r.findLocked(token) >= 0 {
		return fmt.Errorf("adding token %s: %w", token, domain.ErrAlreadyExists)
	}

	info, err := r.describe(ctx, token)
	if err != nil {
		return fmt.Errorf("adding token %s: %w", token, err)
	}
	info.TokenParams = normalizeParams(params)

	changed := r.setAggregatorLocked(call, token, aggregator)
	r.tokens = append(r.tokens, info)
	index := len(r.tokens) - 1

	r.notifier.Notify(ctx, changed, domain.TokenInformationAdded{
		Token: token,
		Name:  info.Name,
		Index: index,
		Time:  call.Now,
	})
	return nil
}

func (r *ReferenceAggregator) describe(ctx context.Context, token domain.Address) (domain.TokenInformation, error) {
	if domain.IsNative(token) {
		return domain.TokenInformation{
			Token:    token,
			Name:     domain.NativeTokenName,
			Symbol:   domain.NativeTokenSymbol,
			Decimals: domain.NativeTokenDecimals,
		}, nil
	}

	d, err := r.dialer.Token(token)
	if err != nil {
		return domain.TokenInformation{}, fmt.Errorf("dialing token: %w", err)
	}
	decimals, err := d.Decimals(ctx)
	if err != nil {
		return domain.TokenInformation{}, fmt.Errorf("reading decimals: %w", err)
	}
	if decimals == 0 {
		return domain.TokenInformation{}, fmt.Errorf("zero decimals: %w", domain.ErrInvalidToken)
	}
	name, err := d.Name(ctx)
	if err != nil {
		return domain.TokenInformation{}, fmt.Errorf("reading name: %w", err)
	}
	symbol, err := d.Symbol(ctx)
	if err != nil {
		return domain.TokenInformation{}, fmt.Errorf("reading symbol: %w", err)
	}
	return domain.TokenInformation{Token: token, Name: name, Symbol: symbol, Decimals: decimals}, nil
}

// UpdateToken replaces the mutable fields of a registered token.
func (r *ReferenceAggregator) UpdateToken(ctx context.Context, call domain.Call, token domain.Address, params domain.TokenParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call.Caller != r.owner {
		return fmt.Errorf("updating token %s: %w", token, domain.ErrUnauthorized)
	}
	index := r.findLocked(token)
	if index < 0 {
		return fmt.Errorf("updating token %s: %w", token, domain.ErrNotFound)
	}

	r.tokens[index].TokenParams = normalizeParams(params)
	r.notifier.Notify(ctx, domain.TokenInformationChanged{Token: token, Index: index, Time: call.Now})
	return nil
}

// TokensCount returns the number of registered tokens.
func (r *ReferenceAggregator) TokensCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Token returns the entry at index.
func (r *ReferenceAggregator) Token(index int) (domain.TokenInformation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.tokens) {
		return domain.TokenInformation{}, fmt.Errorf("token index %d: %w", index, domain.ErrNotFound)
	}
	return r.tokens[index].Clone(), nil
}

// TokenByAddress returns the entry registered for token.
func (r *ReferenceAggregator) TokenByAddress(token domain.Address) (domain.TokenInformation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	index := r.findLocked(token)
	if index < 0 {
		return domain.TokenInformation{}, fmt.Errorf("token %s: %w", token, domain.ErrNotFound)
	}
	return r.tokens[index].Clone(), nil
}

// Tokens returns all entries in registration order.
func (r *ReferenceAggregator) Tokens() []domain.TokenInformation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.tokens, func(t domain.TokenInformation, _ int) domain.TokenInformation {
		return t.Clone()
	})
}

func normalizeParams(p domain.TokenParams) domain.TokenParams {
	if p.Volatility == nil {
		p.Volatility = new(big.Int)
	} else {
		p.Volatility = new(big.Int).Set(p.Volatility)
	}
	return p
}
