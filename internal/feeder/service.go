// Package feeder pushes off-chain market prices into a PriceOracle as an
// ordinary trusted source.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/oracle/internal/domain"
)

// PriceFetcher returns USD prices keyed by market ID.
type PriceFetcher interface {
	FetchPrices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
}

// PriceWriter is the source-side write API of a PriceOracle.
type PriceWriter interface {
	SetPrice(ctx context.Context, call domain.Call, symbol string, value *big.Int) error
}

// PushRecorder observes the outcome of every push.
type PushRecorder interface {
	RecordPush(symbol string, err error)
}

// Service fetches quotes and writes them to the oracle under its own identity.
type Service struct {
	fetcher  PriceFetcher
	oracle   PriceWriter
	identity domain.Address
	symbols  map[string]string // oracle symbol -> market ID
	recorder PushRecorder
	now      func() time.Time
}

// NewService creates a new feeder Service. recorder may be nil.
func NewService(fetcher PriceFetcher, oracle PriceWriter, identity domain.Address, symbols map[string]string, recorder PushRecorder) *Service {
	return &Service{
		fetcher:  fetcher,
		oracle:   oracle,
		identity: identity,
		symbols:  symbols,
		recorder: recorder,
		now:      time.Now,
	}
}

// FeedPrices fetches every configured symbol and pushes it, returning how many
// writes were accepted. A symbol whose quote is missing or whose write is
// rejected does not stop the others; all failures are returned joined.
func (s *Service) FeedPrices(ctx context.Context) (int, error) {
	ids := lo.Uniq(lo.Values(s.symbols))
	slices.Sort(ids)

	prices, err := s.fetcher.FetchPrices(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("fetching prices: %w", err)
	}

	call := domain.Call{Caller: s.identity, Now: uint64(s.now().Unix())}
	symbols := lo.Keys(s.symbols)
	slices.Sort(symbols)

	var (
		pushed int
		errs   []error
	)
	for _, symbol := range symbols {
		err := s.push(ctx, call, symbol, prices)
		if s.recorder != nil {
			s.recorder.RecordPush(symbol, err)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pushed++
		slog.Debug("feeder: price pushed", "symbol", symbol)
	}
	return pushed, errors.Join(errs...)
}

func (s *Service) push(ctx context.Context, call domain.Call, symbol string, prices map[string]decimal.Decimal) error {
	id := s.symbols[symbol]
	price, ok := prices[id]
	if !ok {
		return fmt.Errorf("no quote for %s (%s)", symbol, id)
	}
	if err := s.oracle.SetPrice(ctx, call, symbol, domain.ScaleUp(price, domain.PriceScale)); err != nil {
		return fmt.Errorf("setting price for %s: %w", symbol, err)
	}
	return nil
}
