// Package registrytest provides scripted aggregators, tokens and a recording
// notifier for tests of code built on the registry.
package registrytest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/mtlprog/oracle/internal/domain"
)

// Round is one scripted aggregator round.
type Round struct {
	Answer    int64
	Timestamp int64
}

// Aggregator serves a fixed round history. Rounds[i] is round i, so the
// latest round index is len(Rounds)-1.
type Aggregator struct {
	Rounds []Round
	Err    error // returned by every call when set
}

// NewAggregator builds an aggregator whose round i answers answers[i] at
// timestamp 1000+i.
func NewAggregator(answers ...int64) *Aggregator {
	a := &Aggregator{}
	for i, ans := range answers {
		a.Rounds = append(a.Rounds, Round{Answer: ans, Timestamp: int64(1000 + i)})
	}
	return a
}

func (a *Aggregator) latest() (Round, error) {
	if a.Err != nil {
		return Round{}, a.Err
	}
	if len(a.Rounds) == 0 {
		return Round{}, fmt.Errorf("no rounds")
	}
	return a.Rounds[len(a.Rounds)-1], nil
}

func (a *Aggregator) at(round *big.Int) (Round, error) {
	if a.Err != nil {
		return Round{}, a.Err
	}
	if !round.IsInt64() || round.Int64() < 0 || round.Int64() >= int64(len(a.Rounds)) {
		return Round{}, fmt.Errorf("round %s out of range", round)
	}
	return a.Rounds[round.Int64()], nil
}

func (a *Aggregator) LatestAnswer(context.Context) (*big.Int, error) {
	r, err := a.latest()
	if err != nil {
		return nil, err
	}
	return big.NewInt(r.Answer), nil
}

func (a *Aggregator) LatestTimestamp(context.Context) (*big.Int, error) {
	r, err := a.latest()
	if err != nil {
		return nil, err
	}
	return big.NewInt(r.Timestamp), nil
}

func (a *Aggregator) LatestRound(context.Context) (*big.Int, error) {
	if _, err := a.latest(); err != nil {
		return nil, err
	}
	return big.NewInt(int64(len(a.Rounds) - 1)), nil
}

func (a *Aggregator) GetAnswer(_ context.Context, round *big.Int) (*big.Int, error) {
	r, err := a.at(round)
	if err != nil {
		return nil, err
	}
	return big.NewInt(r.Answer), nil
}

func (a *Aggregator) GetTimestamp(_ context.Context, round *big.Int) (*big.Int, error) {
	r, err := a.at(round)
	if err != nil {
		return nil, err
	}
	return big.NewInt(r.Timestamp), nil
}

// Token is a static token descriptor.
type Token struct {
	TokenName     string
	TokenSymbol   string
	TokenDecimals uint8
	Err           error
}

func (t *Token) Name(context.Context) (string, error)    { return t.TokenName, t.Err }
func (t *Token) Symbol(context.Context) (string, error)  { return t.TokenSymbol, t.Err }
func (t *Token) Decimals(context.Context) (uint8, error) { return t.TokenDecimals, t.Err }

// Recorder collects every notified event.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Notify(_ context.Context, events ...domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}
