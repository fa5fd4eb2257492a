package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mtlprog/oracle/internal/registry"
)

// Aggregator reads a Chainlink-style aggregator contract.
type Aggregator struct{ c contract }

// NewAggregator binds the aggregator at address.
func NewAggregator(caller ethereum.ContractCaller, address common.Address) *Aggregator {
	return &Aggregator{c: contract{caller: caller, address: address, abi: AggregatorABI}}
}

func (a *Aggregator) LatestAnswer(ctx context.Context) (*big.Int, error) {
	return a.c.callBig(ctx, "latestAnswer")
}

func (a *Aggregator) LatestTimestamp(ctx context.Context) (*big.Int, error) {
	return a.c.callBig(ctx, "latestTimestamp")
}

func (a *Aggregator) LatestRound(ctx context.Context) (*big.Int, error) {
	return a.c.callBig(ctx, "latestRound")
}

func (a *Aggregator) GetAnswer(ctx context.Context, round *big.Int) (*big.Int, error) {
	return a.c.callBig(ctx, "getAnswer", round)
}

func (a *Aggregator) GetTimestamp(ctx context.Context, round *big.Int) (*big.Int, error) {
	return a.c.callBig(ctx, "getTimestamp", round)
}

// Token reads ERC-20 metadata.
type Token struct{ c contract }

// NewToken binds the token at address.
func NewToken(caller ethereum.ContractCaller, address common.Address) *Token {
	return &Token{c: contract{caller: caller, address: address, abi: ERC20ABI}}
}

func (t *Token) Name(ctx context.Context) (string, error)   { return t.c.callString(ctx, "name") }
func (t *Token) Symbol(ctx context.Context) (string, error) { return t.c.callString(ctx, "symbol") }

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	v, err := t.c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals returned %T, want uint8", v)
	}
	return d, nil
}

// Dialer binds registry addresses to contracts reachable through caller.
type Dialer struct {
	caller ethereum.ContractCaller
}

var _ registry.Dialer = (*Dialer)(nil)

// NewDialer creates a Dialer over an existing contract caller.
func NewDialer(caller ethereum.ContractCaller) *Dialer {
	return &Dialer{caller: caller}
}

// Dial connects to a JSON-RPC endpoint and returns a Dialer over it together
// with the client so the caller can close it.
func Dial(ctx context.Context, rpcURL string) (*Dialer, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", rpcURL, err)
	}
	return NewDialer(client), client, nil
}

func (d *Dialer) Aggregator(addr common.Address) (registry.AggregatorHandle, error) {
	return NewAggregator(d.caller, addr), nil
}

func (d *Dialer) Token(addr common.Address) (registry.TokenDescriptor, error) {
	return NewToken(d.caller, addr), nil
}
