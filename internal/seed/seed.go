// Package seed loads a YAML token list and registers it with a reference
// aggregator on behalf of the owner.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mtlprog/oracle/internal/domain"
)

// File is the on-disk seed document.
type File struct {
	Tokens []Token `yaml:"tokens"`
}

// Token is one seed entry. Addresses are hex strings; Volatility is a plain
// decimal such as "0.25".
type Token struct {
	Token              string `yaml:"token"`
	Aggregator         string `yaml:"aggregator"`
	Volatility         string `yaml:"volatility"`
	domain.TokenParams `yaml:",inline"`
}

// Registrar is the owner-side write API of a reference aggregator.
type Registrar interface {
	AddToken(ctx context.Context, call domain.Call, token, aggregator domain.Address, params domain.TokenParams) error
	UpdateToken(ctx context.Context, call domain.Call, token domain.Address, params domain.TokenParams) error
}

// Result counts what Apply did.
type Result struct {
	Added   int
	Updated int
	Failed  int
}

// Load reads and parses a seed file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}
	return &f, nil
}

// resolve converts an entry into registry arguments.
func (t Token) resolve() (token, aggregator domain.Address, params domain.TokenParams, err error) {
	token, err = domain.ParseAddress(t.Token)
	if err != nil {
		return token, aggregator, params, fmt.Errorf("token: %w", err)
	}
	if t.Aggregator != "" {
		aggregator, err = domain.ParseAddress(t.Aggregator)
		if err != nil {
			return token, aggregator, params, fmt.Errorf("aggregator: %w", err)
		}
	}

	params = t.TokenParams
	params.Volatility = new(big.Int)
	if t.Volatility != "" {
		params.Volatility, err = domain.ParseScaled(t.Volatility, domain.VolatilityScale)
		if err != nil {
			return token, aggregator, params, fmt.Errorf("volatility: %w", err)
		}
	}
	return token, aggregator, params, nil
}

// Apply registers every entry. Tokens already present get their parameters
// updated instead, so a restart re-applies the file idempotently. Invalid
// entries are logged and skipped.
func Apply(ctx context.Context, r Registrar, call domain.Call, f *File) Result {
	var res Result
	for i, t := range f.Tokens {
		token, aggregator, params, err := t.resolve()
		if err != nil {
			slog.Warn("seed: invalid entry", "index", i, "error", err)
			res.Failed++
			continue
		}

		err = r.AddToken(ctx, call, token, aggregator, params)
		switch {
		case err == nil:
			res.Added++
		case errors.Is(err, domain.ErrAlreadyExists):
			if err := r.UpdateToken(ctx, call, token, params); err != nil {
				slog.Warn("seed: failed to update token", "token", token.Hex(), "error", err)
				res.Failed++
				continue
			}
			res.Updated++
		default:
			slog.Warn("seed: failed to add token", "token", token.Hex(), "error", err)
			res.Failed++
		}
	}

	slog.Info("seed: applied token list", "added", res.Added, "updated", res.Updated, "failed", res.Failed)
	return res
}
