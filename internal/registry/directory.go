package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mtlprog/oracle/internal/domain"
)

// ErrNoContract is returned by Directory for addresses with nothing bound.
var ErrNoContract = errors.New("no contract at address")

// Directory is an in-process Dialer holding handles bound to addresses.
type Directory struct {
	mu          sync.RWMutex
	aggregators map[domain.Address]AggregatorHandle
	tokens      map[domain.Address]TokenDescriptor
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		aggregators: make(map[domain.Address]AggregatorHandle),
		tokens:      make(map[domain.Address]TokenDescriptor),
	}
}

// BindAggregator makes h reachable at addr.
func (d *Directory) BindAggregator(addr domain.Address, h AggregatorHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aggregators[addr] = h
}

// BindToken makes t reachable at addr.
func (d *Directory) BindToken(addr domain.Address, t TokenDescriptor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[addr] = t
}

func (d *Directory) Aggregator(addr domain.Address) (AggregatorHandle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.aggregators[addr]
	if !ok {
		return nil, fmt.Errorf("aggregator %s: %w", addr, ErrNoContract)
	}
	return h, nil
}

func (d *Directory) Token(addr domain.Address) (TokenDescriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tokens[addr]
	if !ok {
		return nil, fmt.Errorf("token %s: %w", addr, ErrNoContract)
	}
	return t, nil
}
