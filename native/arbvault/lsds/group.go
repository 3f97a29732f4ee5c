package lsds

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"amplifier/core/types"
)

// ErrCouldNotLoadTotalAssets wraps any adapter query failure during portfolio
// aggregation. There is no partial aggregation: one failing adapter fails the
// whole read.
var ErrCouldNotLoadTotalAssets = errors.New("lsds: could not load total assets")

var (
	errDuplicateAdapter = errors.New("lsds: duplicate adapter name")
	errUnknownAdapter   = errors.New("lsds: unknown adapter")
)

// Group aggregates the configured adapters into portfolio-wide totals.
type Group struct {
	adapters []*Adapter
}

// NewGroup validates adapter names are unique and returns the aggregate.
func NewGroup(adapters []*Adapter) (*Group, error) {
	seen := make(map[string]struct{}, len(adapters))
	for _, adapter := range adapters {
		name := strings.ToLower(strings.TrimSpace(adapter.Name))
		if name == "" {
			return nil, fmt.Errorf("lsds: adapter name must not be empty")
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateAdapter, name)
		}
		seen[name] = struct{}{}
	}
	return &Group{adapters: adapters}, nil
}

// Adapters returns the adapter set in configuration order.
func (g *Group) Adapters() []*Adapter { return g.adapters }

// Get resolves an adapter by name.
func (g *Group) Get(name string) (*Adapter, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, adapter := range g.adapters {
		if strings.ToLower(adapter.Name) == needle {
			return adapter, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errUnknownAdapter, name)
}

// TotalUnbonding sums the utoken value still unbonding across all adapters.
func (g *Group) TotalUnbonding(user types.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, adapter := range g.adapters {
		amount, err := adapter.QueryUnbonding(user)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCouldNotLoadTotalAssets, err)
		}
		total.Add(total, amount)
	}
	return total, nil
}

// TotalWithdrawable sums the released, claimable utoken value across all
// adapters.
func (g *Group) TotalWithdrawable(user types.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, adapter := range g.adapters {
		amount, err := adapter.QueryWithdrawable(user)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCouldNotLoadTotalAssets, err)
		}
		total.Add(total, amount)
	}
	return total, nil
}

// ResetCaches clears every adapter's memoized queries. Called at the start of
// each engine call chain.
func (g *Group) ResetCaches() {
	for _, adapter := range g.adapters {
		adapter.ResetCache()
	}
}
