package swap

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

var (
	ErrRouteNotFound = errors.New("swap: no route for pair")
	ErrInvalidRate   = errors.New("swap: rate must be positive")
)

// Storage abstracts the subset of state-store functionality required by the
// route table.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var routePrefix = []byte("swap/route/")

func routeKey(from, to types.Asset) []byte {
	pair := from.ID() + "/" + to.ID()
	return append(append([]byte{}, routePrefix...), pair...)
}

// Store persists the pairwise conversion rates the proxy quotes from.
type Store struct {
	kv Storage
}

// NewStore wraps the provided storage backend.
func NewStore(kv Storage) *Store {
	return &Store{kv: kv}
}

// SetRoute registers or updates the conversion rate for a directed pair.
func (s *Store) SetRoute(from, to types.Asset, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return ErrInvalidRate
	}
	return s.kv.KVPut(routeKey(from, to), rate.String())
}

// DeleteRoute removes a directed pair.
func (s *Store) DeleteRoute(from, to types.Asset) error {
	return s.kv.KVDelete(routeKey(from, to))
}

// Route returns the rate for a directed pair when one is registered.
func (s *Store) Route(from, to types.Asset) (decimal.Decimal, bool, error) {
	var stored string
	found, err := s.kv.KVGet(routeKey(from, to), &stored)
	if err != nil || !found {
		return decimal.Zero, false, err
	}
	rate, err := decimal.NewFromString(stored)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("swap: corrupt rate %q: %w", stored, err)
	}
	return rate, true, nil
}

// Proxy quotes swaps from the stored route table. It is the estimation
// oracle the farm consults before handing reward coins to the zapper; the
// actual swap execution stays with the zapper contract.
type Proxy struct {
	store *Store
}

// NewProxy builds a proxy over the route table.
func NewProxy(store *Store) *Proxy {
	return &Proxy{store: store}
}

// SupportsSwap reports whether the pair can be quoted. Identity pairs always
// can.
func (p *Proxy) SupportsSwap(from, to types.Asset) (bool, error) {
	if from.ID() == to.ID() {
		return true, nil
	}
	_, found, err := p.store.Route(from, to)
	return found, err
}

// SimulateSwap estimates the output of converting the coin into the target
// asset, rounding down.
func (p *Proxy) SimulateSwap(from types.Coin, to types.Asset) (*big.Int, error) {
	if from.Asset.ID() == to.ID() {
		return new(big.Int).Set(from.Amount), nil
	}
	rate, found, err := p.store.Route(from.Asset, to)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s -> %s", ErrRouteNotFound, from.Asset.ID(), to.ID())
	}
	out := decimal.NewFromBigInt(from.Amount, 0).Mul(rate).Floor()
	return out.BigInt(), nil
}
