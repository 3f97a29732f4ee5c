package swap

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
	"amplifier/state"
	"amplifier/storage"
)

var (
	uluna = types.NativeAsset("uluna")
	astro = types.TokenAsset(types.Address{0xaa})
	lp    = types.TokenAsset(types.Address{0x1f})
)

func newProxy(t *testing.T) (*Store, *Proxy) {
	t.Helper()
	store := NewStore(state.NewStore(storage.NewMemDB()))
	return store, NewProxy(store)
}

func TestSimulateUsesStoredRate(t *testing.T) {
	store, proxy := newProxy(t)
	if err := store.SetRoute(astro, lp, decimal.RequireFromString("0.5")); err != nil {
		t.Fatalf("set route: %v", err)
	}

	ok, err := proxy.SupportsSwap(astro, lp)
	if err != nil || !ok {
		t.Fatalf("supports = %v, %v, want true", ok, err)
	}

	out, err := proxy.SimulateSwap(types.NewCoin(astro, big.NewInt(101)), lp)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if out.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("out = %s, want 50 (floored)", out)
	}
}

func TestRoutesAreDirected(t *testing.T) {
	store, proxy := newProxy(t)
	if err := store.SetRoute(astro, lp, decimal.NewFromInt(2)); err != nil {
		t.Fatalf("set route: %v", err)
	}

	ok, err := proxy.SupportsSwap(lp, astro)
	if err != nil {
		t.Fatalf("supports: %v", err)
	}
	if ok {
		t.Fatal("reverse pair should not be quotable")
	}
	if _, err := proxy.SimulateSwap(types.NewCoin(lp, big.NewInt(10)), astro); !errors.Is(err, ErrRouteNotFound) {
		t.Fatalf("simulate error = %v, want ErrRouteNotFound", err)
	}
}

func TestIdentityPair(t *testing.T) {
	_, proxy := newProxy(t)
	ok, err := proxy.SupportsSwap(uluna, uluna)
	if err != nil || !ok {
		t.Fatalf("identity supports = %v, %v, want true", ok, err)
	}
	out, err := proxy.SimulateSwap(types.NewCoin(uluna, big.NewInt(7)), uluna)
	if err != nil || out.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("identity simulate = %s, %v, want 7", out, err)
	}
}

func TestSetRouteRejectsNonPositiveRate(t *testing.T) {
	store, _ := newProxy(t)
	if err := store.SetRoute(astro, lp, decimal.Zero); !errors.Is(err, ErrInvalidRate) {
		t.Fatalf("zero rate error = %v, want ErrInvalidRate", err)
	}
}

func TestDeleteRoute(t *testing.T) {
	store, proxy := newProxy(t)
	if err := store.SetRoute(astro, lp, decimal.NewFromInt(1)); err != nil {
		t.Fatalf("set route: %v", err)
	}
	if err := store.DeleteRoute(astro, lp); err != nil {
		t.Fatalf("delete route: %v", err)
	}
	ok, err := proxy.SupportsSwap(astro, lp)
	if err != nil {
		t.Fatalf("supports: %v", err)
	}
	if ok {
		t.Fatal("deleted pair should not be quotable")
	}
}
