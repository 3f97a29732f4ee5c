package arbvault

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPoolFeeFactorBoundaries(t *testing.T) {
	entry := UnbondHistory{
		StartTime:   1000,
		ReleaseTime: 2000,
		Amount:      big.NewInt(100),
	}

	if factor := entry.PoolFeeFactor(1000); !factor.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("factor at start = %s, want 1", factor)
	}
	if factor := entry.PoolFeeFactor(2000); !factor.IsZero() {
		t.Fatalf("factor at release = %s, want 0", factor)
	}
	if factor := entry.PoolFeeFactor(5000); !factor.IsZero() {
		t.Fatalf("factor past release = %s, want 0", factor)
	}
	if factor := entry.PoolFeeFactor(1500); !factor.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("factor at midpoint = %s, want 0.5", factor)
	}
}

func TestPoolFeeFactorNonIncreasing(t *testing.T) {
	entry := UnbondHistory{StartTime: 0, ReleaseTime: 1000}

	prev := decimal.NewFromInt(2)
	for now := uint64(0); now <= 1200; now += 100 {
		factor := entry.PoolFeeFactor(now)
		if factor.GreaterThan(prev) {
			t.Fatalf("factor increased at %d: %s > %s", now, factor, prev)
		}
		prev = factor
	}
}

func TestRateDay(t *testing.T) {
	// 2024-01-02 00:00:00 UTC
	if day := RateDay(1704153600); day != "2024-01-02" {
		t.Fatalf("day = %s, want 2024-01-02", day)
	}
}
