package arbvault

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func steps(pairs ...string) []UtilizationStep {
	out := make([]UtilizationStep, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, UtilizationStep{
			Profit:   decimal.RequireFromString(pairs[i]),
			Takeable: decimal.RequireFromString(pairs[i+1]),
		})
	}
	return out
}

func TestTakeableRatioMonotoneNonIncreasing(t *testing.T) {
	cfg := steps("0.005", "0.1", "0.01", "0.5", "0.02", "1.0")

	grid := []string{"0.005", "0.0075", "0.01", "0.015", "0.02", "0.05", "0.5"}
	prev := decimal.NewFromInt(2)
	for _, raw := range grid {
		profit := decimal.RequireFromString(raw)
		ratio := takeableRatio(cfg, profit)
		if ratio.GreaterThan(prev) {
			t.Fatalf("ratio increased at profit %s: %s > %s", profit, ratio, prev)
		}
		if ratio.IsNegative() || ratio.GreaterThan(decimal.NewFromInt(1)) {
			t.Fatalf("ratio outside [0,1] at profit %s: %s", profit, ratio)
		}
		prev = ratio
	}
}

func TestTakeableRatioBelowLowestThreshold(t *testing.T) {
	cfg := steps("0.01", "0.5", "0.02", "1.0")
	if ratio := takeableRatio(cfg, decimal.RequireFromString("0.005")); !ratio.IsZero() {
		t.Fatalf("ratio = %s, want 0 below lowest threshold", ratio)
	}
}

func TestTakeableForProfitAppliesRatio(t *testing.T) {
	cfg := Config{
		UtokenDenom:       "uluna",
		UnbondTimeSeconds: 100,
		Utilization:       steps("0.005", "0.5"),
	}
	balances := Balances{VaultTakeable: big.NewInt(1000)}

	takeable := takeableForProfit(cfg, balances, decimal.RequireFromString("0.01"))
	if takeable.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("takeable = %s, want 500", takeable)
	}

	takeable = takeableForProfit(cfg, balances, decimal.RequireFromString("0.001"))
	if takeable.Sign() != 0 {
		t.Fatalf("takeable = %s, want 0 below threshold", takeable)
	}
}

func TestConfigValidation(t *testing.T) {
	base := Config{UtokenDenom: "uluna", UnbondTimeSeconds: 100}

	cases := []struct {
		name  string
		steps []UtilizationStep
		ok    bool
	}{
		{"valid", steps("0.005", "0.1", "0.01", "0.5"), true},
		{"empty", nil, false},
		{"profit not ascending", steps("0.01", "0.1", "0.005", "0.5"), false},
		{"takeable not ascending", steps("0.005", "0.5", "0.01", "0.1"), false},
		{"fraction above one", steps("0.005", "1.5"), false},
		{"negative fraction", steps("0.005", "-0.1"), false},
	}
	for _, tc := range cases {
		cfg := base
		cfg.Utilization = tc.steps
		err := cfg.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestFeeConfigValidation(t *testing.T) {
	fees := FeeConfig{
		PerformanceFee:       decimal.RequireFromString("0.1"),
		WithdrawFee:          decimal.RequireFromString("0.01"),
		ImmediateWithdrawFee: decimal.RequireFromString("0.05"),
	}
	if err := fees.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fees.PerformanceFee = decimal.NewFromInt(1)
	if err := fees.Validate(); err == nil {
		t.Fatal("expected error for fee of 1")
	}
}
