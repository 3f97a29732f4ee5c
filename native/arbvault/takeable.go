package arbvault

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// takeableRatio evaluates the utilization step function for a wanted profit.
// Steps are configured ascending in both threshold and fraction; the fraction
// list is read from the high end, so crossing a higher profit threshold maps
// to a smaller or equal fraction. The result is monotonically non-increasing
// in wantedProfit: demanding more per-unit return puts less capital at risk.
func takeableRatio(steps []UtilizationStep, wantedProfit decimal.Decimal) decimal.Decimal {
	if len(steps) == 0 {
		return decimal.Zero
	}
	matched := -1
	for i, step := range steps {
		if wantedProfit.LessThan(step.Profit) {
			break
		}
		matched = i
	}
	if matched < 0 {
		return decimal.Zero
	}
	return steps[len(steps)-1-matched].Takeable
}

// takeableForProfit applies the utilization ratio to the vault's takeable
// liquidity, flooring the result.
func takeableForProfit(cfg Config, balances Balances, wantedProfit decimal.Decimal) *big.Int {
	ratio := takeableRatio(cfg.Utilization, wantedProfit)
	if ratio.IsZero() || balances.VaultTakeable == nil || balances.VaultTakeable.Sign() <= 0 {
		return big.NewInt(0)
	}
	return decimal.NewFromBigInt(balances.VaultTakeable, 0).Mul(ratio).BigInt()
}
