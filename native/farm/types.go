package farm

import (
	"fmt"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Config holds the farm-wide, owner-mutable parameters.
type Config struct {
	// LpToken is the staked asset; compounded rewards are swapped into it.
	LpToken types.Asset
	// RewardAssets lists the assets the underlying protocol pays rewards in.
	RewardAssets []types.Asset
	// Zapper is the swap/compounding proxy contract.
	Zapper types.Address
	// PerformanceFee is skimmed from every compound, paid to the receiver
	// in reward assets before the swap.
	PerformanceFee decimal.Decimal
	FeeReceiver    types.Address
}

// Validate checks the structural config invariants.
func (c Config) Validate() error {
	if len(c.RewardAssets) == 0 {
		return fmt.Errorf("farm config: at least one reward asset required")
	}
	seen := make(map[string]struct{}, len(c.RewardAssets))
	for _, asset := range c.RewardAssets {
		id := asset.ID()
		if _, ok := seen[id]; ok {
			return fmt.Errorf("farm config: duplicate reward asset %s", id)
		}
		seen[id] = struct{}{}
	}
	one := decimal.NewFromInt(1)
	if c.PerformanceFee.IsNegative() || c.PerformanceFee.GreaterThanOrEqual(one) {
		return fmt.Errorf("farm config: performance fee must be in [0,1)")
	}
	if c.PerformanceFee.IsPositive() && c.FeeReceiver.IsZero() {
		return fmt.Errorf("farm config: fee receiver required when fee is set")
	}
	return nil
}
