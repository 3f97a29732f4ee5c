package arbvault

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// MinWantedProfit is the hard floor below which arbitrage requests are
// rejected outright. Rounds thinner than this are not worth the fee and risk
// overhead.
var MinWantedProfit = decimal.RequireFromString("0.005")

// profitSlippage is applied to the caller's asserted minimum when the round
// settles: the realised profit may undershoot the wanted profit by up to 10%
// to tolerate execution slippage.
var profitSlippage = decimal.RequireFromString("0.9")

// DayFormat keys the daily exchange-rate history.
const DayFormat = "2006-01-02"

// UtilizationStep pairs a profit threshold with a takeable pool fraction.
// Steps must be sorted ascending by both fields; the fraction list is
// consumed mirrored, so the highest threshold crossed selects the lowest
// configured fraction (see takeableRatio).
type UtilizationStep struct {
	Profit   decimal.Decimal
	Takeable decimal.Decimal
}

// Config holds the vault-wide, owner-mutable parameters.
type Config struct {
	UtokenDenom       string
	LpToken           types.Asset
	UnbondTimeSeconds uint64
	Utilization       []UtilizationStep
}

// Validate enforces the utilization-step ordering invariant: ascending profit
// thresholds, ascending takeable fractions, fractions within [0,1].
func (c Config) Validate() error {
	if c.UtokenDenom == "" {
		return fmt.Errorf("arbvault config: utoken denom must not be empty")
	}
	if c.UnbondTimeSeconds == 0 {
		return fmt.Errorf("arbvault config: unbond time must be positive")
	}
	if len(c.Utilization) == 0 {
		return fmt.Errorf("arbvault config: at least one utilization step required")
	}
	one := decimal.NewFromInt(1)
	for i, step := range c.Utilization {
		if step.Takeable.IsNegative() || step.Takeable.GreaterThan(one) {
			return fmt.Errorf("arbvault config: step %d takeable fraction outside [0,1]", i)
		}
		if step.Profit.IsNegative() {
			return fmt.Errorf("arbvault config: step %d profit threshold negative", i)
		}
		if i == 0 {
			continue
		}
		prev := c.Utilization[i-1]
		if !step.Profit.GreaterThan(prev.Profit) {
			return fmt.Errorf("arbvault config: step %d profit threshold not ascending", i)
		}
		if step.Takeable.LessThan(prev.Takeable) {
			return fmt.Errorf("arbvault config: step %d takeable fraction not ascending", i)
		}
	}
	return nil
}

// FeeConfig holds the owner-mutable fee schedule.
type FeeConfig struct {
	ProtocolFeeReceiver  types.Address
	PerformanceFee       decimal.Decimal
	WithdrawFee          decimal.Decimal
	ImmediateWithdrawFee decimal.Decimal
}

// Validate bounds every fee rate to [0,1).
func (f FeeConfig) Validate() error {
	one := decimal.NewFromInt(1)
	for _, fee := range []struct {
		name string
		rate decimal.Decimal
	}{
		{"performance", f.PerformanceFee},
		{"withdraw", f.WithdrawFee},
		{"immediate withdraw", f.ImmediateWithdrawFee},
	} {
		if fee.rate.IsNegative() || !fee.rate.LessThan(one) {
			return fmt.Errorf("arbvault fees: %s fee outside [0,1)", fee.name)
		}
	}
	return nil
}

// Balances is the derived balance snapshot. It is recomputed from adapter
// queries plus the persisted locked-withdrawals counter on every read and is
// never stored, so it cannot drift from ground truth between transactions.
type Balances struct {
	VaultAvailable        *big.Int
	LsdUnbonding          *big.Int
	LsdWithdrawable       *big.Int
	TvlUtoken             *big.Int
	VaultTotal            *big.Int
	VaultTakeable         *big.Int
	LockedUserWithdrawals *big.Int
}

// BalanceCheckpoint is the snapshot persisted while an arbitrage round is in
// flight. Its presence in storage is the re-entrancy lock: at most one round
// may be open at a time.
type BalanceCheckpoint struct {
	VaultAvailable *big.Int
	TvlUtoken      *big.Int
}

// UnbondHistory records one pending user withdrawal from the vault.
type UnbondHistory struct {
	ID          uint64
	User        types.Address
	StartTime   uint64
	ReleaseTime uint64
	Amount      *big.Int
}

// PoolFeeFactor decays linearly from 1 at StartTime to 0 at ReleaseTime and
// stays 0 afterwards. It scales the discretionary immediate-withdraw fee, so
// skipping the queue becomes strictly cheaper over time and free once the
// natural unbonding period has elapsed.
func (u UnbondHistory) PoolFeeFactor(now uint64) decimal.Decimal {
	if now >= u.ReleaseTime {
		return decimal.Zero
	}
	if now <= u.StartTime || u.ReleaseTime <= u.StartTime {
		return decimal.NewFromInt(1)
	}
	elapsed := decimal.NewFromInt(int64(now - u.StartTime))
	window := decimal.NewFromInt(int64(u.ReleaseTime - u.StartTime))
	return decimal.NewFromInt(1).Sub(elapsed.Div(window))
}

// RateEntry is one dated share-value observation used for APR queries. One
// entry per UTC day, last write wins.
type RateEntry struct {
	Day  string
	Rate decimal.Decimal
	Time uint64
}

// RateDay derives the history bucket for a unix timestamp.
func RateDay(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format(DayFormat)
}
