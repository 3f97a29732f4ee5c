package hub

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Config holds the hub-wide, owner-mutable parameters.
type Config struct {
	StakeDenom          string
	ShareToken          types.Asset
	EpochPeriodSeconds  uint64
	UnbondPeriodSeconds uint64
	Validators          []string
}

// Validate checks the structural config invariants.
func (c Config) Validate() error {
	if c.StakeDenom == "" {
		return fmt.Errorf("hub config: stake denom must not be empty")
	}
	if c.EpochPeriodSeconds == 0 {
		return fmt.Errorf("hub config: epoch period must be positive")
	}
	if c.UnbondPeriodSeconds == 0 {
		return fmt.Errorf("hub config: unbond period must be positive")
	}
	if len(c.Validators) == 0 {
		return fmt.Errorf("hub config: at least one validator required")
	}
	seen := make(map[string]struct{}, len(c.Validators))
	for _, val := range c.Validators {
		if val == "" {
			return fmt.Errorf("hub config: validator address must not be empty")
		}
		if _, ok := seen[val]; ok {
			return fmt.Errorf("hub config: duplicate validator %s", val)
		}
		seen[val] = struct{}{}
	}
	return nil
}

// PendingBatch absorbs new unbond requests until it is sealed at the epoch
// boundary. Exactly one pending batch exists at a time.
type PendingBatch struct {
	ID          uint64
	TotalShares *big.Int
}

// Batch is a sealed unbonding batch. Immutable once submitted; Reconciled
// flips exactly once when the undelegated funds are confirmed returned, which
// fixes the settlement rate for every request against the batch.
type Batch struct {
	ID               uint64
	TotalShares      *big.Int
	UtokenUnbonding  *big.Int
	EstUnbondEndTime uint64
	Reconciled       bool
}

// SettlementRate is the utoken-per-share rate fixed for this batch. Requests
// queued against the batch settle at this rate regardless of staking activity
// after submission, which is what shields users from dilution between queueing
// and settlement.
func (b Batch) SettlementRate() decimal.Decimal {
	if b.TotalShares == nil || b.TotalShares.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(b.UtokenUnbonding, 0).Div(decimal.NewFromBigInt(b.TotalShares, 0))
}

// UnbondRequest records the shares one user queued into one batch.
type UnbondRequest struct {
	BatchID uint64
	User    types.Address
	Shares  *big.Int
}

// RateEntry is one dated exchange-rate observation used for APR queries.
// One entry per UTC day, last write wins.
type RateEntry struct {
	Day  string
	Rate decimal.Decimal
	Time uint64
}

// RateDay derives the history bucket for a unix timestamp.
func RateDay(ts uint64) string {
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02")
}
