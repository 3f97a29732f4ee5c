package ampz

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Config holds the scheduler-wide, owner-mutable parameters.
type Config struct {
	// Controller is the protocol's own crank account. It earns no executor
	// bounty.
	Controller          types.Address
	ProtocolFeeReceiver types.Address
	ProtocolFee         decimal.Decimal
	ExecutorFee         decimal.Decimal
	Hub                 types.Address
	Zapper              types.Address
	StakeDenom          string
}

// Validate checks the structural config invariants.
func (c Config) Validate() error {
	one := decimal.NewFromInt(1)
	if c.ProtocolFee.IsNegative() || c.ProtocolFee.GreaterThanOrEqual(one) {
		return fmt.Errorf("ampz config: protocol fee must be in [0,1)")
	}
	if c.ExecutorFee.IsNegative() || c.ExecutorFee.GreaterThanOrEqual(one) {
		return fmt.Errorf("ampz config: executor fee must be in [0,1)")
	}
	if c.ProtocolFee.Add(c.ExecutorFee).GreaterThanOrEqual(one) {
		return fmt.Errorf("ampz config: combined fees must leave a remainder")
	}
	if c.ProtocolFeeReceiver.IsZero() {
		return fmt.Errorf("ampz config: protocol fee receiver must be set")
	}
	if c.StakeDenom == "" {
		return fmt.Errorf("ampz config: stake denom must not be empty")
	}
	return nil
}

// SourceKind discriminates the tagged source variants.
type SourceKind uint8

const (
	SourceClaimStakingRewards SourceKind = iota
	SourceAstroRewards
	SourceWalletBalance
	SourceClaimContract
	SourceLiquidityAlliance
)

// Source describes where an execution pulls funds from. Exactly the fields
// of the tagged kind are meaningful.
type Source struct {
	Kind SourceKind
	// LpTokens for SourceAstroRewards.
	LpTokens []types.Address
	// Asset and MinBalance for SourceWalletBalance.
	Asset      types.Asset
	MinBalance *big.Int
	// Contract and Action for SourceClaimContract.
	Contract types.Address
	Action   string
}

// UniqueKey identifies the source for the per-user uniqueness index. Two
// sources with the same key cannot be registered by the same user at once.
func (s Source) UniqueKey() string {
	switch s.Kind {
	case SourceClaimStakingRewards:
		return "claim"
	case SourceAstroRewards:
		return "astro_rewards"
	case SourceWalletBalance:
		return "wallet:" + s.Asset.ID()
	case SourceClaimContract:
		return "contract:" + s.Contract.Hex() + ":" + s.Action
	case SourceLiquidityAlliance:
		return "liquidity_alliance"
	default:
		return fmt.Sprintf("unknown:%d", s.Kind)
	}
}

// Validate rejects structurally invalid sources. LiquidityAlliance is
// intentionally unsupported; its settlement semantics are undefined.
func (s Source) Validate() error {
	switch s.Kind {
	case SourceClaimStakingRewards:
		return nil
	case SourceAstroRewards:
		if len(s.LpTokens) == 0 {
			return fmt.Errorf("ampz: astro rewards source needs at least one lp token")
		}
		return nil
	case SourceWalletBalance:
		if s.MinBalance == nil || s.MinBalance.Sign() <= 0 {
			return fmt.Errorf("ampz: wallet source needs a positive minimum balance")
		}
		return nil
	case SourceClaimContract:
		if s.Contract.IsZero() || s.Action == "" {
			return fmt.Errorf("ampz: contract source needs a contract and action")
		}
		return nil
	case SourceLiquidityAlliance:
		return fmt.Errorf("%w: liquidity alliance source", ErrNotSupported)
	default:
		return fmt.Errorf("ampz: unknown source kind %d", s.Kind)
	}
}

// DestinationKind discriminates the tagged destination variants.
type DestinationKind uint8

const (
	DestinationDepositHub DestinationKind = iota
	DestinationDepositFarm
	DestinationSwapTo
	DestinationRepay
	DestinationLiquidityAlliance
)

// Destination describes where an execution's processed funds go.
type Destination struct {
	Kind DestinationKind
	// Farm for DestinationDepositFarm.
	Farm types.Address
	// Asset for DestinationSwapTo.
	Asset types.Asset
	// Market for DestinationRepay.
	Market types.Address
	// Receiver overrides the execution's user as the beneficiary where the
	// variant supports it.
	Receiver *types.Address
}

// Validate rejects structurally invalid destinations. LiquidityAlliance is
// intentionally unsupported.
func (d Destination) Validate() error {
	switch d.Kind {
	case DestinationDepositHub:
		return nil
	case DestinationDepositFarm:
		if d.Farm.IsZero() {
			return fmt.Errorf("ampz: farm destination needs a farm address")
		}
		return nil
	case DestinationSwapTo:
		return nil
	case DestinationRepay:
		if d.Market.IsZero() {
			return fmt.Errorf("ampz: repay destination needs a market address")
		}
		return nil
	case DestinationLiquidityAlliance:
		return fmt.Errorf("%w: liquidity alliance destination", ErrNotSupported)
	default:
		return fmt.Errorf("ampz: unknown destination kind %d", d.Kind)
	}
}

// Schedule controls when an execution becomes eligible.
type Schedule struct {
	IntervalSeconds uint64
	// Start delays the first run; when nil the first run is immediately
	// eligible.
	Start *uint64
}

// Validate checks the schedule invariants.
func (s Schedule) Validate() error {
	if s.IntervalSeconds == 0 {
		return fmt.Errorf("ampz: schedule interval must be positive")
	}
	return nil
}

// Execution is one recurring user-defined automation.
type Execution struct {
	ID          uint64
	User        types.Address
	Source      Source
	Destination Destination
	Schedule    Schedule
}

// ExecutionState pairs an execution with its scheduling cursor.
type ExecutionState struct {
	Execution     Execution
	LastExecution uint64
}

// CanExecute reports eligibility: the interval has elapsed, or the caller is
// the execution's own user forcing an off-schedule run.
func (s ExecutionState) CanExecute(now uint64, executor types.Address) bool {
	if executor == s.Execution.User {
		return true
	}
	return now >= s.LastExecution+s.Execution.Schedule.IntervalSeconds
}
