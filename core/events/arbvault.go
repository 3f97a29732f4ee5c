package events

import (
	"math/big"
	"strconv"

	"amplifier/core/types"
)

const (
	TypeArbOpened         = "arbvault.opened"
	TypeArbSettled        = "arbvault.settled"
	TypeVaultDeposited    = "arbvault.deposited"
	TypeWithdrawRequested = "arbvault.withdraw_requested"
	TypeWithdrawClaimed   = "arbvault.withdraw_claimed"
)

// ArbOpened marks phase one of an arbitrage round: the checkpoint is written
// and funds are handed to the strategy.
type ArbOpened struct {
	Executor     types.Address
	Amount       *big.Int
	WantedProfit string
}

func (ArbOpened) EventType() string { return TypeArbOpened }

func (e ArbOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeArbOpened,
		Attributes: map[string]string{
			"executor":     e.Executor.Hex(),
			"amount":       formatAmount(e.Amount),
			"wantedProfit": e.WantedProfit,
		},
	}
}

// ArbSettled marks phase two: profit asserted, fee charged, lock released.
type ArbSettled struct {
	Profit       *big.Int
	ProfitPct    string
	FeeAmount    *big.Int
	FeeAsset     string
	UsedBalance  *big.Int
	WantedProfit string
}

func (ArbSettled) EventType() string { return TypeArbSettled }

func (e ArbSettled) Event() *types.Event {
	return &types.Event{
		Type: TypeArbSettled,
		Attributes: map[string]string{
			"profit":       formatAmount(e.Profit),
			"profitPct":    e.ProfitPct,
			"feeAmount":    formatAmount(e.FeeAmount),
			"feeAsset":     e.FeeAsset,
			"usedBalance":  formatAmount(e.UsedBalance),
			"wantedProfit": e.WantedProfit,
		},
	}
}

// VaultDeposited records an LP share mint against a utoken deposit.
type VaultDeposited struct {
	User   types.Address
	Amount *big.Int
	Shares *big.Int
}

func (VaultDeposited) EventType() string { return TypeVaultDeposited }

func (e VaultDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeVaultDeposited,
		Attributes: map[string]string{
			"user":   e.User.Hex(),
			"amount": formatAmount(e.Amount),
			"shares": formatAmount(e.Shares),
		},
	}
}

// WithdrawRequested records a new unbond ledger entry.
type WithdrawRequested struct {
	User        types.Address
	ID          uint64
	Amount      *big.Int
	ReleaseTime uint64
}

func (WithdrawRequested) EventType() string { return TypeWithdrawRequested }

func (e WithdrawRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawRequested,
		Attributes: map[string]string{
			"user":        e.User.Hex(),
			"id":          strconv.FormatUint(e.ID, 10),
			"amount":      formatAmount(e.Amount),
			"releaseTime": strconv.FormatUint(e.ReleaseTime, 10),
		},
	}
}

// WithdrawClaimed records settlement of an unbond ledger entry.
type WithdrawClaimed struct {
	User        types.Address
	ID          uint64
	Payout      *big.Int
	PoolFee     *big.Int
	ProtocolFee *big.Int
}

func (WithdrawClaimed) EventType() string { return TypeWithdrawClaimed }

func (e WithdrawClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeWithdrawClaimed,
		Attributes: map[string]string{
			"user":        e.User.Hex(),
			"id":          strconv.FormatUint(e.ID, 10),
			"payout":      formatAmount(e.Payout),
			"poolFee":     formatAmount(e.PoolFee),
			"protocolFee": formatAmount(e.ProtocolFee),
		},
	}
}
