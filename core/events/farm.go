package events

import (
	"math/big"

	"amplifier/core/types"
)

const (
	TypeFarmDeposited  = "farm.deposited"
	TypeFarmWithdrawn  = "farm.withdrawn"
	TypeFarmCompounded = "farm.compounded"
)

// FarmDeposited records LP tokens staked for shares.
type FarmDeposited struct {
	User   types.Address
	Amount *big.Int
	Shares *big.Int
}

func (FarmDeposited) EventType() string { return TypeFarmDeposited }

func (e FarmDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmDeposited,
		Attributes: map[string]string{
			"user":   e.User.Hex(),
			"amount": formatAmount(e.Amount),
			"shares": formatAmount(e.Shares),
		},
	}
}

// FarmWithdrawn records shares redeemed for LP tokens.
type FarmWithdrawn struct {
	User   types.Address
	Amount *big.Int
	Shares *big.Int
}

func (FarmWithdrawn) EventType() string { return TypeFarmWithdrawn }

func (e FarmWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeFarmWithdrawn,
		Attributes: map[string]string{
			"user":   e.User.Hex(),
			"amount": formatAmount(e.Amount),
			"shares": formatAmount(e.Shares),
		},
	}
}

// FarmCompounded records one compound round: rewards swapped into LP and
// restaked.
type FarmCompounded struct {
	Rewards   []types.Coin
	Fee       *big.Int
	LpMinimum *big.Int
}

func (FarmCompounded) EventType() string { return TypeFarmCompounded }

func (e FarmCompounded) Event() *types.Event {
	attrs := map[string]string{
		"fee":       formatAmount(e.Fee),
		"lpMinimum": formatAmount(e.LpMinimum),
	}
	for _, coin := range e.Rewards {
		attrs["reward:"+coin.Asset.ID()] = formatAmount(coin.Amount)
	}
	return &types.Event{Type: TypeFarmCompounded, Attributes: attrs}
}
