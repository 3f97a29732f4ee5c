package events

import (
	"math/big"
	"strconv"

	"amplifier/core/types"
)

const (
	TypeHubBonded           = "hub.bonded"
	TypeHubUnbondQueued     = "hub.unbond_queued"
	TypeHubBatchSubmitted   = "hub.batch_submitted"
	TypeHubBatchReconciled  = "hub.batch_reconciled"
	TypeHubUnbondWithdrawn  = "hub.unbond_withdrawn"
	TypeHubRewardsHarvested = "hub.rewards_harvested"
)

// HubBonded records a deposit of native stake against minted shares.
type HubBonded struct {
	User   types.Address
	Amount *big.Int
	Shares *big.Int
}

func (HubBonded) EventType() string { return TypeHubBonded }

func (e HubBonded) Event() *types.Event {
	return &types.Event{
		Type: TypeHubBonded,
		Attributes: map[string]string{
			"user":   e.User.Hex(),
			"amount": formatAmount(e.Amount),
			"shares": formatAmount(e.Shares),
		},
	}
}

// HubUnbondQueued records shares queued into the open pending batch.
type HubUnbondQueued struct {
	User    types.Address
	BatchID uint64
	Shares  *big.Int
}

func (HubUnbondQueued) EventType() string { return TypeHubUnbondQueued }

func (e HubUnbondQueued) Event() *types.Event {
	return &types.Event{
		Type: TypeHubUnbondQueued,
		Attributes: map[string]string{
			"user":    e.User.Hex(),
			"batchId": strconv.FormatUint(e.BatchID, 10),
			"shares":  formatAmount(e.Shares),
		},
	}
}

// HubBatchSubmitted marks the sealing of a pending batch at the epoch
// boundary.
type HubBatchSubmitted struct {
	BatchID          uint64
	TotalShares      *big.Int
	UtokenUnbonding  *big.Int
	EstUnbondEndTime uint64
}

func (HubBatchSubmitted) EventType() string { return TypeHubBatchSubmitted }

func (e HubBatchSubmitted) Event() *types.Event {
	return &types.Event{
		Type: TypeHubBatchSubmitted,
		Attributes: map[string]string{
			"batchId":          strconv.FormatUint(e.BatchID, 10),
			"totalShares":      formatAmount(e.TotalShares),
			"utokenUnbonding":  formatAmount(e.UtokenUnbonding),
			"estUnbondEndTime": formatUint(e.EstUnbondEndTime),
		},
	}
}

// HubBatchReconciled marks the arrival of a batch's undelegated funds.
type HubBatchReconciled struct {
	BatchID  uint64
	Reserved *big.Int
}

func (HubBatchReconciled) EventType() string { return TypeHubBatchReconciled }

func (e HubBatchReconciled) Event() *types.Event {
	return &types.Event{
		Type: TypeHubBatchReconciled,
		Attributes: map[string]string{
			"batchId":  strconv.FormatUint(e.BatchID, 10),
			"reserved": formatAmount(e.Reserved),
		},
	}
}

// HubUnbondWithdrawn records a user claiming settled unbond requests.
type HubUnbondWithdrawn struct {
	User   types.Address
	Amount *big.Int
}

func (HubUnbondWithdrawn) EventType() string { return TypeHubUnbondWithdrawn }

func (e HubUnbondWithdrawn) Event() *types.Event {
	return &types.Event{
		Type: TypeHubUnbondWithdrawn,
		Attributes: map[string]string{
			"user":   e.User.Hex(),
			"amount": formatAmount(e.Amount),
		},
	}
}

// HubRewardsHarvested records a harvest crank restaking accrued rewards.
type HubRewardsHarvested struct {
	Restaked *big.Int
}

func (HubRewardsHarvested) EventType() string { return TypeHubRewardsHarvested }

func (e HubRewardsHarvested) Event() *types.Event {
	return &types.Event{
		Type: TypeHubRewardsHarvested,
		Attributes: map[string]string{
			"restaked": formatAmount(e.Restaked),
		},
	}
}
