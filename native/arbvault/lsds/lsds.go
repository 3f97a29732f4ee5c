package lsds

import (
	"math/big"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Kind identifies one of the supported liquid-staking-derivative protocols.
// The set is closed: dispatch happens via switch, not dynamic registration.
type Kind uint8

const (
	KindEris Kind = iota
	KindSteak
	KindStader
	KindPrism
)

func (k Kind) String() string {
	switch k {
	case KindEris:
		return "eris"
	case KindSteak:
		return "steak"
	case KindStader:
		return "stader"
	case KindPrism:
		return "prism"
	default:
		return "unknown"
	}
}

// RemoteBatch mirrors a remote protocol's per-user unbonding batch. Batch
// protocols (Eris, Steak, Stader) expose discrete batches: unreconciled ones
// are valued at the exchange rate recorded when the batch was submitted,
// reconciled ones carry a fixed token amount.
type RemoteBatch struct {
	ID            uint64
	Shares        *big.Int
	RateAtRequest decimal.Decimal
	Reconciled    bool
	TokenAmount   *big.Int
}

// BatchClient queries a batch-model LSD protocol on behalf of the vault.
type BatchClient interface {
	ExchangeRate() (decimal.Decimal, error)
	Withdrawable(user types.Address) (*big.Int, error)
	PendingBatches(user types.Address) ([]RemoteBatch, error)
}

// RequestStatus classifies a single unbond request in a history-model
// protocol: released requests are withdrawable, unreleased ones are still
// unbonding.
type RequestStatus struct {
	Released bool
	Amount   *big.Int
}

// HistoryClient queries a history-model LSD protocol (Prism). There is no
// aggregate unbonding query; each request id must be classified through the
// request history.
type HistoryClient interface {
	ExchangeRate() (decimal.Decimal, error)
	UnbondRequestIDs(user types.Address) ([]uint64, error)
	UnbondRequest(id uint64) (RequestStatus, error)
}
