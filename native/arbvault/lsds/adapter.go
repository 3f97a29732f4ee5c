package lsds

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

var (
	errNilClient      = errors.New("lsds: adapter client not configured")
	errKindMismatch   = errors.New("lsds: adapter kind does not match client model")
	errAmountRequired = errors.New("lsds: unbond amount must be positive")
)

// Adapter is a uniform capability surface over one external LSD protocol.
// Query results are memoized for the lifetime of the adapter instance, which
// is scoped to a single engine call chain: repeated reads inside one
// transaction see one consistent snapshot and cost one remote query each.
type Adapter struct {
	Name     string
	Kind     Kind
	Contract types.Address
	Token    types.Asset
	Disabled bool

	batch   BatchClient
	history HistoryClient

	cachedUnbonding    *big.Int
	cachedWithdrawable *big.Int
	cachedFactor       *decimal.Decimal
}

// NewBatchAdapter builds an adapter for a batch-model protocol. Kind must be
// one of Eris, Steak or Stader.
func NewBatchAdapter(name string, kind Kind, contract types.Address, token types.Asset, client BatchClient) (*Adapter, error) {
	if kind == KindPrism {
		return nil, errKindMismatch
	}
	if client == nil {
		return nil, errNilClient
	}
	return &Adapter{Name: name, Kind: kind, Contract: contract, Token: token, batch: client}, nil
}

// NewPrismAdapter builds an adapter for the history-model Prism protocol.
func NewPrismAdapter(name string, contract types.Address, token types.Asset, client HistoryClient) (*Adapter, error) {
	if client == nil {
		return nil, errNilClient
	}
	return &Adapter{Name: name, Kind: KindPrism, Contract: contract, Token: token, history: client}, nil
}

// Asset returns the LSD token this adapter manages.
func (a *Adapter) Asset() types.Asset { return a.Token }

// Unbond produces the messages that start unbonding the given amount of the
// adapter's token with the remote protocol.
func (a *Adapter) Unbond(amount *big.Int) ([]types.Message, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errAmountRequired
	}
	return []types.Message{types.ExecuteContract{
		Contract: a.Contract,
		Action:   "unbond",
		Funds:    []types.Coin{types.NewCoin(a.Token, amount)},
	}}, nil
}

// Withdraw produces the messages that claim every released unbonding from the
// remote protocol.
func (a *Adapter) Withdraw() []types.Message {
	return []types.Message{types.ExecuteContract{
		Contract: a.Contract,
		Action:   "withdraw_unbonded",
	}}
}

// QueryUnbonding returns the utoken value still unbonding with the remote
// protocol for the given holder.
func (a *Adapter) QueryUnbonding(user types.Address) (*big.Int, error) {
	if a.cachedUnbonding != nil {
		return new(big.Int).Set(a.cachedUnbonding), nil
	}
	var total *big.Int
	var err error
	switch a.Kind {
	case KindPrism:
		err = a.loadHistory(user)
		if err == nil {
			return new(big.Int).Set(a.cachedUnbonding), nil
		}
	default:
		total, err = a.sumPendingBatches(user)
	}
	if err != nil {
		return nil, fmt.Errorf("lsd %s: query unbonding: %w", a.Name, err)
	}
	a.cachedUnbonding = new(big.Int).Set(total)
	return total, nil
}

// QueryWithdrawable returns the utoken amount already released and claimable.
func (a *Adapter) QueryWithdrawable(user types.Address) (*big.Int, error) {
	if a.cachedWithdrawable != nil {
		return new(big.Int).Set(a.cachedWithdrawable), nil
	}
	var total *big.Int
	var err error
	switch a.Kind {
	case KindPrism:
		err = a.loadHistory(user)
		if err == nil {
			return new(big.Int).Set(a.cachedWithdrawable), nil
		}
	default:
		if a.batch == nil {
			return nil, errNilClient
		}
		total, err = a.batch.Withdrawable(user)
	}
	if err != nil {
		return nil, fmt.Errorf("lsd %s: query withdrawable: %w", a.Name, err)
	}
	if total == nil {
		total = big.NewInt(0)
	}
	a.cachedWithdrawable = new(big.Int).Set(total)
	return new(big.Int).Set(total), nil
}

// loadHistory walks the request history once and fills both caches from the
// same snapshot. Unbonding and withdrawable share the walk so a request that
// releases mid-transaction can never be counted in both buckets.
func (a *Adapter) loadHistory(user types.Address) error {
	unbonding, released, err := a.classifyHistory(user)
	if err != nil {
		return err
	}
	a.cachedUnbonding = new(big.Int).Set(unbonding)
	a.cachedWithdrawable = new(big.Int).Set(released)
	return nil
}

// QueryFactor returns the remote protocol's current token-per-share exchange
// factor.
func (a *Adapter) QueryFactor() (decimal.Decimal, error) {
	if a.cachedFactor != nil {
		return *a.cachedFactor, nil
	}
	var factor decimal.Decimal
	var err error
	switch a.Kind {
	case KindPrism:
		if a.history == nil {
			return decimal.Zero, errNilClient
		}
		factor, err = a.history.ExchangeRate()
	default:
		if a.batch == nil {
			return decimal.Zero, errNilClient
		}
		factor, err = a.batch.ExchangeRate()
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lsd %s: query exchange rate: %w", a.Name, err)
	}
	a.cachedFactor = &factor
	return factor, nil
}

// ResetCache forgets memoized query results. The engine calls this at the
// start of every call chain; caches never survive a hop boundary.
func (a *Adapter) ResetCache() {
	a.cachedUnbonding = nil
	a.cachedWithdrawable = nil
	a.cachedFactor = nil
}

func (a *Adapter) sumPendingBatches(user types.Address) (*big.Int, error) {
	if a.batch == nil {
		return nil, errNilClient
	}
	batches, err := a.batch.PendingBatches(user)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, b := range batches {
		if b.Reconciled {
			if b.TokenAmount != nil {
				total.Add(total, b.TokenAmount)
			}
			continue
		}
		if b.Shares == nil {
			continue
		}
		value := decimal.NewFromBigInt(b.Shares, 0).Mul(b.RateAtRequest)
		total.Add(total, value.BigInt())
	}
	return total, nil
}

// classifyHistory walks the user's unbond request ids and splits them into
// still-unbonding and released totals.
func (a *Adapter) classifyHistory(user types.Address) (unbonding, released *big.Int, err error) {
	if a.history == nil {
		return nil, nil, errNilClient
	}
	ids, err := a.history.UnbondRequestIDs(user)
	if err != nil {
		return nil, nil, err
	}
	unbonding = big.NewInt(0)
	released = big.NewInt(0)
	for _, id := range ids {
		status, err := a.history.UnbondRequest(id)
		if err != nil {
			return nil, nil, fmt.Errorf("request %d: %w", id, err)
		}
		if status.Amount == nil {
			continue
		}
		if status.Released {
			released.Add(released, status.Amount)
		} else {
			unbonding.Add(unbonding, status.Amount)
		}
	}
	return unbonding, released, nil
}
