package bank

import (
	"errors"
	"fmt"
	"math/big"

	"amplifier/core/types"
)

var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrInsufficientStake = errors.New("bank: insufficient delegated stake")
	ErrAmountRequired    = errors.New("bank: amount must be positive")
)

// Storage abstracts the subset of state-store functionality required by the
// ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	balancePrefix = []byte("bank/balance/")
	supplyPrefix  = []byte("bank/supply/")
	stakedPrefix  = []byte("bank/staked/")
)

func balanceKey(addr types.Address, asset types.Asset) []byte {
	id := asset.ID()
	buf := make([]byte, 0, len(balancePrefix)+len(id)+1+len(addr))
	buf = append(buf, balancePrefix...)
	buf = append(buf, id...)
	buf = append(buf, '/')
	buf = append(buf, addr[:]...)
	return buf
}

func supplyKey(asset types.Asset) []byte {
	return append(append([]byte{}, supplyPrefix...), asset.ID()...)
}

func stakedKey(delegator types.Address) []byte {
	return append(append([]byte{}, stakedPrefix...), delegator[:]...)
}

// Ledger is the embedded token and delegation book. It backs the engines'
// balance views when the daemon runs self-contained, and it applies the
// bank and staking messages the engines emit.
type Ledger struct {
	kv Storage
}

// NewLedger wraps the provided storage backend.
func NewLedger(kv Storage) *Ledger {
	return &Ledger{kv: kv}
}

func (l *Ledger) readAmount(key []byte) (*big.Int, error) {
	var stored string
	found, err := l.kv.KVGet(key, &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(stored, 10)
	if !ok {
		return nil, fmt.Errorf("bank: corrupt amount %q", stored)
	}
	return amount, nil
}

func (l *Ledger) writeAmount(key []byte, amount *big.Int) error {
	if amount.Sign() == 0 {
		return l.kv.KVDelete(key)
	}
	return l.kv.KVPut(key, amount.String())
}

func (l *Ledger) adjust(key []byte, delta *big.Int, underflow error) error {
	current, err := l.readAmount(key)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return underflow
	}
	return l.writeAmount(key, next)
}

// BalanceOf returns the liquid balance the address holds in the asset.
func (l *Ledger) BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error) {
	return l.readAmount(balanceKey(addr, asset))
}

// Supply returns the total minted supply of the asset.
func (l *Ledger) Supply(asset types.Asset) (*big.Int, error) {
	return l.readAmount(supplyKey(asset))
}

// TotalDelegated returns the delegator's aggregate bonded stake across all
// validators.
func (l *Ledger) TotalDelegated(delegator types.Address) (*big.Int, error) {
	return l.readAmount(stakedKey(delegator))
}

// Mint credits the coin to the recipient and grows the asset supply.
func (l *Ledger) Mint(to types.Address, coin types.Coin) error {
	if coin.Amount == nil || coin.Amount.Sign() <= 0 {
		return ErrAmountRequired
	}
	if err := l.adjust(balanceKey(to, coin.Asset), coin.Amount, ErrInsufficientFunds); err != nil {
		return err
	}
	return l.adjust(supplyKey(coin.Asset), coin.Amount, ErrInsufficientFunds)
}

// Burn debits the coin from the holder and shrinks the asset supply.
func (l *Ledger) Burn(from types.Address, coin types.Coin) error {
	if coin.Amount == nil || coin.Amount.Sign() <= 0 {
		return ErrAmountRequired
	}
	neg := new(big.Int).Neg(coin.Amount)
	if err := l.adjust(balanceKey(from, coin.Asset), neg, ErrInsufficientFunds); err != nil {
		return err
	}
	return l.adjust(supplyKey(coin.Asset), neg, ErrInsufficientFunds)
}

// Move transfers the coin between two accounts.
func (l *Ledger) Move(from, to types.Address, coin types.Coin) error {
	if coin.Amount == nil || coin.Amount.Sign() <= 0 {
		return ErrAmountRequired
	}
	neg := new(big.Int).Neg(coin.Amount)
	if err := l.adjust(balanceKey(from, coin.Asset), neg, ErrInsufficientFunds); err != nil {
		return err
	}
	return l.adjust(balanceKey(to, coin.Asset), coin.Amount, ErrInsufficientFunds)
}

// Delegate moves liquid stake into the delegator's bonded tally.
func (l *Ledger) Delegate(delegator types.Address, asset types.Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountRequired
	}
	neg := new(big.Int).Neg(amount)
	if err := l.adjust(balanceKey(delegator, asset), neg, ErrInsufficientFunds); err != nil {
		return err
	}
	return l.adjust(stakedKey(delegator), amount, ErrInsufficientStake)
}

// Undelegate releases bonded stake back into the delegator's liquid balance.
// The embedded book credits immediately; time gating stays with the modules
// that track unbond batches.
func (l *Ledger) Undelegate(delegator types.Address, asset types.Asset, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrAmountRequired
	}
	neg := new(big.Int).Neg(amount)
	if err := l.adjust(stakedKey(delegator), neg, ErrInsufficientStake); err != nil {
		return err
	}
	return l.adjust(balanceKey(delegator, asset), amount, ErrInsufficientFunds)
}

// Context carries the per-contract conventions Apply needs: which token the
// bare mint/burn messages refer to and which denom the staking messages bond.
type Context struct {
	ShareAsset types.Asset
	StakeAsset types.Asset
}

// Apply settles the bank and staking effects of an engine's outbound
// messages against the embedded book. Contract executions move their
// attached funds to the target; callback redelivery is the host loop's job,
// not the ledger's.
func (l *Ledger) Apply(sender types.Address, ctx Context, msgs []types.Message) error {
	for _, msg := range msgs {
		var err error
		switch m := msg.(type) {
		case types.Transfer:
			err = l.Move(sender, m.To, m.Coin)
		case types.TransferFrom:
			err = l.Move(m.From, m.To, m.Coin)
		case types.MintShares:
			err = l.Mint(m.To, types.NewCoin(ctx.ShareAsset, m.Amount))
		case types.BurnShares:
			err = l.Burn(sender, types.NewCoin(ctx.ShareAsset, m.Amount))
		case types.Delegate:
			err = l.Delegate(sender, ctx.StakeAsset, m.Amount)
		case types.Undelegate:
			err = l.Undelegate(sender, ctx.StakeAsset, m.Amount)
		case types.ExecuteContract:
			for _, coin := range m.Funds {
				if err = l.Move(sender, m.Contract, coin); err != nil {
					break
				}
			}
		case types.WithdrawRewards, types.Callback:
			// Reward accrual and callback redelivery are host concerns.
		default:
			err = fmt.Errorf("bank: unhandled message type %s", msg.MessageType())
		}
		if err != nil {
			return err
		}
	}
	return nil
}
