package farm

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"amplifier/core/events"
	"amplifier/core/types"
)

// TokenLedger is the farm's read-only view onto the fungible-token ledger.
type TokenLedger interface {
	BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error)
}

// SwapProxy is the swap/compounding oracle. The farm never inspects its
// routing; it only checks support and asks for estimates before handing the
// reward coins over.
type SwapProxy interface {
	SupportsSwap(from, to types.Asset) (bool, error)
	SimulateSwap(from types.Coin, to types.Asset) (*big.Int, error)
}

// Engine implements the compounding farm: share-based LP staking plus a
// permissionless compound crank that swaps accrued rewards back into LP.
type Engine struct {
	store   *Store
	ledger  TokenLedger
	proxy   SwapProxy
	emitter events.Emitter
	self    types.Address
}

// NewEngine wires the farm engine. The emitter defaults to a no-op.
func NewEngine(store *Store, ledger TokenLedger, proxy SwapProxy, self types.Address) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		proxy:   proxy,
		emitter: events.NoopEmitter{},
		self:    self,
	}
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Deposit stakes LP tokens that arrived with the call and credits shares at
// the current share value. The pool balance is read net of the incoming
// amount since the host credits funds before execution.
func (e *Engine) Deposit(sender types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("farm: deposit amount must be positive")
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return err
	}
	balance, err := e.ledger.BalanceOf(e.self, cfg.LpToken)
	if err != nil {
		return fmt.Errorf("farm: query lp balance: %w", err)
	}
	poolBefore := new(big.Int).Sub(balance, amount)
	if poolBefore.Sign() < 0 {
		return fmt.Errorf("farm: deposit exceeds credited balance")
	}
	totalShares, err := e.store.TotalShares()
	if err != nil {
		return err
	}

	var shares *big.Int
	if totalShares.Sign() == 0 || poolBefore.Sign() == 0 {
		shares = new(big.Int).Set(amount)
	} else {
		shares = new(big.Int).Mul(amount, totalShares)
		shares.Div(shares, poolBefore)
	}
	if shares.Sign() == 0 {
		return fmt.Errorf("farm: deposit too small for current share value")
	}

	stake, err := e.store.Stake(sender)
	if err != nil {
		return err
	}
	if err := e.store.SetStake(sender, new(big.Int).Add(stake, shares)); err != nil {
		return err
	}
	if err := e.store.SetTotalShares(new(big.Int).Add(totalShares, shares)); err != nil {
		return err
	}

	e.emitter.Emit(events.FarmDeposited{User: sender, Amount: amount, Shares: shares})
	return nil
}

// Withdraw redeems shares for the proportional slice of the LP pool.
func (e *Engine) Withdraw(sender types.Address, shares *big.Int) ([]types.Message, error) {
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrZeroShares
	}
	stake, err := e.store.Stake(sender)
	if err != nil {
		return nil, err
	}
	if stake.Cmp(shares) < 0 {
		return nil, fmt.Errorf("%w: have %s, want %s", ErrInsufficientStake, stake, shares)
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	pool, err := e.ledger.BalanceOf(e.self, cfg.LpToken)
	if err != nil {
		return nil, fmt.Errorf("farm: query lp balance: %w", err)
	}
	totalShares, err := e.store.TotalShares()
	if err != nil {
		return nil, err
	}

	amount := new(big.Int).Mul(shares, pool)
	amount.Div(amount, totalShares)
	if err := e.store.SetStake(sender, new(big.Int).Sub(stake, shares)); err != nil {
		return nil, err
	}
	if err := e.store.SetTotalShares(new(big.Int).Sub(totalShares, shares)); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.FarmWithdrawn{User: sender, Amount: amount, Shares: shares})
	return []types.Message{
		types.Transfer{To: sender, Coin: types.NewCoin(cfg.LpToken, amount)},
	}, nil
}

// Compound skims the performance fee from accrued rewards and hands the rest
// to the swap proxy to turn into LP. Permissionless crank.
func (e *Engine) Compound() ([]types.Message, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}

	var rewards []types.Coin
	for _, asset := range cfg.RewardAssets {
		balance, err := e.ledger.BalanceOf(e.self, asset)
		if err != nil {
			return nil, fmt.Errorf("farm: query reward %s: %w", asset.ID(), err)
		}
		if balance.Sign() > 0 {
			rewards = append(rewards, types.NewCoin(asset, balance))
		}
	}
	if len(rewards) == 0 {
		return nil, ErrNothingToCompound
	}

	var msgs []types.Message
	totalFee := big.NewInt(0)
	funds := make([]types.Coin, 0, len(rewards))
	minReceived := big.NewInt(0)
	for _, coin := range rewards {
		supported, err := e.proxy.SupportsSwap(coin.Asset, cfg.LpToken)
		if err != nil {
			return nil, fmt.Errorf("farm: probe swap %s: %w", coin.Asset.ID(), err)
		}
		if !supported {
			return nil, fmt.Errorf("%w: %s -> %s", ErrSwapNotSupported, coin.Asset.ID(), cfg.LpToken.ID())
		}

		net := coin.Amount
		if cfg.PerformanceFee.IsPositive() {
			fee := mulDec(coin.Amount, cfg.PerformanceFee)
			if fee.Sign() > 0 {
				msgs = append(msgs, types.Transfer{
					To:   cfg.FeeReceiver,
					Coin: types.NewCoin(coin.Asset, fee),
				})
				totalFee.Add(totalFee, fee)
				net = new(big.Int).Sub(coin.Amount, fee)
			}
		}
		if net.Sign() == 0 {
			continue
		}
		estimate, err := e.proxy.SimulateSwap(types.NewCoin(coin.Asset, net), cfg.LpToken)
		if err != nil {
			return nil, fmt.Errorf("farm: simulate swap %s: %w", coin.Asset.ID(), err)
		}
		minReceived.Add(minReceived, estimate)
		funds = append(funds, types.NewCoin(coin.Asset, net))
	}
	if len(funds) == 0 {
		return nil, ErrNothingToCompound
	}

	msgs = append(msgs, types.ExecuteContract{
		Contract: cfg.Zapper,
		Action:   "compound:min_received:" + minReceived.String(),
		Funds:    funds,
	})

	e.emitter.Emit(events.FarmCompounded{Rewards: rewards, Fee: totalFee, LpMinimum: minReceived})
	return msgs, nil
}

// StakeOf reports a user's shares and their current LP value.
func (e *Engine) StakeOf(user types.Address) (shares, value *big.Int, err error) {
	shares, err = e.store.Stake(user)
	if err != nil {
		return nil, nil, err
	}
	totalShares, err := e.store.TotalShares()
	if err != nil {
		return nil, nil, err
	}
	if totalShares.Sign() == 0 {
		return shares, big.NewInt(0), nil
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, nil, err
	}
	pool, err := e.ledger.BalanceOf(e.self, cfg.LpToken)
	if err != nil {
		return nil, nil, fmt.Errorf("farm: query lp balance: %w", err)
	}
	value = new(big.Int).Mul(shares, pool)
	value.Div(value, totalShares)
	return shares, value, nil
}

// UpdateConfig replaces the farm configuration. Owner only.
func (e *Engine) UpdateConfig(sender types.Address, cfg Config) error {
	owner, err := e.store.GetOwner()
	if err != nil {
		return err
	}
	if owner != sender {
		return fmt.Errorf("%w: sender %s is not owner", ErrUnauthorized, sender)
	}
	return e.store.SetConfig(cfg)
}

func mulDec(amount *big.Int, rate decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(amount, 0).Mul(rate).Floor().BigInt()
}
