package arbvault

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"amplifier/core/events"
	"amplifier/core/types"
	"amplifier/native/arbvault/lsds"
)

// TokenLedger is the vault's read-only view onto the fungible-token ledger.
// Mutations go out as messages; the ledger itself stays opaque.
type TokenLedger interface {
	BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error)
	Supply(asset types.Asset) (*big.Int, error)
}

// Engine implements the vault: the balance/takeable engine, the two-phase
// arbitrage round, and the user unbond/withdrawal ledger.
type Engine struct {
	store   *Store
	group   *lsds.Group
	ledger  TokenLedger
	emitter events.Emitter
	self    types.Address
	nowFn   func() int64
}

// NewEngine wires the vault engine. The emitter defaults to a no-op.
func NewEngine(store *Store, group *lsds.Group, ledger TokenLedger, self types.Address) *Engine {
	return &Engine{
		store:   store,
		group:   group,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		self:    self,
		nowFn:   func() int64 { return time.Now().Unix() },
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

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) requireOwner(sender types.Address) error {
	owner, err := e.store.GetOwner()
	if err != nil {
		return err
	}
	if owner != sender {
		return fmt.Errorf("%w: sender %s is not owner", ErrUnauthorized, sender)
	}
	return nil
}

// Balances recomputes the derived balance snapshot from scratch: adapter
// queries plus the persisted locked counter. Top-level entry point; resets
// the adapter caches first so the snapshot is fresh for this call chain.
func (e *Engine) Balances() (Balances, error) {
	e.group.ResetCaches()
	return e.currentBalances()
}

// currentBalances computes the snapshot without resetting adapter caches.
// Within one call chain repeated reads see one consistent view.
func (e *Engine) currentBalances() (Balances, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return Balances{}, err
	}
	available, err := e.ledger.BalanceOf(e.self, types.NativeAsset(cfg.UtokenDenom))
	if err != nil {
		return Balances{}, fmt.Errorf("%w: vault balance: %v", lsds.ErrCouldNotLoadTotalAssets, err)
	}
	unbonding, err := e.group.TotalUnbonding(e.self)
	if err != nil {
		return Balances{}, err
	}
	withdrawable, err := e.group.TotalWithdrawable(e.self)
	if err != nil {
		return Balances{}, err
	}
	locked, err := e.store.LockedWithdrawals()
	if err != nil {
		return Balances{}, err
	}

	tvl := new(big.Int).Add(available, unbonding)
	tvl.Add(tvl, withdrawable)

	return Balances{
		VaultAvailable:        available,
		LsdUnbonding:          unbonding,
		LsdWithdrawable:       withdrawable,
		TvlUtoken:             tvl,
		VaultTotal:            flooredSub(tvl, locked),
		VaultTakeable:         flooredSub(available, locked),
		LockedUserWithdrawals: locked,
	}, nil
}

// TakeableForProfit evaluates the utilization step function against current
// balances.
func (e *Engine) TakeableForProfit(wantedProfit decimal.Decimal) (*big.Int, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	balances, err := e.Balances()
	if err != nil {
		return nil, err
	}
	return takeableForProfit(cfg, balances, wantedProfit), nil
}

// ExecuteArbitrage opens an arbitrage round: phase one of the two-phase saga.
// It snapshots balances into a checkpoint (whose presence is the re-entrancy
// lock), hands the wanted amount to the strategy, and schedules the
// AssertResult continuation. Nothing settles until the callback hop.
func (e *Engine) ExecuteArbitrage(sender types.Address, wantedAmount *big.Int, wantedProfit decimal.Decimal, resultToken string, strategy []types.Message) ([]types.Message, error) {
	whitelisted, err := e.store.IsWhitelisted(sender)
	if err != nil {
		return nil, err
	}
	if !whitelisted {
		return nil, fmt.Errorf("%w: sender %s not whitelisted for arbitrage", ErrUnauthorized, sender)
	}
	if wantedProfit.LessThan(MinWantedProfit) {
		return nil, fmt.Errorf("%w: wanted %s, minimum %s", ErrProfitTooLow, wantedProfit, MinWantedProfit)
	}
	if wantedAmount == nil || wantedAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: wanted amount must be positive", ErrTakeableExceeded)
	}
	if _, found, err := e.store.GetCheckpoint(); err != nil {
		return nil, err
	} else if found {
		return nil, ErrAlreadyExecuting
	}
	if _, err := e.group.Get(resultToken); err != nil {
		return nil, err
	}

	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	balances, err := e.Balances()
	if err != nil {
		return nil, err
	}
	takeable := takeableForProfit(cfg, balances, wantedProfit)
	if wantedAmount.Cmp(takeable) > 0 {
		return nil, fmt.Errorf("%w: wanted %s, takeable %s at profit %s",
			ErrTakeableExceeded, wantedAmount, takeable, wantedProfit)
	}

	if err := e.store.PutCheckpoint(BalanceCheckpoint{
		VaultAvailable: balances.VaultAvailable,
		TvlUtoken:      balances.TvlUtoken,
	}); err != nil {
		return nil, err
	}

	payload, err := EncodeAssertResult(resultToken, wantedProfit)
	if err != nil {
		return nil, err
	}

	msgs := make([]types.Message, 0, len(strategy)+2)
	msgs = append(msgs, types.Transfer{
		To:   sender,
		Coin: types.NewCoin(types.NativeAsset(cfg.UtokenDenom), wantedAmount),
	})
	msgs = append(msgs, strategy...)
	msgs = append(msgs, types.Callback{Contract: e.self, Payload: payload})

	e.emitter.Emit(events.ArbOpened{
		Executor:     sender,
		Amount:       wantedAmount,
		WantedProfit: wantedProfit.String(),
	})
	return msgs, nil
}

// AssertResult settles an arbitrage round: phase two, reachable only through
// the self-addressed callback. Recomputes balances, asserts the realised
// profit, charges the performance fee, releases the lock and records the
// day's exchange rate.
func (e *Engine) AssertResult(sender types.Address, payload []byte) ([]types.Message, error) {
	if sender != e.self {
		return nil, fmt.Errorf("%w: assert result", ErrCallbackOnly)
	}
	checkpoint, found, err := e.store.GetCheckpoint()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotExecuting
	}
	resultToken, wantedProfit, err := DecodeAssertResult(payload)
	if err != nil {
		return nil, err
	}

	balances, err := e.Balances()
	if err != nil {
		return nil, err
	}

	used, err := checkedSub(checkpoint.VaultAvailable, balances.VaultAvailable)
	if err != nil {
		return nil, fmt.Errorf("%w: vault available grew during round", ErrBalanceUnderflow)
	}
	profit, err := checkedSub(balances.TvlUtoken, checkpoint.TvlUtoken)
	if err != nil {
		return nil, fmt.Errorf("%w: tvl shrank during round", ErrBalanceUnderflow)
	}
	if used.Sign() == 0 {
		return nil, fmt.Errorf("%w: round used no balance", ErrNotEnoughProfit)
	}

	profitPct := decimal.NewFromBigInt(profit, 0).Div(decimal.NewFromBigInt(used, 0))
	floor := wantedProfit.Mul(profitSlippage)
	if profitPct.LessThan(floor) {
		return nil, fmt.Errorf("%w: realised %s, floor %s", ErrNotEnoughProfit, profitPct, floor)
	}
	if balances.VaultAvailable.Cmp(balances.LockedUserWithdrawals) < 0 {
		return nil, ErrLockedFundsEaten
	}

	fees, err := e.store.GetFeeConfig()
	if err != nil {
		return nil, err
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}

	var msgs []types.Message
	feeAmount := mulDec(profit, fees.PerformanceFee)
	feeAsset := types.NativeAsset(cfg.UtokenDenom)
	feePaid := feeAmount
	if feeAmount.Sign() > 0 {
		if balances.VaultTakeable.Cmp(feeAmount) >= 0 {
			msgs = append(msgs, types.Transfer{
				To:   fees.ProtocolFeeReceiver,
				Coin: types.NewCoin(feeAsset, feeAmount),
			})
		} else {
			// The vault is fully deployed; pay the fee in the arbitraged LSD
			// token at its exchange factor instead of blocking settlement.
			adapter, err := e.group.Get(resultToken)
			if err != nil {
				return nil, err
			}
			factor, err := adapter.QueryFactor()
			if err != nil {
				return nil, err
			}
			if factor.IsZero() {
				return nil, fmt.Errorf("lsd %s: zero exchange factor", adapter.Name)
			}
			feeAsset = adapter.Asset()
			feePaid = decimal.NewFromBigInt(feeAmount, 0).Div(factor).BigInt()
			msgs = append(msgs, types.Transfer{
				To:   fees.ProtocolFeeReceiver,
				Coin: types.NewCoin(feeAsset, feePaid),
			})
		}
	}

	if err := e.store.DeleteCheckpoint(); err != nil {
		return nil, err
	}
	if err := e.recordRate(cfg, balances); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.ArbSettled{
		Profit:       profit,
		ProfitPct:    profitPct.String(),
		FeeAmount:    feePaid,
		FeeAsset:     feeAsset.String(),
		UsedBalance:  used,
		WantedProfit: wantedProfit.String(),
	})
	return msgs, nil
}

// ForceReleaseCheckpoint is the administrative escape hatch for a stuck
// round: if the callback hop never arrives the checkpoint would block new
// rounds forever.
func (e *Engine) ForceReleaseCheckpoint(sender types.Address) error {
	if err := e.requireOwner(sender); err != nil {
		return err
	}
	_, found, err := e.store.GetCheckpoint()
	if err != nil {
		return err
	}
	if !found {
		return ErrNotExecuting
	}
	return e.store.DeleteCheckpoint()
}

// Deposit mints LP shares against a utoken deposit at the current share
// value. The host credits deposited funds before execution, so the pre-
// deposit total is reconstructed by subtracting the deposit.
func (e *Engine) Deposit(user types.Address, amount *big.Int) ([]types.Message, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("arbvault: deposit amount must be positive")
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	balances, err := e.Balances()
	if err != nil {
		return nil, err
	}
	supply, err := e.ledger.Supply(cfg.LpToken)
	if err != nil {
		return nil, err
	}

	shares := new(big.Int).Set(amount)
	if supply.Sign() > 0 {
		totalBefore, err := checkedSub(balances.VaultTotal, amount)
		if err != nil || totalBefore.Sign() <= 0 {
			return nil, fmt.Errorf("%w: deposit exceeds recorded total", ErrBalanceUnderflow)
		}
		shares = new(big.Int).Mul(amount, supply)
		shares.Quo(shares, totalBefore)
	}

	e.emitter.Emit(events.VaultDeposited{User: user, Amount: amount, Shares: shares})
	return []types.Message{types.MintShares{To: user, Amount: shares}}, nil
}

// RequestWithdraw burns LP shares and queues a withdrawal: the utoken value
// is added to the locked counter so arbitrage can never consume it, and a
// ledger entry starts its linear pool-fee decay.
func (e *Engine) RequestWithdraw(user types.Address, lpAmount *big.Int) (UnbondHistory, []types.Message, error) {
	if lpAmount == nil || lpAmount.Sign() <= 0 {
		return UnbondHistory{}, nil, fmt.Errorf("arbvault: withdraw shares must be positive")
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return UnbondHistory{}, nil, err
	}
	balances, err := e.Balances()
	if err != nil {
		return UnbondHistory{}, nil, err
	}
	supply, err := e.ledger.Supply(cfg.LpToken)
	if err != nil {
		return UnbondHistory{}, nil, err
	}
	if supply.Sign() == 0 {
		return UnbondHistory{}, nil, ErrZeroShares
	}

	amount := new(big.Int).Mul(lpAmount, balances.VaultTotal)
	amount.Quo(amount, supply)
	if amount.Sign() == 0 {
		return UnbondHistory{}, nil, ErrNothingToWithdraw
	}

	id, err := e.store.NextUnbondID()
	if err != nil {
		return UnbondHistory{}, nil, err
	}
	now := e.now()
	entry := UnbondHistory{
		ID:          id,
		User:        user,
		StartTime:   now,
		ReleaseTime: now + cfg.UnbondTimeSeconds,
		Amount:      amount,
	}
	if err := e.store.PutUnbondHistory(entry); err != nil {
		return UnbondHistory{}, nil, err
	}

	locked, err := e.store.LockedWithdrawals()
	if err != nil {
		return UnbondHistory{}, nil, err
	}
	if err := e.store.SetLockedWithdrawals(new(big.Int).Add(locked, amount)); err != nil {
		return UnbondHistory{}, nil, err
	}

	e.emitter.Emit(events.WithdrawRequested{
		User:        user,
		ID:          id,
		Amount:      amount,
		ReleaseTime: entry.ReleaseTime,
	})
	return entry, []types.Message{types.BurnShares{Amount: lpAmount}}, nil
}

// Claim settles one unbond ledger entry. After the release time only the
// flat protocol withdraw fee applies; before it the caller additionally pays
// the decaying immediate-withdraw fee, which stays in the vault for the
// remaining holders. The locked counter is decremented and the entry deleted.
func (e *Engine) Claim(user types.Address, id uint64) ([]types.Message, error) {
	entry, found, err := e.store.GetUnbondHistory(user, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: user %s id %d", ErrWithdrawNotFound, user, id)
	}

	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	fees, err := e.store.GetFeeConfig()
	if err != nil {
		return nil, err
	}

	now := e.now()
	poolFee := big.NewInt(0)
	if factor := entry.PoolFeeFactor(now); !factor.IsZero() {
		poolFee = mulDec(entry.Amount, factor.Mul(fees.ImmediateWithdrawFee))
	}
	protocolFee := mulDec(entry.Amount, fees.WithdrawFee)

	payout := new(big.Int).Sub(entry.Amount, poolFee)
	payout.Sub(payout, protocolFee)
	if payout.Sign() <= 0 {
		return nil, fmt.Errorf("%w: fees exceed amount", ErrNothingToWithdraw)
	}

	balances, err := e.Balances()
	if err != nil {
		return nil, err
	}
	required := new(big.Int).Add(payout, protocolFee)
	if balances.VaultAvailable.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: need %s, available %s", ErrInsufficientLiquidity, required, balances.VaultAvailable)
	}

	locked, err := e.store.LockedWithdrawals()
	if err != nil {
		return nil, err
	}
	newLocked, err := checkedSub(locked, entry.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: locked counter below entry amount", ErrBalanceUnderflow)
	}
	if err := e.store.SetLockedWithdrawals(newLocked); err != nil {
		return nil, err
	}
	if err := e.store.DeleteUnbondHistory(user, id); err != nil {
		return nil, err
	}

	utoken := types.NativeAsset(cfg.UtokenDenom)
	var msgs []types.Message
	if protocolFee.Sign() > 0 {
		msgs = append(msgs, types.Transfer{To: fees.ProtocolFeeReceiver, Coin: types.NewCoin(utoken, protocolFee)})
	}
	msgs = append(msgs, types.Transfer{To: user, Coin: types.NewCoin(utoken, payout)})

	e.emitter.Emit(events.WithdrawClaimed{
		User:        user,
		ID:          id,
		Payout:      payout,
		PoolFee:     poolFee,
		ProtocolFee: protocolFee,
	})
	return msgs, nil
}

// UnbondLsds is an operator crank: every enabled adapter whose token the
// vault holds gets an unbond instruction for the full balance.
func (e *Engine) UnbondLsds(sender types.Address) ([]types.Message, error) {
	whitelisted, err := e.store.IsWhitelisted(sender)
	if err != nil {
		return nil, err
	}
	if !whitelisted {
		if err := e.requireOwner(sender); err != nil {
			return nil, err
		}
	}
	var msgs []types.Message
	for _, adapter := range e.group.Adapters() {
		if adapter.Disabled {
			continue
		}
		balance, err := e.ledger.BalanceOf(e.self, adapter.Asset())
		if err != nil {
			return nil, fmt.Errorf("lsd %s: balance: %w", adapter.Name, err)
		}
		if balance.Sign() <= 0 {
			continue
		}
		unbond, err := adapter.Unbond(balance)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, unbond...)
	}
	return msgs, nil
}

// WithdrawFromLsds is a permissionless crank claiming every released
// unbonding across the adapter set.
func (e *Engine) WithdrawFromLsds() ([]types.Message, error) {
	e.group.ResetCaches()
	var msgs []types.Message
	for _, adapter := range e.group.Adapters() {
		withdrawable, err := adapter.QueryWithdrawable(e.self)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", lsds.ErrCouldNotLoadTotalAssets, err)
		}
		if withdrawable.Sign() <= 0 {
			continue
		}
		msgs = append(msgs, adapter.Withdraw()...)
	}
	return msgs, nil
}

// UserUnbondHistory lists the caller's pending withdrawals.
func (e *Engine) UserUnbondHistory(user types.Address) ([]UnbondHistory, error) {
	return e.store.UserUnbondHistory(user)
}

// QueryAPR annualises the share-value change across the recorded rate
// history restricted to the trailing window.
func (e *Engine) QueryAPR(windowSeconds uint64) (decimal.Decimal, error) {
	entries, err := e.store.RateHistory()
	if err != nil {
		return decimal.Zero, err
	}
	now := e.now()
	var inWindow []RateEntry
	for _, entry := range entries {
		if windowSeconds == 0 || entry.Time+windowSeconds >= now {
			inWindow = append(inWindow, entry)
		}
	}
	if len(inWindow) < 2 {
		return decimal.Zero, nil
	}
	first, last := inWindow[0], inWindow[len(inWindow)-1]
	if last.Time <= first.Time || first.Rate.IsZero() {
		return decimal.Zero, nil
	}
	growth := last.Rate.Div(first.Rate).Sub(decimal.NewFromInt(1))
	span := decimal.NewFromInt(int64(last.Time - first.Time))
	yearSeconds := decimal.NewFromInt(365 * 24 * 60 * 60)
	return growth.Mul(yearSeconds).Div(span), nil
}

// UpdateConfig replaces the vault configuration. Owner only.
func (e *Engine) UpdateConfig(sender types.Address, cfg Config) error {
	if err := e.requireOwner(sender); err != nil {
		return err
	}
	return e.store.SetConfig(cfg)
}

// UpdateFees replaces the fee schedule. Owner only.
func (e *Engine) UpdateFees(sender types.Address, fees FeeConfig) error {
	if err := e.requireOwner(sender); err != nil {
		return err
	}
	return e.store.SetFeeConfig(fees)
}

// SetWhitelisted grants or revokes arbitrage execution rights. Owner only.
func (e *Engine) SetWhitelisted(sender, executor types.Address, allowed bool) error {
	if err := e.requireOwner(sender); err != nil {
		return err
	}
	if allowed {
		return e.store.AddWhitelisted(executor)
	}
	return e.store.RemoveWhitelisted(executor)
}

func (e *Engine) recordRate(cfg Config, balances Balances) error {
	supply, err := e.ledger.Supply(cfg.LpToken)
	if err != nil {
		return err
	}
	rate := decimal.NewFromInt(1)
	if supply.Sign() > 0 {
		rate = decimal.NewFromBigInt(balances.VaultTotal, 0).Div(decimal.NewFromBigInt(supply, 0))
	}
	now := e.now()
	return e.store.PutRateEntry(RateEntry{Day: RateDay(now), Rate: rate, Time: now})
}

func flooredSub(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	if a.Cmp(b) <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(a, b)
}

// checkedSub fails loudly on underflow instead of clamping: a negative
// result here is an invariant violation, not a business outcome.
func checkedSub(a, b *big.Int) (*big.Int, error) {
	if a == nil || b == nil {
		return nil, ErrBalanceUnderflow
	}
	if a.Cmp(b) < 0 {
		return nil, ErrBalanceUnderflow
	}
	return new(big.Int).Sub(a, b), nil
}

func mulDec(amount *big.Int, rate decimal.Decimal) *big.Int {
	if amount == nil || amount.Sign() == 0 || rate.IsZero() {
		return big.NewInt(0)
	}
	return decimal.NewFromBigInt(amount, 0).Mul(rate).BigInt()
}
