package hub

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"amplifier/core/events"
	"amplifier/core/types"
)

// TokenLedger is the hub's read-only view onto the fungible-token ledger.
type TokenLedger interface {
	BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error)
	Supply(asset types.Asset) (*big.Int, error)
}

// StakingQuerier reads the hub's aggregate delegation from the staking
// module. Mutations go out as messages.
type StakingQuerier interface {
	TotalDelegated(delegator types.Address) (*big.Int, error)
}

// Engine implements the hub: bonding against the derivative share token and
// the batched-unbonding state machine.
type Engine struct {
	store   *Store
	ledger  TokenLedger
	staking StakingQuerier
	emitter events.Emitter
	self    types.Address
	nowFn   func() int64
}

// NewEngine wires the hub engine. The emitter defaults to a no-op.
func NewEngine(store *Store, ledger TokenLedger, staking StakingQuerier, self types.Address) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		staking: staking,
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

// ExchangeRate is the global utoken-per-share rate: total delegated stake
// over share supply. A zero supply pins the rate at one so the first bond is
// one-to-one.
func (e *Engine) ExchangeRate() (decimal.Decimal, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return decimal.Zero, err
	}
	supply, err := e.ledger.Supply(cfg.ShareToken)
	if err != nil {
		return decimal.Zero, fmt.Errorf("hub: query share supply: %w", err)
	}
	if supply.Sign() == 0 {
		return decimal.NewFromInt(1), nil
	}
	bonded, err := e.staking.TotalDelegated(e.self)
	if err != nil {
		return decimal.Zero, fmt.Errorf("hub: query delegations: %w", err)
	}
	return decimal.NewFromBigInt(bonded, 0).Div(decimal.NewFromBigInt(supply, 0)), nil
}

// Bond delegates the deposited stake across the validator set and mints
// shares at the current exchange rate.
func (e *Engine) Bond(sender types.Address, amount *big.Int) ([]types.Message, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("hub: bond amount must be positive")
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	rate, err := e.ExchangeRate()
	if err != nil {
		return nil, err
	}
	shares := divDec(amount, rate)
	if shares.Sign() == 0 {
		return nil, fmt.Errorf("hub: bond amount too small for current rate")
	}

	msgs := make([]types.Message, 0, len(cfg.Validators)+1)
	for _, part := range splitAmount(amount, len(cfg.Validators)) {
		if part.val.Sign() == 0 {
			continue
		}
		msgs = append(msgs, types.Delegate{Validator: cfg.Validators[part.idx], Amount: part.val})
	}
	msgs = append(msgs, types.MintShares{To: sender, Amount: shares})

	if err := e.recordRate(rate); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.HubBonded{User: sender, Amount: amount, Shares: shares})
	return msgs, nil
}

// QueueUnbond adds shares to the open pending batch. The shares must already
// have been transferred to the hub; they are burned when the batch is
// submitted, not here.
func (e *Engine) QueueUnbond(sender types.Address, shares *big.Int) error {
	if shares == nil || shares.Sign() <= 0 {
		return fmt.Errorf("hub: unbond shares must be positive")
	}
	pending, err := e.store.PendingBatch()
	if err != nil {
		return err
	}
	pending.TotalShares = new(big.Int).Add(pending.TotalShares, shares)
	if err := e.store.SetPendingBatch(pending); err != nil {
		return err
	}

	req, found, err := e.store.GetUnbondRequest(pending.ID, sender)
	if err != nil {
		return err
	}
	if !found {
		req = UnbondRequest{BatchID: pending.ID, User: sender, Shares: new(big.Int)}
	}
	req.Shares = new(big.Int).Add(req.Shares, shares)
	if err := e.store.PutUnbondRequest(req); err != nil {
		return err
	}

	e.emitter.Emit(events.HubUnbondQueued{User: sender, BatchID: pending.ID, Shares: shares})
	return nil
}

// SubmitBatch seals the pending batch at the epoch boundary: it fixes the
// batch's utoken target at the current exchange rate, undelegates that amount,
// burns the queued shares, and opens a fresh pending batch. Permissionless
// crank.
func (e *Engine) SubmitBatch() ([]types.Message, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	now := e.now()
	lastSubmit, err := e.store.LastSubmitTime()
	if err != nil {
		return nil, err
	}
	if now < lastSubmit+cfg.EpochPeriodSeconds {
		return nil, fmt.Errorf("%w: next submission at %d", ErrEpochNotReady, lastSubmit+cfg.EpochPeriodSeconds)
	}
	pending, err := e.store.PendingBatch()
	if err != nil {
		return nil, err
	}
	if pending.TotalShares.Sign() == 0 {
		return nil, ErrEmptyBatch
	}
	rate, err := e.ExchangeRate()
	if err != nil {
		return nil, err
	}
	utoken := mulDec(pending.TotalShares, rate)

	batch := Batch{
		ID:               pending.ID,
		TotalShares:      pending.TotalShares,
		UtokenUnbonding:  utoken,
		EstUnbondEndTime: now + cfg.UnbondPeriodSeconds,
	}
	if err := e.store.PutBatch(batch); err != nil {
		return nil, err
	}
	if err := e.store.SetPendingBatch(PendingBatch{ID: pending.ID + 1, TotalShares: big.NewInt(0)}); err != nil {
		return nil, err
	}
	if err := e.store.SetLastSubmitTime(now); err != nil {
		return nil, err
	}

	msgs := make([]types.Message, 0, len(cfg.Validators)+1)
	for _, part := range splitAmount(utoken, len(cfg.Validators)) {
		if part.val.Sign() == 0 {
			continue
		}
		msgs = append(msgs, types.Undelegate{Validator: cfg.Validators[part.idx], Amount: part.val})
	}
	msgs = append(msgs, types.BurnShares{Amount: pending.TotalShares})

	if err := e.recordRate(rate); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.HubBatchSubmitted{
		BatchID:          batch.ID,
		TotalShares:      batch.TotalShares,
		UtokenUnbonding:  batch.UtokenUnbonding,
		EstUnbondEndTime: batch.EstUnbondEndTime,
	})
	return msgs, nil
}

// Reconcile walks submitted batches in ascending order and marks each one
// reconciled whose unbond period has elapsed and whose promised amount is
// covered by the unreserved liquid balance. All-or-nothing per batch: the
// walk stops at the first batch that cannot be fully covered. Permissionless
// crank.
func (e *Engine) Reconcile() ([]uint64, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	batches, err := e.store.Batches()
	if err != nil {
		return nil, err
	}
	reserved, err := e.store.Reserved()
	if err != nil {
		return nil, err
	}
	liquid, err := e.ledger.BalanceOf(e.self, types.NativeAsset(cfg.StakeDenom))
	if err != nil {
		return nil, fmt.Errorf("hub: query liquid balance: %w", err)
	}
	available := new(big.Int).Sub(liquid, reserved)

	now := e.now()
	var done []uint64
	var blocked bool
	for _, batch := range batches {
		if batch.Reconciled {
			continue
		}
		if now < batch.EstUnbondEndTime {
			break
		}
		if available.Cmp(batch.UtokenUnbonding) < 0 {
			blocked = true
			break
		}
		batch.Reconciled = true
		if err := e.store.PutBatch(batch); err != nil {
			return nil, err
		}
		available.Sub(available, batch.UtokenUnbonding)
		reserved = new(big.Int).Add(reserved, batch.UtokenUnbonding)
		done = append(done, batch.ID)
		e.emitter.Emit(events.HubBatchReconciled{BatchID: batch.ID, Reserved: reserved})
	}
	if len(done) == 0 {
		if blocked {
			return nil, ErrInsufficientReturned
		}
		return nil, nil
	}
	if err := e.store.SetReserved(reserved); err != nil {
		return nil, err
	}
	return done, nil
}

// WithdrawUnbonded settles every reconciled request the user holds at the
// rate fixed per batch, deletes the settled requests, and pays out in one
// transfer.
func (e *Engine) WithdrawUnbonded(sender types.Address) ([]types.Message, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	ids, err := e.store.UserBatchIDs(sender)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, id := range ids {
		batch, found, err := e.store.GetBatch(id)
		if err != nil {
			return nil, err
		}
		if !found || !batch.Reconciled {
			continue
		}
		req, found, err := e.store.GetUnbondRequest(id, sender)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		total.Add(total, mulDec(req.Shares, batch.SettlementRate()))
		if err := e.store.DeleteUnbondRequest(id, sender); err != nil {
			return nil, err
		}
	}
	if total.Sign() == 0 {
		return nil, ErrNothingToWithdraw
	}

	reserved, err := e.store.Reserved()
	if err != nil {
		return nil, err
	}
	newReserved, err := checkedSub(reserved, total)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetReserved(newReserved); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.HubUnbondWithdrawn{User: sender, Amount: total})
	return []types.Message{
		types.Transfer{To: sender, Coin: types.NewCoin(types.NativeAsset(cfg.StakeDenom), total)},
	}, nil
}

// Harvest claims accrued rewards from every validator and restakes whatever
// unreserved liquid balance the hub already holds. Rewards claimed by this
// call land after it and are picked up by the next harvest. Permissionless
// crank.
func (e *Engine) Harvest() ([]types.Message, error) {
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}
	reserved, err := e.store.Reserved()
	if err != nil {
		return nil, err
	}
	liquid, err := e.ledger.BalanceOf(e.self, types.NativeAsset(cfg.StakeDenom))
	if err != nil {
		return nil, fmt.Errorf("hub: query liquid balance: %w", err)
	}
	restake := new(big.Int).Sub(liquid, reserved)

	msgs := make([]types.Message, 0, 2*len(cfg.Validators))
	for _, val := range cfg.Validators {
		msgs = append(msgs, types.WithdrawRewards{Validator: val})
	}
	if restake.Sign() > 0 {
		for _, part := range splitAmount(restake, len(cfg.Validators)) {
			if part.val.Sign() == 0 {
				continue
			}
			msgs = append(msgs, types.Delegate{Validator: cfg.Validators[part.idx], Amount: part.val})
		}
		e.emitter.Emit(events.HubRewardsHarvested{Restaked: restake})
	}
	return msgs, nil
}

// PendingBatch exposes the open batch for queries.
func (e *Engine) PendingBatch() (PendingBatch, error) {
	return e.store.PendingBatch()
}

// Batches exposes the sealed batch list for queries.
func (e *Engine) Batches() ([]Batch, error) {
	return e.store.Batches()
}

// UserRequests lists the user's outstanding unbond requests, ascending by
// batch id.
func (e *Engine) UserRequests(user types.Address) ([]UnbondRequest, error) {
	ids, err := e.store.UserBatchIDs(user)
	if err != nil {
		return nil, err
	}
	reqs := make([]UnbondRequest, 0, len(ids))
	for _, id := range ids {
		req, found, err := e.store.GetUnbondRequest(id, user)
		if err != nil {
			return nil, err
		}
		if found {
			reqs = append(reqs, req)
		}
	}
	return reqs, nil
}

// QueryAPR annualises the exchange-rate change across the recorded history
// restricted to the trailing window. Zero window means all history.
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

func (e *Engine) recordRate(rate decimal.Decimal) error {
	now := e.now()
	return e.store.PutRateEntry(RateEntry{Day: RateDay(now), Rate: rate, Time: now})
}

// UpdateConfig replaces the hub configuration. Owner only.
func (e *Engine) UpdateConfig(sender types.Address, cfg Config) error {
	if err := e.requireOwner(sender); err != nil {
		return err
	}
	return e.store.SetConfig(cfg)
}

type amountPart struct {
	idx int
	val *big.Int
}

// splitAmount divides an amount evenly over n slots, assigning the remainder
// one unit at a time starting from the first slot.
func splitAmount(amount *big.Int, n int) []amountPart {
	if n <= 0 {
		return nil
	}
	quo, rem := new(big.Int).DivMod(amount, big.NewInt(int64(n)), new(big.Int))
	remainder := rem.Int64()
	parts := make([]amountPart, 0, n)
	for i := 0; i < n; i++ {
		part := new(big.Int).Set(quo)
		if int64(i) < remainder {
			part.Add(part, big.NewInt(1))
		}
		parts = append(parts, amountPart{idx: i, val: part})
	}
	return parts
}

func checkedSub(a, b *big.Int) (*big.Int, error) {
	if a.Cmp(b) < 0 {
		return nil, fmt.Errorf("%w: %s - %s", ErrAmountUnderflow, a, b)
	}
	return new(big.Int).Sub(a, b), nil
}

func mulDec(amount *big.Int, rate decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(amount, 0).Mul(rate).Floor().BigInt()
}

func divDec(amount *big.Int, rate decimal.Decimal) *big.Int {
	if rate.IsZero() {
		return big.NewInt(0)
	}
	return decimal.NewFromBigInt(amount, 0).Div(rate).Floor().BigInt()
}
