package ampz

import (
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"amplifier/core/events"
	"amplifier/core/types"
)

// TokenLedger is the scheduler's read-only view onto the fungible-token
// ledger.
type TokenLedger interface {
	BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error)
}

// Engine implements the scheduler: recurring executions with interval
// eligibility and a tiered fee split settled via self-callback.
type Engine struct {
	store   *Store
	ledger  TokenLedger
	emitter events.Emitter
	self    types.Address
	nowFn   func() int64
	idFn    func() string
}

// NewEngine wires the scheduler engine. The emitter defaults to a no-op.
func NewEngine(store *Store, ledger TokenLedger, self types.Address) *Engine {
	return &Engine{
		store:   store,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		self:    self,
		nowFn:   func() int64 { return time.Now().Unix() },
		idFn:    uuid.NewString,
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

// SetCorrelationIDFunc overrides the correlation id source. Primarily
// intended for tests.
func (e *Engine) SetCorrelationIDFunc(idFn func() string) {
	if idFn == nil {
		e.idFn = uuid.NewString
		return
	}
	e.idFn = idFn
}

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// AddExecution registers a recurring automation for the sender. With no
// explicit start the schedule cursor is backdated one full interval so the
// first run is immediately eligible.
func (e *Engine) AddExecution(sender types.Address, source Source, destination Destination, schedule Schedule) (uint64, error) {
	if err := source.Validate(); err != nil {
		return 0, err
	}
	if err := destination.Validate(); err != nil {
		return 0, err
	}
	if err := schedule.Validate(); err != nil {
		return 0, err
	}
	sourceKey := source.UniqueKey()
	if existing, inUse, err := e.store.SourceInUse(sender, sourceKey); err != nil {
		return 0, err
	} else if inUse {
		return 0, fmt.Errorf("%w: %s held by execution %d", ErrDuplicateSource, sourceKey, existing)
	}

	id, err := e.store.NextExecutionID()
	if err != nil {
		return 0, err
	}
	var lastExecution uint64
	if schedule.Start != nil {
		lastExecution = flooredSub(*schedule.Start, schedule.IntervalSeconds)
	} else {
		lastExecution = flooredSub(e.now(), schedule.IntervalSeconds)
	}
	state := ExecutionState{
		Execution: Execution{
			ID:          id,
			User:        sender,
			Source:      source,
			Destination: destination,
			Schedule:    schedule,
		},
		LastExecution: lastExecution,
	}
	if err := e.store.PutExecution(state); err != nil {
		return 0, err
	}

	e.emitter.Emit(events.AmpzExecutionAdded{ID: id, User: sender, SourceKey: sourceKey})
	return id, nil
}

// CanExecute reports whether an execution is eligible for the given executor
// right now.
func (e *Engine) CanExecute(id uint64, executor types.Address) (bool, error) {
	state, found, err := e.store.GetExecution(id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return state.CanExecute(e.now(), executor), nil
}

// Execute dispatches an eligible execution: the source's claim messages
// followed by the self-callback that will split fees once the funds have
// landed. The fee intentions are persisted before the hop boundary.
func (e *Engine) Execute(executor types.Address, id uint64) ([]types.Message, error) {
	state, found, err := e.store.GetExecution(id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if !state.CanExecute(e.now(), executor) {
		return nil, fmt.Errorf("%w: id %d eligible at %d", ErrNotExecutable,
			id, state.LastExecution+state.Execution.Schedule.IntervalSeconds)
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}

	msgs, claimAsset, err := e.sourceMessages(cfg, state.Execution)
	if err != nil {
		return nil, err
	}

	correlationID := e.idFn()
	if err := e.store.PutInflight(correlationID, InflightRun{
		ExecutionID: id,
		Executor:    executor,
		Asset:       claimAsset,
	}); err != nil {
		return nil, err
	}
	payload, err := EncodeFinish(correlationID)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, types.Callback{
		Contract:      e.self,
		CorrelationID: correlationID,
		Payload:       payload,
	})

	e.emitter.Emit(events.AmpzExecutionStarted{ID: id, Executor: executor, CorrelationID: correlationID})
	return msgs, nil
}

// sourceMessages builds the claim hop for an execution's source and names
// the asset the claim lands in.
func (e *Engine) sourceMessages(cfg Config, exec Execution) ([]types.Message, types.Asset, error) {
	stake := types.NativeAsset(cfg.StakeDenom)
	switch exec.Source.Kind {
	case SourceClaimStakingRewards:
		return []types.Message{
			types.ExecuteContract{Contract: cfg.Hub, Action: "claim_rewards"},
		}, stake, nil
	case SourceAstroRewards:
		msgs := make([]types.Message, 0, len(exec.Source.LpTokens))
		for _, lp := range exec.Source.LpTokens {
			msgs = append(msgs, types.ExecuteContract{Contract: lp, Action: "claim_rewards"})
		}
		return msgs, stake, nil
	case SourceWalletBalance:
		balance, err := e.ledger.BalanceOf(exec.User, exec.Source.Asset)
		if err != nil {
			return nil, types.Asset{}, fmt.Errorf("ampz: query wallet balance: %w", err)
		}
		if balance.Cmp(exec.Source.MinBalance) < 0 {
			return nil, types.Asset{}, fmt.Errorf("%w: wallet balance %s below threshold %s",
				ErrNotExecutable, balance, exec.Source.MinBalance)
		}
		return []types.Message{
			types.TransferFrom{
				From: exec.User,
				To:   e.self,
				Coin: types.NewCoin(exec.Source.Asset, balance),
			},
		}, exec.Source.Asset, nil
	case SourceClaimContract:
		return []types.Message{
			types.ExecuteContract{Contract: exec.Source.Contract, Action: exec.Source.Action},
		}, stake, nil
	default:
		return nil, types.Asset{}, fmt.Errorf("%w: source kind %d", ErrNotSupported, exec.Source.Kind)
	}
}

// FinishExecution is the callback hop. Self-only. It reads the claimed
// balance, pays the protocol fee, pays the executor bounty unless the run
// was self-service or controller-driven, forwards the remainder to the
// destination, and advances the schedule cursor.
func (e *Engine) FinishExecution(sender types.Address, correlationID string) ([]types.Message, error) {
	if sender != e.self {
		return nil, fmt.Errorf("%w: sender %s", ErrCallbackOnly, sender)
	}
	run, found, err := e.store.GetInflight(correlationID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: no in-flight run %s", ErrNotFound, correlationID)
	}
	state, found, err := e.store.GetExecution(run.ExecutionID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, run.ExecutionID)
	}
	cfg, err := e.store.GetConfig()
	if err != nil {
		return nil, err
	}

	amount, err := e.ledger.BalanceOf(e.self, run.Asset)
	if err != nil {
		return nil, fmt.Errorf("ampz: query claimed balance: %w", err)
	}
	if amount.Sign() == 0 {
		return nil, ErrNothingClaimed
	}

	protocolFee := mulDec(amount, cfg.ProtocolFee)
	executorFee := big.NewInt(0)
	if run.Executor != state.Execution.User && run.Executor != cfg.Controller {
		executorFee = mulDec(amount, cfg.ExecutorFee)
	}
	remainder := new(big.Int).Sub(amount, protocolFee)
	remainder.Sub(remainder, executorFee)

	msgs := make([]types.Message, 0, 3)
	if protocolFee.Sign() > 0 {
		msgs = append(msgs, types.Transfer{
			To:   cfg.ProtocolFeeReceiver,
			Coin: types.NewCoin(run.Asset, protocolFee),
		})
	}
	if executorFee.Sign() > 0 {
		msgs = append(msgs, types.Transfer{
			To:   run.Executor,
			Coin: types.NewCoin(run.Asset, executorFee),
		})
	}
	destMsg, err := destinationMessage(cfg, state.Execution, types.NewCoin(run.Asset, remainder))
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, destMsg)

	state.LastExecution = e.now()
	if err := e.store.PutExecution(state); err != nil {
		return nil, err
	}
	if err := e.store.DeleteInflight(correlationID); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.AmpzExecutionFinished{
		ID:          state.Execution.ID,
		Amount:      amount,
		ProtocolFee: protocolFee,
		ExecutorFee: executorFee,
	})
	return msgs, nil
}

// destinationMessage routes the post-fee remainder.
func destinationMessage(cfg Config, exec Execution, coin types.Coin) (types.Message, error) {
	receiver := exec.User
	if exec.Destination.Receiver != nil {
		receiver = *exec.Destination.Receiver
	}
	switch exec.Destination.Kind {
	case DestinationDepositHub:
		return types.ExecuteContract{
			Contract: cfg.Hub,
			Action:   "bond:" + receiver.Hex(),
			Funds:    []types.Coin{coin},
		}, nil
	case DestinationDepositFarm:
		return types.ExecuteContract{
			Contract: exec.Destination.Farm,
			Action:   "deposit:" + receiver.Hex(),
			Funds:    []types.Coin{coin},
		}, nil
	case DestinationSwapTo:
		return types.ExecuteContract{
			Contract: cfg.Zapper,
			Action:   "swap:" + exec.Destination.Asset.ID() + ":" + receiver.Hex(),
			Funds:    []types.Coin{coin},
		}, nil
	case DestinationRepay:
		return types.ExecuteContract{
			Contract: exec.Destination.Market,
			Action:   "repay:" + receiver.Hex(),
			Funds:    []types.Coin{coin},
		}, nil
	default:
		return nil, fmt.Errorf("%w: destination kind %d", ErrNotSupported, exec.Destination.Kind)
	}
}

// RemoveExecutions deletes the sender's executions. A nil id list removes
// all of them; every named id must belong to the sender.
func (e *Engine) RemoveExecutions(sender types.Address, ids []uint64) error {
	if ids == nil {
		all, err := e.store.UserExecutionIDs(sender)
		if err != nil {
			return err
		}
		ids = all
	}
	for _, id := range ids {
		state, found, err := e.store.GetExecution(id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		if state.Execution.User != sender {
			return fmt.Errorf("%w: id %d", ErrMustBeSameUser, id)
		}
		if err := e.store.DeleteExecution(state); err != nil {
			return err
		}
		e.emitter.Emit(events.AmpzExecutionRemoved{ID: id, User: sender})
	}
	return nil
}

// Executions lists a user's execution states, ascending by id.
func (e *Engine) Executions(user types.Address) ([]ExecutionState, error) {
	ids, err := e.store.UserExecutionIDs(user)
	if err != nil {
		return nil, err
	}
	states := make([]ExecutionState, 0, len(ids))
	for _, id := range ids {
		state, found, err := e.store.GetExecution(id)
		if err != nil {
			return nil, err
		}
		if found {
			states = append(states, state)
		}
	}
	return states, nil
}

// UpdateConfig replaces the scheduler configuration. Owner only.
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

func flooredSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func mulDec(amount *big.Int, rate decimal.Decimal) *big.Int {
	return decimal.NewFromBigInt(amount, 0).Mul(rate).Floor().BigInt()
}
