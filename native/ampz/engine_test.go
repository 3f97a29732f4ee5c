package ampz

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
	"amplifier/state"
	"amplifier/storage"
)

var (
	ampzAddr       = addrOf(0x01)
	ownerAddr      = addrOf(0x02)
	controllerAddr = addrOf(0x03)
	feeAddr        = addrOf(0x04)
	userAddr       = addrOf(0x05)
	crankAddr      = addrOf(0x06)
	hubAddr        = addrOf(0x07)
	zapperAddr     = addrOf(0x08)
	farmAddr       = addrOf(0x09)
)

func addrOf(fill byte) types.Address {
	var addr types.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type mockLedger struct {
	balances map[string]*big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[string]*big.Int)}
}

func (m *mockLedger) setBalance(addr types.Address, asset types.Asset, amount int64) {
	m.balances[addr.Hex()+"|"+asset.ID()] = big.NewInt(amount)
}

func (m *mockLedger) BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error) {
	if bal, ok := m.balances[addr.Hex()+"|"+asset.ID()]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

type testEnv struct {
	engine *Engine
	store  *Store
	ledger *mockLedger
	now    int64
	nextID int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	kv := state.NewStore(storage.NewMemDB())
	store := NewStore(kv)
	if err := store.SetConfig(Config{
		Controller:          controllerAddr,
		ProtocolFeeReceiver: feeAddr,
		ProtocolFee:         decimal.NewFromFloat(0.01),
		ExecutorFee:         decimal.NewFromFloat(0.02),
		Hub:                 hubAddr,
		Zapper:              zapperAddr,
		StakeDenom:          "uluna",
	}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := store.SetOwner(ownerAddr); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	ledger := newMockLedger()
	env := &testEnv{
		engine: NewEngine(store, ledger, ampzAddr),
		store:  store,
		ledger: ledger,
		now:    86400,
	}
	env.engine.SetNowFunc(func() int64 { return env.now })
	env.engine.SetCorrelationIDFunc(func() string {
		env.nextID++
		return fmt.Sprintf("corr-%d", env.nextID)
	})
	return env
}

func claimSource() Source {
	return Source{Kind: SourceClaimStakingRewards}
}

func hubDestination() Destination {
	return Destination{Kind: DestinationDepositHub}
}

func sixHours() Schedule {
	return Schedule{IntervalSeconds: 21600}
}

func TestAddExecutionBackdatesCursor(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	state, found, err := env.store.GetExecution(id)
	if err != nil || !found {
		t.Fatalf("execution missing: %v", err)
	}
	// 86400 - 21600 = 64800: the first run is immediately eligible.
	if state.LastExecution != 64800 {
		t.Fatalf("expected cursor 64800, got %d", state.LastExecution)
	}

	env.now = 86401
	can, err := env.engine.CanExecute(id, crankAddr)
	if err != nil {
		t.Fatalf("can execute: %v", err)
	}
	if !can {
		t.Fatal("expected execution to be eligible")
	}
}

func TestAddExecutionHonorsStart(t *testing.T) {
	env := newTestEnv(t)
	start := uint64(100000)
	schedule := sixHours()
	schedule.Start = &start

	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), schedule)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	can, err := env.engine.CanExecute(id, crankAddr)
	if err != nil {
		t.Fatalf("can execute: %v", err)
	}
	if can {
		t.Fatal("expected execution to wait for its start time")
	}

	env.now = 100000
	can, err = env.engine.CanExecute(id, crankAddr)
	if err != nil {
		t.Fatalf("can execute at start: %v", err)
	}
	if !can {
		t.Fatal("expected execution eligible at start time")
	}
}

func TestUserMayAlwaysForceRun(t *testing.T) {
	env := newTestEnv(t)
	start := uint64(999999999)
	schedule := sixHours()
	schedule.Start = &start

	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), schedule)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	can, err := env.engine.CanExecute(id, userAddr)
	if err != nil {
		t.Fatalf("can execute: %v", err)
	}
	if !can {
		t.Fatal("owner of the execution must always be able to force a run")
	}
}

func TestDuplicateSourceRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours()); err != nil {
		t.Fatalf("first add: %v", err)
	}
	_, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if !errors.Is(err, ErrDuplicateSource) {
		t.Fatalf("expected ErrDuplicateSource, got %v", err)
	}
	// A different user may register the same source.
	if _, err := env.engine.AddExecution(crankAddr, claimSource(), hubDestination(), sixHours()); err != nil {
		t.Fatalf("other user add: %v", err)
	}
}

func TestLiquidityAllianceNotSupported(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.AddExecution(userAddr, Source{Kind: SourceLiquidityAlliance}, hubDestination(), sixHours())
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported for source, got %v", err)
	}
	_, err = env.engine.AddExecution(userAddr, claimSource(), Destination{Kind: DestinationLiquidityAlliance}, sixHours())
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported for destination, got %v", err)
	}
}

func TestExecuteDispatchesClaimAndCallback(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	msgs, err := env.engine.Execute(crankAddr, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected claim + callback, got %d messages", len(msgs))
	}
	claim, ok := msgs[0].(types.ExecuteContract)
	if !ok || claim.Contract != hubAddr || claim.Action != "claim_rewards" {
		t.Fatalf("unexpected claim message: %+v", msgs[0])
	}
	cb, ok := msgs[1].(types.Callback)
	if !ok || cb.Contract != ampzAddr {
		t.Fatalf("unexpected callback message: %+v", msgs[1])
	}
	run, found, err := env.store.GetInflight(cb.CorrelationID)
	if err != nil || !found {
		t.Fatalf("in-flight record missing: %v", err)
	}
	if run.ExecutionID != id || run.Executor != crankAddr {
		t.Fatalf("unexpected in-flight record: %+v", run)
	}
	got, err := DecodeFinish(cb.Payload)
	if err != nil || got != cb.CorrelationID {
		t.Fatalf("payload roundtrip failed: %q %v", got, err)
	}
}

func TestExecuteRejectsEarlyThirdPartyRun(t *testing.T) {
	env := newTestEnv(t)
	start := uint64(999999999)
	schedule := sixHours()
	schedule.Start = &start
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), schedule)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.engine.Execute(crankAddr, id); !errors.Is(err, ErrNotExecutable) {
		t.Fatalf("expected ErrNotExecutable, got %v", err)
	}
}

func TestWalletSourceChecksThreshold(t *testing.T) {
	env := newTestEnv(t)
	asset := types.NativeAsset("uluna")
	source := Source{Kind: SourceWalletBalance, Asset: asset, MinBalance: big.NewInt(500)}
	id, err := env.engine.AddExecution(userAddr, source, hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	env.ledger.setBalance(userAddr, asset, 499)
	if _, err := env.engine.Execute(crankAddr, id); !errors.Is(err, ErrNotExecutable) {
		t.Fatalf("expected threshold rejection, got %v", err)
	}

	env.ledger.setBalance(userAddr, asset, 500)
	msgs, err := env.engine.Execute(crankAddr, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	pull, ok := msgs[0].(types.TransferFrom)
	if !ok || pull.From != userAddr || pull.Coin.Amount.Int64() != 500 {
		t.Fatalf("unexpected pull message: %+v", msgs[0])
	}
}

// runExecution drives one full initiate/finish round and returns the finish
// messages.
func runExecution(t *testing.T, env *testEnv, executor types.Address, id uint64, claimed int64) []types.Message {
	t.Helper()
	msgs, err := env.engine.Execute(executor, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	cb := msgs[len(msgs)-1].(types.Callback)
	run, _, err := env.store.GetInflight(cb.CorrelationID)
	if err != nil {
		t.Fatalf("in-flight: %v", err)
	}
	env.ledger.setBalance(ampzAddr, run.Asset, claimed)
	out, err := env.engine.FinishExecution(ampzAddr, cb.CorrelationID)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return out
}

func TestFinishSplitsFeesInOrder(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// 100 claimed by a third-party crank: 1 protocol, 2 executor, 97 to the
	// destination, in that order.
	out := runExecution(t, env, crankAddr, id, 100)
	if len(out) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(out))
	}
	protocol := out[0].(types.Transfer)
	if protocol.To != feeAddr || protocol.Coin.Amount.Int64() != 1 {
		t.Fatalf("unexpected protocol fee: %+v", protocol)
	}
	bounty := out[1].(types.Transfer)
	if bounty.To != crankAddr || bounty.Coin.Amount.Int64() != 2 {
		t.Fatalf("unexpected executor bounty: %+v", bounty)
	}
	deposit := out[2].(types.ExecuteContract)
	if deposit.Contract != hubAddr || deposit.Funds[0].Amount.Int64() != 97 {
		t.Fatalf("unexpected destination deposit: %+v", deposit)
	}

	state, _, err := env.store.GetExecution(id)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if state.LastExecution != uint64(env.now) {
		t.Fatalf("cursor not advanced: %d", state.LastExecution)
	}
}

func TestFinishSkipsBountyForSelfService(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	out := runExecution(t, env, userAddr, id, 100)
	// 1 protocol fee, 99 to the destination; no bounty.
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	deposit := out[1].(types.ExecuteContract)
	if deposit.Funds[0].Amount.Int64() != 99 {
		t.Fatalf("expected 99 forwarded, got %s", deposit.Funds[0].Amount)
	}
}

func TestFinishSkipsBountyForController(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	out := runExecution(t, env, controllerAddr, id, 100)
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
}

func TestFinishCallbackOnly(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	msgs, err := env.engine.Execute(crankAddr, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	cb := msgs[len(msgs)-1].(types.Callback)
	if _, err := env.engine.FinishExecution(crankAddr, cb.CorrelationID); !errors.Is(err, ErrCallbackOnly) {
		t.Fatalf("expected ErrCallbackOnly, got %v", err)
	}
}

func TestFinishRejectsEmptyClaim(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	msgs, err := env.engine.Execute(crankAddr, id)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	cb := msgs[len(msgs)-1].(types.Callback)
	if _, err := env.engine.FinishExecution(ampzAddr, cb.CorrelationID); !errors.Is(err, ErrNothingClaimed) {
		t.Fatalf("expected ErrNothingClaimed, got %v", err)
	}
}

func TestRemoveExecutionsByID(t *testing.T) {
	env := newTestEnv(t)
	mustAdd := func(user types.Address, source Source) uint64 {
		id, err := env.engine.AddExecution(user, source, hubDestination(), sixHours())
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		return id
	}
	id1 := mustAdd(userAddr, claimSource())
	id2 := mustAdd(userAddr, Source{Kind: SourceWalletBalance, Asset: types.NativeAsset("uluna"), MinBalance: big.NewInt(1)})
	id3 := mustAdd(userAddr, Source{Kind: SourceClaimContract, Contract: farmAddr, Action: "claim"})
	other := mustAdd(crankAddr, claimSource())

	if err := env.engine.RemoveExecutions(userAddr, []uint64{id1, id3}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	remaining, err := env.engine.Executions(userAddr)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Execution.ID != id2 {
		t.Fatalf("expected only execution %d left, got %+v", id2, remaining)
	}

	// The uniqueness slots for removed sources are free again.
	if _, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours()); err != nil {
		t.Fatalf("re-add after removal: %v", err)
	}

	// Other users' executions are untouched.
	others, err := env.engine.Executions(crankAddr)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(others) != 1 || others[0].Execution.ID != other {
		t.Fatalf("other user's executions disturbed: %+v", others)
	}
}

func TestRemoveExecutionsMustBeSameUser(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours())
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.engine.RemoveExecutions(crankAddr, []uint64{id}); !errors.Is(err, ErrMustBeSameUser) {
		t.Fatalf("expected ErrMustBeSameUser, got %v", err)
	}
}

func TestRemoveAllExecutions(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.AddExecution(userAddr, claimSource(), hubDestination(), sixHours()); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := env.engine.AddExecution(userAddr, Source{Kind: SourceClaimContract, Contract: farmAddr, Action: "claim"}, hubDestination(), sixHours()); err != nil {
		t.Fatalf("add second: %v", err)
	}
	if err := env.engine.RemoveExecutions(userAddr, nil); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	remaining, err := env.engine.Executions(userAddr)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no executions, got %d", len(remaining))
	}
}

func TestUpdateConfigOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	cfg, err := env.store.GetConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.ExecutorFee = decimal.NewFromFloat(0.03)
	if err := env.engine.UpdateConfig(userAddr, cfg); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := env.engine.UpdateConfig(ownerAddr, cfg); err != nil {
		t.Fatalf("owner update: %v", err)
	}
}
