package arbvault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
	"amplifier/native/arbvault/lsds"
	"amplifier/state"
	"amplifier/storage"
)

var (
	vaultAddr    = addrOf(0x01)
	ownerAddr    = addrOf(0x02)
	executorAddr = addrOf(0x03)
	feeAddr      = addrOf(0x04)
	userAddr     = addrOf(0x05)
	lsdContract  = addrOf(0x06)
	lsdToken     = types.TokenAsset(addrOf(0x07))
	lpToken      = types.TokenAsset(addrOf(0x08))
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
	supplies map[string]*big.Int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		balances: make(map[string]*big.Int),
		supplies: make(map[string]*big.Int),
	}
}

func ledgerKey(addr types.Address, asset types.Asset) string {
	return addr.Hex() + "|" + asset.ID()
}

func (m *mockLedger) setBalance(addr types.Address, asset types.Asset, amount int64) {
	m.balances[ledgerKey(addr, asset)] = big.NewInt(amount)
}

func (m *mockLedger) setSupply(asset types.Asset, amount int64) {
	m.supplies[asset.ID()] = big.NewInt(amount)
}

func (m *mockLedger) BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error) {
	if bal, ok := m.balances[ledgerKey(addr, asset)]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (m *mockLedger) Supply(asset types.Asset) (*big.Int, error) {
	if supply, ok := m.supplies[asset.ID()]; ok {
		return new(big.Int).Set(supply), nil
	}
	return big.NewInt(0), nil
}

type stubClient struct {
	rate         decimal.Decimal
	batches      []lsds.RemoteBatch
	withdrawable *big.Int
}

func (s *stubClient) ExchangeRate() (decimal.Decimal, error) { return s.rate, nil }

func (s *stubClient) Withdrawable(types.Address) (*big.Int, error) {
	if s.withdrawable == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(s.withdrawable), nil
}

func (s *stubClient) PendingBatches(types.Address) ([]lsds.RemoteBatch, error) {
	return s.batches, nil
}

type testEnv struct {
	engine *Engine
	ledger *mockLedger
	client *stubClient
	store  *Store
	now    int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	client := &stubClient{rate: decimal.RequireFromString("1.25")}
	adapter, err := lsds.NewBatchAdapter("eris", lsds.KindEris, lsdContract, lsdToken, client)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	group, err := lsds.NewGroup([]*lsds.Adapter{adapter})
	if err != nil {
		t.Fatalf("new group: %v", err)
	}

	store := NewStore(state.NewStore(storage.NewMemDB()))
	if err := store.SetOwner(ownerAddr); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if err := store.SetConfig(Config{
		UtokenDenom:       "uluna",
		LpToken:           lpToken,
		UnbondTimeSeconds: 1000,
		Utilization: []UtilizationStep{
			{Profit: decimal.RequireFromString("0.005"), Takeable: decimal.NewFromInt(1)},
		},
	}); err != nil {
		t.Fatalf("set config: %v", err)
	}
	if err := store.SetFeeConfig(FeeConfig{
		ProtocolFeeReceiver:  feeAddr,
		PerformanceFee:       decimal.RequireFromString("0.1"),
		WithdrawFee:          decimal.RequireFromString("0.01"),
		ImmediateWithdrawFee: decimal.RequireFromString("0.1"),
	}); err != nil {
		t.Fatalf("set fees: %v", err)
	}

	ledger := newMockLedger()
	engine := NewEngine(store, group, ledger, vaultAddr)
	env := &testEnv{engine: engine, ledger: ledger, client: client, store: store, now: 10_000}
	engine.SetNowFunc(func() int64 { return env.now })

	if err := engine.SetWhitelisted(ownerAddr, executorAddr, true); err != nil {
		t.Fatalf("whitelist: %v", err)
	}
	return env
}

func mustOpenRound(t *testing.T, env *testEnv, amount int64, profit string) []byte {
	t.Helper()
	wanted := decimal.RequireFromString(profit)
	msgs, err := env.engine.ExecuteArbitrage(executorAddr, big.NewInt(amount), wanted, "eris", nil)
	if err != nil {
		t.Fatalf("execute arbitrage: %v", err)
	}
	callback, ok := msgs[len(msgs)-1].(types.Callback)
	if !ok {
		t.Fatalf("last message = %T, want Callback", msgs[len(msgs)-1])
	}
	return callback.Payload
}

func TestBalancesIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)
	env.client.batches = []lsds.RemoteBatch{{Reconciled: true, TokenAmount: big.NewInt(300)}}
	env.client.withdrawable = big.NewInt(200)

	balances, err := env.engine.Balances()
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	sum := new(big.Int).Add(balances.VaultAvailable, balances.LsdUnbonding)
	sum.Add(sum, balances.LsdWithdrawable)
	if balances.TvlUtoken.Cmp(sum) != 0 {
		t.Fatalf("tvl identity violated: %s != %s", balances.TvlUtoken, sum)
	}
	if balances.TvlUtoken.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("tvl = %s, want 1500", balances.TvlUtoken)
	}
}

func TestArbitrageRoundSettles(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)
	env.ledger.setSupply(lpToken, 1000)

	payload := mustOpenRound(t, env, 200, "0.05")

	if _, found, err := env.store.GetCheckpoint(); err != nil || !found {
		t.Fatalf("checkpoint missing after phase one (found=%v err=%v)", found, err)
	}

	// Strategy execution: 200 utoken left the vault, 210 worth of value is
	// now unbonding with the LSD protocol.
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 800)
	env.client.batches = []lsds.RemoteBatch{{Reconciled: true, TokenAmount: big.NewInt(210)}}

	msgs, err := env.engine.AssertResult(vaultAddr, payload)
	if err != nil {
		t.Fatalf("assert result: %v", err)
	}

	// profit 10, performance fee 10% => 1 utoken to the fee receiver
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	fee, ok := msgs[0].(types.Transfer)
	if !ok {
		t.Fatalf("message type = %T, want Transfer", msgs[0])
	}
	if fee.To != feeAddr || fee.Coin.Amount.Cmp(big.NewInt(1)) != 0 || fee.Coin.Asset.Denom != "uluna" {
		t.Fatalf("unexpected fee transfer: %+v", fee)
	}

	if _, found, err := env.store.GetCheckpoint(); err != nil || found {
		t.Fatalf("checkpoint still present after settle (found=%v err=%v)", found, err)
	}

	history, err := env.store.RateHistory()
	if err != nil {
		t.Fatalf("rate history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("rate entries = %d, want 1", len(history))
	}
}

func TestAssertResultNotEnoughProfit(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)
	env.ledger.setSupply(lpToken, 1000)

	// Round asserted at 6%: realised 5% is below the 90% floor (5.4%).
	payload := mustOpenRound(t, env, 200, "0.06")

	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 800)
	env.client.batches = []lsds.RemoteBatch{{Reconciled: true, TokenAmount: big.NewInt(210)}}

	if _, err := env.engine.AssertResult(vaultAddr, payload); !errors.Is(err, ErrNotEnoughProfit) {
		t.Fatalf("err = %v, want ErrNotEnoughProfit", err)
	}
}

func TestAssertResultAcceptsSlippage(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)
	env.ledger.setSupply(lpToken, 1000)

	// Asserted at 5%: realised 5% clears the 4.5% floor exactly.
	payload := mustOpenRound(t, env, 200, "0.05")

	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 800)
	env.client.batches = []lsds.RemoteBatch{{Reconciled: true, TokenAmount: big.NewInt(210)}}

	if _, err := env.engine.AssertResult(vaultAddr, payload); err != nil {
		t.Fatalf("assert result: %v", err)
	}
}

func TestAssertResultProtectsLockedWithdrawals(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)
	env.ledger.setSupply(lpToken, 1000)

	// Half the vault is reserved for a pending user withdrawal.
	if _, _, err := env.engine.RequestWithdraw(userAddr, big.NewInt(500)); err != nil {
		t.Fatalf("request withdraw: %v", err)
	}

	payload := mustOpenRound(t, env, 200, "0.05")

	// The round was profitable (600 used, 30 profit) but ate into the
	// reserved balance: 400 available against 500 locked.
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 400)
	env.client.batches = []lsds.RemoteBatch{{Reconciled: true, TokenAmount: big.NewInt(630)}}

	if _, err := env.engine.AssertResult(vaultAddr, payload); !errors.Is(err, ErrLockedFundsEaten) {
		t.Fatalf("err = %v, want ErrLockedFundsEaten", err)
	}
}

func TestAssertResultUnderflowFailsLoudly(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)

	payload := mustOpenRound(t, env, 200, "0.05")

	// Funds left and nothing came back: tvl shrank, which must surface as an
	// underflow, never clamp to zero profit.
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 800)

	if _, err := env.engine.AssertResult(vaultAddr, payload); !errors.Is(err, ErrBalanceUnderflow) {
		t.Fatalf("err = %v, want ErrBalanceUnderflow", err)
	}
}

func TestExecuteArbitrageGuards(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)

	if _, err := env.engine.ExecuteArbitrage(userAddr, big.NewInt(100), decimal.RequireFromString("0.05"), "eris", nil); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := env.engine.ExecuteArbitrage(executorAddr, big.NewInt(100), decimal.RequireFromString("0.004"), "eris", nil); !errors.Is(err, ErrProfitTooLow) {
		t.Fatalf("err = %v, want ErrProfitTooLow", err)
	}
	if _, err := env.engine.ExecuteArbitrage(executorAddr, big.NewInt(2000), decimal.RequireFromString("0.05"), "eris", nil); !errors.Is(err, ErrTakeableExceeded) {
		t.Fatalf("err = %v, want ErrTakeableExceeded", err)
	}

	mustOpenRound(t, env, 100, "0.05")
	if _, err := env.engine.ExecuteArbitrage(executorAddr, big.NewInt(100), decimal.RequireFromString("0.05"), "eris", nil); !errors.Is(err, ErrAlreadyExecuting) {
		t.Fatalf("err = %v, want ErrAlreadyExecuting", err)
	}
}

func TestAssertResultCallbackOnly(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)

	payload := mustOpenRound(t, env, 100, "0.05")

	if _, err := env.engine.AssertResult(executorAddr, payload); !errors.Is(err, ErrCallbackOnly) {
		t.Fatalf("err = %v, want ErrCallbackOnly", err)
	}
}

func TestAssertResultWithoutRound(t *testing.T) {
	env := newTestEnv(t)
	payload, err := EncodeAssertResult("eris", decimal.RequireFromString("0.05"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := env.engine.AssertResult(vaultAddr, payload); !errors.Is(err, ErrNotExecuting) {
		t.Fatalf("err = %v, want ErrNotExecuting", err)
	}
}

func TestFeeFallbackPaysInLsdToken(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)
	env.ledger.setSupply(lpToken, 1000)

	payload := mustOpenRound(t, env, 1000, "0.05")

	// Vault fully deployed: zero liquid balance, all value unbonding.
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 0)
	env.client.batches = []lsds.RemoteBatch{{Reconciled: true, TokenAmount: big.NewInt(1050)}}

	msgs, err := env.engine.AssertResult(vaultAddr, payload)
	if err != nil {
		t.Fatalf("assert result: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	fee := msgs[0].(types.Transfer)
	if fee.Coin.Asset != lsdToken {
		t.Fatalf("fee asset = %v, want LSD token", fee.Coin.Asset)
	}
	// profit 50, fee 5 utoken, factor 1.25 => 4 LSD tokens
	if fee.Coin.Amount.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("fee amount = %s, want 4", fee.Coin.Amount)
	}
}

func TestForceReleaseCheckpoint(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.setBalance(vaultAddr, types.NativeAsset("uluna"), 1000)

	if err := env.engine.ForceReleaseCheckpoint(userAddr); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if err := env.engine.ForceReleaseCheckpoint(ownerAddr); !errors.Is(err, ErrNotExecuting) {
		t.Fatalf("err = %v, want ErrNotExecuting", err)
	}

	mustOpenRound(t, env, 100, "0.05")
	if err := env.engine.ForceReleaseCheckpoint(ownerAddr); err != nil {
		t.Fatalf("force release: %v", err)
	}
	if _, found, _ := env.store.GetCheckpoint(); found {
		t.Fatal("checkpoint still present after force release")
	}
}

func TestQueryAPR(t *testing.T) {
	env := newTestEnv(t)

	if err := env.store.PutRateEntry(RateEntry{Day: "2024-01-01", Rate: decimal.NewFromInt(1), Time: 0}); err != nil {
		t.Fatalf("put rate: %v", err)
	}
	if err := env.store.PutRateEntry(RateEntry{Day: "2024-01-31", Rate: decimal.RequireFromString("1.01"), Time: 30 * 86400}); err != nil {
		t.Fatalf("put rate: %v", err)
	}
	env.now = 30 * 86400

	apr, err := env.engine.QueryAPR(0)
	if err != nil {
		t.Fatalf("query apr: %v", err)
	}
	// 1% over 30 days annualised: 0.01 * 365/30
	expected := decimal.RequireFromString("0.01").Mul(decimal.NewFromInt(365)).Div(decimal.NewFromInt(30))
	if apr.Sub(expected).Abs().GreaterThan(decimal.RequireFromString("0.0000001")) {
		t.Fatalf("apr = %s, want %s", apr, expected)
	}
}
