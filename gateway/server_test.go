package gateway

import (
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"amplifier/core/types"
	"amplifier/native/ampz"
	"amplifier/native/arbvault"
	"amplifier/native/arbvault/lsds"
	"amplifier/native/farm"
	"amplifier/native/hub"
	"amplifier/state"
	"amplifier/storage"
)

var (
	vaultAddr = addrOf(0x01)
	hubAddr   = addrOf(0x02)
	ampzAddr  = addrOf(0x03)
	farmAddr  = addrOf(0x04)
	ownerAddr = addrOf(0x05)
	userAddr  = addrOf(0x06)
	feeAddr   = addrOf(0x07)
)

func addrOf(fill byte) types.Address {
	var addr types.Address
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type stubLedger struct {
	balances map[string]*big.Int
}

func (s *stubLedger) BalanceOf(addr types.Address, asset types.Asset) (*big.Int, error) {
	if bal, ok := s.balances[addr.Hex()+"|"+asset.ID()]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (s *stubLedger) Supply(types.Asset) (*big.Int, error) { return big.NewInt(0), nil }

type stubStaking struct{}

func (stubStaking) TotalDelegated(types.Address) (*big.Int, error) { return big.NewInt(0), nil }

type stubProxy struct{}

func (stubProxy) SupportsSwap(types.Asset, types.Asset) (bool, error) { return true, nil }
func (stubProxy) SimulateSwap(from types.Coin, _ types.Asset) (*big.Int, error) {
	return from.Amount, nil
}

func newTestServer(t *testing.T) (*Server, *stubLedger) {
	t.Helper()
	kv := state.NewStore(storage.NewMemDB())
	ledger := &stubLedger{balances: make(map[string]*big.Int)}

	vaultStore := arbvault.NewStore(kv)
	require.NoError(t, vaultStore.SetConfig(arbvault.Config{
		UtokenDenom:       "uluna",
		LpToken:           types.TokenAsset(addrOf(0x08)),
		UnbondTimeSeconds: 1000,
		Utilization: []arbvault.UtilizationStep{
			{Profit: decimal.NewFromFloat(0.005), Takeable: decimal.NewFromInt(1)},
		},
	}))
	require.NoError(t, vaultStore.SetOwner(ownerAddr))
	group, err := lsds.NewGroup(nil)
	require.NoError(t, err)
	vault := arbvault.NewEngine(vaultStore, group, ledger, vaultAddr)

	hubStore := hub.NewStore(kv)
	require.NoError(t, hubStore.SetConfig(hub.Config{
		StakeDenom:          "uluna",
		ShareToken:          types.TokenAsset(addrOf(0x09)),
		EpochPeriodSeconds:  259200,
		UnbondPeriodSeconds: 1814400,
		Validators:          []string{"valoper1"},
	}))
	require.NoError(t, hubStore.SetOwner(ownerAddr))
	hubEngine := hub.NewEngine(hubStore, ledger, stubStaking{}, hubAddr)

	ampzStore := ampz.NewStore(kv)
	require.NoError(t, ampzStore.SetConfig(ampz.Config{
		Controller:          ownerAddr,
		ProtocolFeeReceiver: feeAddr,
		ProtocolFee:         decimal.NewFromFloat(0.01),
		ExecutorFee:         decimal.NewFromFloat(0.02),
		Hub:                 hubAddr,
		StakeDenom:          "uluna",
	}))
	require.NoError(t, ampzStore.SetOwner(ownerAddr))
	ampzEngine := ampz.NewEngine(ampzStore, ledger, ampzAddr)

	farmStore := farm.NewStore(kv)
	require.NoError(t, farmStore.SetConfig(farm.Config{
		LpToken:      types.TokenAsset(addrOf(0x0a)),
		RewardAssets: []types.Asset{types.NativeAsset("uluna")},
		Zapper:       addrOf(0x0b),
	}))
	require.NoError(t, farmStore.SetOwner(ownerAddr))
	farmEngine := farm.NewEngine(farmStore, ledger, stubProxy{}, farmAddr)

	return New(Deps{
		Vault: vault,
		Hub:   hubEngine,
		Ampz:  ampzEngine,
		Farm:  farmEngine,
	}), ledger
}

func get(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	rec := get(t, server, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestVaultBalances(t *testing.T) {
	server, ledger := newTestServer(t)
	ledger.balances[vaultAddr.Hex()+"|"+types.NativeAsset("uluna").ID()] = big.NewInt(1500)

	rec := get(t, server, "/v1/vault/balances")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1500", body["vaultAvailable"])
	require.Equal(t, "1500", body["tvlUtoken"])
}

func TestVaultTakeable(t *testing.T) {
	server, ledger := newTestServer(t)
	ledger.balances[vaultAddr.Hex()+"|"+types.NativeAsset("uluna").ID()] = big.NewInt(1000)

	rec := get(t, server, "/v1/vault/takeable?wanted_profit=0.01")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1000", body["takeable"])

	rec = get(t, server, "/v1/vault/takeable?wanted_profit=nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHubState(t *testing.T) {
	server, _ := newTestServer(t)
	rec := get(t, server, "/v1/hub/state")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1", body["pendingBatchId"])
	require.Equal(t, "1", body["exchangeRate"])
}

func TestAddressValidation(t *testing.T) {
	server, _ := newTestServer(t)
	rec := get(t, server, "/v1/hub/requests/zzzz")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, server, "/v1/hub/requests/"+userAddr.Hex())
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAmpzExecutionsEmpty(t *testing.T) {
	server, _ := newTestServer(t)
	rec := get(t, server, "/v1/ampz/executions/"+userAddr.Hex())
	require.Equal(t, http.StatusOK, rec.Code)

	var body []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 0)
}
