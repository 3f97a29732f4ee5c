package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"amplifier/core/types"
	"amplifier/native/ampz"
	"amplifier/native/arbvault"
	"amplifier/native/farm"
	"amplifier/native/hub"
)

// Server exposes the read-only protocol state over HTTP.
type Server struct {
	router chi.Router
	vault  *arbvault.Engine
	hub    *hub.Engine
	ampz   *ampz.Engine
	farm   *farm.Engine
	logger *slog.Logger
}

// Deps bundles the engines the gateway queries.
type Deps struct {
	Vault  *arbvault.Engine
	Hub    *hub.Engine
	Ampz   *ampz.Engine
	Farm   *farm.Engine
	Logger *slog.Logger
	CORS   CORSConfig
}

// New builds the gateway router over the provided engines.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		vault:  deps.Vault,
		hub:    deps.Hub,
		ampz:   deps.Ampz,
		farm:   deps.Farm,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(CORS(deps.CORS))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/vault", func(r chi.Router) {
			r.Get("/balances", s.handleVaultBalances)
			r.Get("/takeable", s.handleVaultTakeable)
			r.Get("/apr", s.handleVaultAPR)
			r.Get("/unbonding/{address}", s.handleVaultUnbonding)
		})
		r.Route("/hub", func(r chi.Router) {
			r.Get("/state", s.handleHubState)
			r.Get("/batches", s.handleHubBatches)
			r.Get("/apr", s.handleHubAPR)
			r.Get("/requests/{address}", s.handleHubRequests)
		})
		r.Get("/ampz/executions/{address}", s.handleAmpzExecutions)
		r.Get("/farm/stake/{address}", s.handleFarmStake)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVaultBalances(w http.ResponseWriter, _ *http.Request) {
	balances, err := s.vault.Balances()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"vaultAvailable":        bigString(balances.VaultAvailable),
		"lsdUnbonding":          bigString(balances.LsdUnbonding),
		"lsdWithdrawable":       bigString(balances.LsdWithdrawable),
		"tvlUtoken":             bigString(balances.TvlUtoken),
		"vaultTotal":            bigString(balances.VaultTotal),
		"vaultTakeable":         bigString(balances.VaultTakeable),
		"lockedUserWithdrawals": bigString(balances.LockedUserWithdrawals),
	})
}

func (s *Server) handleVaultTakeable(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("wanted_profit")
	wanted, err := decimal.NewFromString(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid wanted_profit"})
		return
	}
	takeable, err := s.vault.TakeableForProfit(wanted)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"wantedProfit": wanted.String(),
		"takeable":     bigString(takeable),
	})
}

func (s *Server) handleVaultAPR(w http.ResponseWriter, r *http.Request) {
	windowSeconds := uint64(30 * 24 * 3600)
	if raw := r.URL.Query().Get("window_seconds"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid window_seconds"})
			return
		}
		windowSeconds = parsed
	}
	apr, err := s.vault.QueryAPR(windowSeconds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"apr": apr.String()})
}

func (s *Server) handleHubAPR(w http.ResponseWriter, r *http.Request) {
	windowSeconds := uint64(30 * 24 * 3600)
	if raw := r.URL.Query().Get("window_seconds"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || parsed == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid window_seconds"})
			return
		}
		windowSeconds = parsed
	}
	apr, err := s.hub.QueryAPR(windowSeconds)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"apr": apr.String()})
}

func (s *Server) handleVaultUnbonding(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	entries, err := s.vault.UserUnbondHistory(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, map[string]string{
			"id":          strconv.FormatUint(entry.ID, 10),
			"startTime":   strconv.FormatUint(entry.StartTime, 10),
			"releaseTime": strconv.FormatUint(entry.ReleaseTime, 10),
			"amount":      bigString(entry.Amount),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHubState(w http.ResponseWriter, _ *http.Request) {
	pending, err := s.hub.PendingBatch()
	if err != nil {
		s.writeError(w, err)
		return
	}
	rate, err := s.hub.ExchangeRate()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"pendingBatchId":     strconv.FormatUint(pending.ID, 10),
		"pendingTotalShares": bigString(pending.TotalShares),
		"exchangeRate":       rate.String(),
	})
}

func (s *Server) handleHubBatches(w http.ResponseWriter, _ *http.Request) {
	batches, err := s.hub.Batches()
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(batches))
	for _, batch := range batches {
		out = append(out, map[string]interface{}{
			"id":               strconv.FormatUint(batch.ID, 10),
			"totalShares":      bigString(batch.TotalShares),
			"utokenUnbonding":  bigString(batch.UtokenUnbonding),
			"estUnbondEndTime": strconv.FormatUint(batch.EstUnbondEndTime, 10),
			"reconciled":       batch.Reconciled,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHubRequests(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	reqs, err := s.hub.UserRequests(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, map[string]string{
			"batchId": strconv.FormatUint(req.BatchID, 10),
			"shares":  bigString(req.Shares),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAmpzExecutions(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	states, err := s.ampz.Executions(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]map[string]string, 0, len(states))
	for _, state := range states {
		out = append(out, map[string]string{
			"id":              strconv.FormatUint(state.Execution.ID, 10),
			"sourceKey":       state.Execution.Source.UniqueKey(),
			"intervalSeconds": strconv.FormatUint(state.Execution.Schedule.IntervalSeconds, 10),
			"lastExecution":   strconv.FormatUint(state.LastExecution, 10),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFarmStake(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, r)
	if !ok {
		return
	}
	shares, value, err := s.farm.StakeOf(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"shares": bigString(shares),
		"value":  bigString(value),
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, arbvault.ErrUnauthorized) || errors.Is(err, hub.ErrUnauthorized) || errors.Is(err, ampz.ErrUnauthorized) {
		status = http.StatusForbidden
	}
	if errors.Is(err, ampz.ErrNotFound) || errors.Is(err, hub.ErrBatchNotFound) {
		status = http.StatusNotFound
	}
	s.logger.Error("request failed", "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseAddress(w http.ResponseWriter, r *http.Request) (types.Address, bool) {
	raw := chi.URLParam(r, "address")
	addr, err := types.AddressFromHex(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid address"})
		return types.Address{}, false
	}
	return addr, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
