package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"amplifier/config"
	"amplifier/core/types"
	"amplifier/gateway"
	"amplifier/native/ampz"
	"amplifier/native/arbvault"
	"amplifier/native/arbvault/lsds"
	"amplifier/native/bank"
	"amplifier/native/farm"
	"amplifier/native/hub"
	"amplifier/native/swap"
	"amplifier/observability"
	"amplifier/observability/logging"
	"amplifier/state"
	"amplifier/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("ampd", cfg.Environment, logging.Options{
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	deps, err := wire(cfg, state.NewStore(db), logger)
	if err != nil {
		logger.Error("failed to wire engines", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           gateway.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "address", cfg.ListenAddress)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "bolt":
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "amplifier.bolt"))
	default:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "amplifier.leveldb"))
	}
}

// wire builds the module engines over one shared state store. Module configs
// persist in state; the file config seeds them on first start and governance
// mutates them afterwards, so a seed failure on a module that is not yet
// parameterised only logs.
func wire(cfg *config.Config, kv *state.Store, logger *slog.Logger) (gateway.Deps, error) {
	ledger := bank.NewLedger(kv)
	emitter := observability.NewEventEmitter(logger)

	vaultAddr := parseAddress(cfg.Contracts.Vault)
	hubAddr := parseAddress(cfg.Contracts.Hub)
	ampzAddr := parseAddress(cfg.Contracts.Ampz)
	farmAddr := parseAddress(cfg.Contracts.Farm)

	group, err := buildAdapters(cfg.Vault.Adapters)
	if err != nil {
		return gateway.Deps{}, err
	}

	vaultStore := arbvault.NewStore(kv)
	if _, err := vaultStore.GetConfig(); err != nil {
		if err := seedVault(cfg, vaultStore); err != nil {
			logger.Warn("vault not seeded", "error", err)
		}
	}
	vault := arbvault.NewEngine(vaultStore, group, ledger, vaultAddr)
	vault.SetEmitter(emitter)

	hubStore := hub.NewStore(kv)
	if _, err := hubStore.GetConfig(); err != nil {
		if err := seedHub(cfg, hubStore); err != nil {
			logger.Warn("hub not seeded", "error", err)
		}
	}
	hubEngine := hub.NewEngine(hubStore, ledger, ledger, hubAddr)
	hubEngine.SetEmitter(emitter)

	ampzStore := ampz.NewStore(kv)
	if _, err := ampzStore.GetConfig(); err != nil {
		if err := seedAmpz(cfg, ampzStore); err != nil {
			logger.Warn("ampz not seeded", "error", err)
		}
	}
	ampzEngine := ampz.NewEngine(ampzStore, ledger, ampzAddr)
	ampzEngine.SetEmitter(emitter)

	swapStore := swap.NewStore(kv)
	for _, route := range cfg.Swap.Routes {
		rate, err := decimal.NewFromString(route.Rate)
		if err != nil {
			return gateway.Deps{}, fmt.Errorf("swap route %s/%s: %w", route.From, route.To, err)
		}
		if err := swapStore.SetRoute(parseAsset(route.From), parseAsset(route.To), rate); err != nil {
			return gateway.Deps{}, fmt.Errorf("swap route %s/%s: %w", route.From, route.To, err)
		}
	}

	farmStore := farm.NewStore(kv)
	if _, err := farmStore.GetConfig(); err != nil {
		if err := seedFarm(cfg, farmStore); err != nil {
			logger.Warn("farm not seeded", "error", err)
		}
	}
	farmEngine := farm.NewEngine(farmStore, ledger, swap.NewProxy(swapStore), farmAddr)
	farmEngine.SetEmitter(emitter)

	return gateway.Deps{
		Vault:  vault,
		Hub:    hubEngine,
		Ampz:   ampzEngine,
		Farm:   farmEngine,
		Logger: logger,
	}, nil
}

func buildAdapters(entries []config.Adapter) (*lsds.Group, error) {
	adapters := make([]*lsds.Adapter, 0, len(entries))
	for _, entry := range entries {
		kind, err := lsds.ParseKind(entry.Kind)
		if err != nil {
			return nil, fmt.Errorf("adapter %s: %w", entry.Name, err)
		}
		client := lsds.NewHTTPClient(entry.Endpoint)
		contract := parseAddress(entry.Contract)
		token := parseAsset(entry.Token)

		var adapter *lsds.Adapter
		if kind == lsds.KindPrism {
			adapter, err = lsds.NewPrismAdapter(entry.Name, contract, token, client)
		} else {
			adapter, err = lsds.NewBatchAdapter(entry.Name, kind, contract, token, client)
		}
		if err != nil {
			return nil, fmt.Errorf("adapter %s: %w", entry.Name, err)
		}
		adapters = append(adapters, adapter)
	}
	return lsds.NewGroup(adapters)
}

func seedVault(cfg *config.Config, store *arbvault.Store) error {
	steps := make([]arbvault.UtilizationStep, 0, len(cfg.Vault.Utilization))
	for _, step := range cfg.Vault.Utilization {
		steps = append(steps, arbvault.UtilizationStep{
			Profit:   parseFee(step.Profit),
			Takeable: parseFee(step.Takeable),
		})
	}
	err := store.SetConfig(arbvault.Config{
		UtokenDenom:       cfg.Vault.UtokenDenom,
		LpToken:           parseAsset(cfg.Vault.LpToken),
		UnbondTimeSeconds: cfg.Vault.UnbondTimeSeconds,
		Utilization:       steps,
	})
	if err != nil {
		return err
	}
	err = store.SetFeeConfig(arbvault.FeeConfig{
		ProtocolFeeReceiver:  parseAddress(cfg.Contracts.ProtocolFeeReceiver),
		PerformanceFee:       parseFee(cfg.Vault.PerformanceFee),
		WithdrawFee:          parseFee(cfg.Vault.WithdrawFee),
		ImmediateWithdrawFee: parseFee(cfg.Vault.ImmediateWithdrawFee),
	})
	if err != nil {
		return err
	}
	return store.SetOwner(parseAddress(cfg.Contracts.Owner))
}

func seedHub(cfg *config.Config, store *hub.Store) error {
	err := store.SetConfig(hub.Config{
		StakeDenom:          cfg.Hub.StakeDenom,
		ShareToken:          parseAsset(cfg.Hub.ShareToken),
		EpochPeriodSeconds:  cfg.Hub.EpochPeriodSeconds,
		UnbondPeriodSeconds: cfg.Hub.UnbondPeriodSeconds,
		Validators:          cfg.Hub.Validators,
	})
	if err != nil {
		return err
	}
	return store.SetOwner(parseAddress(cfg.Contracts.Owner))
}

func seedAmpz(cfg *config.Config, store *ampz.Store) error {
	err := store.SetConfig(ampz.Config{
		Controller:          parseAddress(cfg.Contracts.Controller),
		ProtocolFeeReceiver: parseAddress(cfg.Contracts.ProtocolFeeReceiver),
		ProtocolFee:         parseFee(cfg.Ampz.ProtocolFee),
		ExecutorFee:         parseFee(cfg.Ampz.ExecutorFee),
		Hub:                 parseAddress(cfg.Contracts.Hub),
		Zapper:              parseAddress(cfg.Contracts.Zapper),
		StakeDenom:          cfg.Hub.StakeDenom,
	})
	if err != nil {
		return err
	}
	return store.SetOwner(parseAddress(cfg.Contracts.Owner))
}

func seedFarm(cfg *config.Config, store *farm.Store) error {
	rewards := make([]types.Asset, 0, len(cfg.Farm.RewardAssets))
	for _, asset := range cfg.Farm.RewardAssets {
		rewards = append(rewards, parseAsset(asset))
	}
	err := store.SetConfig(farm.Config{
		LpToken:        parseAsset(cfg.Farm.LpToken),
		RewardAssets:   rewards,
		Zapper:         parseAddress(cfg.Contracts.Zapper),
		PerformanceFee: parseFee(cfg.Farm.PerformanceFee),
		FeeReceiver:    parseAddress(cfg.Contracts.ProtocolFeeReceiver),
	})
	if err != nil {
		return err
	}
	return store.SetOwner(parseAddress(cfg.Contracts.Owner))
}

// parseFee is lenient like parseAddress: unset or malformed rates map to
// zero and module validation decides whether that is acceptable. Load has
// already rejected files with malformed decimals.
func parseFee(s string) decimal.Decimal {
	rate, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return rate
}

// parseAddress is lenient: an empty string maps to the zero address so
// optional accounts can stay unconfigured. Malformed values also map to
// zero; module validation rejects them where an account is required.
func parseAddress(s string) types.Address {
	addr, err := types.AddressFromHex(strings.TrimSpace(s))
	if err != nil {
		return types.Address{}
	}
	return addr
}

// parseAsset treats a value that parses as an address as a token contract
// and anything else as a native denom.
func parseAsset(s string) types.Asset {
	trimmed := strings.TrimSpace(s)
	if addr, err := types.AddressFromHex(trimmed); err == nil {
		return types.TokenAsset(addr)
	}
	return types.NativeAsset(trimmed)
}
