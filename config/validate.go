package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Validate checks the structural invariants of a loaded configuration before
// the daemon wires it into the engines. Protocol-level invariants (step
// ordering, fee bounds) are re-checked by the engines themselves.
func Validate(cfg *Config) error {
	if cfg.Backend != "leveldb" && cfg.Backend != "bolt" {
		return fmt.Errorf("config: unknown storage backend %q", cfg.Backend)
	}
	if cfg.Vault.UtokenDenom == "" {
		return fmt.Errorf("config: vault utoken denom must not be empty")
	}
	if cfg.Hub.StakeDenom == "" {
		return fmt.Errorf("config: hub stake denom must not be empty")
	}
	if cfg.Hub.EpochPeriodSeconds == 0 || cfg.Hub.UnbondPeriodSeconds == 0 {
		return fmt.Errorf("config: hub periods must be positive")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"Vault.PerformanceFee", cfg.Vault.PerformanceFee},
		{"Vault.WithdrawFee", cfg.Vault.WithdrawFee},
		{"Vault.ImmediateWithdrawFee", cfg.Vault.ImmediateWithdrawFee},
		{"Ampz.ProtocolFee", cfg.Ampz.ProtocolFee},
		{"Ampz.ExecutorFee", cfg.Ampz.ExecutorFee},
		{"Farm.PerformanceFee", cfg.Farm.PerformanceFee},
	} {
		if field.value == "" {
			continue
		}
		if _, err := decimal.NewFromString(field.value); err != nil {
			return fmt.Errorf("config: invalid decimal for %s: %w", field.name, err)
		}
	}
	for i, step := range cfg.Vault.Utilization {
		if _, err := decimal.NewFromString(step.Profit); err != nil {
			return fmt.Errorf("config: invalid utilization profit at %d: %w", i, err)
		}
		if _, err := decimal.NewFromString(step.Takeable); err != nil {
			return fmt.Errorf("config: invalid utilization takeable at %d: %w", i, err)
		}
	}
	for i, adapter := range cfg.Vault.Adapters {
		if adapter.Name == "" || adapter.Kind == "" || adapter.Endpoint == "" {
			return fmt.Errorf("config: adapter %d needs name, kind and endpoint", i)
		}
	}
	for i, route := range cfg.Swap.Routes {
		if route.From == "" || route.To == "" {
			return fmt.Errorf("config: swap route %d needs both assets", i)
		}
		if _, err := decimal.NewFromString(route.Rate); err != nil {
			return fmt.Errorf("config: invalid swap rate at %d: %w", i, err)
		}
	}
	return nil
}
