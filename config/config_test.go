package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != "leveldb" {
		t.Fatalf("expected leveldb default, got %q", cfg.Backend)
	}
	if len(cfg.Vault.Utilization) == 0 {
		t.Fatal("expected default utilization steps")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// Reloading the written default must round-trip.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Hub.EpochPeriodSeconds != cfg.Hub.EpochPeriodSeconds {
		t.Fatalf("round-trip mismatch: %d != %d", reloaded.Hub.EpochPeriodSeconds, cfg.Hub.EpochPeriodSeconds)
	}
}

func TestLoadRejectsBadBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
ListenAddress = ":8080"
Backend = "postgres"

[Vault]
UtokenDenom = "uluna"

[Hub]
StakeDenom = "uluna"
EpochPeriodSeconds = 259200
UnbondPeriodSeconds = 1814400
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadRejectsIncompleteAdapter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[Vault]
UtokenDenom = "uluna"

[[Vault.Adapters]]
Name = "eris"
Kind = "eris"

[Hub]
StakeDenom = "uluna"
EpochPeriodSeconds = 259200
UnbondPeriodSeconds = 1814400
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for adapter without endpoint")
	}
}

func TestLoadRejectsBadDecimal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[Vault]
UtokenDenom = "uluna"
PerformanceFee = "ten percent"

[Hub]
StakeDenom = "uluna"
EpochPeriodSeconds = 259200
UnbondPeriodSeconds = 1814400
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed fee")
	}
}
