package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// Backend selects the storage engine, "leveldb" or "bolt".
	Backend     string `toml:"Backend"`
	Environment string `toml:"Environment"`

	LogFile       string `toml:"LogFile,omitempty"`
	LogMaxSizeMB  int    `toml:"LogMaxSizeMB,omitempty"`
	LogMaxBackups int    `toml:"LogMaxBackups,omitempty"`
	LogMaxAgeDays int    `toml:"LogMaxAgeDays,omitempty"`

	Contracts Contracts `toml:"Contracts"`
	Vault     Vault     `toml:"Vault"`
	Hub       Hub       `toml:"Hub"`
	Ampz      Ampz      `toml:"Ampz"`
	Farm      Farm      `toml:"Farm"`
	Swap      Swap      `toml:"Swap"`
}

// Contracts names the protocol accounts the engines act as and talk to.
type Contracts struct {
	Vault               string `toml:"Vault"`
	Hub                 string `toml:"Hub"`
	Ampz                string `toml:"Ampz"`
	Farm                string `toml:"Farm"`
	Zapper              string `toml:"Zapper"`
	Owner               string `toml:"Owner"`
	Controller          string `toml:"Controller"`
	ProtocolFeeReceiver string `toml:"ProtocolFeeReceiver"`
}

// Vault carries the arb-vault protocol parameters.
type Vault struct {
	UtokenDenom          string            `toml:"UtokenDenom"`
	LpToken              string            `toml:"LpToken"`
	UnbondTimeSeconds    uint64            `toml:"UnbondTimeSeconds"`
	PerformanceFee       string            `toml:"PerformanceFee"`
	WithdrawFee          string            `toml:"WithdrawFee"`
	ImmediateWithdrawFee string            `toml:"ImmediateWithdrawFee"`
	Utilization          []UtilizationStep `toml:"Utilization"`
	Adapters             []Adapter         `toml:"Adapters,omitempty"`
}

// Adapter configures one external liquid-staking protocol the vault holds
// positions in. Token is a denom or a contract address in hex; Endpoint is
// the protocol's JSON query URL.
type Adapter struct {
	Name     string `toml:"Name"`
	Kind     string `toml:"Kind"`
	Contract string `toml:"Contract"`
	Token    string `toml:"Token"`
	Endpoint string `toml:"Endpoint"`
}

// UtilizationStep is one entry of the takeable step function.
type UtilizationStep struct {
	Profit   string `toml:"Profit"`
	Takeable string `toml:"Takeable"`
}

// Hub carries the staking-hub protocol parameters.
type Hub struct {
	StakeDenom          string   `toml:"StakeDenom"`
	ShareToken          string   `toml:"ShareToken"`
	EpochPeriodSeconds  uint64   `toml:"EpochPeriodSeconds"`
	UnbondPeriodSeconds uint64   `toml:"UnbondPeriodSeconds"`
	Validators          []string `toml:"Validators"`
}

// Ampz carries the scheduler protocol parameters.
type Ampz struct {
	ProtocolFee string `toml:"ProtocolFee"`
	ExecutorFee string `toml:"ExecutorFee"`
}

// Farm carries the compounding-farm protocol parameters. Assets are denoms
// or contract addresses in hex.
type Farm struct {
	LpToken        string   `toml:"LpToken"`
	RewardAssets   []string `toml:"RewardAssets"`
	PerformanceFee string   `toml:"PerformanceFee"`
}

// Swap seeds the conversion routes the farm's compound estimates run over.
type Swap struct {
	Routes []SwapRoute `toml:"Routes,omitempty"`
}

// SwapRoute is one directed conversion pair with its quoted rate.
type SwapRoute struct {
	From string `toml:"From"`
	To   string `toml:"To"`
	Rate string `toml:"Rate"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./amplifier-data"
	}
	if cfg.Backend == "" {
		cfg.Backend = "leveldb"
	}
	if cfg.Environment == "" {
		cfg.Environment = "local"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Vault = Vault{
		UtokenDenom:          "uluna",
		UnbondTimeSeconds:    1814400,
		PerformanceFee:       "0.1",
		WithdrawFee:          "0.01",
		ImmediateWithdrawFee: "0.05",
		Utilization: []UtilizationStep{
			{Profit: "0.005", Takeable: "0.5"},
			{Profit: "0.01", Takeable: "0.7"},
			{Profit: "0.025", Takeable: "1.0"},
		},
	}
	cfg.Hub = Hub{
		StakeDenom:          "uluna",
		EpochPeriodSeconds:  259200,
		UnbondPeriodSeconds: 1814400,
	}
	cfg.Ampz = Ampz{
		ProtocolFee: "0.01",
		ExecutorFee: "0.02",
	}
	cfg.Farm = Farm{
		LpToken:        "ulp",
		RewardAssets:   []string{"uluna"},
		PerformanceFee: "0.05",
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
