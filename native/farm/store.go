package farm

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Storage abstracts the subset of state-store functionality required by the
// farm.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

var (
	configKey      = []byte("farm/config")
	ownerKey       = []byte("farm/owner")
	totalSharesKey = []byte("farm/total")
	stakePrefix    = []byte("farm/stake/")
)

func stakeKey(user types.Address) []byte {
	buf := make([]byte, len(stakePrefix)+len(user))
	copy(buf, stakePrefix)
	copy(buf[len(stakePrefix):], user[:])
	return buf
}

// Store persists the farm's configuration and stake book.
type Store struct {
	kv Storage
}

// NewStore wraps the provided storage backend.
func NewStore(kv Storage) *Store {
	return &Store{kv: kv}
}

type storedConfig struct {
	LpTokenKind     uint8
	LpTokenDenom    string
	LpTokenAddr     [20]byte
	RewardKinds     []uint8
	RewardDenoms    []string
	RewardContracts [][20]byte
	Zapper          [20]byte
	PerformanceFee  string
	FeeReceiver     [20]byte
}

// SetConfig validates and persists the farm configuration.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	stored := &storedConfig{
		LpTokenKind:    uint8(cfg.LpToken.Kind),
		LpTokenDenom:   cfg.LpToken.Denom,
		LpTokenAddr:    cfg.LpToken.Contract,
		Zapper:         cfg.Zapper,
		PerformanceFee: cfg.PerformanceFee.String(),
		FeeReceiver:    cfg.FeeReceiver,
	}
	for _, asset := range cfg.RewardAssets {
		stored.RewardKinds = append(stored.RewardKinds, uint8(asset.Kind))
		stored.RewardDenoms = append(stored.RewardDenoms, asset.Denom)
		stored.RewardContracts = append(stored.RewardContracts, asset.Contract)
	}
	return s.kv.KVPut(configKey, stored)
}

// GetConfig loads the farm configuration.
func (s *Store) GetConfig() (Config, error) {
	var stored storedConfig
	found, err := s.kv.KVGet(configKey, &stored)
	if err != nil {
		return Config{}, err
	}
	if !found {
		return Config{}, fmt.Errorf("farm: config not initialised")
	}
	fee, err := decimal.NewFromString(stored.PerformanceFee)
	if err != nil {
		return Config{}, fmt.Errorf("farm: corrupt performance fee: %w", err)
	}
	cfg := Config{
		LpToken: types.Asset{
			Kind:     types.AssetKind(stored.LpTokenKind),
			Denom:    stored.LpTokenDenom,
			Contract: stored.LpTokenAddr,
		},
		Zapper:         stored.Zapper,
		PerformanceFee: fee,
		FeeReceiver:    stored.FeeReceiver,
	}
	for i := range stored.RewardKinds {
		cfg.RewardAssets = append(cfg.RewardAssets, types.Asset{
			Kind:     types.AssetKind(stored.RewardKinds[i]),
			Denom:    stored.RewardDenoms[i],
			Contract: stored.RewardContracts[i],
		})
	}
	return cfg, nil
}

// SetOwner persists the owner address.
func (s *Store) SetOwner(owner types.Address) error {
	return s.kv.KVPut(ownerKey, owner[:])
}

// GetOwner loads the owner address.
func (s *Store) GetOwner() (types.Address, error) {
	var raw []byte
	found, err := s.kv.KVGet(ownerKey, &raw)
	if err != nil {
		return types.Address{}, err
	}
	if !found {
		return types.Address{}, fmt.Errorf("farm: owner not initialised")
	}
	return types.BytesToAddress(raw), nil
}

// TotalShares loads the farm-wide share count.
func (s *Store) TotalShares() (*big.Int, error) {
	var total *big.Int
	found, err := s.kv.KVGet(totalSharesKey, &total)
	if err != nil {
		return nil, err
	}
	if !found || total == nil {
		return big.NewInt(0), nil
	}
	return total, nil
}

// SetTotalShares persists the farm-wide share count.
func (s *Store) SetTotalShares(total *big.Int) error {
	if total == nil || total.Sign() < 0 {
		return fmt.Errorf("farm: total shares must be non-negative")
	}
	return s.kv.KVPut(totalSharesKey, total)
}

// Stake loads a user's share balance.
func (s *Store) Stake(user types.Address) (*big.Int, error) {
	var shares *big.Int
	found, err := s.kv.KVGet(stakeKey(user), &shares)
	if err != nil {
		return nil, err
	}
	if !found || shares == nil {
		return big.NewInt(0), nil
	}
	return shares, nil
}

// SetStake persists a user's share balance, deleting the entry at zero.
func (s *Store) SetStake(user types.Address, shares *big.Int) error {
	if shares == nil || shares.Sign() < 0 {
		return fmt.Errorf("farm: stake must be non-negative")
	}
	if shares.Sign() == 0 {
		return s.kv.KVDelete(stakeKey(user))
	}
	return s.kv.KVPut(stakeKey(user), shares)
}
