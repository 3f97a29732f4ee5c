package arbvault

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Storage abstracts the subset of state-store functionality required by the
// vault.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Store persists the vault's configuration, the locked-withdrawals counter,
// the in-flight checkpoint, the unbond ledger and the rate history.
type Store struct {
	kv Storage
}

// NewStore wraps the provided storage backend.
func NewStore(kv Storage) *Store {
	return &Store{kv: kv}
}

type storedUtilizationStep struct {
	Profit   string
	Takeable string
}

type storedConfig struct {
	UtokenDenom       string
	LpTokenKind       uint8
	LpTokenDenom      string
	LpTokenContract   [20]byte
	UnbondTimeSeconds uint64
	Utilization       []storedUtilizationStep
}

// SetConfig validates and persists the vault configuration.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	stored := storedConfig{
		UtokenDenom:       cfg.UtokenDenom,
		LpTokenKind:       uint8(cfg.LpToken.Kind),
		LpTokenDenom:      cfg.LpToken.Denom,
		LpTokenContract:   cfg.LpToken.Contract,
		UnbondTimeSeconds: cfg.UnbondTimeSeconds,
	}
	for _, step := range cfg.Utilization {
		stored.Utilization = append(stored.Utilization, storedUtilizationStep{
			Profit:   step.Profit.String(),
			Takeable: step.Takeable.String(),
		})
	}
	return s.kv.KVPut(configKey, &stored)
}

// GetConfig loads the vault configuration.
func (s *Store) GetConfig() (Config, error) {
	var stored storedConfig
	found, err := s.kv.KVGet(configKey, &stored)
	if err != nil {
		return Config{}, err
	}
	if !found {
		return Config{}, fmt.Errorf("arbvault: config not initialised")
	}
	cfg := Config{
		UtokenDenom: stored.UtokenDenom,
		LpToken: types.Asset{
			Kind:     types.AssetKind(stored.LpTokenKind),
			Denom:    stored.LpTokenDenom,
			Contract: stored.LpTokenContract,
		},
		UnbondTimeSeconds: stored.UnbondTimeSeconds,
	}
	for _, step := range stored.Utilization {
		profit, err := decimal.NewFromString(step.Profit)
		if err != nil {
			return Config{}, fmt.Errorf("arbvault: corrupt utilization profit: %w", err)
		}
		takeable, err := decimal.NewFromString(step.Takeable)
		if err != nil {
			return Config{}, fmt.Errorf("arbvault: corrupt utilization takeable: %w", err)
		}
		cfg.Utilization = append(cfg.Utilization, UtilizationStep{Profit: profit, Takeable: takeable})
	}
	return cfg, nil
}

type storedFeeConfig struct {
	ProtocolFeeReceiver  [20]byte
	PerformanceFee       string
	WithdrawFee          string
	ImmediateWithdrawFee string
}

// SetFeeConfig validates and persists the fee schedule.
func (s *Store) SetFeeConfig(fees FeeConfig) error {
	if err := fees.Validate(); err != nil {
		return err
	}
	return s.kv.KVPut(feeConfigKey, &storedFeeConfig{
		ProtocolFeeReceiver:  fees.ProtocolFeeReceiver,
		PerformanceFee:       fees.PerformanceFee.String(),
		WithdrawFee:          fees.WithdrawFee.String(),
		ImmediateWithdrawFee: fees.ImmediateWithdrawFee.String(),
	})
}

// GetFeeConfig loads the fee schedule.
func (s *Store) GetFeeConfig() (FeeConfig, error) {
	var stored storedFeeConfig
	found, err := s.kv.KVGet(feeConfigKey, &stored)
	if err != nil {
		return FeeConfig{}, err
	}
	if !found {
		return FeeConfig{}, fmt.Errorf("arbvault: fee config not initialised")
	}
	performance, err := decimal.NewFromString(stored.PerformanceFee)
	if err != nil {
		return FeeConfig{}, fmt.Errorf("arbvault: corrupt performance fee: %w", err)
	}
	withdraw, err := decimal.NewFromString(stored.WithdrawFee)
	if err != nil {
		return FeeConfig{}, fmt.Errorf("arbvault: corrupt withdraw fee: %w", err)
	}
	immediate, err := decimal.NewFromString(stored.ImmediateWithdrawFee)
	if err != nil {
		return FeeConfig{}, fmt.Errorf("arbvault: corrupt immediate withdraw fee: %w", err)
	}
	return FeeConfig{
		ProtocolFeeReceiver:  stored.ProtocolFeeReceiver,
		PerformanceFee:       performance,
		WithdrawFee:          withdraw,
		ImmediateWithdrawFee: immediate,
	}, nil
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
		return types.Address{}, fmt.Errorf("arbvault: owner not initialised")
	}
	return types.BytesToAddress(raw), nil
}

// AddWhitelisted records an address permitted to open arbitrage rounds.
func (s *Store) AddWhitelisted(addr types.Address) error {
	return s.kv.KVAppend(whitelistKey, addr[:])
}

// RemoveWhitelisted drops an address from the executor whitelist.
func (s *Store) RemoveWhitelisted(addr types.Address) error {
	return s.kv.KVRemove(whitelistKey, addr[:])
}

// IsWhitelisted reports whether the address may open arbitrage rounds.
func (s *Store) IsWhitelisted(addr types.Address) (bool, error) {
	var list [][]byte
	if err := s.kv.KVGetList(whitelistKey, &list); err != nil {
		return false, err
	}
	for _, entry := range list {
		if types.BytesToAddress(entry) == addr {
			return true, nil
		}
	}
	return false, nil
}

type storedCheckpoint struct {
	VaultAvailable *big.Int
	TvlUtoken      *big.Int
}

// PutCheckpoint persists the round checkpoint. Its presence is the lock.
func (s *Store) PutCheckpoint(cp BalanceCheckpoint) error {
	return s.kv.KVPut(checkpointKey, &storedCheckpoint{
		VaultAvailable: cp.VaultAvailable,
		TvlUtoken:      cp.TvlUtoken,
	})
}

// GetCheckpoint loads the in-flight round checkpoint if present.
func (s *Store) GetCheckpoint() (BalanceCheckpoint, bool, error) {
	var stored storedCheckpoint
	found, err := s.kv.KVGet(checkpointKey, &stored)
	if err != nil || !found {
		return BalanceCheckpoint{}, found, err
	}
	return BalanceCheckpoint{
		VaultAvailable: stored.VaultAvailable,
		TvlUtoken:      stored.TvlUtoken,
	}, true, nil
}

// DeleteCheckpoint releases the round lock.
func (s *Store) DeleteCheckpoint() error {
	return s.kv.KVDelete(checkpointKey)
}

// LockedWithdrawals loads the global locked-withdrawals counter.
func (s *Store) LockedWithdrawals() (*big.Int, error) {
	var locked *big.Int
	found, err := s.kv.KVGet(lockedKey, &locked)
	if err != nil {
		return nil, err
	}
	if !found || locked == nil {
		return big.NewInt(0), nil
	}
	return locked, nil
}

// SetLockedWithdrawals persists the locked-withdrawals counter.
func (s *Store) SetLockedWithdrawals(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("arbvault: locked withdrawals must be non-negative")
	}
	return s.kv.KVPut(lockedKey, amount)
}

// NextUnbondID increments and returns the monotonically increasing unbond id.
func (s *Store) NextUnbondID() (uint64, error) {
	var current uint64
	if _, err := s.kv.KVGet(unbondSeqKey, &current); err != nil {
		return 0, err
	}
	next := current + 1
	if err := s.kv.KVPut(unbondSeqKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

type storedUnbondHistory struct {
	ID          uint64
	User        [20]byte
	StartTime   uint64
	ReleaseTime uint64
	Amount      *big.Int
}

// PutUnbondHistory persists a ledger entry and indexes it by user.
func (s *Store) PutUnbondHistory(entry UnbondHistory) error {
	stored := storedUnbondHistory{
		ID:          entry.ID,
		User:        entry.User,
		StartTime:   entry.StartTime,
		ReleaseTime: entry.ReleaseTime,
		Amount:      entry.Amount,
	}
	if err := s.kv.KVPut(unbondKey(entry.User, entry.ID), &stored); err != nil {
		return err
	}
	return s.kv.KVAppend(unbondIndexKey(entry.User), encodeID(entry.ID))
}

// GetUnbondHistory loads one ledger entry.
func (s *Store) GetUnbondHistory(user types.Address, id uint64) (UnbondHistory, bool, error) {
	var stored storedUnbondHistory
	found, err := s.kv.KVGet(unbondKey(user, id), &stored)
	if err != nil || !found {
		return UnbondHistory{}, found, err
	}
	return UnbondHistory{
		ID:          stored.ID,
		User:        stored.User,
		StartTime:   stored.StartTime,
		ReleaseTime: stored.ReleaseTime,
		Amount:      stored.Amount,
	}, true, nil
}

// DeleteUnbondHistory removes a claimed entry and its index reference.
func (s *Store) DeleteUnbondHistory(user types.Address, id uint64) error {
	if err := s.kv.KVDelete(unbondKey(user, id)); err != nil {
		return err
	}
	return s.kv.KVRemove(unbondIndexKey(user), encodeID(id))
}

// UserUnbondHistory lists a user's pending entries ordered by id.
func (s *Store) UserUnbondHistory(user types.Address) ([]UnbondHistory, error) {
	var ids [][]byte
	if err := s.kv.KVGetList(unbondIndexKey(user), &ids); err != nil {
		return nil, err
	}
	entries := make([]UnbondHistory, 0, len(ids))
	for _, raw := range ids {
		entry, found, err := s.GetUnbondHistory(user, decodeID(raw))
		if err != nil {
			return nil, err
		}
		if found {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

type storedRateEntry struct {
	Day  string
	Rate string
	Time uint64
}

// PutRateEntry records the day's share-value observation, last write wins.
func (s *Store) PutRateEntry(entry RateEntry) error {
	var existing storedRateEntry
	found, err := s.kv.KVGet(rateKey(entry.Day), &existing)
	if err != nil {
		return err
	}
	if err := s.kv.KVPut(rateKey(entry.Day), &storedRateEntry{
		Day:  entry.Day,
		Rate: entry.Rate.String(),
		Time: entry.Time,
	}); err != nil {
		return err
	}
	if found {
		return nil
	}
	return s.kv.KVAppend(rateIndexKey, []byte(entry.Day))
}

// RateHistory returns all recorded entries ordered by day.
func (s *Store) RateHistory() ([]RateEntry, error) {
	var days [][]byte
	if err := s.kv.KVGetList(rateIndexKey, &days); err != nil {
		return nil, err
	}
	entries := make([]RateEntry, 0, len(days))
	for _, day := range days {
		var stored storedRateEntry
		found, err := s.kv.KVGet(rateKey(string(day)), &stored)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		rate, err := decimal.NewFromString(stored.Rate)
		if err != nil {
			return nil, fmt.Errorf("arbvault: corrupt rate entry %s: %w", stored.Day, err)
		}
		entries = append(entries, RateEntry{Day: stored.Day, Rate: rate, Time: stored.Time})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Day < entries[j].Day })
	return entries, nil
}
