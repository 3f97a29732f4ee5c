package hub

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Storage abstracts the subset of state-store functionality required by the
// hub.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	configKey     = []byte("hub/config")
	ownerKey      = []byte("hub/owner")
	pendingKey    = []byte("hub/pending")
	lastSubmitKey = []byte("hub/lastsubmit")
	reservedKey   = []byte("hub/reserved")

	batchPrefix      = []byte("hub/batch/")
	batchIndexKey    = []byte("hub/batch/index")
	requestPrefix    = []byte("hub/request/")
	requestIdxPrefix = []byte("hub/request/user/")
	ratePrefix       = []byte("hub/rate/")
	rateIndexKey     = []byte("hub/rate/index")
)

func rateKey(day string) []byte {
	return append(append([]byte{}, ratePrefix...), day...)
}

func batchKey(id uint64) []byte {
	buf := make([]byte, len(batchPrefix)+8)
	copy(buf, batchPrefix)
	binary.BigEndian.PutUint64(buf[len(batchPrefix):], id)
	return buf
}

func requestKey(batchID uint64, user types.Address) []byte {
	buf := make([]byte, len(requestPrefix)+8+len(user))
	copy(buf, requestPrefix)
	binary.BigEndian.PutUint64(buf[len(requestPrefix):], batchID)
	copy(buf[len(requestPrefix)+8:], user[:])
	return buf
}

func requestIndexKey(user types.Address) []byte {
	buf := make([]byte, len(requestIdxPrefix)+len(user))
	copy(buf, requestIdxPrefix)
	copy(buf[len(requestIdxPrefix):], user[:])
	return buf
}

func encodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeID(raw []byte) uint64 {
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

// Store persists the hub's configuration and batch state machine.
type Store struct {
	kv Storage
}

// NewStore wraps the provided storage backend.
func NewStore(kv Storage) *Store {
	return &Store{kv: kv}
}

type storedConfig struct {
	StakeDenom          string
	ShareTokenKind      uint8
	ShareTokenDenom     string
	ShareTokenContract  [20]byte
	EpochPeriodSeconds  uint64
	UnbondPeriodSeconds uint64
	Validators          []string
}

// SetConfig validates and persists the hub configuration.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.kv.KVPut(configKey, &storedConfig{
		StakeDenom:          cfg.StakeDenom,
		ShareTokenKind:      uint8(cfg.ShareToken.Kind),
		ShareTokenDenom:     cfg.ShareToken.Denom,
		ShareTokenContract:  cfg.ShareToken.Contract,
		EpochPeriodSeconds:  cfg.EpochPeriodSeconds,
		UnbondPeriodSeconds: cfg.UnbondPeriodSeconds,
		Validators:          cfg.Validators,
	})
}

// GetConfig loads the hub configuration.
func (s *Store) GetConfig() (Config, error) {
	var stored storedConfig
	found, err := s.kv.KVGet(configKey, &stored)
	if err != nil {
		return Config{}, err
	}
	if !found {
		return Config{}, fmt.Errorf("hub: config not initialised")
	}
	return Config{
		StakeDenom: stored.StakeDenom,
		ShareToken: types.Asset{
			Kind:     types.AssetKind(stored.ShareTokenKind),
			Denom:    stored.ShareTokenDenom,
			Contract: stored.ShareTokenContract,
		},
		EpochPeriodSeconds:  stored.EpochPeriodSeconds,
		UnbondPeriodSeconds: stored.UnbondPeriodSeconds,
		Validators:          stored.Validators,
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
		return types.Address{}, fmt.Errorf("hub: owner not initialised")
	}
	return types.BytesToAddress(raw), nil
}

type storedPendingBatch struct {
	ID          uint64
	TotalShares *big.Int
}

// PendingBatch loads the single open batch, initialising batch 1 on first
// use.
func (s *Store) PendingBatch() (PendingBatch, error) {
	var stored storedPendingBatch
	found, err := s.kv.KVGet(pendingKey, &stored)
	if err != nil {
		return PendingBatch{}, err
	}
	if !found {
		return PendingBatch{ID: 1, TotalShares: big.NewInt(0)}, nil
	}
	shares := stored.TotalShares
	if shares == nil {
		shares = big.NewInt(0)
	}
	return PendingBatch{ID: stored.ID, TotalShares: shares}, nil
}

// SetPendingBatch persists the open batch.
func (s *Store) SetPendingBatch(batch PendingBatch) error {
	return s.kv.KVPut(pendingKey, &storedPendingBatch{ID: batch.ID, TotalShares: batch.TotalShares})
}

// LastSubmitTime loads the submission-epoch boundary.
func (s *Store) LastSubmitTime() (uint64, error) {
	var ts uint64
	if _, err := s.kv.KVGet(lastSubmitKey, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// SetLastSubmitTime persists the submission-epoch boundary.
func (s *Store) SetLastSubmitTime(ts uint64) error {
	return s.kv.KVPut(lastSubmitKey, ts)
}

// Reserved loads the utoken amount reserved for reconciled but unclaimed
// batches. That portion of the liquid balance is spoken for.
func (s *Store) Reserved() (*big.Int, error) {
	var reserved *big.Int
	found, err := s.kv.KVGet(reservedKey, &reserved)
	if err != nil {
		return nil, err
	}
	if !found || reserved == nil {
		return big.NewInt(0), nil
	}
	return reserved, nil
}

// SetReserved persists the reserved counter.
func (s *Store) SetReserved(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("hub: reserved must be non-negative")
	}
	return s.kv.KVPut(reservedKey, amount)
}

type storedBatch struct {
	ID               uint64
	TotalShares      *big.Int
	UtokenUnbonding  *big.Int
	EstUnbondEndTime uint64
	Reconciled       bool
}

// PutBatch persists a sealed batch and indexes it.
func (s *Store) PutBatch(batch Batch) error {
	if err := s.kv.KVPut(batchKey(batch.ID), &storedBatch{
		ID:               batch.ID,
		TotalShares:      batch.TotalShares,
		UtokenUnbonding:  batch.UtokenUnbonding,
		EstUnbondEndTime: batch.EstUnbondEndTime,
		Reconciled:       batch.Reconciled,
	}); err != nil {
		return err
	}
	return s.kv.KVAppend(batchIndexKey, encodeID(batch.ID))
}

// GetBatch loads one sealed batch.
func (s *Store) GetBatch(id uint64) (Batch, bool, error) {
	var stored storedBatch
	found, err := s.kv.KVGet(batchKey(id), &stored)
	if err != nil || !found {
		return Batch{}, found, err
	}
	return Batch{
		ID:               stored.ID,
		TotalShares:      stored.TotalShares,
		UtokenUnbonding:  stored.UtokenUnbonding,
		EstUnbondEndTime: stored.EstUnbondEndTime,
		Reconciled:       stored.Reconciled,
	}, true, nil
}

// Batches lists all sealed batches ordered by id.
func (s *Store) Batches() ([]Batch, error) {
	var ids [][]byte
	if err := s.kv.KVGetList(batchIndexKey, &ids); err != nil {
		return nil, err
	}
	batches := make([]Batch, 0, len(ids))
	for _, raw := range ids {
		batch, found, err := s.GetBatch(decodeID(raw))
		if err != nil {
			return nil, err
		}
		if found {
			batches = append(batches, batch)
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
	return batches, nil
}

type storedUnbondRequest struct {
	BatchID uint64
	User    [20]byte
	Shares  *big.Int
}

// PutUnbondRequest upserts the shares a user queued into a batch and indexes
// the batch under the user.
func (s *Store) PutUnbondRequest(req UnbondRequest) error {
	if err := s.kv.KVPut(requestKey(req.BatchID, req.User), &storedUnbondRequest{
		BatchID: req.BatchID,
		User:    req.User,
		Shares:  req.Shares,
	}); err != nil {
		return err
	}
	return s.kv.KVAppend(requestIndexKey(req.User), encodeID(req.BatchID))
}

// GetUnbondRequest loads one queued request.
func (s *Store) GetUnbondRequest(batchID uint64, user types.Address) (UnbondRequest, bool, error) {
	var stored storedUnbondRequest
	found, err := s.kv.KVGet(requestKey(batchID, user), &stored)
	if err != nil || !found {
		return UnbondRequest{}, found, err
	}
	return UnbondRequest{BatchID: stored.BatchID, User: stored.User, Shares: stored.Shares}, true, nil
}

// DeleteUnbondRequest removes a settled request and its index entry.
func (s *Store) DeleteUnbondRequest(batchID uint64, user types.Address) error {
	if err := s.kv.KVDelete(requestKey(batchID, user)); err != nil {
		return err
	}
	return s.kv.KVRemove(requestIndexKey(user), encodeID(batchID))
}

// UserBatchIDs lists the batch ids a user has requests against, ascending.
func (s *Store) UserBatchIDs(user types.Address) ([]uint64, error) {
	var raw [][]byte
	if err := s.kv.KVGetList(requestIndexKey(user), &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		ids = append(ids, decodeID(entry))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type storedRateEntry struct {
	Day  string
	Rate string
	Time uint64
}

// PutRateEntry records the day's exchange-rate observation, last write wins.
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
			return nil, fmt.Errorf("hub: corrupt rate entry %s: %w", stored.Day, err)
		}
		entries = append(entries, RateEntry{Day: stored.Day, Rate: rate, Time: stored.Time})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Day < entries[j].Day })
	return entries, nil
}
