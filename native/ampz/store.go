package ampz

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	"amplifier/core/types"
)

// Storage abstracts the subset of state-store functionality required by the
// scheduler.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVAppend(key []byte, value []byte) error
	KVRemove(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	configKey = []byte("ampz/config")
	ownerKey  = []byte("ampz/owner")
	seqKey    = []byte("ampz/seq")

	execPrefix     = []byte("ampz/exec/")
	userIdxPrefix  = []byte("ampz/user/")
	uniquePrefix   = []byte("ampz/unique/")
	inflightPrefix = []byte("ampz/inflight/")
)

func execKey(id uint64) []byte {
	buf := make([]byte, len(execPrefix)+8)
	copy(buf, execPrefix)
	binary.BigEndian.PutUint64(buf[len(execPrefix):], id)
	return buf
}

func userIndexKey(user types.Address) []byte {
	buf := make([]byte, len(userIdxPrefix)+len(user))
	copy(buf, userIdxPrefix)
	copy(buf[len(userIdxPrefix):], user[:])
	return buf
}

func uniqueKey(user types.Address, sourceKey string) []byte {
	buf := make([]byte, 0, len(uniquePrefix)+len(user)+1+len(sourceKey))
	buf = append(buf, uniquePrefix...)
	buf = append(buf, user[:]...)
	buf = append(buf, '/')
	buf = append(buf, sourceKey...)
	return buf
}

func inflightKey(correlationID string) []byte {
	buf := make([]byte, 0, len(inflightPrefix)+len(correlationID))
	buf = append(buf, inflightPrefix...)
	buf = append(buf, correlationID...)
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

// Store persists the scheduler's executions and their indexes.
type Store struct {
	kv Storage
}

// NewStore wraps the provided storage backend.
func NewStore(kv Storage) *Store {
	return &Store{kv: kv}
}

type storedConfig struct {
	Controller          [20]byte
	ProtocolFeeReceiver [20]byte
	ProtocolFee         string
	ExecutorFee         string
	Hub                 [20]byte
	Zapper              [20]byte
	StakeDenom          string
}

// SetConfig validates and persists the scheduler configuration.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return s.kv.KVPut(configKey, &storedConfig{
		Controller:          cfg.Controller,
		ProtocolFeeReceiver: cfg.ProtocolFeeReceiver,
		ProtocolFee:         cfg.ProtocolFee.String(),
		ExecutorFee:         cfg.ExecutorFee.String(),
		Hub:                 cfg.Hub,
		Zapper:              cfg.Zapper,
		StakeDenom:          cfg.StakeDenom,
	})
}

// GetConfig loads the scheduler configuration.
func (s *Store) GetConfig() (Config, error) {
	var stored storedConfig
	found, err := s.kv.KVGet(configKey, &stored)
	if err != nil {
		return Config{}, err
	}
	if !found {
		return Config{}, fmt.Errorf("ampz: config not initialised")
	}
	protocolFee, err := parseDecimal(stored.ProtocolFee, "protocol fee")
	if err != nil {
		return Config{}, err
	}
	executorFee, err := parseDecimal(stored.ExecutorFee, "executor fee")
	if err != nil {
		return Config{}, err
	}
	return Config{
		Controller:          stored.Controller,
		ProtocolFeeReceiver: stored.ProtocolFeeReceiver,
		ProtocolFee:         protocolFee,
		ExecutorFee:         executorFee,
		Hub:                 stored.Hub,
		Zapper:              stored.Zapper,
		StakeDenom:          stored.StakeDenom,
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
		return types.Address{}, fmt.Errorf("ampz: owner not initialised")
	}
	return types.BytesToAddress(raw), nil
}

// NextExecutionID increments and returns the monotonically increasing id
// counter.
func (s *Store) NextExecutionID() (uint64, error) {
	var last uint64
	if _, err := s.kv.KVGet(seqKey, &last); err != nil {
		return 0, err
	}
	next := last + 1
	if err := s.kv.KVPut(seqKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

type storedExecution struct {
	ID   uint64
	User [20]byte

	SourceKind       uint8
	SourceLpTokens   [][20]byte
	SourceAssetKind  uint8
	SourceAssetDenom string
	SourceAssetAddr  [20]byte
	SourceMinBalance *big.Int
	SourceContract   [20]byte
	SourceAction     string

	DestKind       uint8
	DestFarm       [20]byte
	DestAssetKind  uint8
	DestAssetDenom string
	DestAssetAddr  [20]byte
	DestMarket     [20]byte
	HasReceiver    bool
	DestReceiver   [20]byte

	IntervalSeconds uint64
	HasStart        bool
	Start           uint64

	LastExecution uint64
}

func toStored(state ExecutionState) *storedExecution {
	exec := state.Execution
	stored := &storedExecution{
		ID:               exec.ID,
		User:             exec.User,
		SourceKind:       uint8(exec.Source.Kind),
		SourceAssetKind:  uint8(exec.Source.Asset.Kind),
		SourceAssetDenom: exec.Source.Asset.Denom,
		SourceAssetAddr:  exec.Source.Asset.Contract,
		SourceMinBalance: exec.Source.MinBalance,
		SourceContract:   exec.Source.Contract,
		SourceAction:     exec.Source.Action,
		DestKind:         uint8(exec.Destination.Kind),
		DestFarm:         exec.Destination.Farm,
		DestAssetKind:    uint8(exec.Destination.Asset.Kind),
		DestAssetDenom:   exec.Destination.Asset.Denom,
		DestAssetAddr:    exec.Destination.Asset.Contract,
		DestMarket:       exec.Destination.Market,
		IntervalSeconds:  exec.Schedule.IntervalSeconds,
		LastExecution:    state.LastExecution,
	}
	if stored.SourceMinBalance == nil {
		stored.SourceMinBalance = big.NewInt(0)
	}
	for _, lp := range exec.Source.LpTokens {
		stored.SourceLpTokens = append(stored.SourceLpTokens, lp)
	}
	if exec.Destination.Receiver != nil {
		stored.HasReceiver = true
		stored.DestReceiver = *exec.Destination.Receiver
	}
	if exec.Schedule.Start != nil {
		stored.HasStart = true
		stored.Start = *exec.Schedule.Start
	}
	return stored
}

func fromStored(stored storedExecution) ExecutionState {
	source := Source{
		Kind: SourceKind(stored.SourceKind),
		Asset: types.Asset{
			Kind:     types.AssetKind(stored.SourceAssetKind),
			Denom:    stored.SourceAssetDenom,
			Contract: stored.SourceAssetAddr,
		},
		MinBalance: stored.SourceMinBalance,
		Contract:   stored.SourceContract,
		Action:     stored.SourceAction,
	}
	for _, lp := range stored.SourceLpTokens {
		source.LpTokens = append(source.LpTokens, lp)
	}
	dest := Destination{
		Kind: DestinationKind(stored.DestKind),
		Farm: stored.DestFarm,
		Asset: types.Asset{
			Kind:     types.AssetKind(stored.DestAssetKind),
			Denom:    stored.DestAssetDenom,
			Contract: stored.DestAssetAddr,
		},
		Market: stored.DestMarket,
	}
	if stored.HasReceiver {
		receiver := types.Address(stored.DestReceiver)
		dest.Receiver = &receiver
	}
	schedule := Schedule{IntervalSeconds: stored.IntervalSeconds}
	if stored.HasStart {
		start := stored.Start
		schedule.Start = &start
	}
	return ExecutionState{
		Execution: Execution{
			ID:          stored.ID,
			User:        stored.User,
			Source:      source,
			Destination: dest,
			Schedule:    schedule,
		},
		LastExecution: stored.LastExecution,
	}
}

// PutExecution persists an execution state and maintains the user and
// source-uniqueness indexes.
func (s *Store) PutExecution(state ExecutionState) error {
	if err := s.kv.KVPut(execKey(state.Execution.ID), toStored(state)); err != nil {
		return err
	}
	if err := s.kv.KVAppend(userIndexKey(state.Execution.User), encodeID(state.Execution.ID)); err != nil {
		return err
	}
	return s.kv.KVPut(uniqueKey(state.Execution.User, state.Execution.Source.UniqueKey()), state.Execution.ID)
}

// GetExecution loads one execution by id.
func (s *Store) GetExecution(id uint64) (ExecutionState, bool, error) {
	var stored storedExecution
	found, err := s.kv.KVGet(execKey(id), &stored)
	if err != nil || !found {
		return ExecutionState{}, found, err
	}
	return fromStored(stored), true, nil
}

// DeleteExecution removes an execution and both its index entries.
func (s *Store) DeleteExecution(state ExecutionState) error {
	if err := s.kv.KVDelete(execKey(state.Execution.ID)); err != nil {
		return err
	}
	if err := s.kv.KVRemove(userIndexKey(state.Execution.User), encodeID(state.Execution.ID)); err != nil {
		return err
	}
	return s.kv.KVDelete(uniqueKey(state.Execution.User, state.Execution.Source.UniqueKey()))
}

// SourceInUse reports whether the user already has an execution registered
// for the given source key.
func (s *Store) SourceInUse(user types.Address, sourceKey string) (uint64, bool, error) {
	var id uint64
	found, err := s.kv.KVGet(uniqueKey(user, sourceKey), &id)
	if err != nil {
		return 0, false, err
	}
	return id, found, nil
}

// UserExecutionIDs lists a user's execution ids, ascending.
func (s *Store) UserExecutionIDs(user types.Address) ([]uint64, error) {
	var raw [][]byte
	if err := s.kv.KVGetList(userIndexKey(user), &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, entry := range raw {
		ids = append(ids, decodeID(entry))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type storedInflight struct {
	ExecutionID uint64
	Executor    [20]byte
	AssetKind   uint8
	AssetDenom  string
	AssetAddr   [20]byte
}

// InflightRun records the fee intentions of a dispatched execution between
// the initiate hop and the finish callback.
type InflightRun struct {
	ExecutionID uint64
	Executor    types.Address
	Asset       types.Asset
}

// PutInflight persists the continuation record keyed by correlation id.
func (s *Store) PutInflight(correlationID string, run InflightRun) error {
	return s.kv.KVPut(inflightKey(correlationID), &storedInflight{
		ExecutionID: run.ExecutionID,
		Executor:    run.Executor,
		AssetKind:   uint8(run.Asset.Kind),
		AssetDenom:  run.Asset.Denom,
		AssetAddr:   run.Asset.Contract,
	})
}

// GetInflight loads a continuation record.
func (s *Store) GetInflight(correlationID string) (InflightRun, bool, error) {
	var stored storedInflight
	found, err := s.kv.KVGet(inflightKey(correlationID), &stored)
	if err != nil || !found {
		return InflightRun{}, found, err
	}
	return InflightRun{
		ExecutionID: stored.ExecutionID,
		Executor:    stored.Executor,
		Asset: types.Asset{
			Kind:     types.AssetKind(stored.AssetKind),
			Denom:    stored.AssetDenom,
			Contract: stored.AssetAddr,
		},
	}, true, nil
}

// DeleteInflight removes a settled continuation record.
func (s *Store) DeleteInflight(correlationID string) error {
	return s.kv.KVDelete(inflightKey(correlationID))
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ampz: corrupt %s: %w", field, err)
	}
	return value, nil
}
