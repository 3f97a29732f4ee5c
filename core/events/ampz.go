package events

import (
	"math/big"
	"strconv"

	"amplifier/core/types"
)

const (
	TypeAmpzExecutionAdded    = "ampz.execution_added"
	TypeAmpzExecutionStarted  = "ampz.execution_started"
	TypeAmpzExecutionFinished = "ampz.execution_finished"
	TypeAmpzExecutionRemoved  = "ampz.execution_removed"
)

// AmpzExecutionAdded records a new recurring automation.
type AmpzExecutionAdded struct {
	ID        uint64
	User      types.Address
	SourceKey string
}

func (AmpzExecutionAdded) EventType() string { return TypeAmpzExecutionAdded }

func (e AmpzExecutionAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeAmpzExecutionAdded,
		Attributes: map[string]string{
			"id":        strconv.FormatUint(e.ID, 10),
			"user":      e.User.Hex(),
			"sourceKey": e.SourceKey,
		},
	}
}

// AmpzExecutionStarted marks the initiate hop of a run: source messages
// dispatched, callback pending.
type AmpzExecutionStarted struct {
	ID            uint64
	Executor      types.Address
	CorrelationID string
}

func (AmpzExecutionStarted) EventType() string { return TypeAmpzExecutionStarted }

func (e AmpzExecutionStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeAmpzExecutionStarted,
		Attributes: map[string]string{
			"id":            strconv.FormatUint(e.ID, 10),
			"executor":      e.Executor.Hex(),
			"correlationId": e.CorrelationID,
		},
	}
}

// AmpzExecutionFinished marks the callback hop: fees split, remainder
// forwarded, schedule cursor advanced.
type AmpzExecutionFinished struct {
	ID          uint64
	Amount      *big.Int
	ProtocolFee *big.Int
	ExecutorFee *big.Int
}

func (AmpzExecutionFinished) EventType() string { return TypeAmpzExecutionFinished }

func (e AmpzExecutionFinished) Event() *types.Event {
	return &types.Event{
		Type: TypeAmpzExecutionFinished,
		Attributes: map[string]string{
			"id":          strconv.FormatUint(e.ID, 10),
			"amount":      formatAmount(e.Amount),
			"protocolFee": formatAmount(e.ProtocolFee),
			"executorFee": formatAmount(e.ExecutorFee),
		},
	}
}

// AmpzExecutionRemoved records deletion of an automation and its indexes.
type AmpzExecutionRemoved struct {
	ID   uint64
	User types.Address
}

func (AmpzExecutionRemoved) EventType() string { return TypeAmpzExecutionRemoved }

func (e AmpzExecutionRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeAmpzExecutionRemoved,
		Attributes: map[string]string{
			"id":   strconv.FormatUint(e.ID, 10),
			"user": e.User.Hex(),
		},
	}
}
