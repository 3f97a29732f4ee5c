package hub

import "errors"

var (
	ErrUnauthorized  = errors.New("hub: caller not authorized")
	ErrEpochNotReady = errors.New("hub: epoch period not yet elapsed")
	ErrEmptyBatch    = errors.New("hub: pending batch has no unbond requests")
	ErrBatchNotFound = errors.New("hub: batch not found")

	// ErrInsufficientReturned gates reconciliation: the undelegated coins
	// have not all arrived yet. Reconciliation is all-or-nothing per batch.
	ErrInsufficientReturned = errors.New("hub: returned balance does not cover batch")

	ErrNothingToWithdraw = errors.New("hub: no reconciled unbond requests")
	ErrAmountUnderflow   = errors.New("hub: balance subtraction underflow")
)
