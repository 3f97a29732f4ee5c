package arbvault

import "errors"

var (
	// Authorization failures. Always fatal, never retried.
	ErrUnauthorized = errors.New("arbvault: caller not authorized")
	ErrCallbackOnly = errors.New("arbvault: operation is callback-only")

	// Arithmetic invariant violations. A negative-profit round surfaces here
	// rather than being clamped; it signals a bug or adversarial input.
	ErrBalanceUnderflow = errors.New("arbvault: balance subtraction underflow")

	// Business-rule rejections. Fatal to the transaction, retryable by the
	// caller with different parameters.
	ErrProfitTooLow      = errors.New("arbvault: wanted profit below minimum")
	ErrTakeableExceeded  = errors.New("arbvault: wanted amount exceeds takeable")
	ErrAlreadyExecuting  = errors.New("arbvault: arbitrage round already open")
	ErrNotExecuting      = errors.New("arbvault: no arbitrage round open")
	ErrNotEnoughProfit   = errors.New("arbvault: profit below asserted minimum")
	ErrLockedFundsEaten  = errors.New("arbvault: round consumed locked user withdrawals")
	ErrWithdrawNotFound      = errors.New("arbvault: unbond entry not found")
	ErrInsufficientLiquidity = errors.New("arbvault: insufficient liquid balance")
	ErrNothingToWithdraw = errors.New("arbvault: nothing to withdraw")
	ErrZeroShares        = errors.New("arbvault: share supply is zero")
)
