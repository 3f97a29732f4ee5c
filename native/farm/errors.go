package farm

import "errors"

var (
	ErrUnauthorized      = errors.New("farm: caller not authorized")
	ErrZeroShares        = errors.New("farm: shares must be positive")
	ErrInsufficientStake = errors.New("farm: not enough staked shares")
	ErrNothingToCompound = errors.New("farm: no rewards accrued")
	ErrSwapNotSupported  = errors.New("farm: swap route not supported")
)
