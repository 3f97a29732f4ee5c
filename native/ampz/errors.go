package ampz

import "errors"

var (
	ErrUnauthorized    = errors.New("ampz: caller not authorized")
	ErrCallbackOnly    = errors.New("ampz: only callable as self-callback")
	ErrMustBeSameUser  = errors.New("ampz: execution belongs to another user")
	ErrNotExecutable   = errors.New("ampz: execution interval not yet elapsed")
	ErrDuplicateSource = errors.New("ampz: user already has an execution for this source")
	ErrNotFound        = errors.New("ampz: execution not found")
	ErrNotSupported    = errors.New("ampz: variant not yet supported")
	ErrNothingClaimed  = errors.New("ampz: execution yielded no funds")
)
