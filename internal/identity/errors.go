package identity

import "errors"

var (
	// ErrInvalidCredentials covers unknown users, inactive users and wrong
	// passwords alike.
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrDuplicateIdentity  = errors.New("username or email already registered")
	ErrValidation         = errors.New("validation error")
)
