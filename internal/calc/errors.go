package calc

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every error this package returns.
var ErrValidation = errors.New("validation error")

var (
	ErrUnsupportedOperation = fmt.Errorf("%w: unsupported operation", ErrValidation)
	ErrInvalidInput         = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrDivisionByZero       = fmt.Errorf("%w: division by zero", ErrValidation)
)
