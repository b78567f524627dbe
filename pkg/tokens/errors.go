package tokens

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is wrapped by every validation failure so callers can
// collapse them into one generic response.
var ErrUnauthenticated = errors.New("unauthenticated")

var (
	ErrTokenExpired          = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenRevoked          = fmt.Errorf("%w: token revoked", ErrUnauthenticated)
	ErrTokenSignature        = fmt.Errorf("%w: token signature invalid", ErrUnauthenticated)
	ErrTokenKindMismatch     = fmt.Errorf("%w: token kind mismatch", ErrUnauthenticated)
	ErrTokenMalformed        = fmt.Errorf("%w: token malformed", ErrUnauthenticated)
	ErrRevocationUnavailable = fmt.Errorf("%w: revocation store unavailable", ErrUnauthenticated)
)

var ErrInvalidConfig = errors.New("invalid token config")

// Reason returns a short label for err, used as a log field and metric label.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrTokenSignature):
		return "signature"
	case errors.Is(err, ErrTokenKindMismatch):
		return "kind_mismatch"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrRevocationUnavailable):
		return "revocation_unavailable"
	default:
		return "unknown"
	}
}
