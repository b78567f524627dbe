package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/calculator/internal/calc"
	"github.com/Skotchmaster/calculator/internal/identity"
	"github.com/Skotchmaster/calculator/internal/service"
	"github.com/Skotchmaster/calculator/pkg/tokens"
)

// httpError maps a domain error onto a response and logs it once. Token
// failures all become the same 401; validation errors are passed through.
func httpError(l *slog.Logger, event string, err error) error {
	code, msg := classify(err)
	switch {
	case code >= 500:
		l.Error(event, "status", code, "error", err)
		return echo.NewHTTPError(code, msg).SetInternal(err)
	default:
		l.Warn(event, "status", code, "reason", msg, "error", err)
		return echo.NewHTTPError(code, msg)
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, tokens.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, identity.ErrInvalidCredentials.Error()
	case errors.Is(err, identity.ErrDuplicateIdentity):
		return http.StatusConflict, identity.ErrDuplicateIdentity.Error()
	case errors.Is(err, identity.ErrValidation), errors.Is(err, calc.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrPageOutOfRange):
		return http.StatusBadRequest, service.ErrPageOutOfRange.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, service.ErrNotFound.Error()
	case errors.Is(err, service.ErrSearchDisabled):
		return http.StatusServiceUnavailable, service.ErrSearchDisabled.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
