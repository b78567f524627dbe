package authmw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/calculator/pkg/tokens"
)

const (
	ctxUserID      = "user_id"
	ctxUsername    = "username"
	ctxAccessToken = "access_token"
)

var errNoPrincipal = errors.New("no authenticated user in context")

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*tokens.Claims, error)
}

// RequireAuth accepts a Bearer Authorization header, falling back to the
// access token cookie. Every rejection is the same generic 401.
func RequireAuth(a Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := TokenFromRequest(c)
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}

			claims, err := a.Authenticate(c.Request().Context(), raw)
			if err != nil {
				if !errors.Is(err, tokens.ErrUnauthenticated) {
					return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
				}
				c.SetCookie(DeleteCookie(AccessCookie, "/"))
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
			}

			c.Set(ctxUserID, claims.Subject)
			c.Set(ctxUsername, claims.Username)
			c.Set(ctxAccessToken, raw)
			return next(c)
		}
	}
}

func TokenFromRequest(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return ck.Value
	}
	return ""
}

func UserID(c echo.Context) (uuid.UUID, error) {
	s, _ := c.Get(ctxUserID).(string)
	if s == "" {
		return uuid.Nil, errNoPrincipal
	}
	return uuid.Parse(s)
}

func Username(c echo.Context) string {
	s, _ := c.Get(ctxUsername).(string)
	return s
}

func AccessToken(c echo.Context) string {
	s, _ := c.Get(ctxAccessToken).(string)
	return s
}
