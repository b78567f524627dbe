package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/calculator/internal/identity"
	"github.com/Skotchmaster/calculator/pkg/logging"
	authmw "github.com/Skotchmaster/calculator/pkg/middleware/auth"
)

type AuthHTTP struct {
	Identity *identity.Manager
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req identity.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	user, err := h.Identity.Register(ctx, req)
	if err != nil {
		return httpError(l, "register_error", err)
	}
	return c.JSON(http.StatusCreated, toUserResponse(user))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req loginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, err := h.Identity.Login(ctx, req.Username, req.Password)
	if err != nil {
		return httpError(l, "login_error", err)
	}

	c.SetCookie(authmw.CreateCookie(authmw.AccessCookie, pair.AccessToken, "/", pair.ExpiresAt))
	c.SetCookie(authmw.CreateCookie(authmw.RefreshCookie, pair.RefreshToken, "/", pair.RefreshExpiresAt))
	return c.JSON(http.StatusOK, pair)
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.refresh")

	raw := refreshToken(c)
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	access, err := h.Identity.Refresh(ctx, raw)
	if err != nil {
		return httpError(l, "refresh_error", err)
	}

	c.SetCookie(authmw.CreateCookie(authmw.AccessCookie, access.AccessToken, "/", access.ExpiresAt))
	return c.JSON(http.StatusOK, access)
}

// Logout works with whichever tokens the client still holds, so an expired
// access token does not prevent revoking the refresh token. Session cookies
// are cleared whatever the outcome.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	access, refresh := authmw.TokenFromRequest(c), refreshToken(c)
	c.SetCookie(authmw.DeleteCookie(authmw.AccessCookie, "/"))
	c.SetCookie(authmw.DeleteCookie(authmw.RefreshCookie, "/"))

	if access == "" && refresh == "" {
		l.Warn("logout_error", "status", 401, "reason", "no token")
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	if err := h.Identity.Logout(ctx, access, refresh); err != nil {
		return httpError(l, "logout_error", err)
	}

	l.Info("logout_successful")
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHTTP) Me(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.me")

	id, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	user, err := h.Identity.Me(ctx, id)
	if err != nil {
		return httpError(l, "me_error", err)
	}
	return c.JSON(http.StatusOK, toUserResponse(user))
}

// refreshToken reads the body first and falls back to the refresh cookie.
func refreshToken(c echo.Context) string {
	var req refreshRequest
	if err := c.Bind(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if ck, err := c.Cookie(authmw.RefreshCookie); err == nil {
		return ck.Value
	}
	return ""
}
