package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/calculator/internal/metrics"
	"github.com/Skotchmaster/calculator/pkg/logging"
	authmw "github.com/Skotchmaster/calculator/pkg/middleware/auth"
)

type Deps struct {
	Auth         *AuthHTTP
	Calculations *CalculationHTTP
	Metrics      *metrics.Metrics
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready == nil {
			return c.NoContent(http.StatusOK)
		}
		if err := d.Ready(c.Request().Context()); err != nil {
			logging.FromContext(c.Request().Context()).Warn("not_ready", "status", 503, "error", err)
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	requireAuth := authmw.RequireAuth(d.Auth.Identity)

	auth := e.Group("/auth")
	auth.POST("/register", d.Auth.Register)
	auth.POST("/login", d.Auth.Login)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout)
	auth.GET("/me", d.Auth.Me, requireAuth)

	calcs := e.Group("/calculations", requireAuth)
	calcs.GET("/search", d.Calculations.Search)
	calcs.GET("/stats", d.Calculations.Stats)
	calcs.GET("", d.Calculations.Browse)
	calcs.POST("", d.Calculations.Add)
	calcs.GET("/:id", d.Calculations.Read)
	calcs.PUT("/:id", d.Calculations.Edit)
	calcs.DELETE("/:id", d.Calculations.Delete)
}
