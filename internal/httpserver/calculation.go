package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/calculator/internal/service"
	"github.com/Skotchmaster/calculator/internal/util"
	"github.com/Skotchmaster/calculator/pkg/logging"
	authmw "github.com/Skotchmaster/calculator/pkg/middleware/auth"
)

type CalculationHTTP struct {
	Svc *service.CalculationService
}

func (h *CalculationHTTP) Browse(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculation.browse")

	owner, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	res, err := h.Svc.Browse(ctx, owner, page, size)
	if err != nil {
		return httpError(l, "browse_error", err)
	}

	items := make([]calculationResponse, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, toResponse(it))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": pageMeta(res.Page, res.Size, res.Total),
	})
}

func (h *CalculationHTTP) Read(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculation.read")

	owner, id, err := ownerAndID(c, l)
	if err != nil {
		return err
	}

	calc, err := h.Svc.Read(ctx, owner, id)
	if err != nil {
		return httpError(l, "read_error", err)
	}
	return c.JSON(http.StatusOK, toResponse(calc))
}

func (h *CalculationHTTP) Add(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculation.add")

	owner, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	var req createCalculationRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("add_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	calc, err := h.Svc.Add(ctx, owner, req.Type, req.Inputs)
	if err != nil {
		return httpError(l, "add_error", err)
	}

	l.Info("add_success", "id", calc.ID())
	return c.JSON(http.StatusCreated, toResponse(calc))
}

func (h *CalculationHTTP) Edit(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculation.edit")

	owner, id, err := ownerAndID(c, l)
	if err != nil {
		return err
	}

	var req editCalculationRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("edit_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	calc, err := h.Svc.Edit(ctx, owner, id, req.Inputs)
	if err != nil {
		return httpError(l, "edit_error", err)
	}
	return c.JSON(http.StatusOK, toResponse(calc))
}

func (h *CalculationHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculation.delete")

	owner, id, err := ownerAndID(c, l)
	if err != nil {
		return err
	}
	if err := h.Svc.Delete(ctx, owner, id); err != nil {
		return httpError(l, "delete_error", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CalculationHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculation.search")

	owner, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	total, docs, err := h.Svc.Search(ctx, owner, c.QueryParam("type"), page, size)
	if err != nil {
		return httpError(l, "search_error", err)
	}

	offset, limit := util.Paginate(page, size)
	return c.JSON(http.StatusOK, map[string]any{
		"data": docs,
		"meta": pageMeta(offset/limit+1, limit, total),
	})
}

func (h *CalculationHTTP) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "calculation.stats")

	owner, err := authmw.UserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	stats, err := h.Svc.Stats(ctx, owner)
	if err != nil {
		return httpError(l, "stats_error", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": stats})
}

func ownerAndID(c echo.Context, l *slog.Logger) (uuid.UUID, uuid.UUID, error) {
	owner, err := authmw.UserID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("bad_id", "status", 400, "reason", "id not a uuid", "error", err)
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "id not a uuid")
	}
	return owner, id, nil
}
