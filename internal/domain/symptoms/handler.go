package symptoms

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/auth"
	"github.com/healthmate/healthmate/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	catalog := api.Group("/symptoms", auth.RequireAccount())
	catalog.GET("", h.ListSymptoms)
	catalog.GET("/:id", h.GetSymptom)

	us := api.Group("/user-symptoms", auth.RequireAccount())
	us.GET("", h.ListUserSymptoms)
	us.POST("", h.CreateUserSymptom)
	us.GET("/active", h.ListActiveUserSymptoms)
	us.GET("/:id", h.GetUserSymptom)
	us.PUT("/:id", h.UpdateUserSymptom)
	us.DELETE("/:id", h.DeleteUserSymptom)

	checks := api.Group("/symptom-checks", auth.RequireAccount())
	checks.GET("", h.ListChecks)
	checks.POST("", h.CreateCheck)
	checks.GET("/recent", h.RecentCheck)
	checks.GET("/:id", h.GetCheck)
}

// -- Catalog --

func (h *Handler) ListSymptoms(c echo.Context) error {
	f := CatalogFilter{
		Query:    strings.TrimSpace(c.QueryParam("q")),
		BodyPart: c.QueryParam("body_part"),
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchCatalog(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) GetSymptom(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.svc.GetSymptom(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

// -- User symptoms --

func (h *Handler) CreateUserSymptom(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req UserSymptomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.CreateUserSymptom(c.Request().Context(), caller.ID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) ListUserSymptoms(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	f := UserSymptomFilter{OwnerID: caller.ID}
	if raw := c.QueryParam("symptom"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid symptom")
		}
		f.SymptomID = &id
	}
	if raw := c.QueryParam("severity"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid severity")
		}
		f.Severity = &v
	}
	if raw := c.QueryParam("is_active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid is_active")
		}
		f.IsActive = &v
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListUserSymptoms(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) ListActiveUserSymptoms(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ActiveUserSymptoms(c.Request().Context(), caller.ID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) GetUserSymptom(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	u, err := h.svc.GetUserSymptom(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUserSymptom(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req UserSymptomUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, err := h.svc.UpdateUserSymptom(c.Request().Context(), caller.ID, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUserSymptom(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUserSymptom(c.Request().Context(), caller.ID, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Symptom checks --

func (h *Handler) CreateCheck(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	check, err := h.svc.CreateCheck(c.Request().Context(), caller.ID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, check)
}

func (h *Handler) ListChecks(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListChecks(c.Request().Context(), caller.ID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) RecentCheck(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	check, err := h.svc.RecentCheck(c.Request().Context(), caller.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, check)
}

func (h *Handler) GetCheck(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	check, err := h.svc.GetCheck(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, check)
}

func callerAndID(c echo.Context) (auth.Caller, uuid.UUID, error) {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return auth.Caller{}, uuid.Nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return auth.Caller{}, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return caller, id, nil
}
