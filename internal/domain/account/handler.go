package account

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/accounts", h.Register)

	me := api.Group("/accounts/me", auth.RequireAccount())
	me.GET("", h.GetMe)
	me.PUT("", h.UpdateMe)
}

func (h *Handler) Register(c echo.Context) error {
	id, ok := auth.AccountIDFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing token subject")
	}
	if _, registered := auth.CallerFromContext(c.Request().Context()); registered {
		return apperr.HTTP(ErrAlreadyRegistered)
	}

	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.svc.Register(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, acct)
}

func (h *Handler) GetMe(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	acct, err := h.svc.Get(c.Request().Context(), caller.ID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, acct)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.svc.Update(c.Request().Context(), caller.ID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, acct)
}
