package assistant

import (
	"net/http"

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
	g := api.Group("/chat", auth.RequireAccount())
	g.POST("", h.Chat)
	g.GET("/history", h.History)
}

func (h *Handler) Chat(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	entry, err := h.svc.Chat(c.Request().Context(), caller.ID, req.Message)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, ChatReply{Reply: entry.Response})
}

func (h *Handler) History(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), caller.ID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}
