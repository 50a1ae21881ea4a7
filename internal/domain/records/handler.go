package records

import (
	"net/http"
	"strings"
	"time"

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
	g := api.Group("/records", auth.RequireAccount())
	g.GET("", h.ListRecords)
	g.POST("", h.UploadRecord)
	g.GET("/:id", h.GetRecord)
	g.PUT("/:id", h.UpdateRecord)
	g.DELETE("/:id", h.DeleteRecord)
	g.GET("/:id/file", h.DownloadFile)
}

// UploadRecord accepts multipart/form-data with title, record_type,
// description and file.
func (h *Handler) UploadRecord(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	rec, err := h.svc.Upload(c.Request().Context(), caller.ID, Upload{
		Title:       c.FormValue("title"),
		RecordType:  c.FormValue("record_type"),
		Description: c.FormValue("description"),
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
	}, f)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	f := Filter{
		OwnerID:    caller.ID,
		RecordType: c.QueryParam("record_type"),
		Query:      strings.TrimSpace(c.QueryParam("q")),
	}
	if f.UploadedAfter, err = timeParam(c, "uploaded_after"); err != nil {
		return err
	}
	if f.UploadedBefore, err = timeParam(c, "uploaded_before"); err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) GetRecord(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.Update(c.Request().Context(), caller.ID, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), caller.ID, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DownloadFile(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	rc, rec, err := h.svc.Open(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+rec.FileName+`"`)
	return c.Stream(http.StatusOK, rec.ContentType, rc)
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

func timeParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected RFC 3339 timestamp")
	}
	return &t, nil
}
