package diagnostics

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthmate/healthmate/internal/platform/apperr"
	"github.com/healthmate/healthmate/internal/platform/auth"
	"github.com/healthmate/healthmate/pkg/date"
	"github.com/healthmate/healthmate/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	dx := api.Group("/diagnoses", auth.RequireAccount())
	dx.GET("", h.ListDiagnoses)
	dx.POST("", h.CreateDiagnosis)
	dx.POST("/from-symptom-check", h.FromSymptomCheck)
	dx.GET("/:id", h.GetDiagnosis)
	dx.PUT("/:id", h.UpdateDiagnosis)
	dx.DELETE("/:id", h.DeleteDiagnosis)
	dx.POST("/:id/resolve", h.ResolveDiagnosis)
	dx.POST("/:id/mark-chronic", h.MarkChronic)
	dx.POST("/:id/generate-treatment", h.GenerateTreatment)
	dx.GET("/:id/summary.pdf", h.SummaryPDF)

	tx := api.Group("/treatments", auth.RequireAccount())
	tx.GET("", h.ListTreatments)
	tx.POST("", h.CreateTreatment)
	tx.GET("/:id", h.GetTreatment)
	tx.PUT("/:id", h.UpdateTreatment)
	tx.DELETE("/:id", h.DeleteTreatment)
	tx.POST("/:id/complete", h.CompleteTreatment)
	tx.POST("/:id/discontinue", h.DiscontinueTreatment)
	tx.POST("/:id/rate", h.RateTreatment)

	fu := api.Group("/follow-ups", auth.RequireAccount())
	fu.GET("", h.ListFollowUps)
	fu.POST("", h.CreateFollowUp)
	fu.GET("/:id", h.GetFollowUp)
	fu.PUT("/:id", h.UpdateFollowUp)
	fu.DELETE("/:id", h.DeleteFollowUp)
	fu.POST("/:id/schedule", h.ScheduleFollowUp)
	fu.POST("/:id/complete", h.CompleteFollowUp)
}

// -- Diagnoses --

func (h *Handler) CreateDiagnosis(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req DiagnosisRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.CreateDiagnosis(c.Request().Context(), caller.ID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDiagnoses(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	f := DiagnosisFilter{
		OwnerID:    caller.ID,
		Source:     c.QueryParam("source"),
		Status:     c.QueryParam("status"),
		Confidence: c.QueryParam("confidence"),
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListDiagnoses(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) GetDiagnosis(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDiagnosis(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDiagnosis(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req DiagnosisUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d, err := h.svc.UpdateDiagnosis(c.Request().Context(), caller.ID, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDiagnosis(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDiagnosis(c.Request().Context(), caller.ID, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ResolveDiagnosis(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Resolve(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) MarkChronic(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.MarkChronic(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) GenerateTreatment(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GenerateTreatment(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

type fromCheckRequest struct {
	SymptomCheckID string `json:"symptom_check_id"`
}

func (h *Handler) FromSymptomCheck(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req fromCheckRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var checkID uuid.UUID
	if raw := strings.TrimSpace(req.SymptomCheckID); raw != "" {
		if checkID, err = uuid.Parse(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid symptom_check_id")
		}
	}
	d, err := h.svc.FromSymptomCheck(c.Request().Context(), caller.ID, checkID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) SummaryPDF(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.SummaryPDF(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="diagnosis-`+id.String()+`.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", doc)
}

// -- Treatments --

func (h *Handler) CreateTreatment(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req TreatmentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.CreateTreatment(c.Request().Context(), caller.ID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTreatments(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	f := TreatmentFilter{
		OwnerID:       caller.ID,
		TreatmentType: c.QueryParam("treatment_type"),
		Status:        c.QueryParam("status"),
	}
	if f.DiagnosisID, err = uuidParam(c, "diagnosis"); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTreatments(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) GetTreatment(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTreatment(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTreatment(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req TreatmentUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.UpdateTreatment(c.Request().Context(), caller.ID, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTreatment(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTreatment(c.Request().Context(), caller.ID, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CompleteTreatment(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.CompleteTreatment(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DiscontinueTreatment(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.DiscontinueTreatment(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) RateTreatment(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req RateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.RateTreatment(c.Request().Context(), caller.ID, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

// -- Follow-ups --

func (h *Handler) CreateFollowUp(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	var req FollowUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.CreateFollowUp(c.Request().Context(), caller.ID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) ListFollowUps(c echo.Context) error {
	caller, err := auth.CallerFrom(c)
	if err != nil {
		return err
	}
	f := FollowUpFilter{
		OwnerID:      caller.ID,
		FollowUpType: c.QueryParam("follow_up_type"),
		Status:       c.QueryParam("status"),
	}
	if f.DiagnosisID, err = uuidParam(c, "diagnosis"); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListFollowUps(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.Page(c, items, total, pg))
}

func (h *Handler) GetFollowUp(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	f, err := h.svc.GetFollowUp(c.Request().Context(), caller.ID, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) UpdateFollowUp(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req FollowUpUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.UpdateFollowUp(c.Request().Context(), caller.ID, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteFollowUp(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteFollowUp(c.Request().Context(), caller.ID, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type scheduleRequest struct {
	ScheduledDate date.Date `json:"scheduled_date"`
}

func (h *Handler) ScheduleFollowUp(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.ScheduleFollowUp(c.Request().Context(), caller.ID, id, req.ScheduledDate)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}

type completeRequest struct {
	Results string `json:"results"`
}

func (h *Handler) CompleteFollowUp(c echo.Context) error {
	caller, id, err := callerAndID(c)
	if err != nil {
		return err
	}
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	f, err := h.svc.CompleteFollowUp(c.Request().Context(), caller.ID, id, req.Results)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, f)
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

func uuidParam(c echo.Context, name string) (*uuid.UUID, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}
