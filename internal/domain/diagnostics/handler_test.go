package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthmate/healthmate/internal/platform/advisory"
	"github.com/healthmate/healthmate/internal/platform/auth"
)

func newContext(e *echo.Echo, method, target, body string, caller uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetRequest(c.Request().WithContext(auth.WithAccount(c.Request().Context(), caller, auth.RolePatient)))
	return c, rec
}

func expectHTTPError(t *testing.T, err error, code int, msg string) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	if he.Code != code {
		t.Errorf("expected status %d, got %d", code, he.Code)
	}
	if msg != "" && he.Message != msg {
		t.Errorf("expected message %q, got %v", msg, he.Message)
	}
}

func TestHandler_CreateDiagnosis(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	c, rec := newContext(e, http.MethodPost, "/", `{"source":"self","title":"Sinusitis","diagnosis_date":"2025-02-28"}`, f.owner)
	if err := h.CreateDiagnosis(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["diagnosis_date"] != "2025-02-28" || got["status"] != "active" || got["resolved_date"] != nil {
		t.Errorf("unexpected body: %v", got)
	}
}

func TestHandler_FromSymptomCheck_MissingID(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	c, _ := newContext(e, http.MethodPost, "/", `{}`, f.owner)
	expectHTTPError(t, h.FromSymptomCheck(c), http.StatusBadRequest, "symptom_check_id is required")
}

func TestHandler_FromSymptomCheck_NoConditions(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	check := symptomCheck(f.owner)
	f.checks[check.ID] = check

	c, _ := newContext(e, http.MethodPost, "/", `{"symptom_check_id":"`+check.ID.String()+`"}`, f.owner)
	expectHTTPError(t, h.FromSymptomCheck(c), http.StatusBadRequest, "No conditions found in symptom check")
}

func TestHandler_FromSymptomCheck_Created(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	check := symptomCheck(f.owner, advisory.Condition{Condition: "Influenza", Confidence: "high"})
	f.checks[check.ID] = check

	c, rec := newContext(e, http.MethodPost, "/", `{"symptom_check_id":"`+check.ID.String()+`"}`, f.owner)
	if err := h.FromSymptomCheck(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_GetDiagnosis_Foreign(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	d := f.diagnosis(t)

	c, _ := newContext(e, http.MethodGet, "/", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	expectHTTPError(t, h.GetDiagnosis(c), http.StatusNotFound, "diagnosis not found")
}

func TestHandler_RateTreatment_Invalid(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	tr := f.treatment(t, f.diagnosis(t).ID)

	c, _ := newContext(e, http.MethodPost, "/", `{"effectiveness":12}`, f.owner)
	c.SetParamNames("id")
	c.SetParamValues(tr.ID.String())
	expectHTTPError(t, h.RateTreatment(c), http.StatusBadRequest, "")
}

func TestHandler_ScheduleFollowUp_MissingDate(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	d := f.diagnosis(t)
	fu, err := f.svc.CreateFollowUp(context.Background(), f.owner, FollowUpRequest{
		DiagnosisID: d.ID, Title: "Check", FollowUpType: "check_up", RecommendedDate: fixedToday,
	})
	if err != nil {
		t.Fatal(err)
	}

	c, _ := newContext(e, http.MethodPost, "/", `{}`, f.owner)
	c.SetParamNames("id")
	c.SetParamValues(fu.ID.String())
	expectHTTPError(t, h.ScheduleFollowUp(c), http.StatusBadRequest, "scheduled_date is required")
}

func TestHandler_ListTreatments_BadDiagnosisParam(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()

	c, _ := newContext(e, http.MethodGet, "/?diagnosis=nope", "", f.owner)
	expectHTTPError(t, h.ListTreatments(c), http.StatusBadRequest, "invalid diagnosis")
}

func TestHandler_SummaryPDF(t *testing.T) {
	f := newFixture()
	h, e := NewHandler(f.svc), echo.New()
	d := f.diagnosis(t)

	c, rec := newContext(e, http.MethodGet, "/", "", f.owner)
	c.SetParamNames("id")
	c.SetParamValues(d.ID.String())
	if err := h.SummaryPDF(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF") {
		t.Error("expected a PDF body")
	}
}
