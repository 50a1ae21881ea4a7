package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthmate/healthmate/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// sensitiveResources hold health data; access to them is always audited.
var sensitiveResources = map[string]bool{
	"records":        true,
	"user-symptoms":  true,
	"symptom-checks": true,
	"diagnoses":      true,
	"treatments":     true,
	"follow-ups":     true,
	"chat":           true,
	"appointments":   true,
}

// AuditEntry describes one access to a health data resource.
type AuditEntry struct {
	AccountID  string
	Role       string
	Resource   string
	ResourceID string
	Action     string
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// Audit emits a structured "phi_access" log line for every request that
// touches a health data resource under /api/v1.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, resourceID := splitResourcePath(req.URL.Path)
			if !sensitiveResources[resource] {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       req.URL.Path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
				Resource:   resource,
				ResourceID: resourceID,
				Action:     httpMethodToAction(req.Method, resourceID),
				Role:       auth.RoleFromContext(c.Request().Context()),
			}
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}
			if id, ok := auth.AccountIDFromContext(c.Request().Context()); ok {
				entry.AccountID = id.String()
			}
			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			logger.Info().
				Str("type", "phi_access").
				Str("request_id", entry.RequestID).
				Str("account_id", entry.AccountID).
				Str("role", entry.Role).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Time("at", entry.Timestamp).
				Msg("phi_access")

			return err
		}
	}
}

// splitResourcePath returns the resource name and, when the next segment is a
// uuid, the resource id: /api/v1/diagnoses/<id>/resolve -> diagnoses, <id>.
func splitResourcePath(path string) (string, string) {
	if !strings.HasPrefix(path, apiPrefix) {
		return "", ""
	}
	segments := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	resource := segments[0]
	if len(segments) > 1 {
		if _, err := uuid.Parse(segments[1]); err == nil {
			return resource, segments[1]
		}
	}
	return resource, ""
}

func httpMethodToAction(method, resourceID string) string {
	switch method {
	case http.MethodPost:
		if resourceID != "" {
			return "update"
		}
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		if resourceID == "" {
			return "search"
		}
		return "read"
	}
}
