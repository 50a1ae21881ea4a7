package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// Fixed messages returned with 403 responses.
const (
	MsgDoctorOnly    = "Only doctors are allowed to perform this action."
	MsgPatientOnly   = "Only patients are allowed to perform this action."
	MsgOwnerOnly     = "You must be the owner of this object to perform this action."
	MsgNotRegistered = "account is not registered; create it with POST /api/v1/accounts"
)

const AccountIDKey contextKey = "account_id"

// ErrUnknownAccount is returned by a RoleResolver when the subject has no account.
var ErrUnknownAccount = errors.New("unknown account")

// RoleResolver looks up the role of a registered account.
type RoleResolver interface {
	AccountRole(ctx context.Context, id uuid.UUID) (string, error)
}

// Caller is the authenticated, registered account making the request.
type Caller struct {
	ID   uuid.UUID
	Role string
}

func (c Caller) IsDoctor() bool  { return c.Role == RoleDoctor }
func (c Caller) IsPatient() bool { return c.Role == RolePatient }

// AccountMiddleware resolves the token subject to an account id and role.
// Subjects without an account pass through with an empty role so that they
// can register themselves.
func AccountMiddleware(resolver RoleResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			subject := UserIDFromContext(c.Request().Context())
			if subject == "" {
				return next(c)
			}

			id, err := uuid.Parse(subject)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a valid account id")
			}

			ctx := c.Request().Context()
			role, err := resolver.AccountRole(ctx, id)
			if err != nil && !errors.Is(err, ErrUnknownAccount) {
				return echo.NewHTTPError(http.StatusInternalServerError, "account lookup failed").SetInternal(err)
			}

			c.SetRequest(c.Request().WithContext(WithAccount(ctx, id, role)))
			return next(c)
		}
	}
}

// WithAccount returns a context carrying the account id and role.
func WithAccount(ctx context.Context, id uuid.UUID, role string) context.Context {
	ctx = context.WithValue(ctx, AccountIDKey, id)
	return context.WithValue(ctx, AccountRoleKey, role)
}

// AccountIDFromContext returns the caller's account id, registered or not.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(AccountIDKey).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(AccountRoleKey).(string)
	return role
}

// CallerFromContext returns the registered caller, or false when the request
// has no account.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	id, ok := AccountIDFromContext(ctx)
	role := RoleFromContext(ctx)
	if !ok || role == "" {
		return Caller{}, false
	}
	return Caller{ID: id, Role: role}, true
}

// CallerFrom is CallerFromContext for handlers; it returns a 403 error for
// unregistered callers.
func CallerFrom(c echo.Context) (Caller, error) {
	caller, ok := CallerFromContext(c.Request().Context())
	if !ok {
		return Caller{}, echo.NewHTTPError(http.StatusForbidden, MsgNotRegistered)
	}
	return caller, nil
}

// RequireAccount rejects callers that have not registered an account.
func RequireAccount() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, err := CallerFrom(c); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// RequireDoctor rejects callers whose account is not a doctor account.
func RequireDoctor() echo.MiddlewareFunc {
	return requireRole(RoleDoctor, MsgDoctorOnly)
}

// RequirePatient rejects callers whose account is not a patient account.
func RequirePatient() echo.MiddlewareFunc {
	return requireRole(RolePatient, MsgPatientOnly)
}

func requireRole(role, msg string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, err := CallerFrom(c)
			if err != nil {
				return err
			}
			if caller.Role != role {
				return echo.NewHTTPError(http.StatusForbidden, msg)
			}
			return next(c)
		}
	}
}
