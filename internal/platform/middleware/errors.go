package middleware

import "github.com/labstack/echo/v4"

// abort writes the same {"message": ...} body echo's default error handler
// produces, for middleware that must respond without reaching the handler.
func abort(c echo.Context, status int, msg string) error {
	if c.Response().Committed {
		return nil
	}
	return c.JSON(status, map[string]string{"message": msg})
}
