package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lenticket/ticketing/internal/apperr"
)

// ErrorHandler renders every error as a JSON body with a stable code.
// Business errors carry their own status; anything unrecognized is logged
// and reported as a 500 without leaking the underlying message.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		_ = c.JSON(ae.Status, map[string]string{"error": ae.Code, "message": ae.Message})
		return
	}

	if he, ok := err.(*echo.HTTPError); ok {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, map[string]string{"error": "HTTP_ERROR", "message": msg})
		return
	}

	c.Logger().Errorf("unhandled error: %v", err)
	_ = c.JSON(apperr.ErrInternal.Status, map[string]string{
		"error":   apperr.ErrInternal.Code,
		"message": apperr.ErrInternal.Message,
	})
}
