package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/lenticket/ticketing/internal/apperr"
)

func render(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	ErrorHandler(err, e.NewContext(req, rec))
	return rec
}

func TestErrorHandlerBusinessError(t *testing.T) {
	rec := render(t, apperr.ErrSeatAlreadyLocked)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"SEAT_ALREADY_LOCKED"`)
}

func TestErrorHandlerWrappedBusinessError(t *testing.T) {
	rec := render(t, fmt.Errorf("hold: %w", apperr.ErrAdmissionRequired))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"ADMISSION_REQUIRED"`)
}

func TestErrorHandlerEchoError(t *testing.T) {
	rec := render(t, echo.NewHTTPError(http.StatusNotFound, "no such route"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no such route")
}

func TestErrorHandlerUnknownErrorHidesDetail(t *testing.T) {
	rec := render(t, errors.New("pq: secret connection string"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), `"error":"INTERNAL_ERROR"`)
}
