package handler // HTTP handlers for the ticketing API

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lenticket/ticketing/internal/apperr"
)

// queryUint parses a required positive integer query parameter. A missing
// or malformed value maps to an INVALID_REQUEST error.
func queryUint(c echo.Context, name string) (uint64, error) {
	v, err := strconv.ParseUint(c.QueryParam(name), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.ErrInvalidRequest
	}
	return v, nil
}
