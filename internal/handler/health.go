package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness endpoint used by load balancers and the load-test
// harness to verify the process is up. It deliberately avoids touching the
// database or Redis so a dependency outage does not cascade into restarts.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
