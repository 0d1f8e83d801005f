package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"telegram-proxy/internal/service"
)

// PingPath is the liveness probe answered without contacting the upstream.
const PingPath = "/ping"

const pingBody = "Service is up and running"

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves liveness and status endpoints.
type HealthHandler struct {
	forwarder *service.Forwarder
	version   Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(f *service.Forwarder, v Version) *HealthHandler {
	return &HealthHandler{forwarder: f, version: v}
}

// Ping answers the liveness probe for any method.
func (h *HealthHandler) Ping(c echo.Context) error {
	return c.Blob(http.StatusOK, "text/plain", []byte(pingBody))
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":       "ok",
		"version":      string(h.version),
		"upstream_url": h.forwarder.BaseURL(),
	})
}
