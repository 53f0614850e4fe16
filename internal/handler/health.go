package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"impact-gateway/internal/auth"
	"impact-gateway/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg       *config.Config
	authority auth.Authority
	version   Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, authority auth.Authority, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, authority: authority, version: v}
}

// Healthz is the liveness probe.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the running configuration.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":       "ok",
		"version":      string(h.version),
		"upstream_url": h.cfg.Upstream.BaseURL,
		"auth_mode":    h.authority.Mode(),
		"mock":         h.cfg.Mock.Enabled,
		"extra_routes": len(h.cfg.Routes),
	})
}
