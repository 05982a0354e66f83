package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/services/registry"
)

// ConfigHandler serves the registered job configurations and process health
type ConfigHandler struct {
	registry *registry.Registry
	logger   arbor.ILogger
}

// NewConfigHandler creates a config handler
func NewConfigHandler(reg *registry.Registry, logger arbor.ILogger) *ConfigHandler {
	return &ConfigHandler{
		registry: reg,
		logger:   logger,
	}
}

// ListConfigurationsHandler enumerates registered job names and task counts
// GET /configurations
func (h *ConfigHandler) ListConfigurationsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs": h.registry.List(),
	})
}

// HealthHandler reports process liveness
// GET /health
func (h *ConfigHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": common.GetVersion(),
	})
}
