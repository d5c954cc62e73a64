package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/mcp/tools"
)

// HealthHandler serves GET /health with the same payload as the MCP
// health tool.
type HealthHandler struct {
	deps   *tools.HealthToolDeps
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(deps *tools.HealthToolDeps, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, logger: logger}
}

// RegisterRoutes registers the health route on the mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.Health)
}

// Health handles GET /health. A degraded backend still answers 200 so
// orchestrators keep the instance; the payload carries the detail.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	result := h.deps.Check(r.Context())
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}
