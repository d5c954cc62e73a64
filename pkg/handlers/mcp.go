package handlers

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/mcp"
	"github.com/hrida-ai/hrida-engine/pkg/middleware"
)

// MCPHandler serves MCP protocol requests over HTTP.
type MCPHandler struct {
	httpServer *server.StreamableHTTPServer
	logger     *zap.Logger
}

// NewMCPHandler creates an MCP handler from an MCP server.
func NewMCPHandler(mcpServer *mcp.Server, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{
		httpServer: mcpServer.NewStreamableHTTPServer(),
		logger:     logger,
	}
}

// RegisterRoutes mounts the MCP endpoint at /mcp. Middleware layers,
// innermost first: JSON-RPC request/response logging, optional auth,
// POST-only method check.
func (h *MCPHandler) RegisterRoutes(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	handler := middleware.MCPRequestLogger(h.logger)(h.httpServer)
	if auth != nil {
		handler = auth(handler)
	}
	mux.Handle("/mcp", h.requirePOST(handler))
}

// requirePOST returns 405 for non-POST requests; MCP over streamable
// HTTP uses POST for JSON-RPC.
func (h *MCPHandler) requirePOST(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next.ServeHTTP(w, r)
	})
}
