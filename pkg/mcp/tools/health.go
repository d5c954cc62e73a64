package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/database"
	"github.com/hrida-ai/hrida-engine/pkg/llm"
)

// HealthToolDeps contains dependencies for the health tool.
type HealthToolDeps struct {
	DB      *database.DB
	LLM     llm.Client
	Version string
	Logger  *zap.Logger
}

// HealthResult is the health payload shared by the MCP tool and the HTTP
// handler.
type HealthResult struct {
	Status       string `json:"status"`
	LLMReachable bool   `json:"llm_reachable"`
	Version      string `json:"version"`
}

// Check probes the LLM endpoint and the database. Either failing
// degrades the status; the server keeps serving.
func (d *HealthToolDeps) Check(ctx context.Context) HealthResult {
	result := HealthResult{Status: "healthy", Version: d.Version, LLMReachable: true}

	if err := d.LLM.CheckHealth(ctx); err != nil {
		d.Logger.Warn("llm health check failed", zap.Error(err))
		result.Status = "degraded"
		result.LLMReachable = false
	}
	if err := d.DB.Ping(ctx); err != nil {
		d.Logger.Warn("database health check failed", zap.Error(err))
		result.Status = "degraded"
	}
	return result
}

// RegisterHealthTool adds the health tool to the MCP server.
func RegisterHealthTool(s *server.MCPServer, deps *HealthToolDeps) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health, LLM reachability, and version"),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(deps.Check(ctx))
	})
}
