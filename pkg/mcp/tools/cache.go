package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/services"
)

// CacheToolDeps contains dependencies for the cache tool.
type CacheToolDeps struct {
	Cache  *services.ContextCache
	Logger *zap.Logger
}

type invalidateResult struct {
	Invalidated bool `json:"invalidated"`
	KeysRemoved int  `json:"keys_removed"`
}

// RegisterCacheTools registers invalidate_cache. With the cache disabled
// the tool is a permitted no-op.
func RegisterCacheTools(s *server.MCPServer, deps *CacheToolDeps) {
	tool := mcp.NewTool(
		"invalidate_cache",
		mcp.WithDescription("Removes cached schema-context packets for a database, forcing fresh retrieval"),
		mcp.WithString("database_id", mcp.Required(), mcp.Description("Database identifier whose cached packets to remove")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		databaseID, err := req.RequireString("database_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		removed, err := deps.Cache.Invalidate(ctx, databaseID)
		if err != nil {
			deps.Logger.Warn("cache invalidation failed",
				zap.String("database_id", databaseID), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("invalidation failed: %v", err)), nil
		}
		return jsonResult(invalidateResult{
			Invalidated: deps.Cache.Enabled(),
			KeysRemoved: removed,
		})
	})
}
