// Package tools registers the engine's MCP tools: SQL generation and
// execution, repair, embeddings, cache invalidation, and health.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

// getOptionalString extracts an optional string argument from the request.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return ""
	}
	val, ok := args[key].(string)
	if !ok {
		return ""
	}
	return val
}

// getOptionalInt extracts an optional integer argument. JSON numbers
// arrive as float64.
func getOptionalInt(req mcp.CallToolRequest, key string) int {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return 0
	}
	val, ok := args[key].(float64)
	if !ok {
		return 0
	}
	return int(val)
}

// getOptionalBool extracts an optional boolean argument.
func getOptionalBool(req mcp.CallToolRequest, key string) bool {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return false
	}
	val, ok := args[key].(bool)
	return ok && val
}

// getSchemaContext decodes an optional schema_context object argument
// into a packet. Returns nil when absent.
func getSchemaContext(req mcp.CallToolRequest, key string) (*models.SchemaContextPacket, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	var packet models.SchemaContextPacket
	if err := json.Unmarshal(data, &packet); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	if len(packet.Tables) == 0 {
		return nil, nil
	}
	return &packet, nil
}

// getStringSlice extracts a required string-array argument.
func getStringSlice(req mcp.CallToolRequest, key string) ([]string, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s is required", key)
	}
	raw, ok := args[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of strings", key)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an array of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

// decodeIssues decodes an optional issue-array argument.
func decodeIssues(req mcp.CallToolRequest, key string) ([]models.Issue, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	var issues []models.Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return issues, nil
}

// decodePostgresError decodes an optional postgres_error object argument.
func decodePostgresError(req mcp.CallToolRequest, key string) (*models.PostgresError, error) {
	args, ok := req.Params.Arguments.(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	var pgErr models.PostgresError
	if err := json.Unmarshal(data, &pgErr); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	if pgErr.SQLState == "" && pgErr.Message == "" {
		return nil, nil
	}
	return &pgErr, nil
}

// jsonResult marshals v into a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
