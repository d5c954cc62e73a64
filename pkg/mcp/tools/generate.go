package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/models"
	"github.com/hrida-ai/hrida-engine/pkg/services"
)

// PipelineToolDeps contains dependencies for the SQL pipeline tools.
type PipelineToolDeps struct {
	Pipeline          *services.Pipeline
	DefaultDatabaseID string
	Logger            *zap.Logger
}

// RegisterPipelineTools registers generate_sql, run_sql, and repair_sql.
func RegisterPipelineTools(s *server.MCPServer, deps *PipelineToolDeps) {
	registerGenerateSQLTool(s, deps)
	registerRunSQLTool(s, deps)
	registerRepairSQLTool(s, deps)
}

func queryRequestTool(name, description string) mcp.Tool {
	return mcp.NewTool(
		name,
		mcp.WithDescription(description),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural-language question to answer with SQL")),
		mcp.WithString("database_id", mcp.Description("Target database identifier (defaults to the configured database)")),
		mcp.WithNumber("max_rows", mcp.Description("Row cap for results (default 100)")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Execution timeout in seconds")),
		mcp.WithNumber("n_candidates", mcp.Description("Number of SQL candidates to generate (default 1)")),
		mcp.WithBoolean("explain", mcp.Description("Include planner gating even without execution")),
		mcp.WithBoolean("trace", mcp.Description("Include per-stage timings in the response")),
		mcp.WithObject("schema_context", mcp.Description("Pre-built schema context packet; skips retrieval")),
	)
}

func (d *PipelineToolDeps) buildRequest(req mcp.CallToolRequest) (*models.QueryRequest, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return nil, err
	}
	packet, err := getSchemaContext(req, "schema_context")
	if err != nil {
		return nil, err
	}
	databaseID := getOptionalString(req, "database_id")
	if databaseID == "" {
		databaseID = d.DefaultDatabaseID
	}
	return &models.QueryRequest{
		Question:       question,
		DatabaseID:     databaseID,
		MaxRows:        getOptionalInt(req, "max_rows"),
		TimeoutSeconds: getOptionalInt(req, "timeout_seconds"),
		NCandidates:    getOptionalInt(req, "n_candidates"),
		Explain:        getOptionalBool(req, "explain"),
		Trace:          getOptionalBool(req, "trace"),
		SchemaContext:  packet,
	}, nil
}

func registerGenerateSQLTool(s *server.MCPServer, deps *PipelineToolDeps) {
	tool := queryRequestTool("generate_sql",
		"Generates a validated PostgreSQL SELECT statement for a natural-language question without executing it")

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryReq, err := deps.buildRequest(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp := deps.Pipeline.Run(ctx, queryReq, false)
		return jsonResult(resp)
	})
}

func registerRunSQLTool(s *server.MCPServer, deps *PipelineToolDeps) {
	tool := queryRequestTool("run_sql",
		"Generates, validates, and executes a PostgreSQL SELECT statement for a natural-language question, returning rows")

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queryReq, err := deps.buildRequest(req)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resp := deps.Pipeline.Run(ctx, queryReq, true)
		return jsonResult(resp)
	})
}

func registerRepairSQLTool(s *server.MCPServer, deps *PipelineToolDeps) {
	tool := mcp.NewTool(
		"repair_sql",
		mcp.WithDescription("Produces a repaired SQL statement from a previous failed attempt and its failure evidence"),
		mcp.WithString("question", mcp.Required(), mcp.Description("The original natural-language question")),
		mcp.WithString("previous_sql", mcp.Required(), mcp.Description("The SQL statement that failed")),
		mcp.WithString("database_id", mcp.Description("Target database identifier")),
		mcp.WithNumber("attempt", mcp.Description("Zero-based repair attempt number")),
		mcp.WithNumber("max_attempts", mcp.Description("Repair attempt budget")),
		mcp.WithNumber("max_rows", mcp.Description("Row cap used for LIMIT injection")),
		mcp.WithArray("validator_issues", mcp.Description("Structural validator issues from the failed attempt")),
		mcp.WithArray("semantic_issues", mcp.Description("Semantic validator issues from the failed attempt")),
		mcp.WithObject("postgres_error", mcp.Description("Planner or execution error from the failed attempt")),
		mcp.WithObject("schema_context", mcp.Description("Pre-built schema context packet; skips retrieval")),
		mcp.WithBoolean("trace", mcp.Description("Include per-stage timings in the response")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		previousSQL, err := req.RequireString("previous_sql")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		packet, err := getSchemaContext(req, "schema_context")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		validatorIssues, err := decodeIssues(req, "validator_issues")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		semanticIssues, err := decodeIssues(req, "semantic_issues")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		pgErr, err := decodePostgresError(req, "postgres_error")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		databaseID := getOptionalString(req, "database_id")
		if databaseID == "" {
			databaseID = deps.DefaultDatabaseID
		}

		resp := deps.Pipeline.Repair(ctx, &services.RepairRequest{
			Question:        question,
			PreviousSQL:     previousSQL,
			DatabaseID:      databaseID,
			Attempt:         getOptionalInt(req, "attempt"),
			MaxAttempts:     getOptionalInt(req, "max_attempts"),
			MaxRows:         getOptionalInt(req, "max_rows"),
			ValidatorIssues: validatorIssues,
			SemanticIssues:  semanticIssues,
			PostgresError:   pgErr,
			SchemaContext:   packet,
			Trace:           getOptionalBool(req, "trace"),
		})
		return jsonResult(resp)
	})
}
