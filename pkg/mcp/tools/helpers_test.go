package tools

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hrida-ai/hrida-engine/pkg/models"
)

func requestWithArgs(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestGetOptionalString(t *testing.T) {
	req := requestWithArgs(map[string]any{"database_id": "public", "n": 3.0})
	if got := getOptionalString(req, "database_id"); got != "public" {
		t.Errorf("got %q", got)
	}
	if got := getOptionalString(req, "missing"); got != "" {
		t.Errorf("missing key = %q, want empty", got)
	}
	if got := getOptionalString(req, "n"); got != "" {
		t.Errorf("wrong type = %q, want empty", got)
	}
	if got := getOptionalString(mcp.CallToolRequest{}, "x"); got != "" {
		t.Errorf("nil args = %q, want empty", got)
	}
}

func TestGetOptionalInt(t *testing.T) {
	req := requestWithArgs(map[string]any{"max_rows": 50.0, "s": "x"})
	if got := getOptionalInt(req, "max_rows"); got != 50 {
		t.Errorf("got %d", got)
	}
	if got := getOptionalInt(req, "missing"); got != 0 {
		t.Errorf("missing key = %d, want 0", got)
	}
	if got := getOptionalInt(req, "s"); got != 0 {
		t.Errorf("wrong type = %d, want 0", got)
	}
}

func TestGetOptionalBool(t *testing.T) {
	req := requestWithArgs(map[string]any{"trace": true, "off": false})
	if !getOptionalBool(req, "trace") {
		t.Errorf("trace should be true")
	}
	if getOptionalBool(req, "off") || getOptionalBool(req, "missing") {
		t.Errorf("false/missing should be false")
	}
}

func TestGetStringSlice(t *testing.T) {
	req := requestWithArgs(map[string]any{
		"texts": []any{"a", "b"},
		"mixed": []any{"a", 1.0},
	})

	got, err := getStringSlice(req, "texts")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}

	if _, err := getStringSlice(req, "missing"); err == nil {
		t.Errorf("missing key should error")
	}
	if _, err := getStringSlice(req, "mixed"); err == nil {
		t.Errorf("mixed-type array should error")
	}
}

func TestGetSchemaContext(t *testing.T) {
	packet := map[string]any{
		"database_id": "public",
		"tables": []any{
			map[string]any{"name": "companies", "columns": []any{
				map[string]any{"name": "id", "data_type": "uuid"},
			}},
		},
	}
	req := requestWithArgs(map[string]any{"schema_context": packet})

	got, err := getSchemaContext(req, "schema_context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.DatabaseID != "public" || len(got.Tables) != 1 {
		t.Errorf("got %+v", got)
	}

	// Absent argument decodes to nil.
	empty, err := getSchemaContext(requestWithArgs(map[string]any{}), "schema_context")
	if err != nil || empty != nil {
		t.Errorf("absent key: got %+v, err %v", empty, err)
	}

	// An empty packet counts as absent.
	blank, err := getSchemaContext(requestWithArgs(map[string]any{"schema_context": map[string]any{}}), "schema_context")
	if err != nil || blank != nil {
		t.Errorf("empty packet: got %+v, err %v", blank, err)
	}
}

func TestDecodeIssues(t *testing.T) {
	req := requestWithArgs(map[string]any{
		"validator_issues": []any{
			map[string]any{"code": "UNKNOWN_TABLE", "severity": "error", "message": "bad table"},
		},
	})
	issues, err := decodeIssues(req, "validator_issues")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(issues) != 1 || issues[0].Code != models.IssueUnknownTable || issues[0].Severity != models.SeverityError {
		t.Errorf("got %+v", issues)
	}

	none, err := decodeIssues(requestWithArgs(map[string]any{}), "validator_issues")
	if err != nil || none != nil {
		t.Errorf("absent key: got %+v, err %v", none, err)
	}
}

func TestDecodePostgresError(t *testing.T) {
	req := requestWithArgs(map[string]any{
		"postgres_error": map[string]any{"sqlstate": "42703", "message": "column x does not exist"},
	})
	pgErr, err := decodePostgresError(req, "postgres_error")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pgErr == nil || pgErr.SQLState != "42703" {
		t.Errorf("got %+v", pgErr)
	}

	blank, err := decodePostgresError(requestWithArgs(map[string]any{"postgres_error": map[string]any{}}), "postgres_error")
	if err != nil || blank != nil {
		t.Errorf("empty object: got %+v, err %v", blank, err)
	}
}

func TestJSONResult(t *testing.T) {
	res, err := jsonResult(map[string]int{"rows": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", res.Content[0])
	}
	if text.Text != `{"rows":3}` {
		t.Errorf("got %q", text.Text)
	}
}
