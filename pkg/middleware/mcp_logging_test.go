package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMCPRequestLogger_LogsToolCall(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := MCPRequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"generate_sql",` +
		`"arguments":{"question":"list all companies","api_key":"sk-live-123","schema_context":{"tables":[]}}}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected request+response entries, got %d", len(entries))
	}
	reqFields := entries[0].ContextMap()
	if reqFields["tool"] != "generate_sql" {
		t.Errorf("tool = %v", reqFields["tool"])
	}
	args, ok := reqFields["arguments"].(map[string]any)
	if !ok {
		t.Fatalf("arguments not logged: %v", reqFields["arguments"])
	}
	if args["question"] != "list all companies" {
		t.Errorf("question = %v", args["question"])
	}
	if args["api_key"] != "[REDACTED]" {
		t.Errorf("api_key leaked into log: %v", args["api_key"])
	}
	if args["schema_context"] != "[SCHEMA_CONTEXT]" {
		t.Errorf("schema context packet logged verbatim: %v", args["schema_context"])
	}
	if entries[1].Message != "mcp response" {
		t.Errorf("response message = %q", entries[1].Message)
	}
}

func TestMCPRequestLogger_LogsRPCError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := MCPRequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"question is required"}}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"run_sql","arguments":{}}}`)))

	var errFields map[string]any
	for _, e := range logs.All() {
		if e.Message == "mcp response error" {
			errFields = e.ContextMap()
		}
	}
	if errFields == nil {
		t.Fatal("rpc error not logged")
	}
	if errFields["error_code"] != int64(-32602) {
		t.Errorf("error_code = %v", errFields["error_code"])
	}
	if errFields["tool"] != "run_sql" {
		t.Errorf("tool = %v", errFields["tool"])
	}
}

func TestMCPRequestLogger_NilLoggerPassesThrough(t *testing.T) {
	called := false
	handler := MCPRequestLogger(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
	if !called {
		t.Error("handler not reached with nil logger")
	}
}

func TestMCPRequestLogger_BodyRestoredForHandler(t *testing.T) {
	var seen string
	handler := MCPRequestLogger(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b := make([]byte, 1024)
		n, _ := r.Body.Read(b)
		seen = string(b[:n])
	}))

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"repair_sql","arguments":{}}}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body)))

	if seen != body {
		t.Errorf("handler saw %q, want original body", seen)
	}
}

func TestSanitizeArguments(t *testing.T) {
	long := strings.Repeat("x", 300)
	got := sanitizeArguments(map[string]any{
		"question":      long,
		"shared_secret": "hunter2",
		"max_rows":      50,
	})
	if s := got["question"].(string); len(s) != 203 || !strings.HasSuffix(s, "...") {
		t.Errorf("long value not truncated: %d chars", len(s))
	}
	if got["shared_secret"] != "[REDACTED]" {
		t.Errorf("secret leaked: %v", got["shared_secret"])
	}
	if got["max_rows"] != 50 {
		t.Errorf("non-string value altered: %v", got["max_rows"])
	}
	if sanitizeArguments(nil) != nil {
		t.Error("nil arguments must stay nil")
	}
}
