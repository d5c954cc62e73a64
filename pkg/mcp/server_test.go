package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

func TestNewServer(t *testing.T) {
	logger := zap.NewNop()
	s := NewServer("hrida-engine", "0.1.0", logger)

	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.mcp == nil {
		t.Fatal("underlying mcp server not created")
	}
	if s.logger != logger {
		t.Error("logger not carried")
	}
	if s.MCP() != s.mcp {
		t.Error("MCP() must expose the underlying server for tool registration")
	}
}

func TestServer_RegisterTool(t *testing.T) {
	s := NewServer("hrida-engine", "0.1.0", zap.NewNop())

	tool := mcp.NewTool("generate_sql", mcp.WithDescription("Generates SQL for a question"))
	handlerCalled := false
	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		handlerCalled = true
		return mcp.NewToolResultText("ok"), nil
	})

	// Registration must not invoke the handler.
	if handlerCalled {
		t.Error("handler invoked during registration")
	}
}

func TestServer_NewStreamableHTTPServer(t *testing.T) {
	s := NewServer("hrida-engine", "0.1.0", zap.NewNop())
	if s.NewStreamableHTTPServer() == nil {
		t.Fatal("expected non-nil streamable http server")
	}
}
