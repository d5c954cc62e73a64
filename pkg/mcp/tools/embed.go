package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/llm"
)

// EmbedToolDeps contains dependencies for the embedding tools.
type EmbedToolDeps struct {
	Client llm.Client
	Pool   *llm.WorkerPool
	Logger *zap.Logger
}

type embedResult struct {
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
}

type embedBatchResult struct {
	Results []embedResult `json:"results"`
}

// RegisterEmbedTools registers embed and embed_batch.
func RegisterEmbedTools(s *server.MCPServer, deps *EmbedToolDeps) {
	registerEmbedTool(s, deps)
	registerEmbedBatchTool(s, deps)
}

func registerEmbedTool(s *server.MCPServer, deps *EmbedToolDeps) {
	tool := mcp.NewTool(
		"embed",
		mcp.WithDescription("Returns the embedding vector for a text using the configured embedding model"),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to embed")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		vec, err := deps.Client.CreateEmbedding(ctx, text)
		if err != nil {
			deps.Logger.Warn("embed tool failed", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("embedding failed: %v", err)), nil
		}
		return jsonResult(embedResult{
			Embedding:  vec,
			Model:      deps.Client.Model(),
			Dimensions: len(vec),
		})
	})
}

func registerEmbedBatchTool(s *server.MCPServer, deps *EmbedToolDeps) {
	tool := mcp.NewTool(
		"embed_batch",
		mcp.WithDescription("Returns embedding vectors for a batch of texts, computed with bounded parallelism"),
		mcp.WithArray("texts", mcp.Required(), mcp.Description("Texts to embed, in order")),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		texts, err := getStringSlice(req, "texts")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(texts) == 0 {
			return mcp.NewToolResultError("texts must not be empty"), nil
		}

		vecs, err := deps.embedAll(ctx, texts)
		if err != nil {
			deps.Logger.Warn("embed_batch tool failed", zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("embedding failed: %v", err)), nil
		}

		out := embedBatchResult{Results: make([]embedResult, len(vecs))}
		for i, vec := range vecs {
			out.Results[i] = embedResult{
				Embedding:  vec,
				Model:      deps.Client.Model(),
				Dimensions: len(vec),
			}
		}
		return jsonResult(out)
	})
}

// embedAll fans texts through the worker pool, preserving input order.
// Without a pool it falls back to sequential calls.
func (d *EmbedToolDeps) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if d.Pool == nil {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			vec, err := d.Client.CreateEmbedding(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = vec
		}
		return out, nil
	}

	type indexed struct {
		index int
		vec   []float32
	}
	items := make([]llm.WorkItem[indexed], len(texts))
	for i, text := range texts {
		i, text := i, text
		items[i] = llm.WorkItem[indexed]{
			ID: fmt.Sprintf("text-%d", i),
			Execute: func(ctx context.Context) (indexed, error) {
				vec, err := d.Client.CreateEmbedding(ctx, text)
				return indexed{index: i, vec: vec}, err
			},
		}
	}
	results := llm.Process(ctx, d.Pool, items, nil)
	out := make([][]float32, len(texts))
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("%s: %w", r.ID, r.Err)
		}
		out[r.Result.index] = r.Result.vec
	}
	return out, nil
}
