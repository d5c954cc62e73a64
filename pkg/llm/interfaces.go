// Package llm provides clients for the SQL completion and embedding
// endpoints. The default provider speaks the native Ollama protocol;
// openai and anthropic providers exist for remote deployments.
package llm

import "context"

// GenerateRequest is one completion call. Temperature 0 with a fixed Seed
// gives reproducible output; multi-candidate generation varies the seed.
type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int
	Stop        []string
	Seed        *int
}

// GenerateResponse carries the completion text and token counters.
type GenerateResponse struct {
	Text            string
	PromptEvalCount int
	EvalCount       int
}

// Client is the interface every LLM provider implements. Use it for
// dependency injection so pipeline tests can run against MockClient.
type Client interface {
	// Generate produces one completion for the request.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// CreateEmbedding produces a dense vector for the input text.
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)

	// CreateEmbeddings produces vectors for multiple inputs.
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// CheckHealth verifies the endpoint is reachable and serving models.
	CheckHealth(ctx context.Context) error

	// Model returns the configured completion model name.
	Model() string

	// Endpoint returns the configured endpoint base URL.
	Endpoint() string
}

var (
	_ Client = (*OllamaClient)(nil)
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*MockClient)(nil)
)
