package llm

import (
	"context"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// AnthropicClient generates SQL through the Anthropic messages API.
// Embeddings delegate to the native embeddings route like OpenAIClient.
type AnthropicClient struct {
	client   *anthropic.Client
	embedder *OllamaClient
	endpoint string
	model    string
	system   string
	logger   *zap.Logger
}

// NewAnthropicClient creates a messages-API provider.
func NewAnthropicClient(cfg *Config, embedder *OllamaClient, logger *zap.Logger) (*AnthropicClient, error) {
	var opts []anthropic.ClientOption
	endpoint := "https://api.anthropic.com/v1"
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		endpoint = cfg.BaseURL
	}

	return &AnthropicClient{
		client:   anthropic.NewClient(cfg.APIKey, opts...),
		embedder: embedder,
		endpoint: endpoint,
		model:    cfg.Model,
		system:   cfg.SystemPrompt,
		logger:   logger.Named("anthropic"),
	}, nil
}

// Generate issues a messages call. The API has no seed parameter, so
// reproducible multi-candidate diversity is unavailable on this provider;
// temperature alone controls variation.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	system := req.System
	if system == "" {
		system = c.system
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 256
	}

	temp := float32(req.Temperature)
	msgReq := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(req.Prompt),
		},
		MaxTokens:     maxTokens,
		Temperature:   &temp,
		StopSequences: req.Stop,
	}
	if system != "" {
		msgReq.System = system
	}

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, msgReq)
	if err != nil {
		c.logger.Error("messages call failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, classifyWithContext(err, c.model, c.endpoint)
	}

	return &GenerateResponse{
		Text:            resp.GetFirstContentText(),
		PromptEvalCount: resp.Usage.InputTokens,
		EvalCount:       resp.Usage.OutputTokens,
	}, nil
}

func (c *AnthropicClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return c.embedder.CreateEmbedding(ctx, text)
}

func (c *AnthropicClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embedder.CreateEmbeddings(ctx, texts)
}

// CheckHealth verifies the embedding endpoint; the messages API exposes no
// cheap liveness route.
func (c *AnthropicClient) CheckHealth(ctx context.Context) error {
	return c.embedder.CheckHealth(ctx)
}

func (c *AnthropicClient) Model() string    { return c.model }
func (c *AnthropicClient) Endpoint() string { return c.endpoint }
