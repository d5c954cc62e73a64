package llm

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient generates SQL through an OpenAI-compatible chat-completions
// API. Embeddings still go through the native embeddings route, so the
// client wraps an OllamaClient for the vector side.
type OpenAIClient struct {
	client   *openai.Client
	embedder *OllamaClient
	endpoint string
	model    string
	system   string
	logger   *zap.Logger
}

// NewOpenAIClient creates a chat-completions provider.
func NewOpenAIClient(cfg *Config, embedder *OllamaClient, logger *zap.Logger) (*OpenAIClient, error) {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		embedder: embedder,
		endpoint: clientConfig.BaseURL,
		model:    cfg.Model,
		system:   cfg.SystemPrompt,
		logger:   logger.Named("openai"),
	}, nil
}

// Generate issues a chat completion. Stop sequences and seed pass through;
// OpenAI caps stop sequences at four.
func (c *OpenAIClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	system := req.System
	if system == "" {
		system = c.system
	}
	messages := []openai.ChatCompletionMessage{}
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Prompt,
	})

	stop := req.Stop
	if len(stop) > 4 {
		stop = stop[:4]
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		Stop:        stop,
	}
	if req.Seed != nil {
		chatReq.Seed = req.Seed
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		c.logger.Error("chat completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, classifyWithContext(err, c.model, c.endpoint)
	}
	if len(resp.Choices) == 0 {
		return nil, NewErrorWithContext(ErrorTypeModel, "no choices in response", false, nil, c.model, c.endpoint, 0)
	}

	return &GenerateResponse{
		Text:            resp.Choices[0].Message.Content,
		PromptEvalCount: resp.Usage.PromptTokens,
		EvalCount:       resp.Usage.CompletionTokens,
	}, nil
}

func (c *OpenAIClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return c.embedder.CreateEmbedding(ctx, text)
}

func (c *OpenAIClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return c.embedder.CreateEmbeddings(ctx, texts)
}

// CheckHealth probes the chat API with a minimal model listing call.
func (c *OpenAIClient) CheckHealth(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return classifyWithContext(err, c.model, c.endpoint)
	}
	return nil
}

func (c *OpenAIClient) Model() string    { return c.model }
func (c *OpenAIClient) Endpoint() string { return c.endpoint }
