package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the settings shared by all providers. MaxRPS 0 disables
// client-side rate limiting; NumCtx 0 uses the model default.
type Config struct {
	Provider     string // ollama, openai, anthropic
	BaseURL      string
	Model        string
	EmbedBaseURL string
	EmbedModel   string
	APIKey       string
	SystemPrompt string
	Timeout      time.Duration
	NumCtx       int
	MaxRPS       int
}

// OllamaClient speaks the native Ollama HTTP protocol: /api/generate for
// completions, /api/embeddings for vectors, /api/tags for liveness.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	embedBase  string
	model      string
	embedModel string
	system     string
	numCtx     int
	limiter    *rate.Limiter
	breaker    *CircuitBreaker
	logger     *zap.Logger
}

// NewOllamaClient creates the native client. The circuit breaker trips
// after consecutive connection failures so a down endpoint fails fast
// instead of stalling every repair attempt.
func NewOllamaClient(cfg *Config, logger *zap.Logger) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	embedBase := cfg.EmbedBaseURL
	if embedBase == "" {
		embedBase = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.MaxRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxRPS), cfg.MaxRPS)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 90 * time.Second
	}

	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		embedBase:  strings.TrimSuffix(embedBase, "/"),
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		system:     cfg.SystemPrompt,
		numCtx:     cfg.NumCtx,
		limiter:    limiter,
		breaker:    NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:     logger.Named("ollama"),
	}, nil
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
	NumCtx      int      `json:"num_ctx,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate calls /api/generate with stream=false.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if ok, err := c.breaker.Allow(); !ok {
		return nil, NewErrorWithContext(ErrorTypeEndpoint, "circuit open", false, err, c.model, c.baseURL, 0)
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	system := req.System
	if system == "" {
		system = c.system
	}
	body := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: system,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
			Seed:        req.Seed,
			NumCtx:      c.numCtx,
		},
	}

	start := time.Now()
	var out ollamaGenerateResponse
	if err := c.post(ctx, c.baseURL+"/api/generate", body, &out); err != nil {
		c.breaker.RecordFailure()
		c.logger.Error("generate failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, err
	}
	c.breaker.RecordSuccess()

	c.logger.Debug("generate completed",
		zap.Int("prompt_eval_count", out.PromptEvalCount),
		zap.Int("eval_count", out.EvalCount),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResponse{
		Text:            out.Response,
		PromptEvalCount: out.PromptEvalCount,
		EvalCount:       out.EvalCount,
	}, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// CreateEmbedding calls /api/embeddings for a single text.
func (c *OllamaClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var out ollamaEmbeddingResponse
	err := c.post(ctx, c.embedBase+"/api/embeddings", ollamaEmbeddingRequest{
		Model:  c.embedModel,
		Prompt: text,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, NewError(ErrorTypeModel, "empty embedding in response", false, nil)
	}
	return out.Embedding, nil
}

// CreateEmbeddings embeds each input in order. The endpoint has no batch
// route; callers needing parallelism fan out through the worker pool.
func (c *OllamaClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		emb, err := c.CreateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

// CheckHealth lists models via /api/tags.
func (c *OllamaClient) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClassifyError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return NewErrorWithContext(ErrorTypeEndpoint,
			fmt.Sprintf("health check returned HTTP %d", resp.StatusCode),
			true, nil, c.model, c.baseURL, resp.StatusCode)
	}
	return nil
}

func (c *OllamaClient) Model() string    { return c.model }
func (c *OllamaClient) Endpoint() string { return c.baseURL }

func (c *OllamaClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return ClassifyError(err)
	}
	return nil
}

func (c *OllamaClient) post(ctx context.Context, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyWithContext(err, c.model, url)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyWithContext(err, c.model, url)
	}
	if resp.StatusCode != http.StatusOK {
		classified := ClassifyError(fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(data), 200)))
		classified.Model = c.model
		classified.Endpoint = url
		classified.StatusCode = resp.StatusCode
		return classified
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewErrorWithContext(ErrorTypeUnknown, "malformed response body", false, err, c.model, url, resp.StatusCode)
	}
	return nil
}

func classifyWithContext(err error, model, endpoint string) *Error {
	classified := ClassifyError(err)
	classified.Model = model
	classified.Endpoint = endpoint
	return classified
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
