package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewClient builds the provider named by cfg.Provider. The openai and
// anthropic providers still embed a native client for the embeddings
// route; cfg.EmbedBaseURL points it at the local endpoint.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaClient(cfg, logger)
	case "openai", "anthropic":
		embedCfg := *cfg
		embedCfg.BaseURL = cfg.EmbedBaseURL
		if embedCfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %s requires llm.embed_base_url for the native embeddings route", cfg.Provider)
		}
		embedder, err := NewOllamaClient(&embedCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		if cfg.Provider == "openai" {
			return NewOpenAIClient(cfg, embedder, logger)
		}
		return NewAnthropicClient(cfg, embedder, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
