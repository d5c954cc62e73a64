package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for hrida-engine.
// Values come from config.yaml, an optional config.local.yaml overlay, and
// environment variables, in increasing precedence. Secrets (PGPASSWORD,
// LLM_API_KEY, AUTH_SHARED_SECRET) must only come from environment
// variables (yaml:"-" fields).
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8001"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Repair     RepairConfig     `yaml:"repair"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Validator  ValidatorConfig  `yaml:"validator"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Cache      CacheConfig      `yaml:"cache"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig holds inference endpoint configuration. The default provider
// speaks the native Ollama protocol; openai and anthropic providers exist
// for remote deployments. Embeddings always use the embeddings route of
// EmbedBaseURL (falling back to BaseURL).
type LLMConfig struct {
	Provider       string `yaml:"provider" env:"LLM_PROVIDER" env-default:"ollama"`
	BaseURL        string `yaml:"base_url" env:"OLLAMA_BASE_URL" env-default:"http://localhost:11434"`
	Model          string `yaml:"model" env:"OLLAMA_MODEL" env-default:"sqlcoder:7b"`
	EmbedBaseURL   string `yaml:"embed_base_url" env:"OLLAMA_EMBED_BASE_URL" env-default:""`
	EmbedModel     string `yaml:"embed_model" env:"OLLAMA_EMBED_MODEL" env-default:"nomic-embed-text"`
	EmbedDim       int    `yaml:"embed_dim" env:"OLLAMA_EMBED_DIM" env-default:"768"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"OLLAMA_TIMEOUT" env-default:"90"`
	NumCtx         int    `yaml:"num_ctx" env:"OLLAMA_NUM_CTX" env-default:"0"` // 0 = model default
	MaxTokens      int    `yaml:"max_tokens" env:"OLLAMA_NUM_PREDICT" env-default:"256"`
	SystemPrompt   string `yaml:"system_prompt" env:"SQL_SYSTEM_PROMPT" env-default:""`
	MaxRPS         int    `yaml:"max_rps" env:"LLM_MAX_RPS" env-default:"0"` // 0 = unlimited
	APIKey         string `yaml:"-" env:"LLM_API_KEY"`                      // Secret - not in YAML
}

// Timeout returns the per-call LLM deadline.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EffectiveEmbedBaseURL returns the embeddings endpoint base, falling back
// to the generation base when not configured separately.
func (c *LLMConfig) EffectiveEmbedBaseURL() string {
	if c.EmbedBaseURL != "" {
		return c.EmbedBaseURL
	}
	return c.BaseURL
}

// GenerationConfig controls multi-candidate SQL generation.
type GenerationConfig struct {
	SequentialCandidates bool `yaml:"sequential_candidates" env:"SEQUENTIAL_CANDIDATES" env-default:"false"`
	KDefault             int  `yaml:"k_default" env:"GENERATION_K" env-default:"3"`
	BaseSeed             int  `yaml:"base_seed" env:"GENERATION_BASE_SEED" env-default:"42"`
	MaxConcurrent        int  `yaml:"max_concurrent" env:"GENERATION_MAX_CONCURRENT" env-default:"8"`
}

// RetrievalConfig controls hybrid schema retrieval.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k" env:"RETRIEVAL_TOP_K" env-default:"12"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"RETRIEVAL_SIM_THRESHOLD" env-default:"0.25"`
	FKExpansionDelta    float64 `yaml:"fk_expansion_delta" env:"RETRIEVAL_FK_DELTA" env-default:"0.05"`
	MaxTables           int     `yaml:"max_tables" env:"RETRIEVAL_MAX_TABLES" env-default:"10"`
}

// PromptConfig controls prompt assembly.
type PromptConfig struct {
	// JoinHintFormat is one of edges, paths, both, none.
	JoinHintFormat string `yaml:"join_hint_format" env:"JOIN_HINT_FORMAT" env-default:"edges"`
}

// RepairConfig bounds the repair loop.
type RepairConfig struct {
	MaxAttempts     int     `yaml:"max_attempts" env:"REPAIR_MAX_ATTEMPTS" env-default:"3"`
	ConfidenceFloor float64 `yaml:"confidence_floor" env:"REPAIR_CONFIDENCE_FLOOR" env-default:"0.4"`
}

// ExecutorConfig bounds query execution.
type ExecutorConfig struct {
	DefaultTimeoutSeconds int `yaml:"default_timeout_seconds" env:"EXECUTOR_TIMEOUT" env-default:"30"`
	MaxRowsCap            int `yaml:"max_rows_cap" env:"EXECUTOR_MAX_ROWS_CAP" env-default:"1000"`
}

// DefaultTimeout returns the executor statement deadline.
func (c *ExecutorConfig) DefaultTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutSeconds) * time.Second
}

// ValidatorConfig carries the structural validator denylists. The lists
// ship as configuration so operators can align them with the deployed
// PostgreSQL version without a rebuild.
type ValidatorConfig struct {
	BannedKeywords  []string `yaml:"banned_keywords" env:"VALIDATOR_BANNED_KEYWORDS"`
	BannedFunctions []string `yaml:"banned_functions" env:"VALIDATOR_BANNED_FUNCTIONS"`
}

// DatabaseConfig holds PostgreSQL configuration. The same database carries
// the rag catalog and the business schema queried by generated SQL.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"hrida"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"hrida"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds the optional cache backend. Empty host disables Redis
// and the engine runs without caching.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig controls TTLs for cached embeddings and context packets.
type CacheConfig struct {
	EmbeddingTTL time.Duration `yaml:"embedding_ttl" env:"CACHE_EMBEDDING_TTL" env-default:"24h"`
	ContextTTL   time.Duration `yaml:"context_ttl" env:"CACHE_CONTEXT_TTL" env-default:"10m"`
}

// AuthConfig holds optional bearer-token verification for the RPC
// endpoint. When neither SharedSecret nor JWKSURL is set the endpoint is
// open, which is the usual sidecar deployment.
type AuthConfig struct {
	SharedSecret string `yaml:"-" env:"AUTH_SHARED_SECRET"` // Secret - not in YAML
	JWKSURL      string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`
}

// Enabled reports whether bearer verification is configured.
func (c *AuthConfig) Enabled() bool {
	return c.SharedSecret != "" || c.JWKSURL != ""
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// Load reads configuration with the documented precedence: config.yaml,
// deep-merged config.local.yaml, then environment variables. Either file
// may be absent. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", "config.local.yaml", version)
}

// LoadFrom is Load with explicit file paths, used by tests and hridactl.
func LoadFrom(basePath, localPath, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	merged, err := mergeConfigFiles(basePath, localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config files: %w", err)
	}

	if merged != nil {
		if err := unmarshalMerged(merged, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse merged config: %w", err)
		}
	}

	// Environment variables take final precedence; env-default fills
	// anything still unset.
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills list-valued fields that env-default tags cannot
// express.
func (c *Config) applyDefaults() {
	if len(c.Validator.BannedKeywords) == 0 {
		c.Validator.BannedKeywords = DefaultBannedKeywords()
	}
	if len(c.Validator.BannedFunctions) == 0 {
		c.Validator.BannedFunctions = DefaultBannedFunctions()
	}
}

func (c *Config) validate() error {
	switch c.LLM.Provider {
	case "ollama", "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be one of ollama, openai, anthropic; got %q", c.LLM.Provider)
	}

	switch c.Prompt.JoinHintFormat {
	case "edges", "paths", "both", "none":
	default:
		return fmt.Errorf("prompt.join_hint_format must be one of edges, paths, both, none; got %q", c.Prompt.JoinHintFormat)
	}

	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0,1]; got %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Repair.ConfidenceFloor < 0 || c.Repair.ConfidenceFloor > 1 {
		return fmt.Errorf("repair.confidence_floor must be in [0,1]; got %v", c.Repair.ConfidenceFloor)
	}
	if c.Repair.MaxAttempts < 0 {
		return fmt.Errorf("repair.max_attempts must be >= 0; got %d", c.Repair.MaxAttempts)
	}
	if c.LLM.EmbedDim <= 0 {
		return fmt.Errorf("llm.embed_dim must be positive; got %d", c.LLM.EmbedDim)
	}

	return nil
}

// DefaultBannedKeywords returns the statement-level denylist applied when
// configuration does not override it.
func DefaultBannedKeywords() []string {
	return []string{
		"INSERT", "UPDATE", "DELETE", "DROP", "TRUNCATE", "ALTER",
		"CREATE", "GRANT", "REVOKE", "COPY", "SET", "INTO",
	}
}

// DefaultBannedFunctions returns the function denylist applied when
// configuration does not override it.
func DefaultBannedFunctions() []string {
	return []string{
		"pg_sleep", "pg_read_file", "pg_write_file", "pg_ls_dir",
		"lo_import", "lo_export", "pg_terminate_backend",
		"pg_cancel_backend", "dblink", "dblink_exec",
	}
}
