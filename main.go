package main

import (
	"context"
	"log"
	"net/http"

	"github.com/hrida-ai/hrida-engine/pkg/auth"
	"github.com/hrida-ai/hrida-engine/pkg/config"
	"github.com/hrida-ai/hrida-engine/pkg/database"
	"github.com/hrida-ai/hrida-engine/pkg/handlers"
	"github.com/hrida-ai/hrida-engine/pkg/llm"
	"github.com/hrida-ai/hrida-engine/pkg/logging"
	"github.com/hrida-ai/hrida-engine/pkg/mcp"
	"github.com/hrida-ai/hrida-engine/pkg/mcp/tools"
	"github.com/hrida-ai/hrida-engine/pkg/middleware"
	"github.com/hrida-ai/hrida-engine/pkg/prompts"
	"github.com/hrida-ai/hrida-engine/pkg/repositories"
	"github.com/hrida-ai/hrida-engine/pkg/services"
	sqlcheck "github.com/hrida-ai/hrida-engine/pkg/sql"
	"go.uber.org/zap"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_model", cfg.LLM.Model),
		zap.String("database", cfg.Database.Database),
		zap.Bool("redis_enabled", cfg.Redis.Host != ""),
		zap.Bool("auth_enabled", cfg.Auth.Enabled()))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}

	llmClient, err := llm.NewClient(&llm.Config{
		Provider:     cfg.LLM.Provider,
		BaseURL:      config.ResolveURLForDocker(cfg.LLM.BaseURL),
		Model:        cfg.LLM.Model,
		EmbedBaseURL: config.ResolveURLForDocker(cfg.LLM.EffectiveEmbedBaseURL()),
		EmbedModel:   cfg.LLM.EmbedModel,
		APIKey:       cfg.LLM.APIKey,
		SystemPrompt: cfg.LLM.SystemPrompt,
		Timeout:      cfg.LLM.Timeout(),
		NumCtx:       cfg.LLM.NumCtx,
		MaxRPS:       cfg.LLM.MaxRPS,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create llm client", zap.Error(err))
	}

	pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.Generation.MaxConcurrent}, logger)

	catalogRepo := repositories.NewCatalogRepository(db)
	embeddingRepo := repositories.NewEmbeddingRepository(db)

	cache := services.NewContextCache(redisClient, cfg.Cache.EmbeddingTTL, cfg.Cache.ContextTTL, logger)

	retriever := services.NewRetriever(llmClient, catalogRepo, embeddingRepo, cache, services.RetrieverConfig{
		TopK:                cfg.Retrieval.TopK,
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		FKExpansionDelta:    cfg.Retrieval.FKExpansionDelta,
		MaxTables:           cfg.Retrieval.MaxTables,
	}, logger)

	generator := services.NewGenerator(llmClient, pool, services.GeneratorConfig{
		MaxTokens:            cfg.LLM.MaxTokens,
		KDefault:             cfg.Generation.KDefault,
		BaseSeed:             cfg.Generation.BaseSeed,
		SequentialCandidates: cfg.Generation.SequentialCandidates,
		MaxConcurrent:        cfg.Generation.MaxConcurrent,
	}, logger)

	validator := &sqlcheck.Validator{
		BannedKeywords:  cfg.Validator.BannedKeywords,
		BannedFunctions: cfg.Validator.BannedFunctions,
	}

	planner := services.NewPlanner(db, embeddingRepo, llmClient, logger)
	executor := services.NewExecutor(db, services.ExecutorConfig{
		DefaultTimeout: cfg.Executor.DefaultTimeout(),
		MaxRowsCap:     cfg.Executor.MaxRowsCap,
	}, logger)

	pipeline := services.NewPipeline(
		retriever,
		generator,
		validator,
		services.NewSemanticValidator(),
		planner,
		executor,
		services.PipelineConfig{
			MaxAttempts:     cfg.Repair.MaxAttempts,
			ConfidenceFloor: cfg.Repair.ConfidenceFloor,
			JoinHintFormat:  prompts.JoinHintFormat(cfg.Prompt.JoinHintFormat),
			DefaultTimeout:  cfg.Executor.DefaultTimeout(),
		},
		logger,
	)

	mcpServer := mcp.NewServer("hrida-engine", cfg.Version, logger)
	tools.RegisterPipelineTools(mcpServer.MCP(), &tools.PipelineToolDeps{
		Pipeline:          pipeline,
		DefaultDatabaseID: "public",
		Logger:            logger,
	})
	tools.RegisterEmbedTools(mcpServer.MCP(), &tools.EmbedToolDeps{
		Client: llmClient,
		Pool:   pool,
		Logger: logger,
	})
	tools.RegisterCacheTools(mcpServer.MCP(), &tools.CacheToolDeps{
		Cache:  cache,
		Logger: logger,
	})
	healthDeps := &tools.HealthToolDeps{
		DB:      db,
		LLM:     llmClient,
		Version: cfg.Version,
		Logger:  logger,
	}
	tools.RegisterHealthTool(mcpServer.MCP(), healthDeps)

	var authMiddleware func(http.Handler) http.Handler
	if cfg.Auth.Enabled() {
		verifier, err := auth.NewVerifier(ctx, auth.Config{
			SharedSecret: cfg.Auth.SharedSecret,
			JWKSURL:      cfg.Auth.JWKSURL,
		})
		if err != nil {
			logger.Fatal("failed to configure auth", zap.Error(err))
		}
		authMiddleware = auth.Middleware(verifier, logger)
	}

	mux := http.NewServeMux()
	handlers.NewHealthHandler(healthDeps, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, authMiddleware)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("starting hrida-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, middleware.RequestLogger(logger)(mux)); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
