// hridactl is the operator CLI for hrida-engine: schema migrations for
// the retrieval catalog, embedding ingestion, and catalog verification.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for migrations
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hrida-ai/hrida-engine/pkg/config"
	"github.com/hrida-ai/hrida-engine/pkg/database"
	"github.com/hrida-ai/hrida-engine/pkg/llm"
	"github.com/hrida-ai/hrida-engine/pkg/logging"
	"github.com/hrida-ai/hrida-engine/pkg/repositories"
	"github.com/hrida-ai/hrida-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

var migrationsPath string

var rootCmd = &cobra.Command{
	Use:           "hridactl",
	Short:         "Operate the hrida-engine retrieval catalog",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage catalog schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadEnv()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer sqlDB.Close()

		return database.RunMigrations(sqlDB, migrationsPath, logger)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadEnv()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		m, cleanup, err := newMigrator(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := m.Steps(-1); err != nil {
			if err == migrate.ErrNoChange {
				logger.Info("No migrations to roll back")
				return nil
			}
			return fmt.Errorf("roll back migration: %w", err)
		}
		version, dirty, _ := m.Version()
		logger.Info("Rolled back one migration",
			zap.Uint("version", version),
			zap.Bool("dirty", dirty))
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadEnv()
		if err != nil {
			return err
		}

		m, cleanup, err := newMigrator(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		version, dirty, err := m.Version()
		if err == migrate.ErrNilVersion {
			fmt.Println("no migrations applied")
			return nil
		}
		if err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		if dirty {
			fmt.Printf("%d (dirty)\n", version)
			return nil
		}
		fmt.Println(version)
		return nil
	},
}

var (
	ingestSchema  string
	ingestModules string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Rebuild schema embeddings for a database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadEnv()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx := context.Background()
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		client, err := llm.NewClient(&llm.Config{
			Provider:     cfg.LLM.Provider,
			BaseURL:      config.ResolveURLForDocker(cfg.LLM.BaseURL),
			Model:        cfg.LLM.Model,
			EmbedBaseURL: config.ResolveURLForDocker(cfg.LLM.EffectiveEmbedBaseURL()),
			EmbedModel:   cfg.LLM.EmbedModel,
			APIKey:       cfg.LLM.APIKey,
			Timeout:      cfg.LLM.Timeout(),
			MaxRPS:       cfg.LLM.MaxRPS,
		}, logger)
		if err != nil {
			return fmt.Errorf("create llm client: %w", err)
		}

		pool := llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.Generation.MaxConcurrent}, logger)

		ingestor := services.NewIngestor(
			repositories.NewCatalogRepository(db),
			repositories.NewEmbeddingRepository(db),
			client,
			pool,
			cfg.LLM.EmbedModel,
			cfg.LLM.EmbedDim,
			logger,
		)

		var modules []string
		if ingestModules != "" {
			for _, m := range strings.Split(ingestModules, ",") {
				if m = strings.TrimSpace(m); m != "" {
					modules = append(modules, m)
				}
			}
		}

		stats, err := ingestor.Rebuild(ctx, ingestSchema, modules)
		if err != nil {
			return fmt.Errorf("rebuild embeddings: %w", err)
		}

		fmt.Printf("tables:  %d\ncolumns: %d\nmodules: %d\nskipped: %d\n",
			stats.Tables, stats.Columns, stats.Modules, stats.Skipped)
		if len(stats.Failed) > 0 {
			fmt.Printf("failed:  %d\n", len(stats.Failed))
			for _, id := range stats.Failed {
				fmt.Printf("  %s\n", id)
			}
			return fmt.Errorf("%d embedding jobs failed", len(stats.Failed))
		}
		return nil
	},
}

var verifySchema string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check embedding coverage against the live catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadEnv()
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, err := database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		embeddings := repositories.NewEmbeddingRepository(db)

		counts, err := embeddings.CountByType(ctx, verifySchema)
		if err != nil {
			return fmt.Errorf("count embeddings: %w", err)
		}
		fmt.Printf("tables:  %d\ncolumns: %d\nmodules: %d\n",
			counts["table"], counts["column"], counts["module"])

		dangling, err := embeddings.DanglingTexts(ctx, verifySchema)
		if err != nil {
			return fmt.Errorf("check dangling embeddings: %w", err)
		}
		if len(dangling) > 0 {
			fmt.Printf("dangling: %d\n", len(dangling))
			for _, d := range dangling {
				fmt.Printf("  %s\n", d)
			}
			return fmt.Errorf("%d embeddings reference dropped tables or columns; re-run ingest", len(dangling))
		}
		fmt.Println("dangling: 0")
		return nil
	},
}

func loadEnv() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(Version)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, logger, nil
}

func newMigrator(cfg *config.Config) (*migrate.Migrate, func(), error) {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("create migration instance: %w", err)
	}

	cleanup := func() {
		_, _ = m.Close()
	}
	return m, cleanup, nil
}

func init() {
	rootCmd.Version = Version

	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "migrations", "migrations", "Path to the migrations directory")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	ingestCmd.Flags().StringVar(&ingestSchema, "schema", "public", "Database schema to ingest")
	ingestCmd.Flags().StringVar(&ingestModules, "modules", "", "Comma-separated module filter (default: all)")

	verifyCmd.Flags().StringVar(&verifySchema, "schema", "public", "Database schema to verify")

	rootCmd.AddCommand(migrateCmd, ingestCmd, verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
