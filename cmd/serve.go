package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mirralabs/mirra/api"
	"github.com/mirralabs/mirra/db"
	"github.com/mirralabs/mirra/internal/chunk"
	"github.com/mirralabs/mirra/internal/config"
	"github.com/mirralabs/mirra/internal/database"
	"github.com/mirralabs/mirra/internal/knowledge"
	"github.com/mirralabs/mirra/internal/llm"
	"github.com/mirralabs/mirra/internal/log"
	"github.com/mirralabs/mirra/internal/rag"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides configuration)")
	rootCmd.AddCommand(serveCmd)
}

// runServe loads configuration, migrates the schema, builds the pipeline,
// and serves until SIGINT/SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: logLevel(), JSON: true})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting mirra", "version", AppVersion, "provider", cfg.Provider)

	if err := db.ValidateDimensions(cfg.EmbeddingDimensions); err != nil {
		return fmt.Errorf("checking embedding dimensions: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store, err := knowledge.New(pool, logger)
	if err != nil {
		return fmt.Errorf("creating knowledge store: %w", err)
	}

	client, err := llm.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating provider client: %w", err)
	}

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating splitter: %w", err)
	}

	pipeline, err := rag.New(store, client, splitter, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	server, err := api.NewServer(api.ServerConfig{
		Logger:     logger,
		Pipeline:   pipeline,
		Pool:       pool,
		TrustProxy: cfg.TrustProxy,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}
	return server.Run(ctx, addr, logger)
}

// logLevel reads DEBUG from the environment; any value enables debug logs.
func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
