package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/multisense/agent/api"
	"github.com/multisense/agent/db"
	"github.com/multisense/agent/internal/config"
	"github.com/multisense/agent/internal/gateway"
	"github.com/multisense/agent/internal/log"
	"github.com/multisense/agent/internal/memory"
	"github.com/multisense/agent/internal/observability"
	"github.com/multisense/agent/internal/orchestrator"
	"github.com/multisense/agent/internal/rag"
	"github.com/multisense/agent/internal/vectorstore"
)

var serveMemoryStore bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `serve runs database migrations, wires the AI gateways, knowledge store,
and conversation memory, and serves the REST API until interrupted.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMemoryStore, "memory-store", false,
		"use the in-process chunk store instead of PostgreSQL")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := checkRequiredEnv(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting assistant backend", "version", AppVersion)

	if cfg.Observability.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Observability.OTLPEndpoint,
			Environment: cfg.Observability.Environment,
			ServiceName: cfg.Observability.ServiceName,
		}, logger)
		if err != nil {
			return fmt.Errorf("setting up tracing: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("trace shutdown error", "error", err)
			}
		}()
	}

	gk, err := gateway.NewGenkit(ctx, gateway.Config{
		ChatModel:     cfg.ChatModel,
		EmbedderModel: cfg.EmbedderModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing AI gateway: %w", err)
	}

	store, pinger, backend, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := rag.New(store, gk, rag.Config{
		ChunkSize:     cfg.RAG.ChunkSize,
		ChunkOverlap:  cfg.RAG.ChunkOverlap,
		MinSimilarity: cfg.RAG.MinSimilarity,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating RAG engine: %w", err)
	}

	mem, err := memory.New(memory.Config{
		MaxTurns: cfg.Memory.MaxTurns,
		TTL:      cfg.Memory.TTL,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating memory service: %w", err)
	}

	orch, err := orchestrator.New(gk, gk, gk, engine, mem, orchestrator.Config{
		DefaultTopK:     cfg.RAG.TopK,
		MaxContextRunes: cfg.RAG.MaxContextRunes,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	server := api.NewServer(orch, engine, mem, pinger, backend, api.Options{
		RateLimit: cfg.Server.RateLimit,
		RateBurst: cfg.Server.RateBurst,
	}, logger)

	return server.Run(ctx, cfg.Server.Addr)
}

// openStore opens the configured chunk store. The Postgres path runs
// embedded migrations first. The returned close function releases the
// store's connections.
func openStore(ctx context.Context, cfg *config.Config, logger log.Logger) (vectorstore.Store, api.Pinger, string, func(), error) {
	if serveMemoryStore {
		logger.Info("using in-process chunk store")
		return vectorstore.NewMemory(), nil, "memory", func() {}, nil
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, "", nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, "", nil, fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, "", nil, fmt.Errorf("pinging PostgreSQL: %w", err)
	}

	logger.Info("connected to PostgreSQL chunk store",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName,
	)
	return vectorstore.NewPostgres(pool, logger), pool, "postgres", pool.Close, nil
}
