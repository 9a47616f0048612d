// Command hyogi is the deliberation MCP server. It speaks MCP over
// stdio, so all logging goes to stderr; stdout belongs to the protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/hyogi/internal/adapter"
	"github.com/ashita-ai/hyogi/internal/config"
	"github.com/ashita-ai/hyogi/internal/deliberation"
	"github.com/ashita-ai/hyogi/internal/graph"
	"github.com/ashita-ai/hyogi/internal/mcp"
	"github.com/ashita-ai/hyogi/internal/similarity"
	"github.com/ashita-ai/hyogi/internal/telemetry"
	"github.com/ashita-ai/hyogi/internal/tools"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	// Load .env if present (non-fatal; production hosts won't have one).
	_ = godotenv.Load()

	level := slog.LevelInfo
	if os.Getenv("HYOGI_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	var (
		configPath  = flag.String("config", "config.yaml", "path to configuration file")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(*configPath, logger)
	if err != nil {
		return err
	}
	logger.Info("starting hyogi",
		"version", version,
		"config", *configPath,
		"adapters", len(cfg.Adapters))

	otelShutdown, err := telemetry.Init(ctx,
		os.Getenv("HYOGI_OTEL_ENDPOINT"),
		"hyogi", version,
		os.Getenv("HYOGI_OTEL_INSECURE") == "true")
	if err != nil {
		return err
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}

	adapters, err := adapter.BuildAll(cfg.Adapters, logger)
	if err != nil {
		return err
	}

	scorer := similarity.New(
		os.Getenv("HYOGI_SIMILARITY_BACKEND"),
		logger,
		envOr("HYOGI_OLLAMA_URL", "http://localhost:11434"),
		envOr("HYOGI_EMBEDDING_MODEL", "nomic-embed-text"),
		768,
	)

	root := graph.ProjectRoot(*configPath)

	var (
		store     *graph.Store
		retriever *graph.Retriever
		query     *graph.QueryEngine
	)
	if cfg.DecisionGraph.Enabled {
		dbPath, err := graph.ResolvePath(cfg.DecisionGraph.DBPath, root)
		if err != nil {
			return err
		}
		store, err = graph.Open(dbPath, logger)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		retriever = graph.NewRetriever(store, scorer, cfg.DecisionGraph, logger)
		query = graph.NewQueryEngine(store, scorer, logger)

		if report, err := store.Health(ctx, 24*time.Hour); err != nil {
			logger.Warn("decision graph health check failed", "error", err)
		} else {
			logger.Info("decision graph open",
				"path", dbPath,
				"decisions", report.Decisions,
				"db_size_bytes", report.DBSizeBytes,
				"healthy", report.Healthy())
		}
	}

	transcriptsDir, err := graph.ResolvePath(cfg.Storage.TranscriptsDir, root)
	if err != nil {
		return err
	}

	engine := deliberation.NewEngine(deliberation.EngineOptions{
		Adapters:    adapters,
		Executor:    tools.NewDefaultExecutor(logger),
		Scorer:      scorer,
		Retriever:   retriever,
		Store:       store,
		Summarizer:  deliberation.NewSummarizer(adapters, cfg.ModelRegistry, logger),
		Transcripts: deliberation.NewTranscriptWriter(transcriptsDir),
		Metrics:     metrics,
		Config:      cfg,
		Logger:      logger,
	})

	srv := mcp.New(engine, query, cfg, logger)
	logger.Info("serving MCP over stdio")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-errCh:
		return err
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
