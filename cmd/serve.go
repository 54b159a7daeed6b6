package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/marketlens/marketlens/db"
	"github.com/marketlens/marketlens/internal/agent"
	"github.com/marketlens/marketlens/internal/api"
	"github.com/marketlens/marketlens/internal/config"
	"github.com/marketlens/marketlens/internal/ingest"
	"github.com/marketlens/marketlens/internal/knowledge"
	"github.com/marketlens/marketlens/internal/llm"
	"github.com/marketlens/marketlens/internal/log"
	"github.com/marketlens/marketlens/internal/market"
	"github.com/marketlens/marketlens/internal/quant"
	"github.com/marketlens/marketlens/internal/scrape"
	"github.com/marketlens/marketlens/internal/session"
	"github.com/marketlens/marketlens/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: slog.LevelInfo, JSON: true})
	logger.Info("starting marketlens", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, cleanup, err := newDBPool(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey,
		llm.WithChatModel(cfg.ModelName),
		llm.WithEmbeddingModel(cfg.EmbedderModel))
	if err != nil {
		return fmt.Errorf("creating gemini client: %w", err)
	}

	kb := knowledge.New(knowledge.NewPGQuerier(pool), gemini, logger.With("component", "knowledge"))

	marketClient := market.New(cfg.PolygonAPIKey,
		market.WithBaseURL(cfg.PolygonBaseURL),
		market.WithLogger(logger.With("component", "market")))

	sentimentClient := quant.NewSentimentClient(cfg.SentimentServiceURL, logger.With("component", "sentiment"))
	forecastClient := quant.NewForecastClient(cfg.ForecastServiceURL, logger.With("component", "forecast"))

	executor := tools.NewExecutor(marketClient, kb, sentimentClient, forecastClient,
		tools.NewCache(tools.WithCacheTTL(cfg.CacheTTL)),
		logger.With("component", "tools"))

	sessions := session.NewStore(session.WithTTL(cfg.SessionTTL))

	engine := agent.NewEngine(gemini, executor, sessions,
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithHistoryDepth(cfg.HistoryDepth),
		agent.WithPersistBudgetFallback(cfg.PersistBudgetFallback),
		agent.WithRateLimiter(rate.NewLimiter(rate.Limit(2), 4)),
		agent.WithLogger(logger.With("component", "agent")))

	scraper := scrape.New(scrape.WithLogger(logger.With("component", "scrape")))
	pipeline := ingest.New(kb, scraper,
		ingest.WithWorkers(cfg.IngestWorkers),
		ingest.WithBatchSize(cfg.IngestBatch),
		ingest.WithLogger(logger.With("component", "ingest")))

	server := api.NewServer(engine, sessions, pipeline, kb, pool, logger.With("component", "api"))
	return server.Run(ctx, cfg.ListenAddr)
}

// newDBPool runs migrations and opens a pgx pool with pgvector types
// registered on every connection.
func newDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("database ready", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)
	return pool, pool.Close, nil
}
