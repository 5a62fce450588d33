package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"script-breakdown/internal/chunker"
	"script-breakdown/internal/config"
	"script-breakdown/internal/domain/ports/adapter"
	aiAdapters "script-breakdown/internal/infra/adapters/ai"
	"script-breakdown/internal/infra/adapters/docstore"
	pg "script-breakdown/internal/infra/db/postgres"
	"script-breakdown/internal/infra/logging"
	"script-breakdown/internal/infra/metrics"
	red "script-breakdown/internal/infra/redis"
	"script-breakdown/internal/infra/sched"
	"script-breakdown/internal/infra/web"
	"script-breakdown/internal/infra/worker"
	"script-breakdown/internal/retry"
	"script-breakdown/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (relaxed auth, noop AI fallback)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	locker := red.NewDocumentLocker(redisClient)
	statusCache := red.NewJobStatusCache(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	chunkRepo := pg.NewChunkRepo(pool)
	breakdownRepo := pg.NewBreakdownRepo(pool)

	// ---- Use cases ----
	jobUC := usecase.NewJobUseCase(jobRepo, chunkRepo, locker,
		cfg.Pipeline.StaleAfter, cfg.Pipeline.Retention, logger)

	// ---- AI adapter chain (OpenAI -> Gemini, budget + concurrency capped) ----
	var providers []adapter.ModelAdapter
	if cfg.AI.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			log.Fatalf("openai adapter: %v", err)
		}
		providers = append(providers, oa)
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI provider: OpenAI")
	}
	if cfg.AI.GeminiKey != "" {
		ga, err := aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL,
			cfg.AI.DefaultModel, cfg.AI.MaxOutputTokens)
		if err != nil {
			log.Fatalf("gemini adapter: %v", err)
		}
		providers = append(providers, ga)
		logger.Info().Str("base", cfg.AI.GeminiURL).Msg("AI provider: Gemini")
	}
	if len(providers) == 0 {
		if !cfg.Runtime.Dev {
			log.Fatalf("no AI provider configured: set ai.openai_key or ai.gemini_key in %s", *cfgPath)
		}
		providers = append(providers, aiAdapters.NewNoOpAdapter())
		logger.Warn().Msg("AI provider: noop (dev mode)")
	}
	chain, err := aiAdapters.NewMultiAdapter(providers...)
	if err != nil {
		log.Fatalf("ai adapter: %v", err)
	}
	ai := aiAdapters.NewLimitedModel(chain, cfg.AI.ConcurrentLimit, cfg.AI.MaxPromptTokens)

	// ---- Document store ----
	docs, err := docstore.NewFSStore(cfg.Pipeline.DocumentRoot)
	if err != nil {
		log.Fatalf("document store: %v", err)
	}

	// ---- Pipeline runner ----
	retrier := retry.New(retry.Config{
		MaxRetries:   cfg.Pipeline.MaxRetries,
		InitialDelay: cfg.Pipeline.RetryDelay,
		MaxDelay:     cfg.Pipeline.RetryMaxDelay,
	})
	chunkOpts := chunker.Options{
		MaxSize: cfg.Pipeline.ChunkMaxSize,
		MinSize: cfg.Pipeline.ChunkMinSize,
		Overlap: cfg.Pipeline.ChunkOverlap,
	}
	workerPool := worker.NewPool(cfg.Pipeline.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	runner := worker.NewJobRunner(jobRepo, jobUC, docs, ai, retrier, breakdownRepo, tm,
		statusCache, chunkOpts, cfg.Pipeline.BatchSize, cfg.Pipeline.PollInterval, logger)
	go runner.Start(ctx, workerPool)

	// ---- Maintenance workers ----
	reclaimer := sched.NewReclaimerWorker(cfg.Pipeline.StaleAfter/2, jobUC, logger)
	go func() { _ = reclaimer.Run(ctx) }()
	retention := sched.NewRetentionWorker(1*time.Hour, jobUC, logger)
	go func() { _ = retention.Run(ctx) }()

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.HTTP.SessionSecret, cfg.HTTP.SecureCookie, cfg.HTTP.SessionTTL)
	srv := web.NewServer(jobUC, statusCache, auth, cfg.HTTP.APIKey, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	cancel()
}
