package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/resguarit/pos-system-sub005/internal/app"
	"github.com/resguarit/pos-system-sub005/internal/fiscal"
	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/observability"
	"github.com/resguarit/pos-system-sub005/internal/platform/db"
	"github.com/resguarit/pos-system-sub005/jobs"
)

func main() {
	_ = godotenv.Load()
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if cfg.FiscalMode != app.FiscalModeAsync {
		logger.Info("fiscal mode is not async, worker has nothing to run", slog.String("fiscal_mode", cfg.FiscalMode))
		return
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	authorizer := fiscal.NewAuthorizer(fiscal.AuthorizerConfig{
		Repo:   fiscal.NewPgRepository(pool),
		Client: fiscal.NewGatewayClient(cfg.FiscalGatewayURL, cfg.FiscalTimeout),
		Sequencer: numbering.NewSequencer(numbering.Config{
			MaxAttempts: cfg.NumberingMaxAttempts,
			Logger:      logger,
			Metrics:     metrics,
		}),
		Logger:  logger,
		Metrics: metrics,
		Timeout: cfg.FiscalTimeout,
	})

	client, err := jobs.NewClient(redisOpts, logger)
	if err != nil {
		logger.Error("create job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	handlers := jobs.NewFiscalHandlers(authorizer, client, metrics.Jobs(), logger)
	cron, err := handlers.Cron(cfg.FiscalSweepLimit)
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers.Tasks(),
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
