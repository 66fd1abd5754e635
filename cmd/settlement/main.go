package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/resguarit/pos-system-sub005/cmd/settlement/cli"
	"github.com/resguarit/pos-system-sub005/internal/app"
	"github.com/resguarit/pos-system-sub005/internal/fiscal"
	"github.com/resguarit/pos-system-sub005/internal/inventory"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/masterdata"
	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/observability"
	"github.com/resguarit/pos-system-sub005/internal/platform/cache"
	"github.com/resguarit/pos-system-sub005/internal/platform/db"
	"github.com/resguarit/pos-system-sub005/internal/pricing"
	"github.com/resguarit/pos-system-sub005/internal/sales"
	"github.com/resguarit/pos-system-sub005/internal/shared"
	"github.com/resguarit/pos-system-sub005/jobs"
)

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func main() {
	_ = godotenv.Load()
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.CacheOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	metrics := observability.NewMetrics()

	kinds, err := ledger.LoadKinds(ctx, ledger.NewKindRepo(pool))
	if err != nil {
		logger.Error("load ledger kinds", slog.Any("error", err))
		os.Exit(1)
	}
	masterRepo := masterdata.NewRepository(pool)
	catalog := masterdata.NewCatalog(masterRepo)
	if err := catalog.Load(ctx); err != nil {
		logger.Error("load catalog", slog.Any("error", err))
		os.Exit(1)
	}
	pricingCache := masterdata.NewPricingCache(masterRepo, redisClient, cfg.PricingCacheTTL, logger)

	sequencer := numbering.NewSequencer(numbering.Config{
		MaxAttempts: cfg.NumberingMaxAttempts,
		Logger:      logger,
		Metrics:     metrics,
	})
	poster := ledger.NewPoster(ledger.PosterConfig{Kinds: kinds, Logger: logger, Metrics: metrics})
	stock := inventory.NewService(
		shared.NewDedupStore(redisClient, cfg.StockDedupTTL),
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegativeStock},
		logger,
	)

	readiness := map[string]app.Pinger{"postgres": pool, "redis": redisPinger{client: redisClient}}

	var (
		authorizer *fiscal.Authorizer
		scheduler  sales.AuthorizationScheduler
	)
	if cfg.FiscalMode != app.FiscalModeOff {
		gateway := fiscal.NewGatewayClient(cfg.FiscalGatewayURL, cfg.FiscalTimeout)
		readiness["fiscal_gateway"] = gateway
		authorizer = fiscal.NewAuthorizer(fiscal.AuthorizerConfig{
			Repo:      fiscal.NewPgRepository(pool),
			Client:    gateway,
			Sequencer: sequencer,
			Logger:    logger,
			Metrics:   metrics,
			Timeout:   cfg.FiscalTimeout,
		})
	}
	switch cfg.FiscalMode {
	case app.FiscalModeAsync:
		jobClient, err := jobs.NewClient(redisOpts, logger)
		if err != nil {
			logger.Error("create job client", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = jobClient.Close() }()
		scheduler = jobClient
	case app.FiscalModeSync:
		scheduler = fiscal.NewSyncScheduler(authorizer, logger)
	}

	salesService := sales.NewService(sales.Config{
		Repo:      sales.NewPgRepository(pool),
		Catalog:   catalog,
		Pricing:   pricingCache,
		Engine:    pricing.NewEngine(pricing.Config{StrictOverrides: cfg.PricingStrictOverrides}),
		Sequencer: sequencer,
		Poster:    poster,
		Stock:     stock,
		Scheduler: scheduler,
		Logger:    logger,
	})

	if len(os.Args) > 1 {
		var fiscalAuthorizer cli.FiscalAuthorizer
		if authorizer != nil {
			fiscalAuthorizer = authorizer
		}
		os.Exit(cli.Run(ctx, os.Args[1:], cli.Deps{
			Authorizer: fiscalAuthorizer,
			Sales:      salesService,
			RedisAddr:  cfg.RedisAddr,
		}))
	}

	var salesAuthorizer sales.FiscalAuthorizer
	if authorizer != nil {
		salesAuthorizer = authorizer
	}
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SalesHandler:      sales.NewHandler(logger, salesService, salesAuthorizer),
		MasterDataHandler: masterdata.NewHandler(catalog),
		InventoryHandler:  inventory.NewHandler(logger, inventory.NewRepository(pool)),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Readiness:         readiness,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("fiscal_mode", cfg.FiscalMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
