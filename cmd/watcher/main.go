package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/chromedp_crawler"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/httpfetch"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/postgres"
	redis_adapter "github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/redis"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/sites"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/adapter/telegram"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/delivery/http/handler"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/delivery/http/router"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/usecase"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/config"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/logger"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/retry"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON or YAML config file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	if err := run(*configPath, *once); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
	// --- Configuration ---
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// --- Logger ---
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	dropped, err := cfg.Validate(sites.KnownTypes())
	for _, d := range dropped {
		log.Warn("skipping invalid website config", zap.String("website", d))
	}
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return err
	}
	log.Info("configuration loaded",
		zap.String("path", configPath),
		zap.Int("websites", len(cfg.Websites)),
		zap.Int("enabled", len(cfg.EnabledWebsites())),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Database Connections ---
	dbpool, err := postgres.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Error("unable to connect to database", zap.Error(err))
		return err
	}
	defer dbpool.Close()
	if err := postgres.Migrate(ctx, dbpool); err != nil {
		log.Error("failed to apply schema", zap.Error(err))
		return err
	}
	log.Info("PostgreSQL connection pool established")

	rdb, err := redis_adapter.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("unable to connect to Redis", zap.Error(err))
		return err
	}
	defer rdb.Close()
	log.Info("Redis connection established")

	// --- Single runner ---
	owner := runnerID()
	lock := redis_adapter.NewRunnerLock(rdb)
	acquired, err := lock.Acquire(ctx, owner, cfg.Server.LockTTL)
	if err != nil {
		log.Error("failed to acquire runner lock", zap.Error(err))
		return err
	}
	if !acquired {
		log.Error("another watcher is already running against this database")
		return errors.New("runner lock is held by another process")
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx, owner); err != nil {
			log.Warn("failed to release runner lock", zap.Error(err))
		}
	}()

	// --- Notifier ---
	tgCfg := telegram.Config{
		BotToken:     cfg.Telegram.BotToken,
		BackupTokens: cfg.Telegram.BackupTokens,
		ChatIDs:      cfg.Telegram.ChatIDs,
		APIURL:       cfg.Telegram.APIURL,
	}
	notifier := telegram.NewNotifier(tgCfg, log.Named("telegram"))
	if err := notifier.Ping(ctx); err != nil {
		log.Warn("telegram is unreachable, notifications may be lost", zap.Error(err))
	}

	// --- Proxy pool ---
	var pool *usecase.ProxyPool
	if cfg.Proxy.Enabled {
		replenisher := telegram.NewReplenisher(tgCfg, notifier.DefaultChat(), log.Named("replenisher"))
		pool = usecase.NewProxyPool(postgres.NewProxyRepo(dbpool), replenisher, usecase.ProxyPoolConfig{
			MinCount:         cfg.Proxy.MinCount,
			SelectionWindow:  cfg.Proxy.SelectionWindow,
			ReplenishTimeout: cfg.Proxy.ReplenishTimeout,
		}, log.Named("proxy_pool"))
	}

	// --- Transports ---
	policy := retry.Policy{
		Attempts:        cfg.Scraping.MaxRetries,
		InitialInterval: cfg.Scraping.RetryDelay,
		MaxInterval:     time.Minute,
	}

	browser := chromedp_crawler.NewChromedpRenderer(cfg.Scraping.PageLoadTimeout, cfg.Scraping.UserAgent, log.Named("browser"))
	defer browser.Close()

	var doer httpfetch.Doer = httpfetch.NewClient(cfg.Scraping.RequestTimeout, cfg.Scraping.UserAgent)
	var renderer chromedp_crawler.Renderer = browser
	if pool != nil {
		doer = httpfetch.NewProxied(doer, pool, cfg.Proxy.FallbackDirect, log.Named("http"))
		renderer = chromedp_crawler.NewProxiedRenderer(renderer, pool, cfg.Proxy.FallbackDirect, log.Named("browser"))
	}
	doer = httpfetch.NewRetrying(doer, policy, log.Named("http"))
	renderer = chromedp_crawler.NewRetryingRenderer(renderer, policy, log.Named("browser"))

	registry := sites.NewRegistry(sites.Deps{
		Doer:      doer,
		Renderer:  renderer,
		Tokens:    redis_adapter.NewTokenCache(rdb),
		PageDelay: cfg.Scraping.PageDelay,
		Logger:    log.Named("sites"),
	})

	// --- Use Cases ---
	deps := usecase.WatcherDeps{
		Registry: registry,
		Known:    postgres.NewKnownListingRepo(dbpool),
		Markers:  postgres.NewMarkerRepo(dbpool),
		Notifier: notifier,
		Pool:     pool,
		Lock:     lock,
	}
	watcher := usecase.NewWatcher(deps, usecase.WatcherConfig{
		Sources:             cfg.Websites,
		LoopInterval:        cfg.Scraping.LoopInterval,
		DelayBetweenSources: cfg.Scraping.DelayBetweenSources,
		MaxPurgeRatio:       cfg.Scraping.MaxPurgeRatio,
		SuppressFirstCycle:  cfg.Notify.SuppressFirstCycle,
		LockOwner:           owner,
		LockTTL:             cfg.Server.LockTTL,
	}, log.Named("watcher"))

	if once {
		return watcher.RunOnce(ctx)
	}

	// --- HTTP Server ---
	checks := map[string]handler.HealthCheck{
		"postgres": dbpool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	var proxyAdmin handler.ProxyAdmin
	if pool != nil {
		proxyAdmin = pool
	}
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.New(handler.NewHandler(checks, proxyAdmin, watcher, log.Named("http")), log.Named("http")),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("starting admin server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server failed", zap.Error(err))
		}
	}()

	_ = notifier.SendAlert(ctx, fmt.Sprintf("Watcher started with %d sources", len(cfg.EnabledWebsites())))

	runErr := watcher.Run(ctx)

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("admin server forced to shutdown", zap.Error(err))
	}
	return runErr
}

func runnerID() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
