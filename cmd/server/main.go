package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/blues/ilr/internal/chain"
	"github.com/blues/ilr/internal/config"
	"github.com/blues/ilr/internal/confirmation"
	"github.com/blues/ilr/internal/database"
	"github.com/blues/ilr/internal/engine"
	"github.com/blues/ilr/internal/logger"
	"github.com/blues/ilr/internal/notify"
	"github.com/blues/ilr/internal/repository"
	"github.com/blues/ilr/internal/router"
	"github.com/blues/ilr/internal/scheduler"
	"github.com/blues/ilr/internal/watcher"
	"github.com/gin-gonic/gin"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if _, err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	db, err := database.Init(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// 初始化链客户端
	ethClient, err := chain.NewEthClient(ctx, cfg.Chain)
	if err != nil {
		logger.Fatal("Failed to initialize chain client: %v", err)
	}
	client := chain.NewRetrying(ethClient, chain.RetryConfig{
		InitialInterval: cfg.Reconcile.RetryInitialInterval,
		MaxInterval:     cfg.Reconcile.RetryMaxInterval,
		MaxElapsed:      cfg.Reconcile.RetryMaxElapsed,
	})

	store := repository.NewLedgerStore(db)
	eng := engine.New(store, client)

	w, err := watcher.New(watcher.Config{
		ChainId:       cfg.Chain.ChainId,
		StartBlock:    cfg.Chain.StartBlock,
		ScanBatchSize: cfg.Reconcile.ScanBatchSize,
		Concurrency:   cfg.Reconcile.Concurrency,
		MaxAttempts:   cfg.Reconcile.MaxAttempts,
		IntentTTL:     cfg.Reconcile.IntentTTL,
	}, store, eng, client, confirmation.New(cfg.Reconcile.RequiredConfirmations, cfg.Reconcile.FinalityWindow))
	if err != nil {
		logger.Fatal("Failed to create watcher: %v", err)
	}

	// 启动定时任务
	manager, err := scheduler.NewManager()
	if err != nil {
		logger.Fatal("Failed to create scheduler: %v", err)
	}
	if err := manager.Register(scheduler.NewReconcileJob(ctx, w, cfg.Reconcile.PollInterval)); err != nil {
		logger.Fatal("Failed to register reconcile job: %v", err)
	}
	if cfg.Webhook.URL != "" {
		dispatcher := notify.NewDispatcher(store, cfg.Webhook.URL, cfg.Webhook.BatchSize, &http.Client{Timeout: cfg.Webhook.Timeout})
		if err := manager.Register(scheduler.NewDispatchJob(ctx, dispatcher, cfg.Webhook.Interval)); err != nil {
			logger.Fatal("Failed to register dispatch job: %v", err)
		}
	} else {
		logger.Warn("webhook.url not set, intent events stay in the outbox")
	}
	manager.Start()

	// 订阅新区块，出块即触发一轮对账
	var follower sync.WaitGroup
	if cfg.Chain.WsUrl != "" {
		heights, err := client.SubscribeHeights(ctx)
		if err != nil {
			logger.Warn("Block subscription unavailable, polling only: %v", err)
		} else {
			follower.Add(1)
			go func() {
				defer follower.Done()
				w.Follow(ctx, heights)
			}()
		}
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化路由
	r := router.Setup(router.Deps{Intents: eng, Ledger: store, Chain: client})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 启动服务器
	go func() {
		logger.Info("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown: %v", err)
	}
	if err := manager.Stop(); err != nil {
		logger.Error("Scheduler shutdown: %v", err)
	}
	follower.Wait()
	w.Release()
	if err := ethClient.Close(); err != nil {
		logger.Error("Chain client close: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("Database close: %v", err)
		}
	}
	logger.Info("Server stopped")
}
