package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/handler"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/api/middleware"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/auth"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/chathub"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/config"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/dispatch"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/localization"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/offer"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/storage"
	"github.com/hbkhrishi0412-afk/reride-sub005/internal/telegram"
	"github.com/hbkhrishi0412-afk/reride-sub005/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(ctx context.Context, cfg *config.Config, log *logger.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		// Maps unique violations to gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		log.Fatal("failed to connect PostgreSQL", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", zap.Error(err))
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("failed to connect Redis", zap.Error(err))
	}

	log.Info("database and redis connections established")
	return db, rdb
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var appLog *logger.Logger
	if cfg.Environment == "development" {
		appLog, err = logger.NewDevelopment()
	} else {
		appLog, err = logger.New(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer appLog.Sync()
	logger.SetGlobal(appLog)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dependencies
	db, rdb := setupDependencies(ctx, cfg, appLog)
	s := storage.NewStorageService(db, rdb, appLog)
	if err := s.Migrate(); err != nil {
		appLog.Fatal("failed to run migrations", zap.Error(err))
	}

	localizer, err := localization.NewLocalizer(cfg.LocalesDir)
	if err != nil {
		appLog.Fatal("failed to load translations", zap.Error(err))
	}

	// 2. Negotiation services
	policy := offer.Policy{BuyerMayCounter: cfg.Offer.BuyerMayCounter}
	dispatcher := dispatch.NewDispatcher(s, policy, cfg.Offer.InFlightTTL, appLog)
	hub := chathub.NewManagerService(s, policy, localizer, appLog)
	go hub.Run(ctx)

	if cfg.Telegram.BotToken != "" {
		botService, err := telegram.NewBotService(cfg.Telegram.BotToken, hub, s, dispatcher, localizer, policy, appLog)
		if err != nil {
			appLog.Fatal("failed to start telegram bot", zap.Error(err))
		}
		botService.Languages = localizer.Languages()
		go botService.Run(ctx)
	} else {
		appLog.Info("TELEGRAM_BOT_TOKEN not set, telegram notifications disabled")
	}

	// 3. HTTP
	tokens := auth.NewManager(cfg.JWT.Secret, cfg.JWT.TTL)
	h := handler.NewHandler(hub, s, dispatcher, tokens, policy, localizer, appLog)
	h.Checks["storage"] = s.Ping
	r := api.NewRouter(h, middleware.NewAuthMiddleware(tokens, appLog), cfg.Server, appLog)

	server := &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        r,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		appLog.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("http server shutdown failed", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		appLog.Error("redis close failed", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
