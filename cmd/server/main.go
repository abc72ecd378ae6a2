package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"flipradar/server/config"
	"flipradar/server/internal/api"
	"flipradar/server/internal/database"
	"flipradar/server/internal/inventory"
	"flipradar/server/internal/market"
	"flipradar/server/internal/models"
	"flipradar/server/internal/opportunity"
	"flipradar/server/internal/pricing"
	"flipradar/server/internal/queue"
	"flipradar/server/internal/registry"
	"flipradar/server/internal/relist"
	"flipradar/server/internal/scanner"
	"flipradar/server/internal/telegram"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dbPath := cfg.Database.Path
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", dbPath)

	db, err := database.Open(dbPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	logger.Info("Running database migrations...")
	if err := database.RunMigrations(db); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	// Core components
	reg := registry.NewRegistry(db, logger)
	store := opportunity.NewStore(db, logger)
	invStore := inventory.NewGormStore(db, logger)
	engine := pricing.NewEngine(pricing.Config{
		FeePct:        cfg.Pricing.FeePct,
		ShippingCost:  cfg.Pricing.ShippingCost,
		TargetMargin:  cfg.Pricing.TargetMargin,
		HotSTR:        cfg.Pricing.HotSTR,
		SteadySTR:     cfg.Pricing.SteadySTR,
		SlowSTR:       cfg.Pricing.SlowSTR,
		HotMaxDays:    cfg.Pricing.HotMaxDays,
		SpreadCVLimit: cfg.Pricing.SpreadCVLimit,
	})
	aggregator := market.NewHTTPAggregator(cfg.Aggregator.BaseURL, logger)
	for _, src := range aggregator.Sources() {
		logger.WithFields(logrus.Fields{
			"platform":     src.Platform,
			"kind":         src.Kind,
			"sold_history": src.SoldHistory,
		}).Info("Market source configured")
	}

	// Notification fan-out
	events := queue.NewOpportunityQueue(64, logger)
	telegramService := telegram.NewService(logger)
	telegramService.UpdateConfig(&models.TelegramConfig{
		IsEnabled: cfg.Telegram.IsEnabled,
		BotToken:  cfg.Telegram.BotToken,
		ChatID:    cfg.Telegram.ChatID,
		MinScore:  cfg.Telegram.MinScore,
	})
	telegramService.AttachQueue(events)
	events.Start()

	// Relist pipeline; the publisher is external and unconfigured here,
	// publish is skipped unless auto-publish is wired to one
	pipeline := relist.NewPipeline(store, relist.NewHTTPGenerator(cfg.Aggregator.BaseURL, logger), invStore, nil, cfg.Relist.AutoPublish, logger)

	dealScanner := scanner.NewScanner(reg, store, aggregator, engine, events, cfg, logger)
	if err := dealScanner.Start(); err != nil {
		logger.WithError(err).Fatal("Failed to start deal scanner")
	}

	handler := api.NewHandler(reg, store, dealScanner, pipeline, invStore, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	api.SetupRoutes(router, handler)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: router,
	}

	go func() {
		logger.Infof("Starting server on port %s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	dealScanner.Stop()
	events.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shut down")
	}
}
