package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/MarcelCutts/home-finder-sub001/config"
	"github.com/MarcelCutts/home-finder-sub001/internal/analysis"
	"github.com/MarcelCutts/home-finder-sub001/internal/api"
	"github.com/MarcelCutts/home-finder-sub001/internal/dedup"
	"github.com/MarcelCutts/home-finder-sub001/internal/enrich"
	"github.com/MarcelCutts/home-finder-sub001/internal/geocoding"
	"github.com/MarcelCutts/home-finder-sub001/internal/match"
	"github.com/MarcelCutts/home-finder-sub001/internal/models"
	"github.com/MarcelCutts/home-finder-sub001/internal/notify"
	"github.com/MarcelCutts/home-finder-sub001/internal/pipeline"
	"github.com/MarcelCutts/home-finder-sub001/internal/reconcile"
	"github.com/MarcelCutts/home-finder-sub001/internal/scraping"
	"github.com/MarcelCutts/home-finder-sub001/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment as-is")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		logger.WithError(err).Fatal("Failed to create database directory")
	}
	logger.Infof("Using database at: %s", cfg.Database.Path)

	st, err := store.NewStore(cfg.Database.Path, cfg.Pipeline.MaxEnrichmentAttempts, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize store")
	}
	defer st.Close()

	logger.Info("Running database migrations...")
	if err := st.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	platforms := make([]models.Platform, 0, len(cfg.Pipeline.Platforms))
	for _, name := range cfg.Pipeline.Platforms {
		platform, err := models.ParsePlatform(name)
		if err != nil {
			logger.WithError(err).Fatal("Invalid platform in configuration")
		}
		platforms = append(platforms, platform)
	}

	matcher := match.NewMatcher(cfg)
	engine := dedup.NewEngine(matcher, logger, dedup.ModeMerge)
	reconciler := reconcile.NewReconciler(engine, logger)

	scraper := scraping.NewSpiderManager(platforms, cfg.Pipeline.SearchArea, logger)
	geocoder := geocoding.NewGeocoder(logger, geocoding.NewCache(cfg.Pipeline.GeocodeCacheSize))
	enricher := enrich.NewClient(cfg.Enrichment.ServiceURL, time.Duration(cfg.Enrichment.TimeoutSeconds)*time.Second, logger)
	analyzer := analysis.NewClient(cfg.Analysis.ServiceURL, time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second, logger)
	notifier := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	runner := pipeline.NewRunner(cfg, st, scraper, enricher, analyzer, notifier, geocoder, engine, reconciler, logger)

	scheduler := pipeline.NewScheduler(runner, time.Duration(cfg.Pipeline.RunIntervalMinutes)*time.Minute, logger)
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.API.Enabled {
		router := gin.Default()
		api.SetupRoutes(router, api.NewHandler(st, runner, logger))

		go func() {
			addr := fmt.Sprintf(":%d", cfg.API.Port)
			logger.Infof("Starting API server on %s", addr)
			if err := router.Run(addr); err != nil {
				logger.WithError(err).Fatal("API server failed to start")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")
}
