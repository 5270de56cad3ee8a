package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/common/database"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/runs"
	"github.com/synaptica-ai/patientpy/pkg/serving"
	"github.com/synaptica-ai/patientpy/pkg/storage"
)

func main() {
	logger.Init()
	cfg := config.Load()

	if !cfg.RedisEnabled() {
		logger.Log.Fatal("REDIS_HOST is required for the feature service")
	}
	redisClient, err := database.OpenRedis(context.Background(), cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()
	featureStore := storage.NewFeatureStore(redisClient, cfg.FeatureStoreCacheTTL)

	var runLister serving.RunLister
	if cfg.LedgerEnabled {
		db, err := database.Open(cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to connect to database")
		}
		defer database.Close(db)
		repo := runs.NewRepository(db)
		if err := repo.AutoMigrate(); err != nil {
			logger.Log.WithError(err).Fatal("Failed to migrate run ledger")
		}
		runLister = repo
	}

	router := serving.NewServer(featureStore, runLister).Router()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Feature Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Feature Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Feature Service stopped")
}
