package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/patient-similarity-server/internal/api"
	"github.com/patient-similarity-server/internal/cache"
	"github.com/patient-similarity-server/internal/cohort"
	"github.com/patient-similarity-server/internal/config"
	"github.com/patient-similarity-server/internal/database"
	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/logging"
	"github.com/patient-similarity-server/internal/repository"
	"github.com/patient-similarity-server/internal/service"
	"github.com/patient-similarity-server/pkg/external"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"host":           cfg.Server.Host,
		"port":           cfg.Server.Port,
		"cohort_backend": cfg.Cohort.Backend,
	}).Info("Starting patient similarity server")

	var (
		store    cohort.Store
		recorder service.RunRecorder
	)

	switch cfg.Cohort.Backend {
	case config.BackendPostgres:
		dbConfig := database.ConfigFromDomain(cfg.Database)
		if err := database.Migrate(ctx, dbConfig, cfg.Database.MigrationsPath, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}

		pgStore, err := cohort.NewPostgresStoreFromURL(dbConfig.URL())
		if err != nil {
			return fmt.Errorf("failed to open cohort store: %w", err)
		}
		store = pgStore

		db, err := database.NewConnection(ctx, dbConfig, logger)
		if err != nil {
			store.Close()
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		recorder = repository.NewMatchRunRepository(db.Pool, logger)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Cohort.SQLitePath), 0755); err != nil {
			return fmt.Errorf("failed to create cohort directory: %w", err)
		}
		sqliteStore, err := cohort.NewSQLiteStore(cfg.Cohort.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open cohort store: %w", err)
		}
		store = sqliteStore
	}
	defer store.Close()

	memCache, err := cache.NewMemoryCache(cfg.Cache.MemoryMaxItems, cfg.Cache.MemoryTTL)
	if err != nil {
		return fmt.Errorf("failed to create memory cache: %w", err)
	}

	var source domain.MutationSource
	if cfg.ExternalAPI.CBioPortal.BaseURL != "" {
		var responses external.ResponseCache
		if cfg.Cache.RedisURL != "" {
			mutationCache, err := external.NewMutationCache(cfg.Cache)
			if err != nil {
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			defer mutationCache.Close()
			responses = mutationCache
		}
		client := external.NewCBioPortalClient(cfg.ExternalAPI.CBioPortal)
		source = external.NewResilientMutationSource(client, responses, logger)
	}

	similarity, err := service.NewSimilarityService(cfg.Similarity, store, source, memCache, recorder, logger)
	if err != nil {
		return fmt.Errorf("failed to create similarity service: %w", err)
	}

	server := api.NewServer(cfg, similarity, store, logger)
	return server.Start(ctx)
}
