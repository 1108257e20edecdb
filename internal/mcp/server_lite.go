package mcp

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/patient-similarity-server/internal/cache"
	litecfg "github.com/patient-similarity-server/internal/config"
	"github.com/patient-similarity-server/internal/cohort"
	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/logging"
	"github.com/patient-similarity-server/internal/service"
	"github.com/patient-similarity-server/pkg/external"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// It keeps the cohort in SQLite and memoizes mutations in memory.
type LiteServer struct {
	*Server
	config *litecfg.LiteConfig
	store  cohort.Store
	source domain.PatientSource
	cache  *cache.MemoryCache
	logger *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithCohortStore sets a custom cohort store.
func WithCohortStore(store cohort.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.store = store
		return nil
	}
}

// WithMutationSource sets the source queried for patients missing from the cohort.
func WithMutationSource(source domain.PatientSource) LiteServerOption {
	return func(s *LiteServer) error {
		s.source = source
		return nil
	}
}

// WithLiteLogger sets a custom logger.
func WithLiteLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{config: cfg}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.logger == nil {
		logger, err := logging.New(cfg.LoggingConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		server.logger = logger
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	memCache, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	server.cache = memCache

	serverOpts := []ServerOption{WithLogger(server.logger)}
	var owned io.Closer
	if server.store == nil {
		store, err := cohort.NewSQLiteStore(cfg.CohortDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create cohort store: %w", err)
		}
		server.store = store
		owned = store
		serverOpts = append(serverOpts, WithCloser(store))
	}
	fail := func(err error) (*LiteServer, error) {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}

	if server.source == nil && cfg.CBioPortalURL != "" {
		client := external.NewCBioPortalClient(cfg.CBioPortalConfig())
		server.source = external.NewResilientMutationSource(client, nil, server.logger)
		server.logger.WithField("base_url", cfg.CBioPortalURL).Info("cBioPortal mutation source enabled")
	}

	// a nil interface keeps the service from calling into a missing source
	var source domain.MutationSource
	if server.source != nil {
		source = server.source
	}

	similarity, err := service.NewSimilarityService(cfg.SimilarityConfig(), server.store, source, memCache, nil, server.logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create similarity service: %w", err))
	}

	mcpServer, err := NewServer(domain.MCPConfig{
		ServerName:    "patient-similarity-server-lite",
		ServerVersion: "v1.0.0",
		TransportType: cfg.Transport,
	}, similarity, serverOpts...)
	if err != nil {
		return fail(err)
	}
	server.Server = mcpServer

	server.logger.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"cohort_db": cfg.CohortDBPath(),
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Store returns the cohort store.
func (s *LiteServer) Store() cohort.Store {
	return s.store
}

// GetCache returns the memory cache for external access.
func (s *LiteServer) GetCache() *cache.MemoryCache {
	return s.cache
}
