// Package config provides configuration management for the similarity servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/patient-similarity-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the cohort database and exports

	// Cache settings
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// cBioPortal settings; an empty URL disables the remote mutation source
	CBioPortalURL   string
	CBioPortalToken string

	// Similarity defaults
	DefaultTags    []string
	DefaultLimit   int
	MaxConcurrency int

	// Transport settings
	Transport string // Transport type: stdio

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".patient-similarity")

	return &LiteConfig{
		DataDir:        dataDir,
		CacheMaxItems:  1000,
		CacheTTL:       time.Hour,
		DefaultLimit:   10,
		MaxConcurrency: 8,
		Transport:      "stdio",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	// Data directory
	if v := os.Getenv("PSIM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Cache settings
	if v := os.Getenv("PSIM_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PSIM_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CacheTTL = d
		}
	}

	// Mutation source
	cfg.CBioPortalURL = os.Getenv("PSIM_CBIOPORTAL_URL")
	cfg.CBioPortalToken = os.Getenv("PSIM_CBIOPORTAL_TOKEN")

	// Similarity
	if v := os.Getenv("PSIM_DEFAULT_TAGS"); v != "" {
		cfg.DefaultTags = strings.Split(v, ",")
	}
	if v := os.Getenv("PSIM_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultLimit = n
		}
	}
	if v := os.Getenv("PSIM_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}

	// Transport
	if v := os.Getenv("PSIM_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	// Logging
	if v := os.Getenv("PSIM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PSIM_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// CohortDBPath returns the path to the cohort SQLite database.
func (c *LiteConfig) CohortDBPath() string {
	return filepath.Join(c.DataDir, "cohort.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// SimilarityConfig returns the similarity settings in their domain form.
func (c *LiteConfig) SimilarityConfig() domain.SimilarityConfig {
	return domain.SimilarityConfig{
		DefaultTags:    c.DefaultTags,
		DefaultLimit:   c.DefaultLimit,
		MaxConcurrency: c.MaxConcurrency,
	}
}

// CBioPortalConfig returns the mutation source settings in their domain form.
func (c *LiteConfig) CBioPortalConfig() domain.CBioPortalConfig {
	return domain.CBioPortalConfig{
		BaseURL:    c.CBioPortalURL,
		APIToken:   c.CBioPortalToken,
		Timeout:    30 * time.Second,
		RateLimit:  5,
		RetryCount: 2,
	}
}

// LoggingConfig returns the logging settings in their domain form.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		Output: "stderr",
	}
}
