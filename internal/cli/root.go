// Package cli implements the simctl command line tool.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/patient-similarity-server/internal/cache"
	"github.com/patient-similarity-server/internal/cohort"
	"github.com/patient-similarity-server/internal/config"
	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/logging"
	"github.com/patient-similarity-server/internal/service"
	"github.com/patient-similarity-server/pkg/external"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

const rootLongDescription = `simctl compares the mutation profiles of cancer patients.

Mutation calls are grouped into canonical variants and every variant of a
reference patient is matched against a comparison patient as equal (same
genomic change), phgvs (same protein change) or gene (same gene).`

// app holds the flags shared by all commands and the collaborators opened from them.
type app struct {
	dataDir       string
	cbioportalURL string
	logLevel      string
	format        string

	cfg        *config.LiteConfig
	logger     *logrus.Logger
	store      cohort.Store
	source     domain.PatientSource
	similarity *service.SimilarityService
}

// NewRootCmd builds the simctl command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "simctl",
		Short:         "Patient mutation similarity tool",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			a.close()
		},
	}

	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory holding the cohort database (default $PSIM_DATA_DIR or ~/.patient-similarity)")
	cmd.PersistentFlags().StringVar(&a.cbioportalURL, "cbioportal-url", "", "cBioPortal base URL used for patients missing from the cohort")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level written to stderr")
	cmd.PersistentFlags().StringVarP(&a.format, "format", "f", formatTable, "output format: table or json")

	cmd.AddCommand(
		newMatchCmd(a),
		newGroupCmd(a),
		newSimilarCmd(a),
		newCompareCmd(a),
		newCohortCmd(a),
		newSetupCmd(a),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// config resolves the lite configuration with flag overrides applied.
func (a *app) config() (*config.LiteConfig, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg := config.LoadLiteConfig()
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.cbioportalURL != "" {
		cfg.CBioPortalURL = a.cbioportalURL
	}
	cfg.LogLevel = a.logLevel
	cfg.LogFormat = "text"

	switch a.format {
	case formatTable, formatJSON:
	default:
		return nil, fmt.Errorf("invalid format %q: use table or json", a.format)
	}

	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return nil, err
	}

	a.cfg = cfg
	a.logger = logger
	return cfg, nil
}

// open creates the similarity service. withCohort opens the SQLite cohort store.
func (a *app) open(withCohort bool) error {
	if a.similarity != nil {
		return nil
	}
	cfg, err := a.config()
	if err != nil {
		return err
	}

	if withCohort {
		if err := cfg.EnsureDataDir(); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := cohort.NewSQLiteStore(cfg.CohortDBPath())
		if err != nil {
			return fmt.Errorf("failed to open cohort store: %w", err)
		}
		a.store = store
	}

	if cfg.CBioPortalURL != "" {
		client := external.NewCBioPortalClient(cfg.CBioPortalConfig())
		a.source = external.NewResilientMutationSource(client, nil, a.logger)
	}

	memCache, err := cache.NewMemoryCache(cfg.CacheMaxItems, cfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create memory cache: %w", err)
	}

	var (
		store  service.PatientStore
		source domain.MutationSource
	)
	if a.store != nil {
		store = a.store
	}
	if a.source != nil {
		source = a.source
	}

	a.similarity, err = service.NewSimilarityService(cfg.SimilarityConfig(), store, source, memCache, nil, a.logger)
	return err
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.WithError(err).Warn("Failed to close cohort store")
		}
		a.store = nil
	}
	a.similarity = nil
}

func parseTags(raw string) ([]domain.SimilarityTag, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return domain.ParseSimilarityTags(strings.Split(raw, ","))
}
