package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/patient-similarity-server/internal/database"
	"github.com/patient-similarity-server/internal/domain"
)

// generateTestPassword creates a secure random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "testdb",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	if err := database.Migrate(ctx, config, "../../migrations", logger); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}
	return db, cleanup
}

func newRun(refPatient, cmpPatient string, matches int) *domain.MatchRun {
	return &domain.MatchRun{
		ReferenceStudyID:    "brca",
		ReferencePatientID:  refPatient,
		ComparisonStudyID:   "brca",
		ComparisonPatientID: cmpPatient,
		Tags:                []string{"equal", "gene"},
		MatchCount:          matches,
		TagCounts:           map[string]int{"equal": 1, "gene": matches - 1},
		DurationMs:          12,
	}
}

func TestMatchRunRepository_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewMatchRunRepository(db.Pool, logger)
	ctx := context.Background()

	run := newRun("P1", "P2", 3)
	require.NoError(t, repo.Create(ctx, run))
	assert.NotEqual(t, uuid.Nil, run.ID)

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, []string{"equal", "gene"}, got.Tags)
	assert.Equal(t, map[string]int{"equal": 1, "gene": 2}, got.TagCounts)
	assert.Equal(t, 3, got.MatchCount)
	assert.Equal(t, int64(12), got.DurationMs)
}

func TestMatchRunRepository_GetByID_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	repo := NewMatchRunRepository(db.Pool, logger)

	_, err := repo.GetByID(context.Background(), uuid.New())

	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMatchRunRepository_ListByReference(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	repo := NewMatchRunRepository(db.Pool, logger)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, cmp := range []string{"P2", "P3", "P4"} {
		run := newRun("P1", cmp, 2)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.RecordRun(ctx, run))
	}
	require.NoError(t, repo.Create(ctx, newRun("P9", "P1", 1)))

	runs, err := repo.ListByReference(ctx, "brca", "P1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "P4", runs[0].ComparisonPatientID)
	assert.Equal(t, "P3", runs[1].ComparisonPatientID)
}
