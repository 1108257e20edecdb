package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/patient-similarity-server/internal/domain"
)

// MatchRunRepository handles match-run audit persistence
type MatchRunRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewMatchRunRepository creates a new match-run repository
func NewMatchRunRepository(db *pgxpool.Pool, logger *logrus.Logger) *MatchRunRepository {
	return &MatchRunRepository{
		db:  db,
		log: logger,
	}
}

// Create inserts a new match run. A zero ID or creation time is filled in.
func (r *MatchRunRepository) Create(ctx context.Context, run *domain.MatchRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Tags == nil {
		run.Tags = []string{}
	}

	tagCountsJSON, err := json.Marshal(run.TagCounts)
	if err != nil {
		return fmt.Errorf("marshaling tag counts: %w", err)
	}

	query := `
		INSERT INTO match_runs (
			id, reference_study_id, reference_patient_id, comparison_study_id,
			comparison_patient_id, tags, match_count, tag_counts, duration_ms, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err = r.db.Exec(ctx, query,
		run.ID,
		run.ReferenceStudyID,
		run.ReferencePatientID,
		run.ComparisonStudyID,
		run.ComparisonPatientID,
		run.Tags,
		run.MatchCount,
		tagCountsJSON,
		run.DurationMs,
		run.CreatedAt,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"run_id":    run.ID,
			"reference": run.ReferenceStudyID + ":" + run.ReferencePatientID,
			"error":     err,
		}).Error("Failed to create match run")
		return fmt.Errorf("creating match run: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"reference":   run.ReferenceStudyID + ":" + run.ReferencePatientID,
		"comparison":  run.ComparisonStudyID + ":" + run.ComparisonPatientID,
		"match_count": run.MatchCount,
		"duration_ms": run.DurationMs,
	}).Debug("Match run recorded")

	return nil
}

// RecordRun implements the service run recorder.
func (r *MatchRunRepository) RecordRun(ctx context.Context, run *domain.MatchRun) error {
	return r.Create(ctx, run)
}

const matchRunColumns = `id, reference_study_id, reference_patient_id, comparison_study_id,
	comparison_patient_id, tags, match_count, tag_counts, duration_ms, created_at`

func scanMatchRun(row pgx.Row) (*domain.MatchRun, error) {
	var run domain.MatchRun
	var tagCountsJSON []byte

	err := row.Scan(
		&run.ID,
		&run.ReferenceStudyID,
		&run.ReferencePatientID,
		&run.ComparisonStudyID,
		&run.ComparisonPatientID,
		&run.Tags,
		&run.MatchCount,
		&tagCountsJSON,
		&run.DurationMs,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(tagCountsJSON, &run.TagCounts); err != nil {
		return nil, fmt.Errorf("unmarshaling tag counts: %w", err)
	}
	return &run, nil
}

// GetByID retrieves a match run by its ID
func (r *MatchRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.MatchRun, error) {
	query := `SELECT ` + matchRunColumns + ` FROM match_runs WHERE id = $1`

	run, err := scanMatchRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("match run not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"run_id": id,
			"error":  err,
		}).Error("Failed to get match run by ID")
		return nil, fmt.Errorf("getting match run by ID: %w", err)
	}
	return run, nil
}

// ListByReference returns the most recent runs for a reference patient, newest first.
func (r *MatchRunRepository) ListByReference(ctx context.Context, studyID, patientID string, limit int) ([]*domain.MatchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + matchRunColumns + `
		FROM match_runs
		WHERE reference_study_id = $1 AND reference_patient_id = $2
		ORDER BY created_at DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, studyID, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing match runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.MatchRun
	for rows.Next() {
		run, err := scanMatchRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match runs: %w", err)
	}
	return runs, nil
}
