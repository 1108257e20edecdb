package cohort

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"

	"github.com/patient-similarity-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL cohort store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL cohort store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

const pgPatientColumns = `id, study_id, patient_id, name, age, gender, cancer_type, sample_ids, created_at, updated_at`

func scanPgPatient(s scanner) (int64, *domain.Patient, error) {
	var pk int64
	p := &domain.Patient{}
	err := s.Scan(
		&pk, &p.StudyID, &p.PatientID, &p.Name, &p.Age, &p.Gender,
		&p.CancerType, pq.Array(&p.SampleIDs), &p.CreatedAt, &p.UpdatedAt,
	)
	return pk, p, err
}

// Save stores or replaces a patient and its mutation calls.
func (s *PostgresStore) Save(ctx context.Context, patient *domain.Patient) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Use upsert (INSERT ... ON CONFLICT)
	query := `
		INSERT INTO patients (
			study_id, patient_id, name, age, gender, cancer_type,
			sample_ids, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (study_id, patient_id) DO UPDATE SET
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			gender = EXCLUDED.gender,
			cancer_type = EXCLUDED.cancer_type,
			sample_ids = EXCLUDED.sample_ids,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	var pk int64
	err = tx.QueryRowContext(ctx, query,
		patient.StudyID,
		patient.PatientID,
		patient.Name,
		patient.Age,
		patient.Gender,
		patient.CancerType,
		pq.Array(patient.SampleIDs),
		now,
		now,
	).Scan(&pk, &patient.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save patient: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM patient_mutations WHERE patient_pk = $1", pk); err != nil {
		return fmt.Errorf("failed to clear mutations: %w", err)
	}

	for i, m := range patient.Mutations {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO patient_mutations (
				patient_pk, seq, gene_id, chromosome, start_position, end_position,
				reference_allele, variant_allele, protein_change, sample_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			pk, i, m.GeneID, m.Chromosome, m.StartPosition, m.EndPosition,
			m.ReferenceAllele, m.VariantAllele, m.ProteinChange, m.SampleID,
		)
		if err != nil {
			return fmt.Errorf("failed to insert mutation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	patient.UpdatedAt = now
	return nil
}

func (s *PostgresStore) loadMutations(ctx context.Context, pk int64) ([]domain.MutationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gene_id, chromosome, start_position, end_position,
			reference_allele, variant_allele, protein_change, sample_id
		FROM patient_mutations
		WHERE patient_pk = $1
		ORDER BY seq
	`, pk)
	if err != nil {
		return nil, fmt.Errorf("failed to query mutations: %w", err)
	}
	defer rows.Close()

	mutations := []domain.MutationRecord{}
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mutation: %w", err)
		}
		mutations = append(mutations, m)
	}
	return mutations, rows.Err()
}

func (s *PostgresStore) queryPatients(ctx context.Context, query string, args ...interface{}) ([]*domain.Patient, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	var pks []int64
	var result []*domain.Patient
	for rows.Next() {
		pk, p, err := scanPgPatient(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		pks = append(pks, pk)
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i, p := range result {
		if p.Mutations, err = s.loadMutations(ctx, pks[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Get retrieves a patient with its mutation calls in stored order.
func (s *PostgresStore) Get(ctx context.Context, studyID, patientID string) (*domain.Patient, error) {
	query := "SELECT " + pgPatientColumns + " FROM patients WHERE study_id = $1 AND patient_id = $2 LIMIT 1"

	pk, p, err := scanPgPatient(s.db.QueryRowContext(ctx, query, studyID, patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}

	if p.Mutations, err = s.loadMutations(ctx, pk); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns patients with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*domain.Patient, error) {
	return s.queryPatients(ctx,
		"SELECT "+pgPatientColumns+" FROM patients ORDER BY study_id, patient_id LIMIT $1 OFFSET $2",
		limit, offset,
	)
}

// ListByStudy returns all patients of one study.
func (s *PostgresStore) ListByStudy(ctx context.Context, studyID string) ([]*domain.Patient, error) {
	return s.queryPatients(ctx,
		"SELECT "+pgPatientColumns+" FROM patients WHERE study_id = $1 ORDER BY patient_id",
		studyID,
	)
}

// Count returns the total number of patients.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count patients: %w", err)
	}
	return count, nil
}

// Delete removes a patient. Mutation calls cascade.
func (s *PostgresStore) Delete(ctx context.Context, studyID, patientID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patients WHERE study_id = $1 AND patient_id = $2", studyID, patientID)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return nil
}

// ExportJSON exports all patients to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports patients from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
