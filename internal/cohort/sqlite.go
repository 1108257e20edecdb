package cohort

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/patient-similarity-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite cohort store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		study_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		name TEXT DEFAULT '',
		age INTEGER DEFAULT 0,
		gender TEXT DEFAULT '',
		cancer_type TEXT DEFAULT '',
		sample_ids TEXT DEFAULT '[]',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(study_id, patient_id)
	);

	CREATE TABLE IF NOT EXISTS patient_mutations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		patient_pk INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		gene_id TEXT DEFAULT '',
		chromosome TEXT NOT NULL,
		start_position INTEGER NOT NULL,
		end_position INTEGER NOT NULL,
		reference_allele TEXT NOT NULL,
		variant_allele TEXT NOT NULL,
		protein_change TEXT DEFAULT '',
		sample_id TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_patients_study ON patients(study_id);
	CREATE INDEX IF NOT EXISTS idx_mutations_patient ON patient_mutations(patient_pk, seq);
	CREATE INDEX IF NOT EXISTS idx_mutations_gene ON patient_mutations(gene_id);
	`

	_, err := db.Exec(schema)
	return err
}

type patientRow struct {
	pk         int64
	patient    *domain.Patient
	sampleJSON string
}

func scanPatient(s scanner) (*patientRow, error) {
	row := &patientRow{patient: &domain.Patient{}}
	p := row.patient
	err := s.Scan(
		&row.pk, &p.StudyID, &p.PatientID, &p.Name, &p.Age, &p.Gender,
		&p.CancerType, &row.sampleJSON, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if row.sampleJSON != "" {
		if err := json.Unmarshal([]byte(row.sampleJSON), &p.SampleIDs); err != nil {
			return nil, fmt.Errorf("failed to decode sample ids: %w", err)
		}
	}
	return row, nil
}

const sqlitePatientColumns = `id, study_id, patient_id, name, age, gender, cancer_type, sample_ids, created_at, updated_at`

// Save stores or replaces a patient and its mutation calls.
func (s *SQLiteStore) Save(ctx context.Context, patient *domain.Patient) error {
	now := time.Now().UTC()

	sampleJSON, err := json.Marshal(patient.SampleIDs)
	if err != nil {
		return fmt.Errorf("failed to encode sample ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Check if exists
	var pk int64
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT id, created_at FROM patients WHERE study_id = ? AND patient_id = ?",
		patient.StudyID, patient.PatientID,
	).Scan(&pk, &createdAt)

	switch {
	case err == nil:
		_, err = tx.ExecContext(ctx, `
			UPDATE patients SET
				name = ?, age = ?, gender = ?, cancer_type = ?,
				sample_ids = ?, updated_at = ?
			WHERE id = ?
		`,
			patient.Name, patient.Age, patient.Gender, patient.CancerType,
			string(sampleJSON), now, pk,
		)
		if err != nil {
			return fmt.Errorf("failed to update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM patient_mutations WHERE patient_pk = ?", pk); err != nil {
			return fmt.Errorf("failed to clear mutations: %w", err)
		}
		patient.CreatedAt = createdAt
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(ctx, `
			INSERT INTO patients (
				study_id, patient_id, name, age, gender, cancer_type,
				sample_ids, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			patient.StudyID, patient.PatientID, patient.Name, patient.Age,
			patient.Gender, patient.CancerType, string(sampleJSON), now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert: %w", err)
		}
		if pk, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get insert ID: %w", err)
		}
		patient.CreatedAt = now
	default:
		return fmt.Errorf("failed to check existing: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO patient_mutations (
			patient_pk, seq, gene_id, chromosome, start_position, end_position,
			reference_allele, variant_allele, protein_change, sample_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare mutation insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range patient.Mutations {
		if _, err := stmt.ExecContext(ctx,
			pk, i, m.GeneID, m.Chromosome, m.StartPosition, m.EndPosition,
			m.ReferenceAllele, m.VariantAllele, m.ProteinChange, m.SampleID,
		); err != nil {
			return fmt.Errorf("failed to insert mutation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	patient.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) loadMutations(ctx context.Context, pk int64) ([]domain.MutationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT gene_id, chromosome, start_position, end_position,
			reference_allele, variant_allele, protein_change, sample_id
		FROM patient_mutations
		WHERE patient_pk = ?
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

func (s *SQLiteStore) queryPatients(ctx context.Context, query string, args ...interface{}) ([]*domain.Patient, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	var found []*patientRow
	for rows.Next() {
		row, err := scanPatient(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		found = append(found, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	result := make([]*domain.Patient, 0, len(found))
	for _, row := range found {
		if row.patient.Mutations, err = s.loadMutations(ctx, row.pk); err != nil {
			return nil, err
		}
		result = append(result, row.patient)
	}
	return result, nil
}

// Get retrieves a patient with its mutation calls in stored order.
func (s *SQLiteStore) Get(ctx context.Context, studyID, patientID string) (*domain.Patient, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqlitePatientColumns+" FROM patients WHERE study_id = ? AND patient_id = ? LIMIT 1",
		studyID, patientID,
	)

	found, err := scanPatient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}

	if found.patient.Mutations, err = s.loadMutations(ctx, found.pk); err != nil {
		return nil, err
	}
	return found.patient, nil
}

// List returns patients with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*domain.Patient, error) {
	return s.queryPatients(ctx,
		"SELECT "+sqlitePatientColumns+" FROM patients ORDER BY study_id, patient_id LIMIT ? OFFSET ?",
		limit, offset,
	)
}

// ListByStudy returns all patients of one study.
func (s *SQLiteStore) ListByStudy(ctx context.Context, studyID string) ([]*domain.Patient, error) {
	return s.queryPatients(ctx,
		"SELECT "+sqlitePatientColumns+" FROM patients WHERE study_id = ? ORDER BY patient_id",
		studyID,
	)
}

// Count returns the total number of patients.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patients").Scan(&count)
	return count, err
}

// Delete removes a patient and its mutation calls.
func (s *SQLiteStore) Delete(ctx context.Context, studyID, patientID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM patient_mutations WHERE patient_pk IN (
			SELECT id FROM patients WHERE study_id = ? AND patient_id = ?
		)`, studyID, patientID); err != nil {
		return fmt.Errorf("failed to delete mutations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM patients WHERE study_id = ? AND patient_id = ?", studyID, patientID,
	); err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return tx.Commit()
}

// ExportJSON exports all patients to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	return exportJSON(ctx, s, writer)
}

// ImportJSON imports patients from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
