// Package cohort stores the candidate patients that reference patients are compared
// against, together with their mutation calls.
package cohort

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/patient-similarity-server/internal/domain"
)

// ExportVersion is written into every export document.
const ExportVersion = "1.0"

// maxExportLimit is the maximum number of patients to export at once.
const maxExportLimit = 1000000

// Store defines the interface for cohort storage operations.
type Store interface {
	// Save stores or replaces a patient and its mutation calls.
	// Patients are identified by study and patient id.
	Save(ctx context.Context, patient *domain.Patient) error

	// Get retrieves a patient. It returns nil, nil when the patient is unknown.
	Get(ctx context.Context, studyID, patientID string) (*domain.Patient, error)

	// List returns patients ordered by study and patient id.
	List(ctx context.Context, limit, offset int) ([]*domain.Patient, error)

	// ListByStudy returns all patients of one study.
	ListByStudy(ctx context.Context, studyID string) ([]*domain.Patient, error)

	// Count returns the total number of patients.
	Count(ctx context.Context) (int64, error)

	// Delete removes a patient and its mutation calls.
	Delete(ctx context.Context, studyID, patientID string) error

	// ExportJSON exports all patients to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports patients from a JSON reader.
	// Returns the number of imported and skipped entries.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string            `json:"version"`
	ExportedAt time.Time         `json:"exported_at"`
	Count      int               `json:"count"`
	Patients   []*domain.Patient `json:"patients"`
}

func exportJSON(ctx context.Context, s Store, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list patients: %w", err)
	}
	if all == nil {
		all = []*domain.Patient{}
	}

	export := &Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Patients:   all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importJSON saves every exported patient that is not stored yet. Existing
// patients are skipped, invalid ones abort the import.
func importJSON(ctx context.Context, s Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, p := range export.Patients {
		if p == nil {
			continue
		}
		if err := p.Validate(); err != nil {
			return imported, skipped, fmt.Errorf("invalid patient: %w", err)
		}

		existing, err := s.Get(ctx, p.StudyID, p.PatientID)
		if err != nil {
			return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
		}
		if existing != nil {
			skipped++
			continue
		}

		if err := s.Save(ctx, p); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMutation(s scanner) (domain.MutationRecord, error) {
	var m domain.MutationRecord
	err := s.Scan(
		&m.GeneID, &m.Chromosome, &m.StartPosition, &m.EndPosition,
		&m.ReferenceAllele, &m.VariantAllele, &m.ProteinChange, &m.SampleID,
	)
	return m, err
}
