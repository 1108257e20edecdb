package domain

import (
	"errors"
	"fmt"
)

// MutationRecord is one observed variant call for one sample as delivered by the
// mutation data source. Records are treated as immutable values.
type MutationRecord struct {
	GeneID          string `json:"geneId"`
	Chromosome      string `json:"chromosome"`
	StartPosition   int64  `json:"startPosition"`
	EndPosition     int64  `json:"endPosition"`
	ReferenceAllele string `json:"referenceAllele"`
	VariantAllele   string `json:"variantAllele"`
	ProteinChange   string `json:"proteinChange"`
	SampleID        string `json:"sampleId"`
}

// VariantKey identifies a canonical variant: all records sharing it describe the
// same genomic change.
type VariantKey struct {
	Chromosome      string
	StartPosition   int64
	EndPosition     int64
	ReferenceAllele string
	VariantAllele   string
}

// LocusKey identifies an exact variant for similarity purposes. Unlike VariantKey
// it ignores the end position.
type LocusKey struct {
	Chromosome      string
	StartPosition   int64
	ReferenceAllele string
	VariantAllele   string
}

// String renders the key the way genomic locations are indexed by annotation services.
func (k VariantKey) String() string {
	return fmt.Sprintf("%s,%d,%d,%s,%s", k.Chromosome, k.StartPosition, k.EndPosition, k.ReferenceAllele, k.VariantAllele)
}

// String renders the locus as chr-start-ref-alt.
func (k LocusKey) String() string {
	return fmt.Sprintf("%s-%d-%s-%s", k.Chromosome, k.StartPosition, k.ReferenceAllele, k.VariantAllele)
}

// Key returns the grouping key of the record.
func (m MutationRecord) Key() VariantKey {
	return VariantKey{
		Chromosome:      m.Chromosome,
		StartPosition:   m.StartPosition,
		EndPosition:     m.EndPosition,
		ReferenceAllele: m.ReferenceAllele,
		VariantAllele:   m.VariantAllele,
	}
}

// Locus returns the exact-variant key of the record.
func (m MutationRecord) Locus() LocusKey {
	return LocusKey{
		Chromosome:      m.Chromosome,
		StartPosition:   m.StartPosition,
		ReferenceAllele: m.ReferenceAllele,
		VariantAllele:   m.VariantAllele,
	}
}

// Label returns a short display label such as "TP53 R175H".
func (m MutationRecord) Label() string {
	if m.ProteinChange == "" {
		return fmt.Sprintf("%s %s", m.GeneID, m.Locus())
	}
	return fmt.Sprintf("%s %s", m.GeneID, m.ProteinChange)
}

// Validate checks the fields the grouping and matching steps rely on. It is meant
// for the input boundary; the similarity core assumes it has already passed.
func (m MutationRecord) Validate() error {
	if m.Chromosome == "" {
		return fmt.Errorf("mutation validation: %w", NewValidationError("chromosome", "chromosome is required", m.Chromosome))
	}
	if m.StartPosition <= 0 {
		return fmt.Errorf("mutation validation: %w", NewValidationError("startPosition", "start position must be positive", m.StartPosition))
	}
	if m.EndPosition < m.StartPosition {
		return fmt.Errorf("mutation validation: %w", NewValidationError("endPosition", "end position must not precede start position", m.EndPosition))
	}
	if m.ReferenceAllele == "" {
		return fmt.Errorf("mutation validation: %w", NewValidationError("referenceAllele", "reference allele is required", m.ReferenceAllele))
	}
	if m.VariantAllele == "" {
		return fmt.Errorf("mutation validation: %w", NewValidationError("variantAllele", "variant allele is required", m.VariantAllele))
	}
	return nil
}

// ValidateRecords validates every record and reports the first failure with its index.
func ValidateRecords(records []MutationRecord) error {
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %d: %w: %w", i, ErrInvalidMutation, err)
		}
	}
	return nil
}

// MutationGroup is a canonical variant: every record in it shares the same VariantKey.
type MutationGroup struct {
	Records   []MutationRecord `json:"records"`
	SampleIDs []string         `json:"sampleIds"`
}

// Representative returns the first record of the group, used for gene and
// protein-change comparisons.
func (g MutationGroup) Representative() MutationRecord {
	if len(g.Records) == 0 {
		return MutationRecord{}
	}
	return g.Records[0]
}

// Key returns the variant key shared by the group's records.
func (g MutationGroup) Key() VariantKey {
	return g.Representative().Key()
}

// SimilarityMatch pairs a reference group with the best comparison group found for it.
type SimilarityMatch struct {
	Reference  MutationGroup  `json:"reference"`
	Comparison *MutationGroup `json:"comparison,omitempty"`
	Tag        SimilarityTag  `json:"tag"`
}

// Score returns the ladder score of the match tag.
func (m SimilarityMatch) Score() int {
	return m.Tag.Score()
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
