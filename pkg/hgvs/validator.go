package hgvs

import (
	"regexp"

	"github.com/patient-similarity-server/internal/domain"
)

// Notation patterns for validation
var (
	// Short protein change: R175H, G12fs*5, E746_A750del, X307_splice, Q61*
	proteinChangePattern = regexp.MustCompile(`^[A-Z*]\d+([_A-Z*]\d*)*[A-Za-z0-9_*=?]*$`)

	// Gene symbol pattern
	geneSymbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-.]*$`)

	// Allele pattern; "-" marks an empty allele
	allelePattern = regexp.MustCompile(`^([ACGTN]+|-)$`)

	// Chromosome pattern after normalization
	chromosomePattern = regexp.MustCompile(`^([1-9]|1[0-9]|2[0-2]|X|Y|M)$`)
)

// Validator checks normalized mutation calls.
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProteinChange accepts an empty value (non-coding calls) or a short
// one-letter protein change. Run NormalizeProteinChange first.
func (v *Validator) ValidateProteinChange(change string) error {
	if change == "" {
		return nil
	}
	if !proteinChangePattern.MatchString(change) {
		return domain.NewValidationError("proteinChange", "Invalid protein change format", change)
	}
	return nil
}

// ValidateGeneSymbol validates gene symbol format
func (v *Validator) ValidateGeneSymbol(symbol string) error {
	if symbol == "" {
		return nil // Gene symbol is optional
	}
	if !geneSymbolPattern.MatchString(symbol) {
		return domain.NewValidationError("geneId", "Invalid gene symbol format", symbol)
	}
	return nil
}

// ValidateAllele validates a normalized allele.
func (v *Validator) ValidateAllele(field, allele string) error {
	if !allelePattern.MatchString(allele) {
		return domain.NewValidationError(field, "Allele must contain only A, C, G, T, N or be '-'", allele)
	}
	return nil
}

// ValidateChromosome validates a normalized chromosome name.
func (v *Validator) ValidateChromosome(chr string) error {
	if !chromosomePattern.MatchString(chr) {
		return domain.NewValidationError("chromosome", "Unknown chromosome", chr)
	}
	return nil
}

// ValidateRecord runs the structural checks the grouping and matching steps
// rely on. A failure here rejects the record.
func (v *Validator) ValidateRecord(r domain.MutationRecord) error {
	return r.Validate()
}

// NotationIssues reports notation the validator does not recognize. Fusion
// calls, unplaced contigs and other non-standard spellings still group and
// match, so callers log these instead of rejecting the record.
func (v *Validator) NotationIssues(r domain.MutationRecord) []error {
	var issues []error

	if r.Chromosome != "" {
		if err := v.ValidateChromosome(r.Chromosome); err != nil {
			issues = append(issues, err)
		}
	}
	if r.ReferenceAllele != "" {
		if err := v.ValidateAllele("referenceAllele", r.ReferenceAllele); err != nil {
			issues = append(issues, err)
		}
	}
	if r.VariantAllele != "" {
		if err := v.ValidateAllele("variantAllele", r.VariantAllele); err != nil {
			issues = append(issues, err)
		}
	}
	if err := v.ValidateGeneSymbol(r.GeneID); err != nil {
		issues = append(issues, err)
	}
	if err := v.ValidateProteinChange(r.ProteinChange); err != nil {
		issues = append(issues, err)
	}

	return issues
}
