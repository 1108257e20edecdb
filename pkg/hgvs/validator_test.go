package hgvs

import (
	"testing"

	"github.com/patient-similarity-server/internal/domain"
)

func TestValidateProteinChange(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		change  string
		wantErr bool
	}{
		{"Empty (non-coding)", "", false},
		{"Missense", "R175H", false},
		{"Nonsense", "R213*", false},
		{"Frameshift", "G12fs*5", false},
		{"In-frame deletion", "E746_A750del", false},
		{"Splice site", "X307_splice", false},
		{"Three-letter form", "Arg175His", true},
		{"Prefixed form", "p.R175H", true},
		{"Missing position", "RH", true},
		{"Leading digit", "175H", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateProteinChange(tt.change)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProteinChange() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateGeneSymbol(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name    string
		symbol  string
		wantErr bool
	}{
		{"Valid gene symbol", "BRCA1", false},
		{"Valid gene symbol with dash", "HLA-A", false},
		{"Entrez id", "7157", false},
		{"Empty symbol (optional)", "", false},
		{"Lowercase", "brca1", true},
		{"Whitespace", "TP 53", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateGeneSymbol(tt.symbol)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateGeneSymbol() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChromosomeAndAllele(t *testing.T) {
	validator := NewValidator()

	for _, chr := range []string{"1", "22", "X", "Y", "M"} {
		if err := validator.ValidateChromosome(chr); err != nil {
			t.Errorf("Expected %s to be valid, got %v", chr, err)
		}
	}
	for _, chr := range []string{"0", "23", "chr1", ""} {
		if err := validator.ValidateChromosome(chr); err == nil {
			t.Errorf("Expected %q to be invalid", chr)
		}
	}

	if err := validator.ValidateAllele("referenceAllele", "-"); err != nil {
		t.Errorf("Expected '-' to be valid, got %v", err)
	}
	if err := validator.ValidateAllele("referenceAllele", "acg"); err == nil {
		t.Error("Expected lowercase allele to be invalid")
	}
}

func TestValidateRecord(t *testing.T) {
	validator := NewValidator()

	valid := domain.MutationRecord{
		GeneID:          "TP53",
		Chromosome:      "17",
		StartPosition:   7578406,
		EndPosition:     7578406,
		ReferenceAllele: "C",
		VariantAllele:   "T",
		ProteinChange:   "R175H",
	}
	if err := validator.ValidateRecord(valid); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if issues := validator.NotationIssues(valid); len(issues) != 0 {
		t.Errorf("Expected no notation issues, got %v", issues)
	}

	missingAllele := valid
	missingAllele.VariantAllele = ""
	err := validator.ValidateRecord(missingAllele)
	if err == nil {
		t.Fatal("Expected missing variant allele to be rejected")
	}
	if !domain.IsValidationError(err) {
		t.Errorf("Expected validation error, got %T", err)
	}
}

func TestNotationIssuesDoNotReject(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name       string
		record     domain.MutationRecord
		wantIssues int
	}{
		{
			name: "Fusion call",
			record: domain.MutationRecord{
				GeneID: "EML4-ALK", Chromosome: "2", StartPosition: 42522656, EndPosition: 42522656,
				ReferenceAllele: "NA", VariantAllele: "NA", ProteinChange: "EML4-ALKFusion",
			},
			wantIssues: 1,
		},
		{
			name: "Unplaced contig",
			record: domain.MutationRecord{
				GeneID: "TP53", Chromosome: "GL000220.1", StartPosition: 105, EndPosition: 105,
				ReferenceAllele: "C", VariantAllele: "T",
			},
			wantIssues: 1,
		},
		{
			name: "Unprefixed and three-letter notation",
			record: domain.MutationRecord{
				GeneID: "TP53", Chromosome: "chr17", StartPosition: 7578406, EndPosition: 7578406,
				ReferenceAllele: "C", VariantAllele: "T", ProteinChange: "p.Arg175His",
			},
			wantIssues: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validator.ValidateRecord(tt.record); err != nil {
				t.Errorf("ValidateRecord() error = %v, want nil", err)
			}
			issues := validator.NotationIssues(tt.record)
			if len(issues) != tt.wantIssues {
				t.Errorf("NotationIssues() = %v, want %d issues", issues, tt.wantIssues)
			}
			for _, issue := range issues {
				if !domain.IsValidationError(issue) {
					t.Errorf("Expected validation error, got %T", issue)
				}
			}
		})
	}
}
