// Package domain contains the core entities shared by the patient similarity server:
// mutation calls, canonical variant groups, similarity tags and the patients that
// carry them.
//
// A similarity comparison classifies every canonical variant of a reference patient
// against the variants of a comparison patient using a fixed priority ladder
// (exact variant > protein change > gene).
package domain

import (
	"fmt"
	"strings"
)

// SimilarityTag is the category assigned to a reference variant after it has been
// compared against a comparison patient's variants.
type SimilarityTag string

const (
	// TagEqual marks an identical genomic change (chromosome, start, ref and alt allele).
	TagEqual SimilarityTag = "equal"
	// TagProteinChange marks the same protein change within the same gene.
	TagProteinChange SimilarityTag = "phgvs"
	// TagGene marks a variant in the same gene.
	TagGene SimilarityTag = "gene"
	// TagUnequal is the no-match category. The matcher never emits it: reference
	// variants without any qualifying comparison variant are left out of the result.
	TagUnequal SimilarityTag = "unequal"
)

// Scores of the similarity ladder. A higher score always supersedes a lower one.
const (
	ScoreEqual         = 50
	ScoreProteinChange = 40
	ScoreGene          = 20
	ScoreNone          = 0
)

// IsValid reports whether the tag is one of the known categories.
func (t SimilarityTag) IsValid() bool {
	switch t {
	case TagEqual, TagProteinChange, TagGene, TagUnequal:
		return true
	default:
		return false
	}
}

// String returns the string representation of the tag.
func (t SimilarityTag) String() string {
	return string(t)
}

// Score returns the rank of the tag on the similarity ladder.
func (t SimilarityTag) Score() int {
	switch t {
	case TagEqual:
		return ScoreEqual
	case TagProteinChange:
		return ScoreProteinChange
	case TagGene:
		return ScoreGene
	default:
		return ScoreNone
	}
}

// Description returns a human-readable label used in reports and tool output.
func (t SimilarityTag) Description() string {
	switch t {
	case TagEqual:
		return "Identical variant"
	case TagProteinChange:
		return "Same protein change"
	case TagGene:
		return "Same gene"
	case TagUnequal:
		return "No shared variant, protein change or gene"
	default:
		return "Unknown similarity tag"
	}
}

// LogFields returns structured logging fields for the tag.
func (t SimilarityTag) LogFields() map[string]any {
	return map[string]any{
		"similarity_tag":   string(t),
		"similarity_score": t.Score(),
		"is_valid":         t.IsValid(),
	}
}

// ParseSimilarityTag parses a tag name case-insensitively.
func ParseSimilarityTag(s string) (SimilarityTag, error) {
	tag := SimilarityTag(strings.ToLower(strings.TrimSpace(s)))
	if !tag.IsValid() {
		return "", fmt.Errorf("parsing %q: %w", s, ErrInvalidSimilarityTag)
	}
	return tag, nil
}

// ParseSimilarityTags parses a list of tag names. Blank entries are skipped and
// duplicates collapse onto their first occurrence.
func ParseSimilarityTags(values []string) ([]SimilarityTag, error) {
	tags := make([]SimilarityTag, 0, len(values))
	seen := make(map[SimilarityTag]bool, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		tag, err := ParseSimilarityTag(v)
		if err != nil {
			return nil, err
		}
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags, nil
}

// AllMatchTags returns the tags the matcher can emit, highest rank first.
func AllMatchTags() []SimilarityTag {
	return []SimilarityTag{TagEqual, TagProteinChange, TagGene}
}
