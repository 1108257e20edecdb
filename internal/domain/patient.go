package domain

import (
	"fmt"
	"strings"
	"time"
)

// Patient is a cohort member together with the mutation calls of its samples.
type Patient struct {
	StudyID    string           `json:"studyId"`
	PatientID  string           `json:"patientId"`
	Name       string           `json:"name,omitempty"`
	Age        int              `json:"age,omitempty"`
	Gender     string           `json:"gender,omitempty"`
	CancerType string           `json:"cancerType,omitempty"`
	SampleIDs  []string         `json:"sampleIds,omitempty"`
	Mutations  []MutationRecord `json:"mutations"`
	CreatedAt  time.Time        `json:"createdAt,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt,omitempty"`
}

// Ref returns "study:patient".
func (p Patient) Ref() string {
	return p.StudyID + ":" + p.PatientID
}

// Validate checks identifiers and every mutation call.
func (p Patient) Validate() error {
	if strings.TrimSpace(p.StudyID) == "" {
		return NewValidationError("studyId", "study id is required", p.StudyID)
	}
	if strings.TrimSpace(p.PatientID) == "" {
		return NewValidationError("patientId", "patient id is required", p.PatientID)
	}
	if p.Age < 0 {
		return NewValidationError("age", "age must not be negative", p.Age)
	}
	if err := ValidateRecords(p.Mutations); err != nil {
		return fmt.Errorf("patient %s: %w", p.Ref(), err)
	}
	return nil
}

// RankedPatient is a candidate patient scored against a reference patient.
type RankedPatient struct {
	Patient    Patient               `json:"patient"`
	Matches    []SimilarityMatch     `json:"matches"`
	TagCounts  map[SimilarityTag]int `json:"tagCounts"`
	Score      int                   `json:"score"`
	Rank       int                   `json:"rank"`
	CommonVars []MutationRecord      `json:"commonVariants,omitempty"`
}

// EqualCount returns the number of identical variants shared with the reference.
func (r RankedPatient) EqualCount() int {
	return r.TagCounts[TagEqual]
}
