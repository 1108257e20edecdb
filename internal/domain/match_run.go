package domain

import (
	"time"

	"github.com/google/uuid"
)

// MatchRun records one patient-to-patient comparison for auditing.
type MatchRun struct {
	ID                  uuid.UUID      `json:"id"`
	ReferenceStudyID    string         `json:"referenceStudyId"`
	ReferencePatientID  string         `json:"referencePatientId"`
	ComparisonStudyID   string         `json:"comparisonStudyId"`
	ComparisonPatientID string         `json:"comparisonPatientId"`
	Tags                []string       `json:"tags"`
	MatchCount          int            `json:"matchCount"`
	TagCounts           map[string]int `json:"tagCounts"`
	DurationMs          int64          `json:"durationMs"`
	CreatedAt           time.Time      `json:"createdAt"`
}
