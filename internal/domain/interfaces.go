package domain

import (
	"context"
)

// MutationSource fetches the mutation calls of one patient from a mutation data provider.
type MutationSource interface {
	FetchPatientMutations(ctx context.Context, studyID, patientID string) ([]MutationRecord, error)
}

// PatientSource fetches a patient with its clinical attributes and mutation calls.
type PatientSource interface {
	MutationSource
	FetchPatient(ctx context.Context, studyID, patientID string) (*Patient, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetExternalAPIConfig() *ExternalAPIConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
