package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/patient-similarity-server/internal/domain"
)

// ResponseCache stores mutation-source responses keyed by patient.
type ResponseCache interface {
	GetMutations(ctx context.Context, studyID, patientID string) ([]domain.MutationRecord, bool, error)
	SetMutations(ctx context.Context, studyID, patientID string, data []domain.MutationRecord, ttl time.Duration) error
}

// ResilientMutationSource wraps a patient source with a circuit breaker and an optional response cache.
type ResilientMutationSource struct {
	source  domain.PatientSource
	cache   ResponseCache
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// NewCircuitBreaker returns a breaker with the settings shared by all upstream sources.
func NewCircuitBreaker(name string, logger *logrus.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// a missing patient is an answer, not an outage
			return err == nil || errors.Is(err, domain.ErrNotFound) || domain.IsValidationError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// NewResilientMutationSource wraps source. cache may be nil.
func NewResilientMutationSource(source domain.PatientSource, cache ResponseCache, logger *logrus.Logger) *ResilientMutationSource {
	if logger == nil {
		logger = logrus.New()
	}
	return &ResilientMutationSource{
		source:  source,
		cache:   cache,
		breaker: NewCircuitBreaker("cBioPortal", logger),
		logger:  logger,
	}
}

// State reports the current breaker state.
func (r *ResilientMutationSource) State() gobreaker.State {
	return r.breaker.State()
}

// FetchPatientMutations serves from cache first, then the upstream source behind the breaker.
func (r *ResilientMutationSource) FetchPatientMutations(ctx context.Context, studyID, patientID string) ([]domain.MutationRecord, error) {
	if r.cache != nil {
		if cached, found, err := r.cache.GetMutations(ctx, studyID, patientID); err == nil && found {
			return cached, nil
		} else if err != nil {
			r.logger.WithError(err).Debug("Mutation cache lookup failed")
		}
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.source.FetchPatientMutations(ctx, studyID, patientID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("mutation source unavailable for %s:%s: %w", studyID, patientID, err)
		}
		return nil, err
	}

	records := result.([]domain.MutationRecord)
	r.store(ctx, studyID, patientID, records)
	return records, nil
}

// FetchPatient fetches the full patient behind the breaker and caches its mutation calls.
func (r *ResilientMutationSource) FetchPatient(ctx context.Context, studyID, patientID string) (*domain.Patient, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.source.FetchPatient(ctx, studyID, patientID)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("mutation source unavailable for %s:%s: %w", studyID, patientID, err)
		}
		return nil, err
	}

	patient := result.(*domain.Patient)
	r.store(ctx, studyID, patientID, patient.Mutations)
	return patient, nil
}

func (r *ResilientMutationSource) store(ctx context.Context, studyID, patientID string, records []domain.MutationRecord) {
	if r.cache == nil {
		return
	}
	if err := r.cache.SetMutations(ctx, studyID, patientID, records, 0); err != nil {
		r.logger.WithFields(logrus.Fields{
			"study_id":   studyID,
			"patient_id": patientID,
		}).WithError(err).Warn("Failed to cache mutations")
	}
}
