package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/pkg/hgvs"
)

// PatientListResponse is returned by GET /api/v1/patients.
type PatientListResponse struct {
	Patients []*domain.Patient `json:"patients"`
	Total    int64             `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func (s *Server) handleListPatients(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	limit, err := intQuery(c, "limit", 100)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		s.writeError(c, err)
		return
	}

	ctx := c.Request.Context()
	patients, err := s.store.List(ctx, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if patients == nil {
		patients = []*domain.Patient{}
	}

	c.JSON(http.StatusOK, PatientListResponse{Patients: patients, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetPatient(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	patient, err := s.store.Get(c.Request.Context(), c.Param("study"), c.Param("patient"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if patient == nil {
		s.writeError(c, fmt.Errorf("patient %s:%s: %w", c.Param("study"), c.Param("patient"), domain.ErrNotFound))
		return
	}

	c.JSON(http.StatusOK, patient)
}

func (s *Server) handleSavePatient(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	var patient domain.Patient
	if err := c.ShouldBindJSON(&patient); err != nil {
		s.writeError(c, domain.NewValidationError("body", "invalid JSON body", err.Error()))
		return
	}
	patient.Mutations = hgvs.NormalizeRecords(patient.Mutations)
	if err := patient.Validate(); err != nil {
		s.writeError(c, err)
		return
	}

	if err := s.store.Save(c.Request.Context(), &patient); err != nil {
		s.writeError(c, err)
		return
	}
	s.similarity.InvalidatePatient(patient.StudyID, patient.PatientID)

	c.JSON(http.StatusCreated, patient)
}

func (s *Server) handleDeletePatient(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	study, id := c.Param("study"), c.Param("patient")
	if err := s.store.Delete(c.Request.Context(), study, id); err != nil {
		s.writeError(c, err)
		return
	}
	s.similarity.InvalidatePatient(study, id)

	c.Status(http.StatusNoContent)
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, domain.NewAPIError(
			domain.ErrCodeDatabaseError, "Cohort store not configured", "", requestID(c)))
		return false
	}
	return true
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.NewValidationError(name, name+" must be a non-negative integer", raw)
	}
	return v, nil
}
