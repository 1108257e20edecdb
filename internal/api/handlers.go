package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/middleware"
	"github.com/patient-similarity-server/internal/service"
)

const maxListLimit = 1000

// MatchRequest is the body of POST /api/v1/similarity/match.
type MatchRequest struct {
	Reference  []domain.MutationRecord `json:"reference"`
	Comparison []domain.MutationRecord `json:"comparison"`
	Tags       []string                `json:"tags"`
}

// MatchResponse is returned by POST /api/v1/similarity/match.
type MatchResponse struct {
	RequestID string `json:"request_id"`
	*service.Comparison
}

// GroupRequest is the body of POST /api/v1/similarity/group.
type GroupRequest struct {
	Records []domain.MutationRecord `json:"records"`
}

// GroupResponse is returned by POST /api/v1/similarity/group.
type GroupResponse struct {
	RequestID string                 `json:"request_id"`
	Groups    []domain.MutationGroup `json:"groups"`
}

func (s *Server) handleMatch(c *gin.Context) {
	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("body", "invalid JSON body", err.Error()))
		return
	}

	tags, err := domain.ParseSimilarityTags(req.Tags)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.similarity.CompareRecords(c.Request.Context(), req.Reference, req.Comparison, tags)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MatchResponse{RequestID: requestID(c), Comparison: result})
}

func (s *Server) handleGroup(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, domain.NewValidationError("body", "invalid JSON body", err.Error()))
		return
	}

	groups, err := s.similarity.GroupRecords(req.Records)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, GroupResponse{RequestID: requestID(c), Groups: groups})
}

func (s *Server) handleSimilarPatients(c *gin.Context) {
	req, err := findRequestFromQuery(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.similarity.FindSimilarPatients(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleComparePatients(c *gin.Context) {
	tags, err := parseTagQuery(c.Query("tags"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	result, err := s.similarity.ComparePatients(c.Request.Context(),
		c.Param("study"), c.Param("patient"),
		c.Param("cmpStudy"), c.Param("cmpPatient"),
		tags,
	)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func findRequestFromQuery(c *gin.Context) (service.FindRequest, error) {
	tags, err := parseTagQuery(c.Query("tags"))
	if err != nil {
		return service.FindRequest{}, err
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return service.FindRequest{}, domain.NewValidationError("limit", "limit must be a non-negative integer", raw)
		}
	}

	return service.FindRequest{
		StudyID:          c.Param("study"),
		PatientID:        c.Param("patient"),
		Tags:             tags,
		CandidateStudyID: c.Query("candidate_study"),
		Limit:            limit,
	}, nil
}

// parseTagQuery parses a comma separated tag list; empty selects the defaults.
func parseTagQuery(raw string) ([]domain.SimilarityTag, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return domain.ParseSimilarityTags(strings.Split(raw, ","))
}

func requestID(c *gin.Context) string {
	return c.GetString(middleware.RequestIDKey)
}

// writeError maps err onto an APIError response.
func (s *Server) writeError(c *gin.Context, err error) {
	status, code, message := classifyError(err)

	entry := s.logger.WithError(err).WithField("request_id", requestID(c))
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Debug("Request rejected")
	}

	c.AbortWithStatusJSON(status, domain.NewAPIError(code, message, err.Error(), requestID(c)))
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, domain.ErrCodeExternalAPI, "Mutation source unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, domain.ErrCodeInternalServer, "Request timed out"
	}

	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadRequest, apiErr.Code, apiErr.Message
	}

	switch code := domain.ErrorCode(err); code {
	case domain.ErrCodeValidation:
		return http.StatusBadRequest, code, "Invalid request data"
	case domain.ErrCodeInvalidInput:
		return http.StatusBadRequest, code, "Unknown similarity tag"
	case domain.ErrCodeNotFound:
		return http.StatusNotFound, code, "Patient not found"
	default:
		return http.StatusInternalServerError, domain.ErrCodeInternalServer, "Internal server error"
	}
}
