package api

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/service"
)

// Stream message types
const (
	MessageRanked = "ranked"
	MessageDone   = "done"
	MessageError  = "error"
)

// StreamRequest is one search request sent by a websocket client.
type StreamRequest struct {
	StudyID          string   `json:"study_id"`
	PatientID        string   `json:"patient_id"`
	Tags             []string `json:"tags"`
	CandidateStudyID string   `json:"candidate_study,omitempty"`
	Limit            int      `json:"limit"`
}

// StreamMessage is sent to websocket clients.
type StreamMessage struct {
	Type       string                `json:"type"`
	Patient    *domain.RankedPatient `json:"patient,omitempty"`
	Candidates int                   `json:"candidates,omitempty"`
	Count      int                   `json:"count,omitempty"`
	Error      *domain.APIError      `json:"error,omitempty"`
}

// handleSimilarStream serves searches over a websocket: each request yields
// one ranked message per patient followed by a done message.
func (s *Server) handleSimilarStream(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade websocket")
		return
	}
	defer ws.Close()

	logger := s.logger.WithField("request_id", requestID(c))
	logger.Debug("Websocket client connected")

	for {
		var req StreamRequest
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Info("Websocket client disconnected")
			}
			return
		}

		if err := s.streamSearch(c, ws, req); err != nil {
			logger.WithError(err).Info("Websocket write failed")
			return
		}
	}
}

// streamSearch runs one search. It returns an error only when the connection is unusable.
func (s *Server) streamSearch(c *gin.Context, ws *websocket.Conn, req StreamRequest) error {
	tags, err := domain.ParseSimilarityTags(req.Tags)
	if err != nil {
		return s.sendStreamError(c, ws, err)
	}

	sent := 0
	result, err := s.similarity.StreamSimilarPatients(c.Request.Context(), service.FindRequest{
		StudyID:          req.StudyID,
		PatientID:        req.PatientID,
		Tags:             tags,
		CandidateStudyID: req.CandidateStudyID,
		Limit:            req.Limit,
	}, func(p domain.RankedPatient) error {
		sent++
		return ws.WriteJSON(StreamMessage{Type: MessageRanked, Patient: &p})
	})
	if err != nil {
		if sent > 0 {
			return err
		}
		return s.sendStreamError(c, ws, err)
	}

	s.logger.WithFields(logrus.Fields{
		"reference": req.StudyID + ":" + req.PatientID,
		"streamed":  sent,
	}).Debug("Streamed similar patients")

	return ws.WriteJSON(StreamMessage{Type: MessageDone, Candidates: result.CandidatesCount, Count: len(result.Patients)})
}

func (s *Server) sendStreamError(c *gin.Context, ws *websocket.Conn, err error) error {
	_, code, message := classifyError(err)
	return ws.WriteJSON(StreamMessage{
		Type:  MessageError,
		Error: domain.NewAPIError(code, message, err.Error(), requestID(c)),
	})
}
