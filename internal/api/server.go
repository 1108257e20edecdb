package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/patient-similarity-server/internal/cohort"
	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/middleware"
	"github.com/patient-similarity-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server represents the HTTP server
type Server struct {
	config     domain.ServerConfig
	router     *gin.Engine
	server     *http.Server
	similarity *service.SimilarityService
	store      cohort.Store
	logger     *logrus.Logger
	upgrader   websocket.Upgrader
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, similarity *service.SimilarityService, store cohort.Store, logger *logrus.Logger) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())

	server := &Server{
		config:     cfg.Server,
		router:     router,
		similarity: similarity,
		store:      store,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and shuts it down gracefully when ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.config.TLSEnabled {
			err = s.server.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithFields(logrus.Fields{
		"addr": addr,
		"tls":  s.config.TLSEnabled,
	}).Info("HTTP server listening")

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.RateLimit(s.config.RateLimit, s.config.RateLimitBurst))
	if s.config.WriteTimeout > 0 {
		v1.Use(middleware.RequestTimeout(s.config.WriteTimeout))
	}
	{
		v1.POST("/similarity/match", s.handleMatch)
		v1.POST("/similarity/group", s.handleGroup)

		v1.GET("/patients", s.handleListPatients)
		v1.POST("/patients", s.handleSavePatient)
		v1.GET("/patients/:study/:patient", s.handleGetPatient)
		v1.DELETE("/patients/:study/:patient", s.handleDeletePatient)
		v1.GET("/patients/:study/:patient/similar", s.handleSimilarPatients)
		v1.GET("/patients/:study/:patient/compare/:cmpStudy/:cmpPatient", s.handleComparePatients)
	}

	// websocket connections outlive the request timeout
	s.router.GET("/api/v1/ws/similar", s.handleSimilarStream)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
	}

	if s.store != nil {
		count, err := s.store.Count(c.Request.Context())
		if err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["cohort_error"] = err.Error()
		} else {
			body["cohort_patients"] = count
		}
	}

	c.JSON(status, body)
}
