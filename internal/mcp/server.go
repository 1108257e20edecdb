// Package mcp exposes the similarity service as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"
	"io"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/patient-similarity-server/internal/domain"
	"github.com/patient-similarity-server/internal/service"
)

// Server represents the patient similarity MCP server
type Server struct {
	config     domain.MCPConfig
	mcpServer  *mcp.Server
	similarity *service.SimilarityService
	logger     *logrus.Logger
	closers    []io.Closer
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server) error

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithCloser registers a resource released by Close.
func WithCloser(c io.Closer) ServerOption {
	return func(s *Server) error {
		s.closers = append(s.closers, c)
		return nil
	}
}

// NewServer creates a new MCP server instance serving the similarity tools
func NewServer(cfg domain.MCPConfig, similarity *service.SimilarityService, opts ...ServerOption) (*Server, error) {
	if similarity == nil {
		return nil, fmt.Errorf("similarity service is required")
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "patient-similarity-server"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "v1.0.0"
	}
	if cfg.TransportType == "" {
		cfg.TransportType = "stdio"
	}

	server := &Server{
		config:     cfg,
		similarity: similarity,
		logger:     logrus.New(),
	}
	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}, nil)
	server.registerTools()

	return server, nil
}

// MCPServer returns the underlying SDK server, for in-process sessions.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Start runs the server on the configured transport until ctx is cancelled or
// the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	var transport mcp.Transport
	switch s.config.TransportType {
	case "stdio":
		transport = &mcp.StdioTransport{}
	default:
		return fmt.Errorf("unsupported transport: %s", s.config.TransportType)
	}

	s.logger.WithFields(logrus.Fields{
		"server_name":    s.config.ServerName,
		"server_version": s.config.ServerVersion,
		"transport_type": s.config.TransportType,
	}).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases the resources registered with WithCloser.
func (s *Server) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close resource")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.closers = nil
	return firstErr
}
