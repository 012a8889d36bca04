// Package httpapi exposes the pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/citeguard/internal/observability"
	"github.com/fyrsmithlabs/citeguard/internal/pipeline"
)

// QueryService is the pipeline surface the server needs. Narrowed to an
// interface so handlers can be tested with a stub.
type QueryService interface {
	Answer(ctx context.Context, query string, corpora []string) (*pipeline.Envelope, error)
	Ingest(ctx context.Context, corpus, filename, text string, metadata map[string]any) (*pipeline.IngestResult, error)
	Usage() observability.SessionStats
	DeleteCorpus(ctx context.Context, corpus string) error
}

// Config holds HTTP server settings.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints for citeguardd.
type Server struct {
	echo    *echo.Echo
	service QueryService
	logger  *zap.Logger
	config  Config
}

// NewServer creates the HTTP server and registers routes.
func NewServer(service QueryService, cfg Config, logger *zap.Logger) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("query service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8520
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/query", s.handleQuery)
	v1.POST("/documents", s.handleIngest)
	v1.GET("/usage", s.handleUsage)
	v1.DELETE("/corpora/:corpus", s.handleDeleteCorpus)
}

// QueryRequest is the body for POST /api/v1/query.
type QueryRequest struct {
	Query   string   `json:"query"`
	Corpora []string `json:"corpora"`
}

// IngestRequest is the body for POST /api/v1/documents.
type IngestRequest struct {
	Corpus   string         `json:"corpus"`
	Filename string         `json:"filename"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}
	if len(req.Corpora) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "corpora field is required")
	}

	env, err := s.service.Answer(c.Request().Context(), req.Query, req.Corpora)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidInput) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "query processing failed")
	}
	return c.JSON(http.StatusOK, env)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Corpus == "" || req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "corpus and text fields are required")
	}

	result, err := s.service.Ingest(c.Request().Context(), req.Corpus, req.Filename, req.Text, req.Metadata)
	if err != nil {
		if errors.Is(err, pipeline.ErrInvalidInput) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		s.logger.Error("ingest failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "document ingestion failed")
	}
	return c.JSON(http.StatusCreated, result)
}

func (s *Server) handleUsage(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.Usage())
}

func (s *Server) handleDeleteCorpus(c echo.Context) error {
	corpus := c.Param("corpus")
	if err := s.service.DeleteCorpus(c.Request().Context(), corpus); err != nil {
		s.logger.Error("corpus deletion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "corpus deletion failed")
	}
	return c.NoContent(http.StatusNoContent)
}

// Start runs the server until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
