// Package server exposes the hub's HTTP endpoints: single frames, continuous
// multipart feeds and diagnostics.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/amoylab/castwall/internal/audit"
	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/registry"
	"github.com/amoylab/castwall/internal/session"
	"github.com/amoylab/castwall/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// WindowCounter reports the window count of the latest snapshot
type WindowCounter interface {
	WindowsCount() int
}

// HistoryReader serves recent client lifecycle records
type HistoryReader interface {
	History(ctx context.Context, limit int) ([]audit.ClientRecord, error)
}

type (
	// Server represents the streaming HTTP server
	Server struct {
		logger     *zap.Logger
		port       int
		router     *gin.Engine
		httpServer *http.Server

		registry *registry.Registry
		codec    *session.Codec
		windows  WindowCounter
		history  HistoryReader
		metrics  *metrics.Metrics
		page     *template.Template

		sessionCfg  config.SessionConfig
		metricsPath string
		readTimeout time.Duration
		tracing     string

		// ctx is cancelled on shutdown to end every open stream
		ctx    context.Context
		cancel context.CancelFunc
	}

	// Option customises a Server
	Option func(*Server)
)

// WithHistory serves /debug/history from h
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics records HTTP metrics and serves them on path
func WithMetrics(m *metrics.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsPath = path
	}
}

// WithTracing instruments every request with an OpenTelemetry span
func WithTracing(serviceName string) Option {
	return func(s *Server) { s.tracing = serviceName }
}

// NewServer creates the server and registers its routes
func NewServer(logger *zap.Logger, cfg *config.CastwallConfig, reg *registry.Registry, codec *session.Codec, windows WindowCounter, opts ...Option) (*Server, error) {
	page, err := parseStatusPage()
	if err != nil {
		return nil, fmt.Errorf("failed to parse status page: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		logger:      logger.Named("server"),
		port:        cfg.Port,
		router:      gin.New(),
		registry:    reg,
		codec:       codec,
		windows:     windows,
		page:        page,
		sessionCfg:  cfg.Session,
		readTimeout: cfg.Registry.ReadTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	if s.readTimeout <= 0 {
		s.readTimeout = time.Second
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tracing != "" {
		s.router.Use(otelgin.Middleware(s.tracing))
	}
	s.router.Use(s.loggerMiddleware())
	s.router.Use(s.recoveryMiddleware())
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware())
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/health_check", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Health check passed.",
		})
	})
	if s.metrics != nil {
		s.router.GET(s.metricsPath, gin.WrapH(s.metrics.Handler()))
	}

	hub := s.router.Group("/", s.identityMiddleware())
	hub.GET("/", s.handleIndex)
	hub.GET("/screenshot_tiled", s.handleScreenshotTiled)
	hub.GET("/screenshot_window/:index", s.handleScreenshotWindow)
	hub.GET("/video_feed_tiled", s.handleVideoFeedTiled)
	hub.GET("/video_feed_window/:index", s.handleVideoFeedWindow)
	hub.GET("/client_stats", s.handleClientStats)
	hub.GET("/windows_count", s.handleWindowsCount)
	hub.GET("/debug", s.handleDebug)
	hub.GET("/debug/history", s.handleHistory)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Start serves HTTP in the background
func (s *Server) Start() {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("starting HTTP server", zap.Int("port", s.port))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("failed to start server", zap.Error(err))
		}
	}()
}

// Shutdown ends every open stream and gracefully stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.cancel()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
