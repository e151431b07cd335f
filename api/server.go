// Package api serves the watermark HTTP API: encode and decode uploads,
// model listing, status, history and a websocket event feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stega_backend/core"
	"stega_backend/db"
	"stega_backend/metrics"
	"stega_backend/watermark"
)

// ServerConfig configures the Server.
type ServerConfig struct {
	Addr string

	// MaxUploadBytes caps the request body of encode and decode.
	MaxUploadBytes int64

	// MaxImagePixels caps the decoded width x height of an upload.
	MaxImagePixels int64

	// ModelsDir and ModelDir drive model resolution; see
	// stegamodel.ResolveModelDir.
	ModelsDir string
	ModelDir  string

	// DebugSave writes raw, hidden and residual PNGs to TmpDir.
	DebugSave bool
	TmpDir    string

	// APITokenHash enables bearer auth when non-empty.
	APITokenHash string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// LogSkipPaths are not request-logged.
	LogSkipPaths []string

	Broadcaster BroadcasterConfig
}

// DefaultServerConfig returns a ServerConfig with default timeouts.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            fmt.Sprintf("%s:%d", core.DefaultHost, core.DefaultPort),
		MaxUploadBytes:  core.DefaultMaxUploadBytes,
		MaxImagePixels:  core.DefaultMaxImagePixels,
		ModelsDir:       core.DefaultModelsDir,
		TmpDir:          core.DefaultTmpDir,
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogSkipPaths:    []string{"/health", "/api/v1/ping"},
		Broadcaster:     DefaultBroadcasterConfig(),
	}
}

// NewServerConfig derives a ServerConfig from the process configuration.
func NewServerConfig(cfg *core.Config) ServerConfig {
	sc := DefaultServerConfig()
	sc.Addr = cfg.Addr()
	sc.MaxUploadBytes = cfg.MaxUploadBytes
	sc.MaxImagePixels = cfg.MaxImagePixels
	sc.ModelsDir = cfg.ModelsDir
	sc.ModelDir = cfg.ModelDir
	sc.DebugSave = cfg.DebugSave
	sc.TmpDir = cfg.TmpDir
	sc.APITokenHash = cfg.APITokenHash
	sc.ShutdownTimeout = cfg.ShutdownTimeout
	// Requests queue behind the model lock, so allow several inference
	// round trips before the write deadline.
	if w := 4 * cfg.ServingTimeout; w > sc.WriteTimeout {
		sc.WriteTimeout = w
	}
	return sc
}

// Dependencies are the collaborators a Server calls into.
type Dependencies struct {
	// Watermark runs encode and decode. Required.
	Watermark *watermark.Service

	// Metrics receives every finished operation. Required.
	Metrics metrics.Collector

	// History persists operations. Nil disables /api/v1/history.
	History *db.Repository

	// Gate rejects work during shutdown. Nil admits everything.
	Gate OperationGate
}

// Server is the HTTP front end of the watermark service.
type Server struct {
	config     ServerConfig
	logger     *zap.Logger
	httpServer *http.Server
	mux        *http.ServeMux

	watermark *watermark.Service
	metrics   metrics.Collector
	history   *db.Repository
	gate      OperationGate
	auth      *TokenAuth
	events    *EventBroadcaster
}

// NewServer wires routes and middleware. Call Start to listen.
func NewServer(config ServerConfig, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Watermark == nil {
		return nil, errors.New("api: watermark service is required")
	}
	if deps.Metrics == nil {
		return nil, errors.New("api: metrics collector is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:    config,
		logger:    logger,
		mux:       http.NewServeMux(),
		watermark: deps.Watermark,
		metrics:   deps.Metrics,
		history:   deps.History,
		gate:      deps.Gate,
		auth:      NewTokenAuth(config.APITokenHash, nil, logger),
		events:    NewEventBroadcaster(config.Broadcaster, logger.Named("events")),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	logger.Info("API server created",
		zap.String("addr", config.Addr),
		zap.Bool("auth_enabled", s.auth.Enabled()),
		zap.Bool("history_enabled", s.history != nil),
		zap.Bool("debug_save", config.DebugSave),
	)
	return s, nil
}

func (s *Server) setupRoutes() {
	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return s.auth.MiddlewareFunc(h, s.writeDetail)
	}

	s.mux.HandleFunc("/health", s.methods(s.handleHealth, http.MethodGet))
	s.mux.HandleFunc("/api/v1/ping", s.methods(s.handlePing, http.MethodGet))
	s.mux.HandleFunc("/api/v1/models", s.methods(s.handleModels, http.MethodGet))
	s.mux.HandleFunc("/api/v1/status", s.methods(protect(s.handleStatus), http.MethodGet))
	s.mux.HandleFunc("/api/v1/encode", s.methods(protect(s.gated(s.handleEncode)), http.MethodPost))
	s.mux.HandleFunc("/api/v1/decode", s.methods(protect(s.gated(s.handleDecode)), http.MethodPost))
	s.mux.HandleFunc("/api/v1/history", s.methods(protect(s.handleHistory), http.MethodGet))
	s.mux.HandleFunc("/ws", protect(s.events.HandleConnection))
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return requestLogger(s.logger, s.config.LogSkipPaths, s.mux)
}

// Start runs the event feed and serves HTTP until Shutdown. It returns nil
// after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	go s.events.Run(ctx)
	s.auth.Limiter().StartCleanupTicker(ctx, 5*time.Minute)

	s.logger.Info("API server starting", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for active ones, bounded
// by the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown error: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}

// Events returns the websocket broadcaster.
func (s *Server) Events() *EventBroadcaster {
	return s.events
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
