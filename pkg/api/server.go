// Package api provides the admin and status HTTP API of the voice server
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-voice/pkg/network"
)

// Server is the HTTP API over a running voice server
type Server struct {
	voice      *network.Server
	gatherer   prometheus.Gatherer
	router     *gin.Engine
	cfg        *Config
	httpServer *http.Server
	log        *zap.Logger
}

// Config holds API server configuration
type Config struct {
	ListenAddr string
	EnableCORS bool
	// Requests per minute per client IP
	RateLimit int
	// Required in X-API-Key for /api/v1 when set
	APIKey       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default API configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:   "127.0.0.1:8080",
		RateLimit:    100,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer creates the API server. gatherer serves /metrics and may be nil.
func NewServer(voice *network.Server, gatherer prometheus.Gatherer, config *Config, log *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{
		voice:    voice,
		gatherer: gatherer,
		router:   router,
		cfg:      config,
		log:      log.Named("api"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware(s.log))
	if s.cfg.EnableCORS {
		s.router.Use(CORSMiddleware())
	}
	if s.cfg.RateLimit > 0 {
		s.router.Use(NewRateLimiter(s.cfg.RateLimit).Middleware())
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	if s.cfg.APIKey != "" {
		v1.Use(AuthMiddleware(s.cfg.APIKey))
	}
	{
		v1.GET("/server", s.handleServerInfo)
		v1.PUT("/server/accepting", s.handleSetAccepting)

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", s.handleListSessions)
			sessions.GET("/:id", s.handleGetSession)
			sessions.DELETE("/:id", s.handleKickSession)
		}

		users := v1.Group("/users")
		{
			users.GET("", s.handleListUsers)
			users.POST("", s.handleRegisterUser)
			users.GET("/:id", s.handleGetUser)
			users.PUT("/:id/password", s.handleSetPassword)
			users.DELETE("/:id", s.handleDeleteUser)
		}

		bans := v1.Group("/bans")
		{
			bans.GET("", s.handleListBans)
			bans.POST("", s.handleAddBan)
			bans.DELETE("/:id", s.handleDeleteBan)
		}
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", zap.String("addr", ln.Addr().String()))
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
