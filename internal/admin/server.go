// Package admin serves the worker's operational HTTP surface: health,
// live-session listing and Prometheus metrics.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parley/internal/logging"
	"parley/internal/session"
)

// ServerConfig holds the admin listener settings.
type ServerConfig struct {
	Host         string
	Port         int
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns the local-development defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Launcher starts a session for a dispatched room. The pipeline host calls
// the launch endpoint once it has assigned a room to this worker.
type Launcher interface {
	Launch(ctx context.Context, roomID, metadata string) error
}

// Server is the admin HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	registry   *session.Registry
	launcher   Launcher
	logger     logging.Logger
	startTime  time.Time
}

// NewServer builds the admin server around the session table, the worker's
// launcher and the metric registry the worker records into.
func NewServer(cfg ServerConfig, registry *session.Registry, launcher Launcher, gatherer prometheus.Gatherer, logger logging.Logger) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		engine:    engine,
		registry:  registry,
		launcher:  launcher,
		logger:    logging.OrNop(logger),
		startTime: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/sessions", s.handleSessions)
	engine.POST("/sessions", s.handleLaunch)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.engine }

type healthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

type sessionsResponse struct {
	Count    int      `json:"count"`
	Sessions []string `json:"sessions"`
}

func (s *Server) handleSessions(c *gin.Context) {
	ids := s.registry.IDs()
	sort.Strings(ids)
	c.JSON(http.StatusOK, sessionsResponse{Count: len(ids), Sessions: ids})
}

type launchRequest struct {
	Room     string `json:"room" binding:"required"`
	Metadata string `json:"metadata"`
}

func (s *Server) handleLaunch(c *gin.Context) {
	var req launchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.launcher.Launch(c.Request.Context(), req.Room, req.Metadata); err != nil {
		s.logger.Error("launch for room %s failed: %v", req.Room, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"room": req.Room})
}

// Start serves until Stop is called. It blocks.
func (s *Server) Start() error {
	s.logger.Info("admin server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
