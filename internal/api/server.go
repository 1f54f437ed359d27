// Package api implements the management HTTP API: the outbound surface
// consumed by operator tooling and the web dashboard, covering daemon
// status, connection and share introspection, configuration, and a
// WebSocket push channel for live events.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sv2d/sv2d/internal/authn"
	"github.com/sv2d/sv2d/internal/database"
	"github.com/sv2d/sv2d/internal/domain"
	"github.com/sv2d/sv2d/internal/mode"
	"github.com/sv2d/sv2d/internal/observability"
)

// ConnectionDirectory is the subset of *stratumserver.Server the management
// API needs: listing, looking up and force-disconnecting live connections.
type ConnectionDirectory interface {
	Connection(id string) (*domain.Connection, bool)
	Connections() []*domain.Connection
	ConnectionCount() int
	Disconnect(id string) bool
}

// ServerConfig holds the management API's own configuration.
type ServerConfig struct {
	BindAddr        string
	Version         string
	AllowedOrigins  []string // empty means permissive (*)
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// DefaultServerConfig returns sane management API defaults for bindAddr.
func DefaultServerConfig(bindAddr, version string) ServerConfig {
	return ServerConfig{
		BindAddr:     bindAddr,
		Version:      version,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Server is the management HTTP API: a gin router plus everything its
// handlers read from or act on.
type Server struct {
	cfg ServerConfig

	conns     ConnectionDirectory
	router    *mode.Router
	shares    database.ShareRepository
	connRepo  database.ConnectionRepository
	alerts    database.AlertRepository
	apiKeys   database.ApiKeyRepository
	configs   database.ConfigHistoryRepository
	templates database.TemplateRepository

	sessions *authn.SessionManager
	limiter  *authn.RateLimiter
	logger   *observability.Logger
	metrics  *observability.Metrics
	hub      *Hub

	startedAt time.Time
	mode      domain.Mode

	onShutdownRequest func()

	engine     *gin.Engine
	httpServer *http.Server
}

// Deps bundles every collaborator the management API dispatches to.
type Deps struct {
	Conns     ConnectionDirectory
	Router    *mode.Router
	Shares    database.ShareRepository
	Conn      database.ConnectionRepository
	Alerts    database.AlertRepository
	ApiKeys   database.ApiKeyRepository
	Configs   database.ConfigHistoryRepository
	Templates database.TemplateRepository
	Sessions  *authn.SessionManager
	Limiter   *authn.RateLimiter
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Mode      domain.Mode
	// OnShutdownRequest is invoked, if set, when an operator calls
	// POST /control/shutdown. Typically triggers the daemon's own
	// graceful-shutdown signal path.
	OnShutdownRequest func()
}

// NewServer builds the management API's gin engine and registers routes.
func NewServer(cfg ServerConfig, deps Deps, startedAt time.Time) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:       cfg,
		conns:     deps.Conns,
		router:    deps.Router,
		shares:    deps.Shares,
		connRepo:  deps.Conn,
		alerts:    deps.Alerts,
		apiKeys:   deps.ApiKeys,
		configs:   deps.Configs,
		templates: deps.Templates,
		sessions:  deps.Sessions,
		limiter:   deps.Limiter,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		hub:       NewHub(),
		startedAt: startedAt,
		mode:      deps.Mode,
		onShutdownRequest: deps.OnShutdownRequest,
		engine:    engine,
	}

	engine.Use(s.corsMiddleware())
	engine.Use(s.limiter.Middleware())
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.BindAddr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	go s.hub.Run()

	return s
}

// corsMiddleware answers preflight and tags every response with the
// configured Access-Control-Allow-Origin set, permissive by default.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := "*"
		if len(s.cfg.AllowedOrigins) > 0 {
			origin = ""
			reqOrigin := c.GetHeader("Origin")
			for _, o := range s.cfg.AllowedOrigins {
				if o == reqOrigin {
					origin = reqOrigin
					break
				}
			}
		}
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, X-Api-Key, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Start serves the management API until the process is asked to stop.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.cfg.BindAddr).Info("api: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server and the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	return s.httpServer.Shutdown(ctx)
}

// Broadcast publishes an event to every connected /ws subscriber.
func (s *Server) Broadcast(event Event) { s.hub.Broadcast(event) }
