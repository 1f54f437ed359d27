package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sv2d/sv2d/internal/authn"
	"github.com/sv2d/sv2d/internal/database"
	"github.com/sv2d/sv2d/internal/domain"
)

func promHTTPHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

const appVersion = "sv2d"

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/api/v1/auth/session", s.handleIssueSession)

	v1 := s.engine.Group("/api/v1")
	v1.Use(s.sessions.RequireAuth())
	{
		v1.GET("/status", authn.RequirePermissionMiddleware(domain.PermViewMetrics), s.handleStatus)

		v1.GET("/connections", authn.RequirePermissionMiddleware(domain.PermViewConnections), s.handleListConnections)
		v1.GET("/connections/:id", authn.RequirePermissionMiddleware(domain.PermViewConnections), s.handleGetConnection)
		v1.DELETE("/connections/:id", authn.RequirePermissionMiddleware(domain.PermManageConnections), s.handleDisconnect)

		v1.GET("/shares", authn.RequirePermissionMiddleware(domain.PermViewShares), s.handleListShares)
		v1.GET("/shares/stats", authn.RequirePermissionMiddleware(domain.PermViewShares), s.handleShareStats)

		v1.GET("/metrics", authn.RequirePermissionMiddleware(domain.PermViewMetrics), s.handleMetrics)
		v1.GET("/mining/stats", authn.RequirePermissionMiddleware(domain.PermViewMetrics), s.handleMiningStats)

		v1.GET("/templates", authn.RequirePermissionMiddleware(domain.PermViewMetrics), s.handleListTemplates)
		v1.GET("/templates/:id", authn.RequirePermissionMiddleware(domain.PermViewMetrics), s.handleGetTemplate)
		v1.POST("/templates/custom", authn.RequirePermissionMiddleware(domain.PermManageConfig), s.handleCustomTemplate)

		v1.GET("/alerts", authn.RequirePermissionMiddleware(domain.PermViewMetrics), s.handleListAlerts)

		v1.GET("/config", authn.RequirePermissionMiddleware(domain.PermViewMetrics), s.handleGetConfig)
		v1.PUT("/config", authn.RequirePermissionMiddleware(domain.PermManageConfig), s.handlePutConfig)

		v1.POST("/control/shutdown", authn.RequirePermissionMiddleware(domain.PermAdminAccess), s.handleShutdown)

		v1.GET("/ws", s.handleWebSocket)
	}
}

func (s *Server) activeMode() domain.Mode {
	if h := s.router.Current(); h != nil {
		return h.Mode()
	}
	return s.mode
}

// handleIssueSession exchanges a raw X-Api-Key secret for a short-lived
// JWT session, for clients that would rather not resend the raw secret on
// every request.
func (s *Server) handleIssueSession(c *gin.Context) {
	raw := c.GetHeader("X-Api-Key")
	if raw == "" {
		RespondBadRequest(c, "X-Api-Key header is required")
		return
	}
	row, err := s.apiKeys.GetApiKeyByHash(c.Request.Context(), authn.HashSecret(raw))
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "invalid api key")
		return
	}
	key := authn.RowToApiKey(row)
	if key.Revoked {
		RespondError(c, http.StatusUnauthorized, "api key revoked")
		return
	}
	token, err := s.sessions.Issue(key, time.Now())
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondSuccess(c, gin.H{"token": token, "expires_in_seconds": int64(s.sessions.TTL().Seconds())})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"version":         appVersion,
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := domain.DaemonStatus{
		Mode:            s.activeMode(),
		StartedAt:       s.startedAt,
		ConnectionCount: s.conns.ConnectionCount(),
	}
	RespondSuccess(c, status)
}

func parseLimitOffset(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	offset = 0
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func (s *Server) handleListConnections(c *gin.Context) {
	limit, offset := parseLimitOffset(c, 100)
	all := s.conns.Connections()
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	RespondSuccess(c, Page{Items: all[offset:end], Limit: limit, Offset: offset, Total: total})
}

func (s *Server) handleGetConnection(c *gin.Context) {
	conn, ok := s.conns.Connection(c.Param("id"))
	if !ok {
		RespondNotFound(c, "connection not found")
		return
	}
	RespondSuccess(c, conn)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if !s.conns.Disconnect(c.Param("id")) {
		RespondNotFound(c, "connection not found")
		return
	}
	RespondSuccess(c, gin.H{"disconnected": true})
}

func (s *Server) handleListShares(c *gin.Context) {
	limit, _ := parseLimitOffset(c, 100)
	connectionID := c.Query("connection_id")
	if connectionID == "" {
		RespondBadRequest(c, "connection_id is required")
		return
	}
	shares, err := s.shares.GetSharesByConnection(c.Request.Context(), connectionID, limit)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondSuccess(c, shares)
}

func (s *Server) handleShareStats(c *gin.Context) {
	stats := s.router.Statistics()
	RespondSuccess(c, stats)
}

func (s *Server) handleMetrics(c *gin.Context) {
	if s.metrics == nil || s.metrics.Registry == nil {
		RespondInternalError(c, "metrics registry unavailable")
		return
	}
	handler := promHTTPHandler(s.metrics.Registry)
	handler.ServeHTTP(c.Writer, c.Request)
}

func (s *Server) handleMiningStats(c *gin.Context) {
	RespondSuccess(c, s.router.Statistics())
}

func (s *Server) handleListTemplates(c *gin.Context) {
	limit, _ := parseLimitOffset(c, 50)
	templates, err := s.templates.ListTemplates(c.Request.Context(), limit)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondSuccess(c, templates)
}

func (s *Server) handleGetTemplate(c *gin.Context) {
	t, err := s.templates.GetTemplateByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondNotFound(c, "template not found")
		return
	}
	RespondSuccess(c, t)
}

// customTemplateRequest is an operator-supplied override, persisted so
// restart recovery and audit trails see it like any fetched template.
type customTemplateRequest struct {
	JobID    string `json:"job_id" binding:"required"`
	Height   int64  `json:"height"`
	PrevHash string `json:"prev_hash"`
}

func (s *Server) handleCustomTemplate(c *gin.Context) {
	var req customTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	row := &database.TemplateRow{
		JobID:     req.JobID,
		Height:    req.Height,
		PrevHash:  req.PrevHash,
		FetchedAt: time.Now(),
	}
	if err := s.templates.SaveTemplate(c.Request.Context(), row); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondCreated(c, row)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	limit, _ := parseLimitOffset(c, 100)
	alerts, err := s.alerts.GetRecentAlerts(c.Request.Context(), limit)
	if err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	RespondSuccess(c, alerts)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.configs.GetLatestConfig(c.Request.Context())
	if err != nil {
		RespondNotFound(c, "no configuration recorded")
		return
	}
	RespondSuccess(c, cfg)
}

// putConfigRequest carries the new configuration's YAML document plus who
// applied it, for the audit trail in config_history.
type putConfigRequest struct {
	YAMLConfig string `json:"yaml_config" binding:"required"`
}

func (s *Server) handlePutConfig(c *gin.Context) {
	var req putConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	appliedBy, _ := c.Get("key_id")
	appliedByStr, _ := appliedBy.(string)

	entry := &database.ConfigHistoryRow{
		AppliedBy:  appliedByStr,
		YAMLConfig: req.YAMLConfig,
	}
	if err := s.configs.RecordConfigChange(c.Request.Context(), entry); err != nil {
		RespondInternalError(c, err.Error())
		return
	}
	s.Broadcast(Event{Kind: EventStatus, Data: gin.H{"config_applied": entry.AppliedAt}})
	RespondSuccess(c, entry)
}

func (s *Server) handleShutdown(c *gin.Context) {
	RespondSuccess(c, gin.H{"shutting_down": true})
	go func() {
		s.logger.Info("api: shutdown requested via management API")
		if s.onShutdownRequest != nil {
			s.onShutdownRequest()
		}
	}()
}
