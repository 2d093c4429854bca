// Package api implements Argus's external HTTP/WebSocket surface (spec.md
// §6): SDK event ingestion, alert acknowledge/mute/resolve, action
// propose/respond, and the WebSocket stream that carries ReAct and
// investigation lifecycle events to connected clients.
//
// Grounded on tarsy's cmd/tarsy/main.go gin wiring/route-registration
// style for HTTP and tarsy's pkg/events.ConnectionManager for the
// WebSocket connection bookkeeping (ported to gorilla/websocket, the
// implementation rcourtman-Pulse's internal/agentexec/server.go already
// uses for a structurally identical job).
package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/argus/pkg/action"
	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/collector"
	"github.com/codeready-toolchain/argus/pkg/webhook"
)

// AlertService is the narrow capability the server needs from the Alert
// Engine.
type AlertService interface {
	Acknowledge(ctx context.Context, tenant, dedupKey, by string, expiresAt *time.Time) error
	Unacknowledge(ctx context.Context, tenant, dedupKey string) error
	Mute(ctx context.Context, tenant, ruleID string, expiresAt time.Time) error
	Unmute(ctx context.Context, tenant, ruleID string) error
	Resolve(ctx context.Context, tenant, alertID string) error
	GetActiveAlerts(includeResolved bool) []argusmodel.ActiveAlert
}

// ActionService is the narrow capability the server needs from the Action
// Engine.
type ActionService interface {
	ProposeAction(ctx context.Context, tenant, description string, cmd []string) action.Outcome
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires gin's HTTP surface and a ConnectionManager's WebSocket
// surface over the Alert/Action engines and the SDK ingest collector.
type Server struct {
	engine  *gin.Engine
	manager *ConnectionManager

	alerts   AlertService
	actions  ActionService
	sdk      *collector.SDKCollector
	verifier *webhook.Verifier // may be nil: disables signature verification
	gatherer prometheus.Gatherer // may be nil: disables /metrics
}

// NewServer builds the gin engine and registers all routes. verifier may be
// nil in deployments that don't require signed webhook ingestion (e.g.
// local development). gatherer may be nil to disable the /metrics endpoint.
func NewServer(manager *ConnectionManager, alerts AlertService, actions ActionService, sdk *collector.SDKCollector, verifier *webhook.Verifier, gatherer prometheus.Gatherer) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:   gin.New(),
		manager:  manager,
		alerts:   alerts,
		actions:  actions,
		sdk:      sdk,
		verifier: verifier,
		gatherer: gatherer,
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the http.Handler to pass to an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	s.engine.GET("/ws", s.handleWebSocket)
	if s.gatherer != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.engine.POST("/ingest", s.handleIngest)

	alerts := s.engine.Group("/alerts")
	alerts.GET("", s.handleListAlerts)
	alerts.POST("/:id/ack", s.handleAckAlert)
	alerts.POST("/:id/unack", s.handleUnackAlert)
	alerts.POST("/:id/resolve", s.handleResolveAlert)

	rules := s.engine.Group("/rules")
	rules.POST("/:id/mute", s.handleMuteRule)
	rules.POST("/:id/unmute", s.handleUnmuteRule)

	s.engine.POST("/actions/propose", s.handleProposeAction)
}

func tenantOf(c *gin.Context) string {
	if t := c.GetHeader("X-Argus-Tenant"); t != "" {
		return t
	}
	return "default"
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.manager.HandleConnection(c.Request.Context(), conn)
}

// handleIngest accepts a batch of SDK events (spec.md §6 /ingest), verifying
// the HMAC signature headers when a verifier is configured.
func (s *Server) handleIngest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if s.verifier != nil {
		sig := c.GetHeader("X-Argus-Signature")
		ts := c.GetHeader("X-Argus-Timestamp")
		nonce := c.GetHeader("X-Argus-Nonce")
		if err := s.verifier.Verify(sig, ts, nonce, body); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
	}

	var events []collector.IngestEvent
	if err := json.Unmarshal(body, &events); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	tenant := tenantOf(c)
	for _, e := range events {
		s.sdk.Ingest(c.Request.Context(), tenant, e)
	}
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(events)})
}

func (s *Server) handleListAlerts(c *gin.Context) {
	includeResolved := c.Query("include_resolved") == "true"
	c.JSON(http.StatusOK, s.alerts.GetActiveAlerts(includeResolved))
}

type ackRequest struct {
	DedupKey       string     `json:"dedup_key" binding:"required"`
	By             string     `json:"by"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

func (s *Server) handleAckAlert(c *gin.Context) {
	var req ackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.alerts.Acknowledge(c.Request.Context(), tenantOf(c), req.DedupKey, req.By, req.ExpiresAt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnackAlert(c *gin.Context) {
	var req struct {
		DedupKey string `json:"dedup_key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.alerts.Unacknowledge(c.Request.Context(), tenantOf(c), req.DedupKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if err := s.alerts.Resolve(c.Request.Context(), tenantOf(c), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMuteRule(c *gin.Context) {
	ruleID := c.Param("id")
	var req struct {
		ExpiresAt time.Time `json:"expires_at" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.alerts.Mute(c.Request.Context(), tenantOf(c), ruleID, req.ExpiresAt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleUnmuteRule(c *gin.Context) {
	ruleID := c.Param("id")
	if err := s.alerts.Unmute(c.Request.Context(), tenantOf(c), ruleID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type proposeActionRequest struct {
	Description string   `json:"description"`
	Command     []string `json:"command" binding:"required"`
}

func (s *Server) handleProposeAction(c *gin.Context) {
	var req proposeActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	outcome := s.actions.ProposeAction(c.Request.Context(), tenantOf(c), req.Description, req.Command)
	c.JSON(http.StatusOK, outcome)
}
