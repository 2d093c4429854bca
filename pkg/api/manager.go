package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codeready-toolchain/argus/pkg/action"
	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/investigator"
	"github.com/codeready-toolchain/argus/pkg/react"
	"github.com/codeready-toolchain/argus/pkg/sandbox"
)

// writeTimeout bounds how long a single WebSocket send may take before the
// ConnectionManager gives up on that client, grounded on tarsy's
// ConnectionManager.writeTimeout (pkg/events/manager.go).
const writeTimeout = 5 * time.Second

// ActionResponder is the narrow capability the manager uses to resolve a
// pending action when a client answers an action_request.
type ActionResponder interface {
	HandleResponse(actionID string, approved bool, user string) bool
}

// FollowupHandler is the narrow capability the manager uses to route a
// client's user_message into a completed investigation's conversation
// (spec.md SUPPLEMENTED FEATURES item 3).
type FollowupHandler interface {
	Followup(ctx context.Context, investigationID, content string) error
}

// connection is a single registered WebSocket client. Writes are
// serialized through send, the only goroutine allowed to touch conn.
type connection struct {
	id   string
	conn *websocket.Conn
	send chan any
	done chan struct{}
}

// ConnectionManager fans out server-to-client messages to every connected
// WebSocket client and dispatches inbound client actions. Grounded on
// tarsy's pkg/events.ConnectionManager (registration map + broadcast-under-
// snapshot-then-release-lock pattern), adapted from channel-scoped
// broadcast to Argus's single-tenant-per-process broadcast-to-all model,
// and from `coder/websocket` to `gorilla/websocket` (the pack's available
// implementation of the same job, already used this way in
// rcourtman-Pulse's internal/agentexec/server.go).
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*connection

	actions  ActionResponder
	followup FollowupHandler
}

// NewConnectionManager creates a manager. actions may be nil in tests that
// don't exercise action_response handling.
func NewConnectionManager(actions ActionResponder) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*connection),
		actions:     actions,
	}
}

// SetFollowupHandler binds the investigation follow-up handler after
// construction, mirroring action.Engine.SetBroadcaster: the wiring root
// builds the Investigator after the ConnectionManager (the Investigator
// needs the manager as its Broadcaster), so the handler is bound back here
// once it exists.
func (m *ConnectionManager) SetFollowupHandler(h FollowupHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followup = h
}

// HandleConnection drives one upgraded WebSocket connection until it
// closes. Blocks the caller.
func (m *ConnectionManager) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	c := &connection{id: uuid.NewString(), conn: conn, send: make(chan any, 64), done: make(chan struct{})}

	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.connections, c.id)
		m.mu.Unlock()
		close(c.done)
		conn.Close()
	}()

	go m.writeLoop(c)

	c.send <- connectedMsg(c.id)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.send <- errorMsg("invalid message")
			continue
		}
		m.handleClientMessage(ctx, c, msg)
	}
}

func (m *ConnectionManager) writeLoop(c *connection) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Warn("api: websocket write failed", "connection_id", c.id, "error", err)
				return
			}
		}
	}
}

func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *connection, msg ClientMessage) {
	switch msg.Action {
	case ActionPing:
		c.send <- pongMsg()
	case ActionActionResponse:
		if m.actions == nil {
			return
		}
		if !m.actions.HandleResponse(msg.ActionID, msg.Approved, c.id) {
			c.send <- errorMsg("unknown or already-resolved action id")
		}
	case ActionUserMessage:
		m.mu.RLock()
		handler := m.followup
		m.mu.RUnlock()
		if handler == nil || msg.InvestigationID == "" || msg.Content == "" {
			return
		}
		// Runs off the read loop: a follow-up round drives a full LLM
		// stream and must not stall delivery of subsequent client messages.
		go func() {
			if err := handler.Followup(ctx, msg.InvestigationID, msg.Content); err != nil {
				c.send <- errorMsg("followup failed: " + err.Error())
			}
		}()
	case ActionCancel:
		// Accepted per spec.md §6's client message contract; cancelling an
		// in-flight investigation mid-round is out of scope (spec.md §1
		// Non-goals: no chat UI), so it is acknowledged and dropped.
	default:
		c.send <- errorMsg("unrecognized action")
	}
}

// broadcast sends msg to every currently connected client, dropping it for
// any client whose send queue is full rather than blocking the publisher.
func (m *ConnectionManager) broadcast(msg any) {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- msg:
		default:
			slog.Warn("api: connection send queue full, dropping message", "connection_id", c.id)
		}
	}
}

// ActiveConnections returns the number of currently connected clients.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// The following methods implement investigator.Broadcaster.

func (m *ConnectionManager) InvestigationStart(investigationID, trigger string, severity argusmodel.Severity) {
	m.broadcast(investigationStartMsg(investigationID, trigger, severity))
}

func (m *ConnectionManager) InvestigationUpdate(investigationID, content string) {
	m.broadcast(investigationUpdateMsg(investigationID, content))
}

func (m *ConnectionManager) InvestigationEnd(investigationID, summary string, tokensUsed int) {
	m.broadcast(investigationEndMsg(investigationID, summary, tokensUsed))
}

func (m *ConnectionManager) ReactEvent(investigationID string, e react.Event) {
	if msg := reactEventMessage(investigationID, e); msg != nil {
		m.broadcast(msg)
	}
}

// The following methods implement action.Broadcaster.

func (m *ConnectionManager) ActionRequested(actionID string, pending argusmodel.PendingAction) {
	m.broadcast(actionRequestMsg(actionID, pending))
}

func (m *ConnectionManager) ActionExecuting(actionID string, command []string) {
	m.broadcast(actionExecutingMsg(actionID, command))
}

func (m *ConnectionManager) ActionComplete(actionID string, result sandbox.ExecResult) {
	m.broadcast(actionCompleteMsg(actionID, result))
}

// DeliverAlert broadcasts a fired alert to every connected client. The
// wiring in cmd/argus does not register it with the Alert Engine, whose
// only deliverer there is the Alert Formatter.
func (m *ConnectionManager) DeliverAlert(a argusmodel.ActiveAlert) {
	m.broadcast(alertMsg(a))
}

// BroadcastBudget broadcasts a budget_update snapshot. Nothing in cmd/argus
// calls it.
func (m *ConnectionManager) BroadcastBudget(usedDaily, usedHourly, dailyLimit, hourlyLimit int) {
	m.broadcast(budgetUpdateMsg(usedDaily, usedHourly, dailyLimit, hourlyLimit))
}

// BroadcastSystemStatus broadcasts a system_status message.
func (m *ConnectionManager) BroadcastSystemStatus(status string) {
	m.broadcast(systemStatusMsg(status))
}

var (
	_ action.Broadcaster       = (*ConnectionManager)(nil)
	_ investigator.Broadcaster = (*ConnectionManager)(nil)
)
