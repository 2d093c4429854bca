// Package action implements the Action Engine's propose→approve→execute→
// audit state machine (spec.md §4.9), built on top of pkg/sandbox's
// blocklist/risk classifier.
//
// Grounded on rcourtman-Pulse's internal/agentexec/server.go
// (pendingReqs map[string]chan CommandResultPayload — the exact
// single-shot-channel-keyed-by-request-id shape spec.md §9 calls for)
// combined with tarsy's WorkerPool.activeSessions locking discipline:
// mutate the pending map only under the engine's own lock.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/sandbox"
)

// ApprovalTimeout is how long a HIGH/MEDIUM/LOW/CRITICAL-but-allowed action
// waits for a user response before resolving as timed out, per spec.md §4.9.
const ApprovalTimeout = 300 * time.Second

// DefaultExecTimeout bounds how long Execute waits for the spawned process.
const DefaultExecTimeout = 60 * time.Second

// Broadcaster is the narrow capability the engine uses to notify clients of
// state transitions (spec.md §6: action_request/action_executing/
// action_complete). Implementations must not block for long.
type Broadcaster interface {
	ActionRequested(actionID string, pending argusmodel.PendingAction)
	ActionExecuting(actionID string, command []string)
	ActionComplete(actionID string, result sandbox.ExecResult)
}

// AuditSink is the narrow capability used to append audit records.
type AuditSink interface {
	AppendAudit(ctx context.Context, tenant string, rec argusmodel.AuditRecord) error
}

// Outcome is the final disposition of a ProposeAction call.
type Outcome struct {
	ActionID   string
	Approved   bool
	Executed   bool
	Result     sandbox.ExecResult
	Error      string
}

// pendingEntry is the engine-internal bookkeeping for one awaiting action,
// guarded entirely by Engine.mu so a timeout goroutine and a late
// HandleResponse call can never both "win" (spec.md §9 Open Question).
type pendingEntry struct {
	pending  argusmodel.PendingAction
	response chan approvalResponse
	resolved bool
}

type approvalResponse struct {
	approved bool
	by       string
}

// Engine runs the propose/validate/approve/execute/audit state machine.
// Many pending actions may be in flight concurrently, each keyed by its
// own action id with its own single-shot response channel.
type Engine struct {
	broadcaster Broadcaster
	audit       AuditSink
	execTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEntry
}

// New creates an Engine. broadcaster and audit may be nil in tests that
// don't care about side channels.
func New(broadcaster Broadcaster, audit AuditSink) *Engine {
	return &Engine{
		broadcaster: broadcaster,
		audit:       audit,
		execTimeout: DefaultExecTimeout,
		pending:     make(map[string]*pendingEntry),
	}
}

// SetBroadcaster binds the broadcaster after construction, for the common
// wiring-root case where the Action Engine and the WebSocket connection
// manager each need a reference to the other (spec.md §9 "cyclic
// dependencies"): build the engine with a nil broadcaster, build the
// manager around the engine as its ActionResponder, then bind it back here.
func (e *Engine) SetBroadcaster(broadcaster Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = broadcaster
}

// ProposeAction validates cmd, auto-executes READ_ONLY-risk allowed
// commands, blocks categorically-disallowed commands, and otherwise
// broadcasts an approval request and waits (up to ApprovalTimeout) for
// HandleResponse.
func (e *Engine) ProposeAction(ctx context.Context, tenant, description string, cmd []string) Outcome {
	actionID := uuid.NewString()
	v := sandbox.Validate(cmd)

	if !v.Allowed {
		e.auditRecord(ctx, tenant, actionID, cmd, false, false, "blocked by sandbox")
		return Outcome{ActionID: actionID, Approved: false, Executed: false, Error: "blocked by safety filter"}
	}

	pending := argusmodel.PendingAction{
		ActionID:    actionID,
		Command:     cmd,
		Risk:        v.Risk,
		Description: description,
		ProposedAt:  time.Now(),
	}

	if v.Risk == argusmodel.RiskReadOnly {
		result := e.execute(ctx, actionID, cmd)
		success := result.ExitCode == 0
		e.auditRecord(ctx, tenant, actionID, cmd, success, true, excerpt(result))
		return Outcome{ActionID: actionID, Approved: true, Executed: true, Result: result}
	}

	entry := &pendingEntry{pending: pending, response: make(chan approvalResponse, 1)}
	e.mu.Lock()
	e.pending[actionID] = entry
	e.mu.Unlock()

	if e.broadcaster != nil {
		e.broadcaster.ActionRequested(actionID, pending)
	}

	var resp approvalResponse
	select {
	case resp = <-entry.response:

	case <-time.After(ApprovalTimeout):
		e.mu.Lock()
		answered := entry.resolved
		if !answered {
			entry.resolved = true
			delete(e.pending, actionID)
		}
		e.mu.Unlock()
		if !answered {
			e.auditRecord(ctx, tenant, actionID, cmd, false, false, "timed out")
			return Outcome{ActionID: actionID, Approved: false, Executed: false, Error: "timed out"}
		}
		// HandleResponse took the lock first; its answer stands.
		resp = <-entry.response

	case <-ctx.Done():
		e.mu.Lock()
		delete(e.pending, actionID)
		e.mu.Unlock()
		return Outcome{ActionID: actionID, Approved: false, Executed: false, Error: ctx.Err().Error()}
	}

	if !resp.approved {
		e.auditRecord(ctx, tenant, actionID, cmd, false, false, "rejected by user")
		return Outcome{ActionID: actionID, Approved: false, Executed: false, Error: "rejected"}
	}
	result := e.execute(ctx, actionID, cmd)
	success := result.ExitCode == 0
	e.auditRecord(ctx, tenant, actionID, cmd, success, true, excerpt(result))
	return Outcome{ActionID: actionID, Approved: true, Executed: true, Result: result}
}

// HandleResponse resolves a pending action's wait. Unknown or already-
// resolved ids are logged and ignored (return false) — the WS layer is
// deliberately tolerant of stale ids per spec.md §9, not merely by
// coincidence: both this function and the approval-timeout path above
// mutate e.pending only while holding e.mu.
func (e *Engine) HandleResponse(actionID string, approved bool, user string) bool {
	e.mu.Lock()
	entry, ok := e.pending[actionID]
	if !ok || entry.resolved {
		e.mu.Unlock()
		if !ok {
			slog.Warn("action engine: response for unknown action id", "action_id", actionID)
		}
		return false
	}
	entry.resolved = true
	delete(e.pending, actionID)
	e.mu.Unlock()

	entry.response <- approvalResponse{approved: approved, by: user}
	return true
}

func (e *Engine) execute(ctx context.Context, actionID string, cmd []string) sandbox.ExecResult {
	if e.broadcaster != nil {
		e.broadcaster.ActionExecuting(actionID, cmd)
	}
	result := sandbox.Execute(ctx, cmd, e.execTimeout)
	if e.broadcaster != nil {
		e.broadcaster.ActionComplete(actionID, result)
	}
	return result
}

func (e *Engine) auditRecord(ctx context.Context, tenant, actionID string, cmd []string, success, userApproved bool, excerpt string) {
	rec := argusmodel.AuditRecord{
		Timestamp:     time.Now(),
		Action:        actionID,
		CommandString: fmt.Sprint(cmd),
		ResultExcerpt: excerpt,
		Success:       success,
		UserApproved:  userApproved,
		Tenant:        tenant,
	}
	if e.audit == nil {
		return
	}
	if err := e.audit.AppendAudit(ctx, tenant, rec); err != nil {
		slog.Error("action engine: audit append failed", "action_id", actionID, "error", err)
	}
}

func excerpt(r sandbox.ExecResult) string {
	if r.ExitCode != 0 {
		if r.Stderr != "" {
			return r.Stderr
		}
		return fmt.Sprintf("exit code %d", r.ExitCode)
	}
	return r.Stdout
}
