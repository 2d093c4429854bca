package api

import (
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/react"
	"github.com/codeready-toolchain/argus/pkg/sandbox"
)

// Server-to-client WebSocket message type discriminators (spec.md §6).
const (
	MsgConnected           = "connected"
	MsgSystemStatus        = "system_status"
	MsgPong                = "pong"
	MsgThinkingStart       = "thinking_start"
	MsgThinkingEnd         = "thinking_end"
	MsgAssistantDelta      = "assistant_message_delta"
	MsgToolCall            = "tool_call"
	MsgToolResult          = "tool_result"
	MsgActionRequest       = "action_request"
	MsgActionExecuting     = "action_executing"
	MsgActionComplete      = "action_complete"
	MsgAlert               = "alert"
	MsgInvestigationStart  = "investigation_start"
	MsgInvestigationUpdate = "investigation_update"
	MsgInvestigationEnd    = "investigation_end"
	MsgBudgetUpdate        = "budget_update"
	MsgError               = "error"
)

// Client-to-server message actions (spec.md §6).
const (
	ActionUserMessage   = "user_message"
	ActionActionResponse = "action_response"
	ActionCancel        = "cancel"
	ActionPing          = "ping"
)

// ClientMessage is the envelope for every inbound WebSocket frame.
type ClientMessage struct {
	Action          string `json:"action"`
	Content         string `json:"content,omitempty"`
	ActionID        string `json:"action_id,omitempty"`
	Approved        bool   `json:"approved,omitempty"`
	InvestigationID string `json:"investigation_id,omitempty"`
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func connectedMsg(connectionID string) map[string]any {
	return map[string]any{"type": MsgConnected, "connection_id": connectionID, "timestamp": nowRFC3339()}
}

func pongMsg() map[string]any {
	return map[string]any{"type": MsgPong, "timestamp": nowRFC3339()}
}

func errorMsg(message string) map[string]any {
	return map[string]any{"type": MsgError, "message": message, "timestamp": nowRFC3339()}
}

func thinkingStartMsg(investigationID string) map[string]any {
	return map[string]any{"type": MsgThinkingStart, "investigation_id": investigationID, "timestamp": nowRFC3339()}
}

func thinkingEndMsg(investigationID string) map[string]any {
	return map[string]any{"type": MsgThinkingEnd, "investigation_id": investigationID, "timestamp": nowRFC3339()}
}

func assistantDeltaMsg(investigationID, content string) map[string]any {
	return map[string]any{
		"type": MsgAssistantDelta, "investigation_id": investigationID,
		"content": content, "timestamp": nowRFC3339(),
	}
}

func toolCallMsg(investigationID, toolCallID, toolName string, args, displayType string) map[string]any {
	return map[string]any{
		"type": MsgToolCall, "investigation_id": investigationID,
		"tool_call_id": toolCallID, "tool_name": toolName, "arguments": args,
		"display_type": displayType, "timestamp": nowRFC3339(),
	}
}

func toolResultMsg(investigationID, toolCallID, result, displayType string) map[string]any {
	return map[string]any{
		"type": MsgToolResult, "investigation_id": investigationID,
		"tool_call_id": toolCallID, "result": result, "display_type": displayType,
		"timestamp": nowRFC3339(),
	}
}

func investigationStartMsg(investigationID, trigger string, severity argusmodel.Severity) map[string]any {
	return map[string]any{
		"type": MsgInvestigationStart, "investigation_id": investigationID,
		"trigger": trigger, "severity": string(severity), "timestamp": nowRFC3339(),
	}
}

func investigationUpdateMsg(investigationID, content string) map[string]any {
	return map[string]any{
		"type": MsgInvestigationUpdate, "investigation_id": investigationID,
		"content": content, "timestamp": nowRFC3339(),
	}
}

func investigationEndMsg(investigationID, summary string, tokensUsed int) map[string]any {
	return map[string]any{
		"type": MsgInvestigationEnd, "investigation_id": investigationID,
		"summary": summary, "tokens_used": tokensUsed, "timestamp": nowRFC3339(),
	}
}

func actionRequestMsg(actionID string, pending argusmodel.PendingAction) map[string]any {
	return map[string]any{
		"type": MsgActionRequest, "action_id": actionID, "command": pending.Command,
		"risk": string(pending.Risk), "description": pending.Description, "timestamp": nowRFC3339(),
	}
}

func actionExecutingMsg(actionID string, command []string) map[string]any {
	return map[string]any{
		"type": MsgActionExecuting, "action_id": actionID, "command": command, "timestamp": nowRFC3339(),
	}
}

func actionCompleteMsg(actionID string, result sandbox.ExecResult) map[string]any {
	return map[string]any{
		"type": MsgActionComplete, "action_id": actionID,
		"exit_code": result.ExitCode, "stdout": result.Stdout, "stderr": result.Stderr,
		"duration_ms": result.DurationMS, "timestamp": nowRFC3339(),
	}
}

func alertMsg(a argusmodel.ActiveAlert) map[string]any {
	return map[string]any{
		"type": MsgAlert, "alert_id": a.ID, "rule_id": a.RuleID, "rule_name": a.RuleName,
		"severity": string(a.Severity), "event_type": a.Event.Type, "message": a.Event.Message,
		"dedup_key": a.DedupKey, "timestamp": nowRFC3339(),
	}
}

func budgetUpdateMsg(usedDaily, usedHourly, dailyLimit, hourlyLimit int) map[string]any {
	return map[string]any{
		"type": MsgBudgetUpdate, "used_daily": usedDaily, "used_hourly": usedHourly,
		"daily_limit": dailyLimit, "hourly_limit": hourlyLimit, "timestamp": nowRFC3339(),
	}
}

func systemStatusMsg(status string) map[string]any {
	return map[string]any{"type": MsgSystemStatus, "status": status, "timestamp": nowRFC3339()}
}

// reactEventMessage maps a react.Event onto the corresponding WS message, or
// nil if the event kind has no client-visible representation.
func reactEventMessage(investigationID string, e react.Event) map[string]any {
	switch e.Kind {
	case react.EventThinkingStart:
		return thinkingStartMsg(investigationID)
	case react.EventThinkingEnd:
		return thinkingEndMsg(investigationID)
	case react.EventAssistantDelta:
		return assistantDeltaMsg(investigationID, e.Content)
	case react.EventToolCall:
		return toolCallMsg(investigationID, e.ToolCallID, e.ToolName, string(e.ToolArgs), e.DisplayType)
	case react.EventToolResult:
		return toolResultMsg(investigationID, e.ToolCallID, e.ToolResult, e.DisplayType)
	default:
		return nil
	}
}
