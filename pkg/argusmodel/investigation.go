package argusmodel

import "time"

// Priority is the urgency tier of an investigation request, used by the
// token budget's priority reserve.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityUrgent Priority = "urgent"
)

// InvestigationStatus is the lifecycle state of an InvestigationRequest.
type InvestigationStatus string

const (
	InvestigationQueued         InvestigationStatus = "QUEUED"
	InvestigationRunning        InvestigationStatus = "RUNNING"
	InvestigationCompleted      InvestigationStatus = "COMPLETED"
	InvestigationFailed         InvestigationStatus = "FAILED"
	InvestigationDroppedBudget  InvestigationStatus = "DROPPED_BUDGET"
	InvestigationDroppedQueue   InvestigationStatus = "DROPPED_QUEUE_FULL"
)

// InvestigationRequest is enqueued by the Alert Engine (auto-investigate
// rules) or the scheduler (periodic review).
type InvestigationRequest struct {
	InvestigationID string
	Event           Event
	Priority        Priority
	EnqueuedAt      time.Time
}

// TokenUsage accumulates prompt/completion token counts across a ReAct run.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// Total returns the sum of prompt and completion tokens.
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}
