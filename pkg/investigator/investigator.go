// Package investigator implements the bounded-queue, worker-pool AI
// investigation pipeline (spec.md §4.7): admission by token budget and
// queue capacity, a fixed worker pool running the ReAct loop per request,
// scheduled periodic_review/daily_digest variants, and conversation
// follow-up against a completed investigation.
//
// Grounded on tarsy's pkg/queue/pool.go + worker.go (WorkerPool/Worker
// split, session-cancel registry via map[string]context.CancelFunc,
// graceful Stop() draining in-flight work; chat_executor.go for the
// Followup one-more-round shape), generalized to golang.org/x/sync's
// semaphore.Weighted for bounded-queue admission and errgroup.Group for
// coordinated worker shutdown in place of tarsy's hand-rolled channel and
// sync.WaitGroup pairing.
package investigator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/llm"
	"github.com/codeready-toolchain/argus/pkg/react"
	"github.com/codeready-toolchain/argus/pkg/store"
	"github.com/codeready-toolchain/argus/pkg/tool"
)

// QueueCapacity is the fixed maximum number of queued-but-not-yet-running
// investigation requests, per spec.md §4.7.
const QueueCapacity = 32

// WorkerCount is the fixed worker pool size, per spec.md §4.7.
const WorkerCount = 2

// estimatedTokens is the admission-check estimate used before a real
// token count is known (spec.md §4.7: "estimated=4000").
const estimatedTokens = 4000

// PeriodicReviewInterval and DailyDigestInterval drive the two scheduled
// variants (spec.md §4.7).
const (
	PeriodicReviewInterval = 6 * time.Hour
	DailyDigestInterval    = 24 * time.Hour
)

// Broadcaster forwards ReAct/investigation lifecycle events to the
// WebSocket layer (spec.md §6). Implementations must not block.
type Broadcaster interface {
	InvestigationStart(investigationID, trigger string, severity argusmodel.Severity)
	InvestigationUpdate(investigationID, content string)
	InvestigationEnd(investigationID, summary string, tokensUsed int)
	ReactEvent(investigationID string, e react.Event)
}

// ReportSink forwards a finished investigation's summary for external
// delivery (normally the Alert Formatter), per spec.md §4.7 step 5.
// Best-effort: failures are logged, never surfaced.
type ReportSink interface {
	DeliverInvestigationReport(tenant, investigationID, summary string, severity argusmodel.Severity)
}

// MaxRetainedConversations bounds the completed-investigation memory
// retained for Followup (spec.md SUPPLEMENTED FEATURES item 3): the oldest
// entry is evicted once a new completion would exceed this, so a long-
// running process can't grow the retained set without bound.
const MaxRetainedConversations = 256

// conversation is the retained state of a completed investigation that a
// Followup call can resume.
type conversation struct {
	memory       *react.Memory
	systemPrompt string
	tenant       string
	severity     argusmodel.Severity
	completedAt  time.Time
}

// Investigator is the bounded queue + worker pool described by spec.md §4.7.
type Investigator struct {
	provider    llm.Provider
	tools       *tool.Registry
	budget      *argusmodel.TokenBudget
	operational store.OperationalRepository
	broadcaster Broadcaster
	reportSink  ReportSink // may be nil

	queue  chan argusmodel.InvestigationRequest
	stopCh chan struct{}
	sem    *semaphore.Weighted
	group  errgroup.Group

	mu        sync.Mutex
	running   map[string]context.CancelFunc
	completed map[string]*conversation
	order     []string // completion order, for MaxRetainedConversations eviction
}

// New creates an Investigator. broadcaster/reportSink may be nil.
func New(
	provider llm.Provider,
	tools *tool.Registry,
	budget *argusmodel.TokenBudget,
	operational store.OperationalRepository,
	broadcaster Broadcaster,
	reportSink ReportSink,
) *Investigator {
	return &Investigator{
		provider:    provider,
		tools:       tools,
		budget:      budget,
		operational: operational,
		broadcaster: broadcaster,
		reportSink:  reportSink,
		queue:       make(chan argusmodel.InvestigationRequest, QueueCapacity),
		stopCh:      make(chan struct{}),
		sem:         semaphore.NewWeighted(int64(QueueCapacity)),
		running:     make(map[string]context.CancelFunc),
		completed:   make(map[string]*conversation),
	}
}

// Start spawns the fixed worker pool on an errgroup.Group, so Stop can wait
// on coordinated shutdown of every worker with a single call.
func (inv *Investigator) Start(ctx context.Context) {
	for i := 0; i < WorkerCount; i++ {
		workerID := i
		inv.group.Go(func() error {
			inv.runWorker(ctx, workerID)
			return nil
		})
	}
}

// Stop cancels all workers; in-flight ReAct loops are cancelled mid-round
// and their partial progress is discarded, per spec.md §5.
func (inv *Investigator) Stop() {
	close(inv.stopCh)
	inv.mu.Lock()
	for _, cancel := range inv.running {
		cancel()
	}
	inv.mu.Unlock()
	_ = inv.group.Wait()
}

// EnqueueInvestigation implements alert.InvestigationEnqueuer. It is
// non-blocking: admission is a budget check followed by a semaphore-gated
// queue-capacity check, either of which can report a drop reason without
// ever blocking the caller.
func (inv *Investigator) EnqueueInvestigation(_ context.Context, req argusmodel.InvestigationRequest) (argusmodel.InvestigationStatus, error) {
	if inv.budget != nil && !inv.budget.CanSpend(estimatedTokens, req.Priority) {
		return argusmodel.InvestigationDroppedBudget, nil
	}

	if !inv.sem.TryAcquire(1) {
		return argusmodel.InvestigationDroppedQueue, nil
	}
	inv.queue <- req
	return argusmodel.InvestigationQueued, nil
}

func (inv *Investigator) runWorker(ctx context.Context, id int) {
	log := slog.With("worker", id)
	log.Info("investigator worker started")

	for {
		select {
		case <-inv.stopCh:
			log.Info("investigator worker stopping")
			return
		case <-ctx.Done():
			return
		case req := <-inv.queue:
			inv.sem.Release(1)

			runCtx, cancel := context.WithCancel(ctx)
			inv.mu.Lock()
			inv.running[req.InvestigationID] = cancel
			inv.mu.Unlock()

			inv.runInvestigation(runCtx, req)

			inv.mu.Lock()
			delete(inv.running, req.InvestigationID)
			inv.mu.Unlock()
			cancel()
		}
	}
}

func (inv *Investigator) runInvestigation(ctx context.Context, req argusmodel.InvestigationRequest) {
	trigger := req.Event.Message
	if inv.broadcaster != nil {
		inv.broadcaster.InvestigationStart(req.InvestigationID, trigger, req.Event.Severity)
	}

	prompt := BuildPrompt(req.Event)
	memory := react.NewMemory()

	onEvent := func(e react.Event) {
		if inv.broadcaster == nil {
			return
		}
		inv.broadcaster.ReactEvent(req.InvestigationID, e)
		if e.Kind == react.EventAssistantDelta {
			inv.broadcaster.InvestigationUpdate(req.InvestigationID, e.Content)
		}
	}

	result, err := react.Run(ctx, inv.provider, inv.tools, memory, prompt, inv.budget, onEvent)

	status := argusmodel.InvestigationCompleted
	summary := result.Summary
	if err != nil {
		status = argusmodel.InvestigationFailed
		summary = "Investigation failed"
		slog.Error("investigator: run failed", "investigation_id", req.InvestigationID, "error", err)
	}

	if status == argusmodel.InvestigationCompleted {
		inv.retainConversation(req.InvestigationID, memory, prompt, req.Event.Tenant, req.Event.Severity)
	}

	if inv.broadcaster != nil {
		inv.broadcaster.InvestigationEnd(req.InvestigationID, summary, result.Usage.Total())
	}

	now := time.Now()
	if inv.operational != nil {
		saveErr := inv.operational.SaveInvestigation(context.Background(), req.Event.Tenant, store.InvestigationRow{
			InvestigationID: req.InvestigationID,
			EventType:       req.Event.Type,
			Priority:        string(req.Priority),
			Status:          string(status),
			Summary:         summary,
			TokensUsed:      result.Usage.Total(),
			StartedAt:       req.EnqueuedAt,
			EndedAt:         &now,
		})
		if saveErr != nil {
			slog.Error("investigator: persist investigation failed", "investigation_id", req.InvestigationID, "error", saveErr)
		}
	}

	if inv.reportSink != nil && status == argusmodel.InvestigationCompleted {
		inv.reportSink.DeliverInvestigationReport(req.Event.Tenant, req.InvestigationID, summary, req.Event.Severity)
	}
}

// retainConversation stores a completed investigation's memory for later
// Followup calls, evicting the oldest retained entry once
// MaxRetainedConversations would otherwise be exceeded.
func (inv *Investigator) retainConversation(investigationID string, memory *react.Memory, systemPrompt, tenant string, severity argusmodel.Severity) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if _, exists := inv.completed[investigationID]; !exists {
		if len(inv.order) >= MaxRetainedConversations {
			oldest := inv.order[0]
			inv.order = inv.order[1:]
			delete(inv.completed, oldest)
		}
		inv.order = append(inv.order, investigationID)
	}
	inv.completed[investigationID] = &conversation{
		memory:       memory,
		systemPrompt: systemPrompt,
		tenant:       tenant,
		severity:     severity,
		completedAt:  time.Now(),
	}
}

// Followup posts one additional user-role message into a completed
// investigation's retained ConversationMemory and runs exactly one more
// ReAct round over it (spec.md SUPPLEMENTED FEATURES item 3), mirroring
// tarsy's chat-follow-up adapted to Argus's investigation domain. It
// returns an error, without broadcasting anything, if the investigation is
// unknown or was never retained, if the budget cannot cover the round, or
// if the round fails; on success it broadcasts InvestigationEnd.
func (inv *Investigator) Followup(ctx context.Context, investigationID, content string) error {
	inv.mu.Lock()
	conv, ok := inv.completed[investigationID]
	inv.mu.Unlock()
	if !ok {
		return fmt.Errorf("investigator: no completed investigation %q to follow up on", investigationID)
	}

	if inv.budget != nil && !inv.budget.CanSpend(estimatedTokens, argusmodel.PriorityNormal) {
		return fmt.Errorf("investigator: AI budget exhausted, cannot run followup")
	}

	conv.memory.Append(llm.Message{Role: llm.RoleUser, Content: content})

	onEvent := func(e react.Event) {
		if inv.broadcaster == nil {
			return
		}
		inv.broadcaster.ReactEvent(investigationID, e)
		if e.Kind == react.EventAssistantDelta {
			inv.broadcaster.InvestigationUpdate(investigationID, e.Content)
		}
	}

	result, err := react.RunRounds(ctx, inv.provider, inv.tools, conv.memory, conv.systemPrompt, inv.budget, onEvent, 1)
	if err != nil {
		slog.Error("investigator: followup failed", "investigation_id", investigationID, "error", err)
		return err
	}

	if inv.broadcaster != nil {
		inv.broadcaster.InvestigationEnd(investigationID, result.Summary, result.Usage.Total())
	}
	return nil
}

// BuildPrompt constructs a focused investigation prompt from the triggering
// event: type, severity, source, message, data, plus domain-specific
// guidance for known event types (spec.md §4.7 step 2).
func BuildPrompt(event argusmodel.Event) string {
	base := fmt.Sprintf(
		"You are investigating an operational event.\nType: %s\nSeverity: %s\nSource: %s\nMessage: %s\nData: %v\n",
		event.Type, event.Severity, event.Source, event.Message, event.Data,
	)
	if guidance, ok := investigationGuidance[event.Type]; ok {
		base += "\n" + guidance
	}
	return base
}

// investigationGuidance carries domain-specific prompt additions for
// well-known event types (spec.md §4.7: "e.g. the traffic-burst
// investigation block with DDoS vs. organic indicators").
var investigationGuidance = map[string]string{
	"sdk_traffic_burst": "Distinguish a DDoS-style burst (many distinct source IPs, " +
		"uniform request shape, no matching deploy/marketing event) from organic " +
		"traffic growth (gradual slope, diverse but plausible request paths, a " +
		"recent deploy or campaign announcement). Check query_deploy_history and " +
		"query_dependency_summary before concluding.",
	"new_open_port": "Check whether the port corresponds to a recently deployed " +
		"service (query_deploy_history) before treating it as suspicious.",
	"sdk_error_spike": "Correlate against query_deploy_history and query_error_groups " +
		"to determine whether a recent deploy introduced the error pattern.",
}

// PeriodicReviewPrompt builds the prompt for the 6-hourly scheduled review.
func PeriodicReviewPrompt() string {
	return "Perform a periodic health review of the monitored services. " +
		"Summarize notable trends since the last review using the available " +
		"query tools. Keep the summary brief."
}

// DailyDigestPrompt builds the prompt for the 24-hourly scheduled digest.
func DailyDigestPrompt() string {
	return "Produce a daily digest of service health, deploys, and open " +
		"alerts for the last 24 hours."
}

// RunScheduled runs a normal-priority, budget-gated investigation outside
// the queue (periodic_review / daily_digest, spec.md §4.7). Skipped
// silently when the budget is insufficient.
func (inv *Investigator) RunScheduled(ctx context.Context, tenant, investigationID, prompt string) {
	if inv.budget != nil && !inv.budget.CanSpend(estimatedTokens, argusmodel.PriorityNormal) {
		slog.Info("investigator: scheduled run skipped, budget insufficient", "investigation_id", investigationID)
		return
	}

	event := argusmodel.Event{
		Source:    argusmodel.SourceScheduler,
		Type:      "scheduled_review",
		Severity:  argusmodel.SeverityNormal,
		Message:   prompt,
		Timestamp: time.Now(),
		Tenant:    tenant,
	}
	inv.runInvestigation(ctx, argusmodel.InvestigationRequest{
		InvestigationID: investigationID,
		Event:           event,
		Priority:        argusmodel.PriorityNormal,
		EnqueuedAt:      time.Now(),
	})
}

// NewInvestigationID generates an id for a scheduled run (the queue path
// assigns its own via the Alert Engine).
func NewInvestigationID() string {
	return uuid.NewString()
}
