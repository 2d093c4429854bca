// Package alert turns classified events into deduplicated, suppressible
// alerts and routes them to delivery and investigation (spec.md §4.5).
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
	"github.com/codeready-toolchain/argus/pkg/store"
)

const maxMuteDuration = 168 * time.Hour

// Deliverer hands a fired alert to external delivery (normally the Alert
// Formatter). Implementations must not block the engine for long.
type Deliverer interface {
	Deliver(alert argusmodel.ActiveAlert)
}

// InvestigationEnqueuer is the narrow capability the engine uses to trigger
// auto-investigation, kept separate from the Investigator implementation
// per spec.md §9's circular-dependency guidance.
type InvestigationEnqueuer interface {
	EnqueueInvestigation(ctx context.Context, req argusmodel.InvestigationRequest) (argusmodel.InvestigationStatus, error)
}

// Engine is the Alert Engine: rule matching, suppression, and delivery
// hand-off. Grounded on tarsy's pkg/agent/controller shape for lifecycle
// (explicit Start subscribing to a bus, constructor-injected collaborators)
// but the rule/suppression state machine itself is argus-native.
type Engine struct {
	operational store.OperationalRepository
	deliverer   Deliverer
	investigator InvestigationEnqueuer // may be nil

	rules []*argusmodel.AlertRule

	mu              sync.Mutex
	activeAlerts    []argusmodel.ActiveAlert
	acknowledged    map[string]*time.Time // dedup_key -> expires_at (nil = permanent)
	muted           map[string]time.Time  // rule_id -> expires_at
	lastFired       map[string]time.Time  // dedup_key -> last fire time

	unsubscribe func()
}

// New creates an Engine with the given static rule set. Call LoadState to
// hydrate suppression state from the store, then Start to subscribe.
func New(rules []*argusmodel.AlertRule, operational store.OperationalRepository, deliverer Deliverer, investigator InvestigationEnqueuer) *Engine {
	return &Engine{
		operational:  operational,
		deliverer:    deliverer,
		investigator: investigator,
		rules:        rules,
		acknowledged: map[string]*time.Time{},
		muted:        map[string]time.Time{},
		lastFired:    map[string]time.Time{},
	}
}

// LoadState hydrates acknowledged/muted maps from the store. Call once
// before Start.
func (e *Engine) LoadState(ctx context.Context, tenant string) error {
	acks, err := e.operational.LoadAcknowledgments(ctx, tenant)
	if err != nil {
		return fmt.Errorf("load acknowledgments: %w", err)
	}
	mutes, err := e.operational.LoadMutes(ctx, tenant)
	if err != nil {
		return fmt.Errorf("load mutes: %w", err)
	}
	e.mu.Lock()
	e.acknowledged = acks
	e.muted = mutes
	e.mu.Unlock()
	return nil
}

// Start subscribes to the bus for NOTABLE and URGENT events.
func (e *Engine) Start(b *bus.Bus) {
	e.unsubscribe = b.Subscribe(bus.Filter{
		Severities: map[argusmodel.Severity]struct{}{
			argusmodel.SeverityNotable: {},
			argusmodel.SeverityUrgent:  {},
		},
	}, e.handleEvent)
}

// Stop unsubscribes from the bus.
func (e *Engine) Stop() {
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
}

func (e *Engine) handleEvent(event argusmodel.Event) error {
	now := time.Now()
	for _, rule := range e.rules {
		e.evaluateRule(rule, event, now)
	}
	return nil
}

func (e *Engine) evaluateRule(rule *argusmodel.AlertRule, event argusmodel.Event, now time.Time) {
	e.mu.Lock()

	if expiresAt, muted := e.muted[rule.ID]; muted {
		if now.Before(expiresAt) {
			e.mu.Unlock()
			return
		}
		delete(e.muted, rule.ID)
	}

	if !rule.Matches(event) {
		e.mu.Unlock()
		return
	}

	dedupKey := DedupKey(event, rule.ID)

	if expiresAt, acked := e.acknowledged[dedupKey]; acked {
		if expiresAt == nil || now.Before(*expiresAt) {
			e.mu.Unlock()
			return
		}
		delete(e.acknowledged, dedupKey)
	}

	if lastFired, ok := e.lastFired[dedupKey]; ok {
		if now.Sub(lastFired) < time.Duration(rule.CooldownSeconds)*time.Second {
			e.mu.Unlock()
			return
		}
	}
	e.lastFired[dedupKey] = now

	alert := argusmodel.ActiveAlert{
		ID:        uuid.NewString(),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Event:     event,
		Severity:  event.Severity,
		DedupKey:  dedupKey,
		Timestamp: now,
	}
	e.activeAlerts = append(e.activeAlerts, alert)
	e.mu.Unlock()

	e.persistAlert(alert, event.Tenant)

	if e.deliverer != nil {
		e.deliverer.Deliver(alert)
	}

	if rule.AutoInvestigate && event.Severity == argusmodel.SeverityUrgent && e.investigator != nil {
		e.enqueueInvestigation(event)
	}
}

func (e *Engine) persistAlert(alert argusmodel.ActiveAlert, tenant string) {
	err := e.operational.SaveActiveAlert(context.Background(), tenant, store.ActiveAlertRow{
		ID: alert.ID, RuleID: alert.RuleID, RuleName: alert.RuleName,
		EventType: alert.Event.Type, EventSource: string(alert.Event.Source),
		Severity: string(alert.Severity), DedupKey: alert.DedupKey, Timestamp: alert.Timestamp,
		Resolved: alert.Resolved, AcknowledgedBy: alert.AcknowledgedBy,
	})
	if err != nil {
		slog.Error("alert engine: persist active alert failed", "alert_id", alert.ID, "error", err)
	}
}

func (e *Engine) enqueueInvestigation(event argusmodel.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := e.investigator.EnqueueInvestigation(ctx, argusmodel.InvestigationRequest{
		InvestigationID: uuid.NewString(),
		Event:           event,
		Priority:        argusmodel.PriorityUrgent,
		EnqueuedAt:      time.Now(),
	})
	if err != nil {
		slog.Error("alert engine: auto-investigate enqueue failed", "error", err)
	}
}

// Acknowledge suppresses future fires for dedupKey until expiresAt (nil =
// permanent). It does not resolve or remove already-created alerts.
func (e *Engine) Acknowledge(ctx context.Context, tenant, dedupKey string, by string, expiresAt *time.Time) error {
	e.mu.Lock()
	e.acknowledged[dedupKey] = expiresAt
	for i := range e.activeAlerts {
		if e.activeAlerts[i].DedupKey == dedupKey && e.activeAlerts[i].AcknowledgedBy == "" {
			now := time.Now()
			e.activeAlerts[i].AcknowledgedBy = by
			e.activeAlerts[i].AcknowledgedAt = &now
			e.activeAlerts[i].AcknowledgedExpiresAt = expiresAt
		}
	}
	e.mu.Unlock()

	if err := e.operational.SaveAcknowledgment(ctx, tenant, dedupKey, expiresAt); err != nil {
		slog.Error("alert engine: persist acknowledgment failed", "dedup_key", dedupKey, "error", err)
	}
	return nil
}

// Unacknowledge removes a suppression; round-trips to a no-op per spec.md §8.
func (e *Engine) Unacknowledge(ctx context.Context, tenant, dedupKey string) error {
	e.mu.Lock()
	delete(e.acknowledged, dedupKey)
	e.mu.Unlock()

	if err := e.operational.DeleteAcknowledgment(ctx, tenant, dedupKey); err != nil {
		slog.Error("alert engine: delete acknowledgment failed", "dedup_key", dedupKey, "error", err)
	}
	return nil
}

// Mute suppresses an entire rule until expiresAt, clamped to ≤168h from now.
func (e *Engine) Mute(ctx context.Context, tenant, ruleID string, expiresAt time.Time) error {
	if max := time.Now().Add(maxMuteDuration); expiresAt.After(max) {
		expiresAt = max
	}
	e.mu.Lock()
	e.muted[ruleID] = expiresAt
	e.mu.Unlock()

	if err := e.operational.SaveMute(ctx, tenant, ruleID, expiresAt); err != nil {
		slog.Error("alert engine: persist mute failed", "rule_id", ruleID, "error", err)
	}
	return nil
}

// Unmute removes a rule mute; round-trips to a no-op.
func (e *Engine) Unmute(ctx context.Context, tenant, ruleID string) error {
	e.mu.Lock()
	delete(e.muted, ruleID)
	e.mu.Unlock()

	if err := e.operational.DeleteMute(ctx, tenant, ruleID); err != nil {
		slog.Error("alert engine: delete mute failed", "rule_id", ruleID, "error", err)
	}
	return nil
}

// Resolve marks an active alert resolved by ID.
func (e *Engine) Resolve(ctx context.Context, tenant, alertID string) error {
	e.mu.Lock()
	var resolved argusmodel.ActiveAlert
	found := false
	for i := range e.activeAlerts {
		if e.activeAlerts[i].ID == alertID {
			e.activeAlerts[i].Resolved = true
			resolved = e.activeAlerts[i]
			found = true
			break
		}
	}
	e.mu.Unlock()

	if !found {
		return fmt.Errorf("alert %s not found", alertID)
	}
	e.persistAlert(resolved, tenant)
	return nil
}

// GetActiveAlerts returns a snapshot of active alerts, optionally including
// resolved ones.
func (e *Engine) GetActiveAlerts(includeResolved bool) []argusmodel.ActiveAlert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]argusmodel.ActiveAlert, 0, len(e.activeAlerts))
	for _, a := range e.activeAlerts {
		if !includeResolved && a.Resolved {
			continue
		}
		out = append(out, a)
	}
	return out
}

// GetRules returns the static rule set.
func (e *Engine) GetRules() []*argusmodel.AlertRule {
	return e.rules
}
