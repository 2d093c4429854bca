package alert_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/alert"
	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
	"github.com/codeready-toolchain/argus/pkg/store"
)

type recordingDeliverer struct {
	mu     sync.Mutex
	alerts []argusmodel.ActiveAlert
}

func (d *recordingDeliverer) Deliver(a argusmodel.ActiveAlert) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, a)
}

func (d *recordingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.alerts)
}

type recordingEnqueuer struct {
	mu       sync.Mutex
	requests []argusmodel.InvestigationRequest
}

func (e *recordingEnqueuer) EnqueueInvestigation(_ context.Context, req argusmodel.InvestigationRequest) (argusmodel.InvestigationStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	return argusmodel.InvestigationQueued, nil
}

func (e *recordingEnqueuer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.requests)
}

func cpuRule() *argusmodel.AlertRule {
	return &argusmodel.AlertRule{
		ID: "rule-cpu", Name: "CPU Critical",
		EventTypes:      map[string]struct{}{"cpu_high": {}},
		MinSeverity:     argusmodel.SeverityNotable,
		CooldownSeconds: 300,
		AutoInvestigate: true,
	}
}

func cpuEvent() argusmodel.Event {
	return argusmodel.Event{
		Source: argusmodel.SourceSystemMetrics, Type: "cpu_high", Severity: argusmodel.SeverityUrgent,
		Message: "cpu at 98%", Timestamp: time.Now(), Tenant: "tenant-a",
	}
}

// waitFor polls until cond is true or the timeout elapses, to avoid a sleep
// racing the bus's per-subscriber delivery goroutine.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEngine_CPUUrgentAutoInvestigates(t *testing.T) {
	ms := store.NewMemStore()
	deliverer := &recordingDeliverer{}
	enqueuer := &recordingEnqueuer{}
	engine := alert.New([]*argusmodel.AlertRule{cpuRule()}, ms, deliverer, enqueuer)

	b := bus.New(1024)
	engine.Start(b)
	defer engine.Stop()

	b.Publish(cpuEvent())

	waitFor(t, func() bool { return deliverer.count() == 1 })
	waitFor(t, func() bool { return enqueuer.count() == 1 })
	require.Equal(t, argusmodel.PriorityUrgent, enqueuer.requests[0].Priority)
}

func TestEngine_CooldownDedup(t *testing.T) {
	ms := store.NewMemStore()
	deliverer := &recordingDeliverer{}
	engine := alert.New([]*argusmodel.AlertRule{cpuRule()}, ms, deliverer, nil)

	b := bus.New(1024)
	engine.Start(b)
	defer engine.Stop()

	b.Publish(cpuEvent())
	waitFor(t, func() bool { return deliverer.count() == 1 })

	b.Publish(cpuEvent())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, deliverer.count(), "second publish within cooldown must not fire again")
}

func TestEngine_AcknowledgeSuppressesFires(t *testing.T) {
	ms := store.NewMemStore()
	deliverer := &recordingDeliverer{}
	rule := cpuRule()
	rule.CooldownSeconds = 0
	engine := alert.New([]*argusmodel.AlertRule{rule}, ms, deliverer, nil)

	dedupKey := alert.DedupKey(cpuEvent(), rule.ID)
	require.NoError(t, engine.Acknowledge(context.Background(), "tenant-a", dedupKey, "alice", nil))

	b := bus.New(1024)
	engine.Start(b)
	defer engine.Stop()

	b.Publish(cpuEvent())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, deliverer.count(), "acknowledged dedup key must suppress alert creation")

	require.NoError(t, engine.Unacknowledge(context.Background(), "tenant-a", dedupKey))
	b.Publish(cpuEvent())
	waitFor(t, func() bool { return deliverer.count() == 1 })
}

func TestEngine_MuteSuppressesEntireRule(t *testing.T) {
	ms := store.NewMemStore()
	deliverer := &recordingDeliverer{}
	rule := cpuRule()
	rule.CooldownSeconds = 0
	engine := alert.New([]*argusmodel.AlertRule{rule}, ms, deliverer, nil)
	require.NoError(t, engine.Mute(context.Background(), "tenant-a", rule.ID, time.Now().Add(time.Hour)))

	b := bus.New(1024)
	engine.Start(b)
	defer engine.Stop()

	b.Publish(cpuEvent())
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, deliverer.count())

	require.NoError(t, engine.Unmute(context.Background(), "tenant-a", rule.ID))
	b.Publish(cpuEvent())
	waitFor(t, func() bool { return deliverer.count() == 1 })
}

func TestEngine_MuteClampedTo168Hours(t *testing.T) {
	ms := store.NewMemStore()
	engine := alert.New([]*argusmodel.AlertRule{cpuRule()}, ms, &recordingDeliverer{}, nil)

	farFuture := time.Now().Add(365 * 24 * time.Hour)
	require.NoError(t, engine.Mute(context.Background(), "tenant-a", "rule-cpu", farFuture))

	mutes, err := ms.LoadMutes(context.Background(), "tenant-a")
	require.NoError(t, err)
	require.True(t, mutes["rule-cpu"].Before(farFuture))
}

func TestEngine_ResolveAndGetActiveAlerts(t *testing.T) {
	ms := store.NewMemStore()
	engine := alert.New([]*argusmodel.AlertRule{cpuRule()}, ms, &recordingDeliverer{}, nil)

	b := bus.New(1024)
	engine.Start(b)
	defer engine.Stop()

	b.Publish(cpuEvent())
	waitFor(t, func() bool { return len(engine.GetActiveAlerts(true)) == 1 })

	alertID := engine.GetActiveAlerts(true)[0].ID
	require.NoError(t, engine.Resolve(context.Background(), "tenant-a", alertID))

	require.Empty(t, engine.GetActiveAlerts(false))
	require.Len(t, engine.GetActiveAlerts(true), 1)
}

func TestEngine_NonMatchingEventIgnored(t *testing.T) {
	ms := store.NewMemStore()
	deliverer := &recordingDeliverer{}
	engine := alert.New([]*argusmodel.AlertRule{cpuRule()}, ms, deliverer, nil)

	b := bus.New(1024)
	engine.Start(b)
	defer engine.Stop()

	b.Publish(argusmodel.Event{
		Source: argusmodel.SourceSystemMetrics, Type: "memory_high", Severity: argusmodel.SeverityUrgent,
		Timestamp: time.Now(),
	})
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, deliverer.count())
}
