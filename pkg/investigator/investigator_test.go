package investigator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/llm"
	"github.com/codeready-toolchain/argus/pkg/react"
	"github.com/codeready-toolchain/argus/pkg/store"
	"github.com/codeready-toolchain/argus/pkg/tool"
)

type recordingBroadcaster struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (b *recordingBroadcaster) InvestigationStart(id, _ string, _ argusmodel.Severity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, id)
}
func (b *recordingBroadcaster) InvestigationUpdate(string, string) {}
func (b *recordingBroadcaster) InvestigationEnd(id, _ string, _ int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = append(b.ended, id)
}
func (b *recordingBroadcaster) ReactEvent(string, react.Event) {}

func newTestEvent(severity argusmodel.Severity) argusmodel.Event {
	return argusmodel.Event{
		Source:    argusmodel.SourceSystemMetrics,
		Type:      "cpu_high",
		Severity:  severity,
		Message:   "CPU at 98%",
		Timestamp: time.Now(),
		Tenant:    "t1",
	}
}

func TestEnqueueInvestigation_BudgetExhaustedDrops(t *testing.T) {
	budget := argusmodel.NewTokenBudget(100, 100, 0, nil)
	inv := New(llm.NewStubProvider(), tool.NewRegistry(), budget, store.NewMemStore(), nil, nil)

	status, err := inv.EnqueueInvestigation(context.Background(), argusmodel.InvestigationRequest{
		InvestigationID: "inv-1",
		Event:           newTestEvent(argusmodel.SeverityUrgent),
		Priority:        argusmodel.PriorityUrgent,
		EnqueuedAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, argusmodel.InvestigationDroppedBudget, status)
}

func TestEnqueueInvestigation_QueueFullDrops(t *testing.T) {
	budget := argusmodel.NewTokenBudget(1_000_000, 1_000_000, 0, nil)
	inv := New(llm.NewStubProvider(), tool.NewRegistry(), budget, store.NewMemStore(), nil, nil)

	for i := 0; i < QueueCapacity; i++ {
		status, err := inv.EnqueueInvestigation(context.Background(), argusmodel.InvestigationRequest{
			InvestigationID: "inv",
			Event:           newTestEvent(argusmodel.SeverityUrgent),
			Priority:        argusmodel.PriorityUrgent,
			EnqueuedAt:      time.Now(),
		})
		require.NoError(t, err)
		require.Equal(t, argusmodel.InvestigationQueued, status)
	}

	status, err := inv.EnqueueInvestigation(context.Background(), argusmodel.InvestigationRequest{
		InvestigationID: "overflow",
		Event:           newTestEvent(argusmodel.SeverityUrgent),
		Priority:        argusmodel.PriorityUrgent,
		EnqueuedAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, argusmodel.InvestigationDroppedQueue, status)
}

func TestWorker_RunsQueuedInvestigationToCompletion(t *testing.T) {
	budget := argusmodel.NewTokenBudget(1_000_000, 1_000_000, 0, nil)
	broadcaster := &recordingBroadcaster{}
	operational := store.NewMemStore()
	provider := llm.NewStubProvider(llm.StubResponse{Content: "nothing to worry about"})

	inv := New(provider, tool.NewRegistry(), budget, operational, broadcaster, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inv.Start(ctx)
	defer inv.Stop()

	status, err := inv.EnqueueInvestigation(ctx, argusmodel.InvestigationRequest{
		InvestigationID: "inv-done",
		Event:           newTestEvent(argusmodel.SeverityUrgent),
		Priority:        argusmodel.PriorityUrgent,
		EnqueuedAt:      time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, argusmodel.InvestigationQueued, status)

	require.Eventually(t, func() bool {
		broadcaster.mu.Lock()
		defer broadcaster.mu.Unlock()
		return len(broadcaster.ended) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFollowup_UnknownInvestigationReturnsError(t *testing.T) {
	budget := argusmodel.NewTokenBudget(1_000_000, 1_000_000, 0, nil)
	inv := New(llm.NewStubProvider(), tool.NewRegistry(), budget, store.NewMemStore(), nil, nil)

	err := inv.Followup(context.Background(), "no-such-investigation", "what about retries?")
	require.Error(t, err)
}

func TestFollowup_RunsOneMoreRoundOverRetainedMemory(t *testing.T) {
	budget := argusmodel.NewTokenBudget(1_000_000, 1_000_000, 0, nil)
	broadcaster := &recordingBroadcaster{}
	operational := store.NewMemStore()
	provider := llm.NewStubProvider(
		llm.StubResponse{Content: "nothing to worry about"},
		llm.StubResponse{Content: "checked the deploy history, still nothing to worry about"},
	)

	inv := New(provider, tool.NewRegistry(), budget, operational, broadcaster, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inv.Start(ctx)
	defer inv.Stop()

	status, err := inv.EnqueueInvestigation(ctx, argusmodel.InvestigationRequest{
		InvestigationID: "inv-followup",
		Event:           newTestEvent(argusmodel.SeverityUrgent),
		Priority:        argusmodel.PriorityUrgent,
		EnqueuedAt:      time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, argusmodel.InvestigationQueued, status)

	require.Eventually(t, func() bool {
		broadcaster.mu.Lock()
		defer broadcaster.mu.Unlock()
		return len(broadcaster.ended) == 1
	}, time.Second, 5*time.Millisecond)

	err = inv.Followup(ctx, "inv-followup", "can you check the deploy history too?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		broadcaster.mu.Lock()
		defer broadcaster.mu.Unlock()
		return len(broadcaster.ended) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBuildPrompt_IncludesGuidanceForKnownType(t *testing.T) {
	event := argusmodel.Event{Type: "sdk_traffic_burst", Message: "burst detected"}
	prompt := BuildPrompt(event)
	assert.Contains(t, prompt, "DDoS")
}
