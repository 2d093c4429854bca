package action

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/sandbox"
)

type fakeBroadcaster struct {
	mu         sync.Mutex
	requested  []string
	executing  []string
	completed  []string
}

func (f *fakeBroadcaster) ActionRequested(actionID string, _ argusmodel.PendingAction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, actionID)
}
func (f *fakeBroadcaster) ActionExecuting(actionID string, _ []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executing = append(f.executing, actionID)
}
func (f *fakeBroadcaster) ActionComplete(actionID string, _ sandbox.ExecResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, actionID)
}

type fakeAudit struct {
	mu      sync.Mutex
	records []argusmodel.AuditRecord
}

func (f *fakeAudit) AppendAudit(_ context.Context, _ string, rec argusmodel.AuditRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func TestProposeAction_Blocked(t *testing.T) {
	b := &fakeBroadcaster{}
	a := &fakeAudit{}
	e := New(b, a)

	out := e.ProposeAction(context.Background(), "t1", "delete everything", []string{"rm", "-rf", "/"})
	assert.False(t, out.Approved)
	assert.False(t, out.Executed)
	assert.Empty(t, b.requested)
	require.Len(t, a.records, 1)
	assert.False(t, a.records[0].Success)
}

func TestProposeAction_ReadOnlyAutoExecutesWithoutBroadcastRequest(t *testing.T) {
	b := &fakeBroadcaster{}
	a := &fakeAudit{}
	e := New(b, a)

	out := e.ProposeAction(context.Background(), "t1", "list processes", []string{"ps", "aux"})
	assert.True(t, out.Executed)
	assert.Empty(t, b.requested, "READ_ONLY must never broadcast ACTION_REQUEST")
	assert.Len(t, b.executing, 1)
	assert.Len(t, b.completed, 1)
}

func TestProposeAction_ApprovedHighRisk(t *testing.T) {
	b := &fakeBroadcaster{}
	a := &fakeAudit{}
	e := New(b, a)

	var out Outcome
	done := make(chan struct{})
	go func() {
		out = e.ProposeAction(context.Background(), "t1", "kill pid", []string{"kill", "-9", "1234"})
		close(done)
	}()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.requested) == 1
	}, time.Second, time.Millisecond)

	actionID := b.requested[0]
	ok := e.HandleResponse(actionID, true, "admin")
	require.True(t, ok)

	<-done
	assert.True(t, out.Approved)
	assert.True(t, out.Executed)
	require.Len(t, a.records, 1)
	assert.True(t, a.records[0].UserApproved)
}

func TestProposeAction_RejectedHighRisk(t *testing.T) {
	b := &fakeBroadcaster{}
	a := &fakeAudit{}
	e := New(b, a)

	var out Outcome
	done := make(chan struct{})
	go func() {
		out = e.ProposeAction(context.Background(), "t1", "kill pid", []string{"kill", "-9", "1234"})
		close(done)
	}()

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.requested) == 1
	}, time.Second, time.Millisecond)

	e.HandleResponse(b.requested[0], false, "admin")
	<-done
	assert.False(t, out.Approved)
	assert.False(t, out.Executed)
}

func TestHandleResponse_UnknownIDIsTolerated(t *testing.T) {
	e := New(nil, nil)
	assert.False(t, e.HandleResponse("does-not-exist", true, "admin"))
}

func TestHandleResponse_DoubleResponseOnlyResolvesOnce(t *testing.T) {
	b := &fakeBroadcaster{}
	e := New(b, nil)

	go e.ProposeAction(context.Background(), "t1", "kill pid", []string{"kill", "-9", "1234"})

	require.Eventually(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.requested) == 1
	}, time.Second, time.Millisecond)

	id := b.requested[0]
	assert.True(t, e.HandleResponse(id, true, "admin"))
	assert.False(t, e.HandleResponse(id, true, "admin"))
}
