package tool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/action"
	"github.com/codeready-toolchain/argus/pkg/store"
)

func TestRegisterQueryTools_QueryFunctionMetricsReturnsSeededBucket(t *testing.T) {
	ms := store.NewMemStore()
	require.NoError(t, ms.InsertSpan(context.Background(), store.Span{
		Service: "checkout", Status: "ok", DurationMS: 100, Timestamp: time.Now(),
	}))

	registry := NewRegistry()
	RegisterQueryTools(registry, ms)

	tool, ok := registry.Get("query_function_metrics")
	require.True(t, ok)

	args, _ := json.Marshal(map[string]any{"service": "checkout", "lookback_minutes": 60})
	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "json", result.DisplayType)

	var buckets []store.Bucket
	require.NoError(t, json.Unmarshal([]byte(result.Content), &buckets))
	require.Len(t, buckets, 1)
	assert.Equal(t, 1, buckets[0].InvocationCount)
}

func TestRegisterQueryTools_QueryTraceReturnsMatchingSpans(t *testing.T) {
	ms := store.NewMemStore()
	require.NoError(t, ms.InsertSpan(context.Background(), store.Span{
		TraceID: "trace-1", SpanID: "span-1", Service: "checkout", Timestamp: time.Now(),
	}))

	registry := NewRegistry()
	RegisterQueryTools(registry, ms)

	tool, ok := registry.Get("query_trace")
	require.True(t, ok)

	args, _ := json.Marshal(map[string]any{"trace_id": "trace-1"})
	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	require.False(t, result.IsError)

	var spans []store.Span
	require.NoError(t, json.Unmarshal([]byte(result.Content), &spans))
	require.Len(t, spans, 1)
	assert.Equal(t, "span-1", spans[0].SpanID)
}

func TestRegisterQueryTools_QueryTraceMissingArgumentIsNotToolError(t *testing.T) {
	registry := NewRegistry()
	RegisterQueryTools(registry, store.NewMemStore())

	tool, ok := registry.Get("query_trace")
	require.True(t, ok)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestRegisterQueryTools_QueryDeployHistoryHandlesEmptyArgs(t *testing.T) {
	registry := NewRegistry()
	RegisterQueryTools(registry, store.NewMemStore())

	tool, ok := registry.Get("query_deploy_history")
	require.True(t, ok)

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "null", result.Content)
}

type fakeActionProposer struct {
	lastTenant string
	lastDesc   string
	lastCmd    []string
	outcome    action.Outcome
}

func (f *fakeActionProposer) ProposeAction(_ context.Context, tenant, description string, cmd []string) action.Outcome {
	f.lastTenant = tenant
	f.lastDesc = description
	f.lastCmd = cmd
	return f.outcome
}

func TestRegisterActionTool_ForwardsCommandAndTenant(t *testing.T) {
	proposer := &fakeActionProposer{outcome: action.Outcome{ActionID: "act-1", Approved: true, Executed: true}}
	registry := NewRegistry()
	RegisterActionTool(registry, proposer, "acme-corp")

	tool, ok := registry.Get("propose_action")
	require.True(t, ok)

	args, _ := json.Marshal(map[string]any{"description": "check disk", "command": []string{"df", "-h"}})
	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "acme-corp", proposer.lastTenant)
	assert.Equal(t, "check disk", proposer.lastDesc)
	assert.Equal(t, []string{"df", "-h"}, proposer.lastCmd)

	var outcome action.Outcome
	require.NoError(t, json.Unmarshal([]byte(result.Content), &outcome))
	assert.Equal(t, "act-1", outcome.ActionID)
}

func TestRegisterActionTool_RejectsEmptyCommand(t *testing.T) {
	proposer := &fakeActionProposer{}
	registry := NewRegistry()
	RegisterActionTool(registry, proposer, "acme-corp")

	tool, ok := registry.Get("propose_action")
	require.True(t, ok)

	args, _ := json.Marshal(map[string]any{"description": "no-op"})
	result, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
