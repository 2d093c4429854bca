package react

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/llm"
	"github.com/codeready-toolchain/argus/pkg/tool"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) ParametersSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"n": map[string]any{"type": "integer"}}}
}
func (echoTool) Execute(_ context.Context, args json.RawMessage) (tool.Result, error) {
	return tool.Result{Content: string(args)}, nil
}

type countingBudget struct {
	calls []argusmodel.TokenUsage
}

func (b *countingBudget) RecordUsage(prompt, completion int) {
	b.calls = append(b.calls, argusmodel.TokenUsage{PromptTokens: prompt, CompletionTokens: completion})
}

func TestRun_FinalizesWithoutToolCalls(t *testing.T) {
	provider := llm.NewStubProvider(llm.StubResponse{Content: "all clear"})
	registry := tool.NewRegistry()
	budget := &countingBudget{}

	var events []Event
	result, err := Run(context.Background(), provider, registry, NewMemory(), "system", budget, func(e Event) {
		events = append(events, e)
	})

	require.NoError(t, err)
	assert.Equal(t, "all clear", result.Summary)
	assert.Equal(t, 1, result.Rounds)
	assert.False(t, result.Exhausted)
	assert.Len(t, budget.calls, 1)

	var sawStart, sawEnd bool
	for _, e := range events {
		if e.Kind == EventThinkingStart {
			sawStart = true
		}
		if e.Kind == EventThinkingEnd {
			sawEnd = true
		}
	}
	assert.True(t, sawStart)
	assert.True(t, sawEnd)
}

func TestRun_DispatchesToolCallThenFinalizes(t *testing.T) {
	provider := llm.NewStubProvider(
		llm.StubResponse{ToolCalls: []llm.ToolCall{{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"n": 3.0}`)}}},
		// After a tool round, up to maxTextOnlyContinuations text-only
		// rounds run before the next one finalizes.
		llm.StubResponse{Content: "checking the result"},
		llm.StubResponse{Content: "still checking"},
		llm.StubResponse{Content: "done"},
	)
	registry := tool.NewRegistry()
	registry.Register(echoTool{})

	var toolResults []string
	result, err := Run(context.Background(), provider, registry, NewMemory(), "system", nil, func(e Event) {
		if e.Kind == EventToolResult {
			toolResults = append(toolResults, e.ToolResult)
		}
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result.Summary)
	require.Len(t, toolResults, 1)
	assert.JSONEq(t, `{"n": 3}`, toolResults[0])
}

func TestRun_UnknownToolReportsErrorButContinues(t *testing.T) {
	provider := llm.NewStubProvider(
		llm.StubResponse{ToolCalls: []llm.ToolCall{{ID: "1", Name: "nope", Arguments: json.RawMessage(`{}`)}}},
		llm.StubResponse{Content: "that tool is unavailable"},
		llm.StubResponse{Content: "trying another approach"},
		llm.StubResponse{Content: "recovered"},
	)
	registry := tool.NewRegistry()

	result, err := Run(context.Background(), provider, registry, NewMemory(), "system", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Summary)
}

func TestRun_ExhaustsAtMaxRounds(t *testing.T) {
	responses := make([]llm.StubResponse, 0, MaxRounds)
	for i := 0; i < MaxRounds; i++ {
		responses = append(responses, llm.StubResponse{ToolCalls: []llm.ToolCall{{ID: "1", Name: "echo", Arguments: json.RawMessage(`{}`)}}})
	}
	provider := llm.NewStubProvider(responses...)
	registry := tool.NewRegistry()
	registry.Register(echoTool{})

	result, err := Run(context.Background(), provider, registry, NewMemory(), "system", nil, nil)
	require.NoError(t, err)
	assert.True(t, result.Exhausted)
	assert.Equal(t, MaxRounds, result.Rounds)
}

func TestRun_TerminalProviderErrorEndsRun(t *testing.T) {
	provider := llm.NewStubProvider(llm.StubResponse{Err: &llm.ProviderError{Err: assertError{}, Retryable: false}})
	registry := tool.NewRegistry()

	result, err := Run(context.Background(), provider, registry, NewMemory(), "system", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "Investigation failed", result.Summary)
}

type assertError struct{}

func (assertError) Error() string { return "terminal" }
