// Package react implements the ReAct loop (spec.md §4.8): system-prompt +
// history → LLM stream → tool calls → tool results → repeat, with a round
// cap, streaming callbacks, and token-budget accounting.
//
// Grounded on tarsy's pkg/agent/controller/iterating.go (the
// iterate-until-no-tool-calls loop, forceConclusion on exhaustion) and
// react_parser.go, generalized from tarsy's native-function-calling-only
// controller to the single unified llm.ResponseDelta shape so provider
// identity never leaks past this package's boundary.
package react

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/llm"
	"github.com/codeready-toolchain/argus/pkg/tool"
)

// MaxRounds caps how many LLM↔tool round-trips a single Run performs before
// forcing an exhaustion result, per spec.md §4.8.
const MaxRounds = 10

// maxTextOnlyContinuations is how many consecutive rounds without tool
// calls are tolerated (the model narrating between calls) before the loop
// finalizes on a round that had prior tool calls but produced none itself.
const maxTextOnlyContinuations = 2

// EventKind discriminates the callback surface the Investigator forwards
// as WebSocket broadcasts (spec.md §6).
type EventKind string

const (
	EventThinkingStart       EventKind = "thinking_start"
	EventThinkingEnd         EventKind = "thinking_end"
	EventAssistantDelta      EventKind = "assistant_message_delta"
	EventToolCall            EventKind = "tool_call"
	EventToolResult          EventKind = "tool_result"
)

// Event is one callback emission from a running loop.
type Event struct {
	Kind        EventKind
	Content     string
	ToolCallID  string
	ToolName    string
	ToolArgs    json.RawMessage
	ToolResult  string
	DisplayType string
}

// OnEvent is invoked synchronously from the loop goroutine; implementations
// must return quickly (the Investigator forwards to a non-blocking
// broadcast — see pkg/investigator).
type OnEvent func(Event)

// Budget is the narrow capability the loop needs from argusmodel.TokenBudget
// to record spend without importing the concrete type's constructor.
type Budget interface {
	RecordUsage(prompt, completion int)
}

// Result is what Run returns: the final assistant text and accumulated
// token usage.
type Result struct {
	Summary string
	Usage   argusmodel.TokenUsage
	Rounds  int
	// Exhausted is true if the loop hit MaxRounds without a natural
	// conclusion.
	Exhausted bool
}

// Run executes the ReAct loop: system prompt + memory → provider stream →
// tool dispatch → repeat, until the model stops requesting tools (allowing
// up to maxTextOnlyContinuations narration-only rounds) or MaxRounds is hit.
func Run(
	ctx context.Context,
	provider llm.Provider,
	registry *tool.Registry,
	memory *Memory,
	systemPrompt string,
	budget Budget,
	onEvent OnEvent,
) (Result, error) {
	return RunRounds(ctx, provider, registry, memory, systemPrompt, budget, onEvent, MaxRounds)
}

// RunRounds is Run with an explicit round cap, used directly by
// Investigator.Followup to run exactly one additional round against a
// completed investigation's existing memory rather than a fresh MaxRounds
// budget.
func RunRounds(
	ctx context.Context,
	provider llm.Provider,
	registry *tool.Registry,
	memory *Memory,
	systemPrompt string,
	budget Budget,
	onEvent OnEvent,
	maxRounds int,
) (Result, error) {
	emit := onEvent
	if emit == nil {
		emit = func(Event) {}
	}

	var usage argusmodel.TokenUsage
	hadToolCalls := false
	textOnlyStreak := 0

	for round := 0; round < maxRounds; round++ {
		memory.AdvanceRound()

		messages := append([]llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}, memory.Messages()...)

		emit(Event{Kind: EventThinkingStart})

		delta, streamErr := streamOnce(ctx, provider, messages, toolSchemas(registry))
		emit(Event{Kind: EventThinkingEnd})

		if streamErr != nil {
			if llm.IsRetryable(streamErr) {
				slog.Warn("react: retryable provider error, ending round", "error", streamErr, "round", round)
				continue
			}
			return Result{Summary: "Investigation failed", Usage: usage, Rounds: round + 1}, streamErr
		}

		if delta.Content != "" {
			emit(Event{Kind: EventAssistantDelta, Content: delta.Content})
		}

		if budget != nil {
			budget.RecordUsage(delta.PromptTokens, delta.CompletionTokens)
		}
		usage.PromptTokens += delta.PromptTokens
		usage.CompletionTokens += delta.CompletionTokens

		if len(delta.ToolCallsSnapshot) > 0 {
			hadToolCalls = true
			textOnlyStreak = 0

			memory.Append(llm.Message{Role: llm.RoleAssistant, Content: delta.Content, ToolCalls: delta.ToolCallsSnapshot})

			for _, call := range delta.ToolCallsSnapshot {
				emit(Event{Kind: EventToolCall, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: call.Arguments})

				result, err := registry.Execute(ctx, call.Name, call.Arguments)
				if err != nil {
					result = tool.Result{Content: fmt.Sprintf("tool execution error: %s", err), IsError: true}
				}

				emit(Event{Kind: EventToolResult, ToolCallID: call.ID, ToolName: call.Name, ToolResult: result.Content, DisplayType: result.DisplayType})

				memory.Append(llm.Message{
					Role:       llm.RoleTool,
					Content:    result.Content,
					ToolCallID: call.ID,
					Name:       call.Name,
				})
			}
			continue
		}

		// No tool calls this round.
		if hadToolCalls && textOnlyStreak < maxTextOnlyContinuations {
			textOnlyStreak++
			memory.Append(llm.Message{Role: llm.RoleAssistant, Content: delta.Content})
			continue
		}

		memory.Append(llm.Message{Role: llm.RoleAssistant, Content: delta.Content})
		return Result{Summary: delta.Content, Usage: usage, Rounds: round + 1}, nil
	}

	return Result{
		Summary:   "Investigation exhausted the maximum number of reasoning rounds without reaching a conclusion.",
		Usage:     usage,
		Rounds:    maxRounds,
		Exhausted: true,
	}, nil
}

// toolSchemas converts the registry's tools into the provider-facing schema
// shape expected by llm.Provider.Stream.
func toolSchemas(registry *tool.Registry) []llm.ToolSchema {
	if registry == nil {
		return nil
	}
	tools := registry.List()
	schemas := make([]llm.ToolSchema, 0, len(tools))
	for _, t := range tools {
		schemas = append(schemas, llm.ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParametersSchema(),
		})
	}
	return schemas
}

// streamOnce drains provider.Stream into a single accumulated delta: all
// content concatenated, the final (non-nil) tool-calls snapshot, and the
// last-seen token counters. Providers emit incremental deltas; the loop
// only acts once the channel closes.
func streamOnce(ctx context.Context, provider llm.Provider, messages []llm.Message, tools []llm.ToolSchema) (llm.ResponseDelta, error) {
	deltas, errs := provider.Stream(ctx, messages, tools)

	var acc llm.ResponseDelta
	for {
		select {
		case d, ok := <-deltas:
			if !ok {
				select {
				case err := <-errs:
					if err != nil {
						return acc, err
					}
				default:
				}
				return acc, nil
			}
			acc.Content += d.Content
			if d.ToolCallsSnapshot != nil {
				acc.ToolCallsSnapshot = d.ToolCallsSnapshot
			}
			if d.PromptTokens > 0 {
				acc.PromptTokens = d.PromptTokens
			}
			if d.CompletionTokens > 0 {
				acc.CompletionTokens = d.CompletionTokens
			}
		case err := <-errs:
			if err != nil {
				return acc, err
			}
		case <-ctx.Done():
			return acc, ctx.Err()
		}
	}
}
