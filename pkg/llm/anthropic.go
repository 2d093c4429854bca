package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens mirrors the Anthropic API's own required field; Argus
// never lets a single ReAct round run unbounded.
const defaultMaxTokens = 4096

// AnthropicProvider streams Claude completions via the official SDK's
// server-sent-events client. Grounded on tarsy's pkg/llm/client.go
// GenerateStream (a thin wrapper emitting a channel of deltas plus a
// channel of terminal errors) with the gRPC transport swapped for the
// Anthropic SDK's streaming Messages client.
type AnthropicProvider struct {
	client *anthropic.Client
	model  anthropic.Model
	system string
}

// NewAnthropicProvider builds a provider bound to apiKey and model. system
// is sent as the top-level system prompt on every Stream call in addition
// to whatever RoleSystem messages are present in the conversation.
func NewAnthropicProvider(apiKey, model, system string) *AnthropicProvider {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &client, model: anthropic.Model(model), system: system}
}

// Stream implements Provider.
func (p *AnthropicProvider) Stream(ctx context.Context, messages []Message, tools []ToolSchema) (<-chan ResponseDelta, <-chan error) {
	deltas := make(chan ResponseDelta)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		params := anthropic.MessageNewParams{
			Model:     p.model,
			MaxTokens: defaultMaxTokens,
			Messages:  toAnthropicMessages(messages),
		}
		if p.system != "" {
			params.System = []anthropic.TextBlockParam{{Text: p.system}}
		}
		for _, m := range messages {
			if m.Role == RoleSystem && m.Content != "" {
				params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
			}
		}
		if len(tools) > 0 {
			params.Tools = toAnthropicTools(tools)
		}

		stream := p.client.Messages.NewStreaming(ctx, params)

		acc := anthropic.Message{}
		var toolCalls []ToolCall
		var promptTokens, completionTokens int

		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				errs <- &ProviderError{Err: err, Retryable: false}
				return
			}

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if text := variant.Delta.Text; text != "" {
					deltas <- ResponseDelta{Content: text}
				}
			case anthropic.MessageDeltaEvent:
				if variant.Usage.OutputTokens > 0 {
					completionTokens = int(variant.Usage.OutputTokens)
				}
			case anthropic.MessageStartEvent:
				promptTokens = int(variant.Message.Usage.InputTokens)
			}
		}

		if err := stream.Err(); err != nil {
			errs <- classifyAnthropicError(err)
			return
		}

		for _, block := range acc.Content {
			if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
				toolCalls = append(toolCalls, ToolCall{ID: tu.ID, Name: tu.Name, Arguments: json.RawMessage(tu.Input)})
			}
		}

		deltas <- ResponseDelta{
			Done:              true,
			ToolCallsSnapshot: toolCalls,
			PromptTokens:      promptTokens,
			CompletionTokens:  completionTokens,
		}
	}()

	return deltas, errs
}

func toAnthropicMessages(messages []Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			// Anthropic has no "system" role in the messages array; Stream
			// sends RoleSystem content through the top-level system field
			// instead, so it is skipped here.
			continue
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false),
			))
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
				continue
			}
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				_ = json.Unmarshal(tc.Arguments, &input)
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toAnthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.Parameters},
			},
		})
	}
	return out
}

// classifyAnthropicError distinguishes transient provider failures (rate
// limiting, overload, connection errors) from terminal ones (bad request,
// auth failure), matching the retryable set Pulse's HTTP-based Anthropic
// client retries on: 429, 529, and 5xx.
func classifyAnthropicError(err error) *ProviderError {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == 529 ||
			apiErr.StatusCode >= http.StatusInternalServerError
		return &ProviderError{Err: err, Retryable: retryable}
	}
	slog.Warn("anthropic provider: unclassified stream error, treating as retryable", "error", err)
	return &ProviderError{Err: err, Retryable: true}
}
