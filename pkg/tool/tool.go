// Package tool is the name→implementation registry the ReAct loop dispatches
// tool calls through (spec.md §9, "Dynamic dispatch").
//
// Grounded on tarsy's pkg/mcp/executor.go (ToolExecutor.Execute: resolve →
// parse args → invoke → convert result) generalized from MCP-server-backed
// tools to Argus's in-process tool set.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Result is what a Tool returns to the ReAct loop. DisplayType hints the WS
// layer how to render the result (spec.md §6 tool_result.display_type).
type Result struct {
	Content     string
	IsError     bool
	DisplayType string
}

// Tool is a single callable capability, registered by name and invoked by
// the ReAct loop once the model requests it.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() map[string]any
	Execute(ctx context.Context, args json.RawMessage) (Result, error)
}

// Registry is a name→Tool map. Safe for concurrent use: tools are normally
// registered once at startup and only read afterward, but the mutex makes
// late registration (e.g. test setup) safe too.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Execute resolves name in the registry, coerces args against the tool's
// declared schema (spec.md §4.8: "coerce arguments to match its declared
// schema, e.g. integer columns receiving a float"), and invokes it. An
// unknown tool name is reported as a Result error, not a Go error — the
// ReAct loop feeds this straight back to the model as a tool-role message.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{
			Content: fmt.Sprintf("unknown tool %q", name),
			IsError: true,
		}, nil
	}

	coerced, err := CoerceArguments(args, t.ParametersSchema())
	if err != nil {
		return Result{
			Content: fmt.Sprintf("failed to parse arguments for tool %q: %s", name, err),
			IsError: true,
		}, nil
	}

	return t.Execute(ctx, coerced)
}

// CoerceArguments rewrites args so that values land on the type the schema
// declares for their key — in practice, integer-typed properties that
// arrived as a JSON float (the common case for LLM-produced tool call
// arguments) are converted to integers, dropping any fractional part
// (2.7 becomes 2). Unknown keys and types pass through
// unchanged.
func CoerceArguments(args json.RawMessage, schema map[string]any) (json.RawMessage, error) {
	if len(args) == 0 {
		return json.RawMessage(`{}`), nil
	}

	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return nil, err
	}

	props, _ := schema["properties"].(map[string]any)
	for key, raw := range m {
		propSchema, ok := props[key].(map[string]any)
		if !ok {
			continue
		}
		typ, _ := propSchema["type"].(string)
		if typ != "integer" {
			continue
		}
		if f, ok := raw.(float64); ok {
			m[key] = int64(f)
		}
	}

	return json.Marshal(m)
}
