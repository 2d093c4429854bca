package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/argus/pkg/action"
)

// actionProposer is the narrow capability RegisterActionTool needs from the
// Action Engine.
type actionProposer interface {
	ProposeAction(ctx context.Context, tenant, description string, cmd []string) action.Outcome
}

// RegisterActionTool adds propose_action, the one tool through which the
// ReAct loop can request a remediation command run (spec.md §4.9). tenant is
// fixed at registration time: one Registry instance serves one tenant's
// investigation.
func RegisterActionTool(registry *Registry, actions actionProposer, tenant string) {
	registry.Register(&queryTool{
		name:        "propose_action",
		description: "Propose running a shell command to remediate or further diagnose an issue. Read-only commands run immediately; anything else waits for human approval.",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{"type": "string", "description": "why this command is being proposed"},
				"command":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "argv vector, e.g. [\"df\", \"-h\"]"},
			},
			"required": []string{"command"},
		},
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Description string   `json:"description"`
				Command     []string `json:"command"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}
			if len(args.Command) == 0 {
				return "", fmt.Errorf("command must not be empty")
			}
			outcome := actions.ProposeAction(ctx, tenant, args.Description, args.Command)
			return renderJSON(outcome)
		},
	})
}
