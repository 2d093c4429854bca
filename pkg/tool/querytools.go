package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeready-toolchain/argus/pkg/store"
)

// windowArgs is the common shape of every analytical query tool's
// arguments: a service scope and a lookback window in minutes.
type windowArgs struct {
	Service       string `json:"service"`
	LookbackMins  int    `json:"lookback_minutes"`
	BucketMinutes int    `json:"bucket_minutes"`
}

func (w windowArgs) window() store.Window {
	mins := w.LookbackMins
	if mins <= 0 {
		mins = 60
	}
	now := time.Now()
	return store.Window{Since: now.Add(-time.Duration(mins) * time.Minute), Until: now}
}

func (w windowArgs) bucket() time.Duration {
	mins := w.BucketMinutes
	if mins <= 0 {
		mins = 5
	}
	return time.Duration(mins) * time.Minute
}

// queryTool adapts a closure to the Tool interface, grounded on tarsy's
// ToolExecutor.Execute (resolve → parse args → invoke → convert result):
// every query tool here shares that same shape, differing only in which
// MetricsRepository method it calls and how it renders the result.
type queryTool struct {
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, args json.RawMessage) (string, error)
}

func (t *queryTool) Name() string                     { return t.name }
func (t *queryTool) Description() string              { return t.description }
func (t *queryTool) ParametersSchema() map[string]any { return t.schema }

func (t *queryTool) Execute(ctx context.Context, args json.RawMessage) (Result, error) {
	content, err := t.run(ctx, args)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}, nil
	}
	return Result{Content: content, DisplayType: "json"}, nil
}

func windowSchema(extra map[string]any) map[string]any {
	props := map[string]any{
		"service":          map[string]any{"type": "string", "description": "service name to scope the query to"},
		"lookback_minutes": map[string]any{"type": "integer", "description": "how far back to look, default 60"},
		"bucket_minutes":   map[string]any{"type": "integer", "description": "bucket width for time-series results, default 5"},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{"type": "object", "properties": props}
}

func renderJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(b), nil
}

func parseWindowArgs(raw json.RawMessage) (windowArgs, error) {
	var w windowArgs
	if len(raw) == 0 {
		return w, nil
	}
	if err := json.Unmarshal(raw, &w); err != nil {
		return w, fmt.Errorf("parse arguments: %w", err)
	}
	return w, nil
}

// RegisterQueryTools adds every read-only analytical query tool backed by
// metrics to registry, per spec.md §4.8's tool catalog.
func RegisterQueryTools(registry *Registry, metrics store.MetricsRepository) {
	registry.Register(&queryTool{
		name:        "query_function_metrics",
		description: "Query invocation count/duration/error-rate buckets for a service.",
		schema:      windowSchema(nil),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			w, err := parseWindowArgs(raw)
			if err != nil {
				return "", err
			}
			rows, err := metrics.QueryFunctionMetrics(ctx, w.Service, w.window(), w.bucket())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_request_metrics",
		description: "Query HTTP request count/duration/error-rate buckets for a service, path, and method.",
		schema: windowSchema(map[string]any{
			"path":   map[string]any{"type": "string"},
			"method": map[string]any{"type": "string"},
		}),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				windowArgs
				Path   string `json:"path"`
				Method string `json:"method"`
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("parse arguments: %w", err)
				}
			}
			rows, err := metrics.QueryRequestMetrics(ctx, args.Service, args.Path, args.Method, args.window(), args.bucket())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_trace_summary",
		description: "Query trace count/duration buckets for a service.",
		schema:      windowSchema(nil),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			w, err := parseWindowArgs(raw)
			if err != nil {
				return "", err
			}
			rows, err := metrics.QueryTraceSummary(ctx, w.Service, w.window())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_slow_spans",
		description: "Query the slowest spans for a service within the lookback window.",
		schema:      windowSchema(map[string]any{"limit": map[string]any{"type": "integer"}}),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				windowArgs
				Limit int `json:"limit"`
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("parse arguments: %w", err)
				}
			}
			limit := args.Limit
			if limit <= 0 {
				limit = 20
			}
			rows, err := metrics.QuerySlowSpans(ctx, args.Service, args.window(), limit)
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_trace",
		description: "Fetch every span belonging to a single trace id.",
		schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"trace_id": map[string]any{"type": "string"}},
			"required":   []string{"trace_id"},
		},
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				TraceID string `json:"trace_id"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("parse arguments: %w", err)
			}
			rows, err := metrics.QueryTrace(ctx, args.TraceID)
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_error_groups",
		description: "Query distinct error groups (by error type/message) for a service.",
		schema:      windowSchema(nil),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			w, err := parseWindowArgs(raw)
			if err != nil {
				return "", err
			}
			rows, err := metrics.QueryErrorGroups(ctx, w.Service, w.window())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_service_summary",
		description: "Query a one-bucket-per-service summary across all monitored services.",
		schema:      windowSchema(nil),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			w, err := parseWindowArgs(raw)
			if err != nil {
				return "", err
			}
			rows, err := metrics.QueryServiceSummary(ctx, w.window())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_dependency_summary",
		description: "Query outbound dependency calls (DB, cache, external API) made by a service.",
		schema:      windowSchema(nil),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			w, err := parseWindowArgs(raw)
			if err != nil {
				return "", err
			}
			rows, err := metrics.QueryDependencySummary(ctx, w.Service, w.window())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_dependency_map",
		description: "Query the full service-to-dependency call graph for the lookback window.",
		schema:      windowSchema(nil),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			w, err := parseWindowArgs(raw)
			if err != nil {
				return "", err
			}
			rows, err := metrics.QueryDependencyMap(ctx, w.window())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_deploy_history",
		description: "Query recent deploy markers for a service, to correlate incidents with releases.",
		schema:      windowSchema(nil),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			w, err := parseWindowArgs(raw)
			if err != nil {
				return "", err
			}
			rows, err := metrics.QueryDeployHistory(ctx, w.Service, w.window())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})

	registry.Register(&queryTool{
		name:        "query_metrics_summary",
		description: "Query raw samples for a named host/system metric within the lookback window.",
		schema: windowSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "metric name, e.g. cpu_percent"},
		}),
		run: func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				windowArgs
				Name string `json:"name"`
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("parse arguments: %w", err)
				}
			}
			rows, err := metrics.QueryMetricsSummary(ctx, args.Name, args.window())
			if err != nil {
				return "", err
			}
			return renderJSON(rows)
		},
	})
}
