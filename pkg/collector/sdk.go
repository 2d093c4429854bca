package collector

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
	"github.com/codeready-toolchain/argus/pkg/classify"
	"github.com/codeready-toolchain/argus/pkg/store"
)

// IngestEvent is one item of the /ingest payload (spec.md §6).
type IngestEvent struct {
	Type    string         `json:"type"`
	Service string         `json:"service"`
	Data    map[string]any `json:"data"`
}

// SDKCollector is the ingest bridge: unlike the other collectors it is not
// a poller, it is fed by pkg/api's /ingest handler (spec.md §2 item 4). It
// maps each incoming event to the right store insert and republishes a
// classified bus event.
type SDKCollector struct {
	bus        *bus.Bus
	metrics    store.MetricsRepository
	classifier *classify.Classifier
}

// NewSDKCollector creates a collector bound to the bus/store.
func NewSDKCollector(b *bus.Bus, metrics store.MetricsRepository, classifier *classify.Classifier) *SDKCollector {
	return &SDKCollector{bus: b, metrics: metrics, classifier: classifier}
}

// Ingest handles one IngestEvent for tenant, per spec.md §6's event→store
// mapping table: invocation_start/end → sdk_events, span events → spans,
// runtime metrics → sdk_metrics, deploy markers → deploy_events, dependency
// calls → dependency_calls.
func (c *SDKCollector) Ingest(ctx context.Context, tenant string, e IngestEvent) {
	now := time.Now()

	switch e.Type {
	case "invocation_start", "invocation_end":
		c.insertSDKEvent(ctx, e, now)
	case "span_received":
		c.insertSpan(ctx, e, now)
	case "runtime_metric":
		c.insertSDKMetric(ctx, e, now)
	case "deploy":
		c.insertDeployEvent(ctx, e, now)
	case "dependency_call":
		c.insertDependencyCall(ctx, e, now)
	default:
		slog.Debug("sdk collector: unrecognized ingest type, passing through to classifier only", "type", e.Type)
	}

	event := argusmodel.Event{
		Source:    argusmodel.SourceSDKTelemetry,
		Type:      e.Type,
		Severity:  argusmodel.SeverityNormal,
		Data:      e.Data,
		Timestamp: now,
		Tenant:    tenant,
	}
	if c.classifier != nil {
		event = c.classifier.Classify(event)
	}
	c.bus.Publish(event)
}

func (c *SDKCollector) insertSDKEvent(ctx context.Context, e IngestEvent, ts time.Time) {
	if c.metrics == nil {
		return
	}
	payload, _ := json.Marshal(e.Data)
	if err := c.metrics.InsertSDKEvent(ctx, store.SDKEvent{
		Timestamp: ts, Service: e.Service, EventType: e.Type, JSONPayload: string(payload),
	}); err != nil {
		slog.Warn("sdk collector: insert sdk event failed", "error", err)
	}
}

func (c *SDKCollector) insertSpan(ctx context.Context, e IngestEvent, ts time.Time) {
	if c.metrics == nil {
		return
	}
	s := store.Span{Service: e.Service, Timestamp: ts, Attrs: e.Data}
	s.TraceID, _ = e.Data["trace_id"].(string)
	s.SpanID, _ = e.Data["span_id"].(string)
	s.ParentSpanID, _ = e.Data["parent_span_id"].(string)
	s.Name, _ = e.Data["name"].(string)
	s.Kind, _ = e.Data["kind"].(string)
	s.Status, _ = e.Data["status"].(string)
	s.ErrorType, _ = e.Data["error_type"].(string)
	s.ErrorMsg, _ = e.Data["error_msg"].(string)
	if v, ok := e.Data["duration_ms"].(float64); ok {
		s.DurationMS = v
	}
	if err := c.metrics.InsertSpan(ctx, s); err != nil {
		slog.Warn("sdk collector: insert span failed", "error", err)
	}
}

func (c *SDKCollector) insertSDKMetric(ctx context.Context, e IngestEvent, ts time.Time) {
	if c.metrics == nil {
		return
	}
	name, _ := e.Data["name"].(string)
	value, _ := e.Data["value"].(float64)
	if err := c.metrics.InsertSDKMetric(ctx, store.SDKMetric{Service: e.Service, Name: name, Value: value, Timestamp: ts}); err != nil {
		slog.Warn("sdk collector: insert sdk metric failed", "error", err)
	}
}

func (c *SDKCollector) insertDeployEvent(ctx context.Context, e IngestEvent, ts time.Time) {
	if c.metrics == nil {
		return
	}
	d := store.DeployEvent{Service: e.Service, Attrs: e.Data, Timestamp: ts}
	d.Version, _ = e.Data["version"].(string)
	d.GitSHA, _ = e.Data["git_sha"].(string)
	d.Env, _ = e.Data["env"].(string)
	d.PreviousVersion, _ = e.Data["previous_version"].(string)
	if err := c.metrics.InsertDeployEvent(ctx, d); err != nil {
		slog.Warn("sdk collector: insert deploy event failed", "error", err)
	}
}

func (c *SDKCollector) insertDependencyCall(ctx context.Context, e IngestEvent, ts time.Time) {
	if c.metrics == nil {
		return
	}
	d := store.DependencyCall{Service: e.Service, Attrs: e.Data, Timestamp: ts}
	d.DepType, _ = e.Data["dep_type"].(string)
	d.Target, _ = e.Data["target"].(string)
	d.TraceID, _ = e.Data["trace_id"].(string)
	d.SpanID, _ = e.Data["span_id"].(string)
	d.Operation, _ = e.Data["operation"].(string)
	d.Status, _ = e.Data["status"].(string)
	d.Error, _ = e.Data["error"].(string)
	if v, ok := e.Data["duration_ms"].(float64); ok {
		d.DurationMS = v
	}
	if v, ok := e.Data["status_code"].(float64); ok {
		d.StatusCode = int(v)
	}
	if err := c.metrics.InsertDependencyCall(ctx, d); err != nil {
		slog.Warn("sdk collector: insert dependency call failed", "error", err)
	}
}
