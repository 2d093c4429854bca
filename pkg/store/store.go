// Package store defines the narrow repository contracts the core consumes
// for durable telemetry storage (spec.md §4.1/§6) and provides a pgx-backed
// implementation plus embedded schema migrations.
//
// Grounded on tarsy's pkg/database (Config/NewClient/migrations shape),
// reimplemented against pgxpool + hand-written SQL instead of ent, because
// ent requires running entc code generation — see DESIGN.md.
package store

import (
	"context"
	"time"
)

// MetricRow is a single append-only metric sample.
type MetricRow struct {
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// LogEntry is a single ingested log line.
type LogEntry struct {
	Path     string
	Offset   int64
	Severity string
	Preview  string
	Source   string
	Timestamp time.Time
}

// SDKEvent is an SDK lifecycle event (invocation_start/end, deploy marker, etc).
type SDKEvent struct {
	Timestamp   time.Time
	Service     string
	EventType   string
	JSONPayload string
}

// Span is a single traced operation.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Service      string
	Name         string
	Kind         string
	DurationMS   float64
	Status       string
	ErrorType    string
	ErrorMsg     string
	Attrs        map[string]any
	Timestamp    time.Time
}

// SDKMetric is a runtime metric reported by an instrumented service.
type SDKMetric struct {
	Service   string
	Name      string
	Value     float64
	Labels    map[string]string
	Timestamp time.Time
}

// DependencyCall is an outbound call made by an instrumented service.
type DependencyCall struct {
	Service    string
	DepType    string
	Target     string
	TraceID    string
	SpanID     string
	Operation  string
	DurationMS float64
	Status     string
	StatusCode int
	Error      string
	Attrs      map[string]any
	Timestamp  time.Time
}

// DeployEvent marks a deployment of a service version.
type DeployEvent struct {
	Service         string
	Version         string
	GitSHA          string
	Env             string
	PreviousVersion string
	Attrs           map[string]any
	Timestamp       time.Time
}

// Bucket is one time-bucketed aggregate row returned by the analytical
// read queries.
type Bucket struct {
	BucketStart      time.Time
	InvocationCount  int
	ErrorCount       int
	ErrorRate        float64
	AvgDurationMS    float64
	P50DurationMS    float64
	P95DurationMS    float64
	P99DurationMS    float64
	ColdStartCount   int
	ColdStartPercent float64
}

// ErrorGroup is spans/events grouped by fingerprint.
type ErrorGroup struct {
	Fingerprint string
	ErrorType   string
	Message     string
	Count       int
	LastSeen    time.Time
}

// BaselineRow is one row of the baselines table.
type BaselineRow struct {
	MetricName  string
	Mean        float64
	StdDev      float64
	P50         float64
	P95         float64
	P99         float64
	SampleCount int
	AsOf        time.Time
}

// Window bounds an analytical read.
type Window struct {
	Since time.Time
	Until time.Time
}

// MetricsRepository is the append-only, time-bucketed-analytical-read
// contract for all telemetry (spec.md §4.1/§6). Implementations must
// treat writes as fire-and-forget / best-effort and reads must return
// empty slices (never errors) when nothing matches.
type MetricsRepository interface {
	InsertMetric(ctx context.Context, row MetricRow) error
	InsertMetricsBatch(ctx context.Context, rows []MetricRow) error
	InsertLogEntry(ctx context.Context, entry LogEntry) error
	InsertSDKEvent(ctx context.Context, e SDKEvent) error
	InsertSpan(ctx context.Context, s Span) error
	InsertSDKMetric(ctx context.Context, m SDKMetric) error
	InsertDependencyCall(ctx context.Context, d DependencyCall) error
	InsertDeployEvent(ctx context.Context, d DeployEvent) error

	QueryFunctionMetrics(ctx context.Context, service string, window Window, bucket time.Duration) ([]Bucket, error)
	QueryRequestMetrics(ctx context.Context, service, path, method string, window Window, bucket time.Duration) ([]Bucket, error)
	QueryTraceSummary(ctx context.Context, service string, window Window) ([]Bucket, error)
	QuerySlowSpans(ctx context.Context, service string, window Window, limit int) ([]Span, error)
	QueryTrace(ctx context.Context, traceID string) ([]Span, error)
	QueryErrorGroups(ctx context.Context, service string, window Window) ([]ErrorGroup, error)
	QueryServiceSummary(ctx context.Context, window Window) (map[string]Bucket, error)
	QueryDependencySummary(ctx context.Context, service string, window Window) ([]DependencyCall, error)
	QueryDependencyMap(ctx context.Context, window Window) ([]DependencyCall, error)
	QueryDeployHistory(ctx context.Context, service string, window Window) ([]DeployEvent, error)
	QueryMetricsSummary(ctx context.Context, name string, window Window) ([]MetricRow, error)

	UpsertBaselines(ctx context.Context, rows []BaselineRow) error
	GetBaselines(ctx context.Context) ([]BaselineRow, error)
}

// OperationalRepository is the row-store contract for alert/investigation/
// action/audit state that the Alert Engine, Investigator, and Action
// Engine mirror to on every mutation (spec.md §6).
type OperationalRepository interface {
	SaveActiveAlert(ctx context.Context, tenant string, alert ActiveAlertRow) error
	GetActiveAlerts(ctx context.Context, tenant string, includeResolved bool) ([]ActiveAlertRow, error)

	SaveAcknowledgment(ctx context.Context, tenant, dedupKey string, expiresAt *time.Time) error
	DeleteAcknowledgment(ctx context.Context, tenant, dedupKey string) error
	LoadAcknowledgments(ctx context.Context, tenant string) (map[string]*time.Time, error)

	SaveMute(ctx context.Context, tenant, ruleID string, expiresAt time.Time) error
	DeleteMute(ctx context.Context, tenant, ruleID string) error
	LoadMutes(ctx context.Context, tenant string) (map[string]time.Time, error)

	SaveInvestigation(ctx context.Context, tenant string, inv InvestigationRow) error
	AppendAudit(ctx context.Context, tenant string, rec AuditRow) error
	ListAudit(ctx context.Context, tenant string, limit int) ([]AuditRow, error)

	SaveTokenUsage(ctx context.Context, tenant string, promptTokens, completionTokens int, at time.Time) error
}

// ActiveAlertRow mirrors argusmodel.ActiveAlert for storage round-tripping
// (kept as a distinct type so the store package has no dependency on the
// bus/alert packages — only plain data crosses the boundary).
type ActiveAlertRow struct {
	ID             string
	RuleID         string
	RuleName       string
	EventType      string
	EventSource    string
	Severity       string
	DedupKey       string
	Timestamp      time.Time
	Resolved       bool
	AcknowledgedBy string
}

// InvestigationRow is the persisted projection of an investigation run.
type InvestigationRow struct {
	InvestigationID string
	EventType       string
	Priority        string
	Status          string
	Summary         string
	TokensUsed      int
	StartedAt       time.Time
	EndedAt         *time.Time
}

// AuditRow is the persisted projection of argusmodel.AuditRecord.
type AuditRow struct {
	Timestamp      time.Time
	Action         string
	CommandString  string
	ResultExcerpt  string
	Success        bool
	UserApproved   bool
	ConversationID string
	IPAddress      string
}
