package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

// PgxMetricsRepository implements MetricsRepository directly against a
// pgxpool.Pool with hand-written SQL, in place of the ent-generated query
// builders the teacher uses (see DESIGN.md "Dropped teacher dependencies").
type PgxMetricsRepository struct {
	pool *pgxpool.Pool
}

// NewPgxMetricsRepository wraps pool.
func NewPgxMetricsRepository(pool *pgxpool.Pool) *PgxMetricsRepository {
	return &PgxMetricsRepository{pool: pool}
}

var _ MetricsRepository = (*PgxMetricsRepository)(nil)

func tenantOf(ctx context.Context) string {
	return argusmodel.TenantFromContext(ctx)
}

func marshalMap(m map[string]string) []byte {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return b
}

func marshalAny(m map[string]any) []byte {
	if m == nil {
		m = map[string]any{}
	}
	b, _ := json.Marshal(m)
	return b
}

// InsertMetric writes one sample. Fire-and-forget per spec.md §4.1: the
// caller must never block for more than a bounded amount of time, so this
// uses the pool's own connection-acquire timeout rather than retrying.
func (r *PgxMetricsRepository) InsertMetric(ctx context.Context, row MetricRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO system_metrics (timestamp, tenant_id, name, value, labels) VALUES ($1,$2,$3,$4,$5)`,
		row.Timestamp, tenantOf(ctx), row.Name, row.Value, marshalMap(row.Labels))
	return err
}

// InsertMetricsBatch writes rows via a single batched round trip.
func (r *PgxMetricsRepository) InsertMetricsBatch(ctx context.Context, rows []MetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	tenant := tenantOf(ctx)
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO system_metrics (timestamp, tenant_id, name, value, labels) VALUES ($1,$2,$3,$4,$5)`,
			row.Timestamp, tenant, row.Name, row.Value, marshalMap(row.Labels))
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range rows {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *PgxMetricsRepository) InsertLogEntry(ctx context.Context, e LogEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO log_index (timestamp, tenant_id, path, "offset", severity, preview, source) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.Timestamp, tenantOf(ctx), e.Path, e.Offset, e.Severity, e.Preview, e.Source)
	return err
}

func (r *PgxMetricsRepository) InsertSDKEvent(ctx context.Context, e SDKEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sdk_events (timestamp, tenant_id, service, event_type, json_payload) VALUES ($1,$2,$3,$4,$5::jsonb)`,
		e.Timestamp, tenantOf(ctx), e.Service, e.EventType, e.JSONPayload)
	return err
}

func (r *PgxMetricsRepository) InsertSpan(ctx context.Context, s Span) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO spans (timestamp, tenant_id, trace_id, span_id, parent_span_id, service, name, kind, duration_ms, status, error_type, error_msg, attrs)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.Timestamp, tenantOf(ctx), s.TraceID, s.SpanID, nullableStr(s.ParentSpanID), s.Service, s.Name, s.Kind,
		s.DurationMS, s.Status, nullableStr(s.ErrorType), nullableStr(s.ErrorMsg), marshalAny(s.Attrs))
	return err
}

func (r *PgxMetricsRepository) InsertSDKMetric(ctx context.Context, m SDKMetric) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sdk_metrics (timestamp, tenant_id, service, name, value, labels) VALUES ($1,$2,$3,$4,$5,$6)`,
		m.Timestamp, tenantOf(ctx), m.Service, m.Name, m.Value, marshalMap(m.Labels))
	return err
}

func (r *PgxMetricsRepository) InsertDependencyCall(ctx context.Context, d DependencyCall) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dependency_calls (timestamp, tenant_id, service, dep_type, target, trace_id, span_id, operation, duration_ms, status, status_code, error, attrs)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		d.Timestamp, tenantOf(ctx), d.Service, d.DepType, d.Target, nullableStr(d.TraceID), nullableStr(d.SpanID),
		nullableStr(d.Operation), d.DurationMS, d.Status, d.StatusCode, nullableStr(d.Error), marshalAny(d.Attrs))
	return err
}

func (r *PgxMetricsRepository) InsertDeployEvent(ctx context.Context, d DeployEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO deploy_events (timestamp, tenant_id, service, version, git_sha, env, previous_version, attrs)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		d.Timestamp, tenantOf(ctx), d.Service, d.Version, nullableStr(d.GitSHA), nullableStr(d.Env),
		nullableStr(d.PreviousVersion), marshalAny(d.Attrs))
	return err
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// bucketExpr is the time_bucket equivalent for plain PostgreSQL: floors
// each timestamp's epoch-seconds to a multiple of the bucket width.
func bucketExpr(col string, bucket time.Duration) string {
	secs := int64(bucket.Seconds())
	if secs <= 0 {
		secs = 60
	}
	return fmt.Sprintf("to_timestamp(floor(extract(epoch from %s)/%d)*%d)", col, secs, secs)
}

// QueryFunctionMetrics returns per-bucket invocation/error/duration
// aggregates derived from the spans table for service.
func (r *PgxMetricsRepository) QueryFunctionMetrics(ctx context.Context, service string, window Window, bucket time.Duration) ([]Bucket, error) {
	query := fmt.Sprintf(`
		SELECT %s AS bucket_start,
		       count(*) AS invocation_count,
		       count(*) FILTER (WHERE status = 'error') AS error_count,
		       coalesce(avg(duration_ms), 0) AS avg_ms,
		       coalesce(percentile_cont(0.5) WITHIN GROUP (ORDER BY duration_ms), 0) AS p50_ms,
		       coalesce(percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_ms), 0) AS p95_ms,
		       coalesce(percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_ms), 0) AS p99_ms,
		       count(*) FILTER (WHERE attrs->>'cold_start' = 'true') AS cold_start_count
		FROM spans
		WHERE tenant_id = $1 AND service = $2 AND timestamp BETWEEN $3 AND $4
		GROUP BY bucket_start ORDER BY bucket_start`, bucketExpr("timestamp", bucket))

	rows, err := r.pool.Query(ctx, query, tenantOf(ctx), service, window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		var coldStart int
		if err := rows.Scan(&b.BucketStart, &b.InvocationCount, &b.ErrorCount, &b.AvgDurationMS,
			&b.P50DurationMS, &b.P95DurationMS, &b.P99DurationMS, &coldStart); err != nil {
			return nil, err
		}
		b.ColdStartCount = coldStart
		if b.InvocationCount > 0 {
			b.ErrorRate = float64(b.ErrorCount) / float64(b.InvocationCount)
			b.ColdStartPercent = float64(coldStart) / float64(b.InvocationCount) * 100
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// QueryRequestMetrics is QueryFunctionMetrics filtered additionally by an
// HTTP path/method carried in dependency_calls' attrs (inbound requests are
// modeled as dependency_calls with dep_type='http_server').
func (r *PgxMetricsRepository) QueryRequestMetrics(ctx context.Context, service, path, method string, window Window, bucket time.Duration) ([]Bucket, error) {
	query := fmt.Sprintf(`
		SELECT %s AS bucket_start,
		       count(*) AS invocation_count,
		       count(*) FILTER (WHERE status != 'ok') AS error_count,
		       coalesce(avg(duration_ms), 0) AS avg_ms,
		       coalesce(percentile_cont(0.5) WITHIN GROUP (ORDER BY duration_ms), 0) AS p50_ms,
		       coalesce(percentile_cont(0.95) WITHIN GROUP (ORDER BY duration_ms), 0) AS p95_ms,
		       coalesce(percentile_cont(0.99) WITHIN GROUP (ORDER BY duration_ms), 0) AS p99_ms
		FROM dependency_calls
		WHERE tenant_id = $1 AND service = $2 AND dep_type = 'http_server'
		  AND target = $3 AND operation = $4 AND timestamp BETWEEN $5 AND $6
		GROUP BY bucket_start ORDER BY bucket_start`, bucketExpr("timestamp", bucket))

	rows, err := r.pool.Query(ctx, query, tenantOf(ctx), service, path, method, window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.BucketStart, &b.InvocationCount, &b.ErrorCount, &b.AvgDurationMS,
			&b.P50DurationMS, &b.P95DurationMS, &b.P99DurationMS); err != nil {
			return nil, err
		}
		if b.InvocationCount > 0 {
			b.ErrorRate = float64(b.ErrorCount) / float64(b.InvocationCount)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PgxMetricsRepository) QueryTraceSummary(ctx context.Context, service string, window Window) ([]Bucket, error) {
	return r.QueryFunctionMetrics(ctx, service, window, time.Hour)
}

func (r *PgxMetricsRepository) QuerySlowSpans(ctx context.Context, service string, window Window, limit int) ([]Span, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, trace_id, span_id, coalesce(parent_span_id,''), service, name, kind, duration_ms, status,
		       coalesce(error_type,''), coalesce(error_msg,''), attrs
		FROM spans WHERE tenant_id=$1 AND service=$2 AND timestamp BETWEEN $3 AND $4
		ORDER BY duration_ms DESC LIMIT $5`, tenantOf(ctx), service, window.Since, window.Until, limit)
	if err != nil {
		return nil, err
	}
	return scanSpans(rows)
}

func (r *PgxMetricsRepository) QueryTrace(ctx context.Context, traceID string) ([]Span, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, trace_id, span_id, coalesce(parent_span_id,''), service, name, kind, duration_ms, status,
		       coalesce(error_type,''), coalesce(error_msg,''), attrs
		FROM spans WHERE tenant_id=$1 AND trace_id=$2 ORDER BY timestamp ASC`, tenantOf(ctx), traceID)
	if err != nil {
		return nil, err
	}
	return scanSpans(rows)
}

func scanSpans(rows pgx.Rows) ([]Span, error) {
	defer rows.Close()
	var out []Span
	for rows.Next() {
		var s Span
		var attrs []byte
		if err := rows.Scan(&s.Timestamp, &s.TraceID, &s.SpanID, &s.ParentSpanID, &s.Service, &s.Name, &s.Kind,
			&s.DurationMS, &s.Status, &s.ErrorType, &s.ErrorMsg, &attrs); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(attrs, &s.Attrs)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PgxMetricsRepository) QueryErrorGroups(ctx context.Context, service string, window Window) ([]ErrorGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT coalesce(error_type,''), coalesce(error_msg,''), count(*), max(timestamp)
		FROM spans WHERE tenant_id=$1 AND service=$2 AND status='error' AND timestamp BETWEEN $3 AND $4
		GROUP BY error_type, error_msg ORDER BY count(*) DESC`, tenantOf(ctx), service, window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorGroup
	byFingerprint := map[string]int{}
	for rows.Next() {
		var g ErrorGroup
		if err := rows.Scan(&g.ErrorType, &g.Message, &g.Count, &g.LastSeen); err != nil {
			return nil, err
		}
		g.Fingerprint = ErrorFingerprint(g.ErrorType, g.Message)
		if i, ok := byFingerprint[g.Fingerprint]; ok {
			out[i].Count += g.Count
			if g.LastSeen.After(out[i].LastSeen) {
				out[i].LastSeen = g.LastSeen
			}
			continue
		}
		byFingerprint[g.Fingerprint] = len(out)
		out = append(out, g)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, rows.Err()
}

func (r *PgxMetricsRepository) QueryServiceSummary(ctx context.Context, window Window) (map[string]Bucket, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT service, count(*), count(*) FILTER (WHERE status='error'), coalesce(avg(duration_ms),0)
		FROM spans WHERE tenant_id=$1 AND timestamp BETWEEN $2 AND $3 GROUP BY service`,
		tenantOf(ctx), window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Bucket{}
	for rows.Next() {
		var service string
		var b Bucket
		if err := rows.Scan(&service, &b.InvocationCount, &b.ErrorCount, &b.AvgDurationMS); err != nil {
			return nil, err
		}
		if b.InvocationCount > 0 {
			b.ErrorRate = float64(b.ErrorCount) / float64(b.InvocationCount)
		}
		out[service] = b
	}
	return out, rows.Err()
}

func (r *PgxMetricsRepository) QueryDependencySummary(ctx context.Context, service string, window Window) ([]DependencyCall, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, service, dep_type, target, coalesce(trace_id,''), coalesce(span_id,''),
		       coalesce(operation,''), duration_ms, status, coalesce(status_code,0), coalesce(error,''), attrs
		FROM dependency_calls WHERE tenant_id=$1 AND service=$2 AND timestamp BETWEEN $3 AND $4
		ORDER BY timestamp DESC LIMIT 1000`, tenantOf(ctx), service, window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	return scanDependencyCalls(rows)
}

func (r *PgxMetricsRepository) QueryDependencyMap(ctx context.Context, window Window) ([]DependencyCall, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, service, dep_type, target, coalesce(trace_id,''), coalesce(span_id,''),
		       coalesce(operation,''), duration_ms, status, coalesce(status_code,0), coalesce(error,''), attrs
		FROM dependency_calls WHERE tenant_id=$1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp DESC LIMIT 5000`, tenantOf(ctx), window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	return scanDependencyCalls(rows)
}

func scanDependencyCalls(rows pgx.Rows) ([]DependencyCall, error) {
	defer rows.Close()
	var out []DependencyCall
	for rows.Next() {
		var d DependencyCall
		var attrs []byte
		if err := rows.Scan(&d.Timestamp, &d.Service, &d.DepType, &d.Target, &d.TraceID, &d.SpanID,
			&d.Operation, &d.DurationMS, &d.Status, &d.StatusCode, &d.Error, &attrs); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(attrs, &d.Attrs)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PgxMetricsRepository) QueryDeployHistory(ctx context.Context, service string, window Window) ([]DeployEvent, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, service, version, coalesce(git_sha,''), coalesce(env,''), coalesce(previous_version,''), attrs
		FROM deploy_events WHERE tenant_id=$1 AND service=$2 AND timestamp BETWEEN $3 AND $4
		ORDER BY timestamp DESC`, tenantOf(ctx), service, window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeployEvent
	for rows.Next() {
		var d DeployEvent
		var attrs []byte
		if err := rows.Scan(&d.Timestamp, &d.Service, &d.Version, &d.GitSHA, &d.Env, &d.PreviousVersion, &attrs); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(attrs, &d.Attrs)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PgxMetricsRepository) QueryMetricsSummary(ctx context.Context, name string, window Window) ([]MetricRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, name, value, labels FROM system_metrics
		WHERE tenant_id=$1 AND name=$2 AND timestamp BETWEEN $3 AND $4 ORDER BY timestamp ASC`,
		tenantOf(ctx), name, window.Since, window.Until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MetricRow
	for rows.Next() {
		var m MetricRow
		var labels []byte
		if err := rows.Scan(&m.Timestamp, &m.Name, &m.Value, &labels); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(labels, &m.Labels)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertBaselines atomically replaces the baselines table for tenant: the
// refresh is all-or-nothing so readers never see a half-written set.
func (r *PgxMetricsRepository) UpsertBaselines(ctx context.Context, rows []BaselineRow) error {
	tenant := tenantOf(ctx)
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM metric_baselines WHERE tenant_id=$1`, tenant); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := tx.Exec(ctx, `
			INSERT INTO metric_baselines (timestamp, tenant_id, metric_name, mean, stddev, p50, p95, p99, sample_count)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (tenant_id, metric_name) DO UPDATE SET
			  timestamp=$1, mean=$4, stddev=$5, p50=$6, p95=$7, p99=$8, sample_count=$9`,
			row.AsOf, tenant, row.MetricName, row.Mean, row.StdDev, row.P50, row.P95, row.P99, row.SampleCount); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *PgxMetricsRepository) GetBaselines(ctx context.Context) ([]BaselineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT metric_name, mean, stddev, p50, p95, p99, sample_count, timestamp
		FROM metric_baselines WHERE tenant_id=$1`, tenantOf(ctx))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BaselineRow
	for rows.Next() {
		var b BaselineRow
		if err := rows.Scan(&b.MetricName, &b.Mean, &b.StdDev, &b.P50, &b.P95, &b.P99, &b.SampleCount, &b.AsOf); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
