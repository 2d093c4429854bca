// Package baseline maintains rolling per-metric statistical profiles and
// flags samples that deviate from them (spec.md §4.4).
package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/store"
)

const minSampleCount = 10

// Tracker keeps a refreshed in-memory map of argusmodel.Baseline alongside
// the store's persisted copy, mirroring tarsy's cleanup.Service ticker-loop
// shape (pkg/cleanup/service.go): Start launches a background goroutine,
// Stop cancels it and waits for exit.
type Tracker struct {
	metrics  store.MetricsRepository
	interval time.Duration
	window   time.Duration

	mu         sync.RWMutex
	baselines  map[string]argusmodel.Baseline

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Tracker. refreshInterval defaults to 6h and window to 7
// days when zero.
func New(metrics store.MetricsRepository, refreshInterval, window time.Duration) *Tracker {
	if refreshInterval <= 0 {
		refreshInterval = 6 * time.Hour
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Tracker{
		metrics:   metrics,
		interval:  refreshInterval,
		window:    window,
		baselines: map[string]argusmodel.Baseline{},
	}
}

// Start launches the periodic refresh loop. Safe to call once.
func (t *Tracker) Start(ctx context.Context) {
	if t.cancel != nil {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	go t.run(ctx)
	slog.Info("baseline tracker started", "interval", t.interval, "window", t.window)
}

// Stop cancels the refresh loop and waits for it to exit.
func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
	slog.Info("baseline tracker stopped")
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	t.Refresh(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}

// Refresh recomputes baselines for every metric name known to the store
// over the tracker's window and atomically replaces both the in-memory map
// and the persisted rows.
func (t *Tracker) Refresh(ctx context.Context) {
	names, err := t.knownMetricNames(ctx)
	if err != nil {
		slog.Error("baseline refresh: list metric names failed", "error", err)
		return
	}

	window := store.Window{Since: time.Now().Add(-t.window), Until: time.Now()}
	rows := make([]store.BaselineRow, 0, len(names))
	for _, name := range names {
		samples, err := t.metrics.QueryMetricsSummary(ctx, name, window)
		if err != nil {
			slog.Error("baseline refresh: query metric failed", "metric", name, "error", err)
			continue
		}
		if len(samples) < minSampleCount {
			continue
		}
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}
		mean, stddev := meanStdDev(values)
		p50, p95, p99 := percentile(values, 0.50), percentile(values, 0.95), percentile(values, 0.99)
		rows = append(rows, store.BaselineRow{
			MetricName: name, Mean: mean, StdDev: stddev, P50: p50, P95: p95, P99: p99,
			SampleCount: len(values), AsOf: time.Now(),
		})
	}

	if err := t.metrics.UpsertBaselines(ctx, rows); err != nil {
		slog.Error("baseline refresh: persist failed", "error", err)
	}

	next := make(map[string]argusmodel.Baseline, len(rows))
	for _, row := range rows {
		next[row.MetricName] = argusmodel.Baseline{
			MetricName: row.MetricName, Mean: row.Mean, StdDev: row.StdDev,
			P50: row.P50, P95: row.P95, P99: row.P99, SampleCount: row.SampleCount, AsOf: row.AsOf,
		}
	}
	t.mu.Lock()
	t.baselines = next
	t.mu.Unlock()

	slog.Info("baseline refresh complete", "metric_count", len(rows))
}

// knownMetricNames derives the metric name set from the store's own
// persisted baselines plus a fixed seed of well-known system metrics, so a
// fresh deployment still has something to profile before any baseline has
// ever been written.
func (t *Tracker) knownMetricNames(ctx context.Context) ([]string, error) {
	seen := map[string]struct{}{
		"cpu_percent": {}, "memory_percent": {}, "disk_percent": {},
	}
	existing, err := t.metrics.GetBaselines(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range existing {
		seen[b.MetricName] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	return names, nil
}

// SDKMetricKey returns the derived baseline key for an SDK-reported
// metric: sdk.<service>.<metric_name>. It only formats the key; Refresh
// profiles only the names knownMetricNames returns.
func SDKMetricKey(service, metricName string) string {
	return fmt.Sprintf("sdk.%s.%s", service, metricName)
}

// SpanDurationKey is the derived baseline key for span durations.
func SpanDurationKey(service, spanName string) string {
	return fmt.Sprintf("sdk.%s.span.%s", service, spanName)
}

// Get returns the current baseline for name, if one has been computed.
func (t *Tracker) Get(name string) (argusmodel.Baseline, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.baselines[name]
	return b, ok
}

// All returns a snapshot of every current baseline.
func (t *Tracker) All() map[string]argusmodel.Baseline {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]argusmodel.Baseline, len(t.baselines))
	for k, v := range t.baselines {
		out[k] = v
	}
	return out
}
