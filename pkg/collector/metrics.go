// Package collector holds the periodic sampling/ingest producers that feed
// the bus and the store (spec.md §2 item 4). Collectors are deliberately
// thin: they are specified only at their bus/store contract, per spec.md's
// "not the hard part" framing — each one samples or ingests and publishes
// to the bus; some also classify via pkg/classify and write to the store
// (the process and security collectors do neither).
//
// Grounded on rcourtman-Pulse's internal/hostagent sampling style
// (gopsutil-backed periodic collection) and tarsy's periodic-ticker shape
// (pkg/cleanup/service.go), already reused verbatim by pkg/baseline.Tracker.
package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
	"github.com/codeready-toolchain/argus/pkg/classify"
	"github.com/codeready-toolchain/argus/pkg/store"
)

// MetricsCollector samples host CPU/memory/disk on a ticker, classifies
// the resulting events, publishes them to the bus, and writes raw samples
// to the store.
type MetricsCollector struct {
	bus        *bus.Bus
	metrics    store.MetricsRepository
	classifier *classify.Classifier
	interval   time.Duration
	hostRoot   string
	tenant     string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMetricsCollector creates a collector. interval defaults to 15s, hostRoot
// to "/" when empty (spec.md §6 collector.host_root, for container-mounted
// host filesystems).
func NewMetricsCollector(b *bus.Bus, metrics store.MetricsRepository, classifier *classify.Classifier, interval time.Duration, hostRoot, tenant string) *MetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if hostRoot == "" {
		hostRoot = "/"
	}
	return &MetricsCollector{bus: b, metrics: metrics, classifier: classifier, interval: interval, hostRoot: hostRoot, tenant: tenant}
}

// Start launches the sampling loop. Safe to call once.
func (c *MetricsCollector) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop cancels the loop and waits for a bounded drain, per spec.md §5.
func (c *MetricsCollector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *MetricsCollector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample(ctx)
		}
	}
}

func (c *MetricsCollector) sample(ctx context.Context) {
	now := time.Now()

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		c.emit(ctx, "cpu_percent", pct[0], now)
	} else if err != nil {
		slog.Warn("metrics collector: cpu sample failed", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		c.emit(ctx, "memory_percent", vm.UsedPercent, now)
	} else {
		slog.Warn("metrics collector: memory sample failed", "error", err)
	}

	if du, err := disk.UsageWithContext(ctx, c.hostRoot); err == nil {
		c.emit(ctx, "disk_percent", du.UsedPercent, now)
	} else {
		slog.Warn("metrics collector: disk sample failed", "error", err)
	}
}

func (c *MetricsCollector) emit(ctx context.Context, metricName string, value float64, ts time.Time) {
	if err := c.metrics.InsertMetric(ctx, store.MetricRow{Name: metricName, Value: value, Timestamp: ts}); err != nil {
		slog.Warn("metrics collector: insert failed", "metric", metricName, "error", err)
	}

	event := argusmodel.Event{
		Source:    argusmodel.SourceSystemMetrics,
		Type:      "metric_collected",
		Severity:  argusmodel.SeverityNormal,
		Data:      map[string]any{metricName: value},
		Timestamp: ts,
		Tenant:    c.tenant,
	}
	if c.classifier != nil {
		event = c.classifier.Classify(event)
	}
	c.bus.Publish(event)
}
