package collector

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
)

// watchedProcess is a process the collector is tracking by name, so a
// disappearance between samples can be reported as process_crashed.
type watchedProcess struct {
	name string
	pid  int32
}

// ProcessCollector watches a configured set of process names and emits a
// process_crashed event when one disappears (spec.md §4.3's
// intrinsic-severity process event types). OOM kills are not told apart
// from other exits; it never emits process_oom_killed.
type ProcessCollector struct {
	bus      *bus.Bus
	interval time.Duration
	tenant   string
	watch    []string

	tracked map[string]watchedProcess

	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessCollector creates a collector watching the given process names.
// interval defaults to 10s.
func NewProcessCollector(b *bus.Bus, interval time.Duration, tenant string, watch []string) *ProcessCollector {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ProcessCollector{bus: b, interval: interval, tenant: tenant, watch: watch, tracked: map[string]watchedProcess{}}
}

// Start launches the sampling loop.
func (c *ProcessCollector) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop cancels the loop and waits for a bounded drain.
func (c *ProcessCollector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *ProcessCollector) run(ctx context.Context) {
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

func (c *ProcessCollector) sample(ctx context.Context) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		slog.Warn("process collector: list failed", "error", err)
		return
	}

	seen := map[string]watchedProcess{}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if !c.isWatched(name) {
			continue
		}
		seen[name] = watchedProcess{name: name, pid: p.Pid}
	}

	for name, prev := range c.tracked {
		if _, stillRunning := seen[name]; !stillRunning {
			c.publishCrash(prev)
		}
	}
	c.tracked = seen
}

func (c *ProcessCollector) isWatched(name string) bool {
	for _, w := range c.watch {
		if w == name {
			return true
		}
	}
	return false
}

func (c *ProcessCollector) publishCrash(prev watchedProcess) {
	c.bus.Publish(argusmodel.Event{
		Source:   argusmodel.SourceProcessMonitor,
		Type:     "process_crashed",
		Severity: argusmodel.SeverityUrgent,
		Message:  "process " + prev.name + " (pid " + strconv.Itoa(int(prev.pid)) + ") is no longer running",
		Data: map[string]any{
			"process_name": prev.name,
			"pid":          float64(prev.pid),
		},
		Timestamp: time.Now(),
		Tenant:    c.tenant,
	})
}

