package collector

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/net"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
)

// SecurityCollector diffs the set of listening TCP ports between samples
// and emits new_open_port events for newly observed ones (spec.md §4.3:
// new_open_port carries intrinsic NOTABLE severity).
type SecurityCollector struct {
	bus      *bus.Bus
	interval time.Duration
	tenant   string

	known map[uint32]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSecurityCollector creates a collector. interval defaults to 30s.
func NewSecurityCollector(b *bus.Bus, interval time.Duration, tenant string) *SecurityCollector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SecurityCollector{bus: b, interval: interval, tenant: tenant, known: map[uint32]struct{}{}}
}

// Start launches the sampling loop.
func (c *SecurityCollector) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop cancels the loop and waits for a bounded drain.
func (c *SecurityCollector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *SecurityCollector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Seed the known set on the first tick so startup doesn't flag every
	// already-open port.
	c.sample(ctx, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample(ctx, false)
		}
	}
}

func (c *SecurityCollector) sample(ctx context.Context, seedOnly bool) {
	conns, err := net.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		slog.Warn("security collector: connections list failed", "error", err)
		return
	}

	seen := map[uint32]struct{}{}
	for _, conn := range conns {
		if conn.Status != "LISTEN" {
			continue
		}
		seen[conn.Laddr.Port] = struct{}{}
		if _, known := c.known[conn.Laddr.Port]; !known && !seedOnly {
			c.bus.Publish(argusmodel.Event{
				Source:    argusmodel.SourceSecurityScanner,
				Type:      "new_open_port",
				Severity:  argusmodel.SeverityNotable,
				Message:   "new listening port detected",
				Data:      map[string]any{"port": float64(conn.Laddr.Port)},
				Timestamp: time.Now(),
				Tenant:    c.tenant,
			})
		}
	}
	c.known = seen
}
