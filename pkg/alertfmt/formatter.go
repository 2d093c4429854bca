// Package alertfmt implements the Alert Formatter: immediate fan-out for
// urgent alerts and periodic grouped digests for everything else
// (spec.md §4.6).
package alertfmt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

// Channel is an external notification sink. Send delivers a single alert;
// channels that support batched delivery also implement DigestSender.
// Grounded on tarsy's pkg/slack.Service nil-safe/fail-open shape, but
// modeled here as an interface so any number of channels can be registered.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert argusmodel.ActiveAlert) error
}

// DigestSender is implemented by channels that can deliver a whole
// AlertDigest in one call instead of one message per item.
type DigestSender interface {
	Channel
	SendDigest(ctx context.Context, digest AlertDigest) error
}

// DigestGroup is one collapsed group of notable items sharing a grouping key.
type DigestGroup struct {
	Key     string
	Items   []argusmodel.ActiveAlert
	Summary string
}

// AlertDigest is the periodic batched delivery of notable alerts.
type AlertDigest struct {
	Groups    []DigestGroup
	AITriage  string
	FlushedAt time.Time
}

// Triager produces an optional short summary line over a digest's group
// summaries. Implementations must fail silently (return an error that the
// Formatter logs and discards) per spec.md §4.6.
type Triager interface {
	Triage(ctx context.Context, summaries []string) (string, error)
}

// Formatter splits delivery by severity and batches notable alerts into
// periodic digests.
type Formatter struct {
	channels    []Channel
	triager     Triager // may be nil
	batchWindow time.Duration

	mu     sync.Mutex
	buffer []argusmodel.ActiveAlert

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Formatter. batchWindow defaults to 90s when zero.
func New(channels []Channel, triager Triager, batchWindow time.Duration) *Formatter {
	if batchWindow <= 0 {
		batchWindow = 90 * time.Second
	}
	return &Formatter{channels: channels, triager: triager, batchWindow: batchWindow}
}

// Start launches the periodic flush loop.
func (f *Formatter) Start(ctx context.Context) {
	if f.cancel != nil {
		return
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go f.run(ctx)
}

// Stop cancels the flush loop and performs one final drain so in-flight
// notable items are still delivered.
func (f *Formatter) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}

func (f *Formatter) run(ctx context.Context) {
	defer close(f.done)
	ticker := time.NewTicker(f.batchWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			f.flush(context.Background())
			return
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

// Deliver routes alert by severity: URGENT fans out immediately, everything
// else is buffered for the next periodic flush. Implements alert.Deliverer.
func (f *Formatter) Deliver(a argusmodel.ActiveAlert) {
	if a.Severity == argusmodel.SeverityUrgent {
		f.sendImmediate(context.Background(), a)
		return
	}
	f.mu.Lock()
	f.buffer = append(f.buffer, a)
	f.mu.Unlock()
}

// sendImmediate pushes a to every channel in parallel; each channel's send
// is independently guarded so one failure never affects the others.
func (f *Formatter) sendImmediate(ctx context.Context, a argusmodel.ActiveAlert) {
	var wg sync.WaitGroup
	for _, ch := range f.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			if err := ch.Send(ctx, a); err != nil {
				slog.Error("alert formatter: immediate send failed", "channel", ch.Name(), "alert_id", a.ID, "error", err)
			}
		}(ch)
	}
	wg.Wait()
}

// flush drains the notable buffer and builds/delivers a digest. A flush of
// an empty buffer performs no channel calls.
func (f *Formatter) flush(ctx context.Context) {
	f.mu.Lock()
	items := f.buffer
	f.buffer = nil
	f.mu.Unlock()

	if len(items) == 0 {
		return
	}

	digest := BuildDigest(items)
	if f.triager != nil {
		summaries := make([]string, len(digest.Groups))
		for i, g := range digest.Groups {
			summaries[i] = g.Summary
		}
		if line, err := f.triager.Triage(ctx, summaries); err != nil {
			slog.Warn("alert formatter: AI triage failed, continuing without it", "error", err)
		} else {
			digest.AITriage = line
		}
	}

	for _, ch := range f.channels {
		if sender, ok := ch.(DigestSender); ok {
			if err := sender.SendDigest(ctx, digest); err != nil {
				slog.Error("alert formatter: digest send failed", "channel", ch.Name(), "error", err)
			}
			continue
		}
		for _, group := range digest.Groups {
			for _, item := range group.Items {
				if err := ch.Send(ctx, item); err != nil {
					slog.Error("alert formatter: fallback item send failed", "channel", ch.Name(), "alert_id", item.ID, "error", err)
				}
			}
		}
	}
}

// groupKey determines the digest grouping key per spec.md §4.6 step 1.
func groupKey(a argusmodel.ActiveAlert) string {
	switch a.Event.Type {
	case "suspicious_outbound":
		if ip, ok := a.Event.Data["remote_ip"].(string); ok {
			return "suspicious_outbound:" + ip
		}
		return "suspicious_outbound"
	case "anomaly_detected":
		if name, ok := a.Event.Data["metric_name"].(string); ok {
			return "anomaly_detected:" + name
		}
		return "anomaly_detected"
	case "sdk_error_spike", "sdk_latency_degradation", "sdk_cold_start_spike", "sdk_service_silent", "sdk_traffic_burst":
		if service, ok := a.Event.Data["service"].(string); ok {
			return a.Event.Type + ":" + service
		}
		return a.Event.Type
	default:
		return a.RuleID + ":" + a.Event.Type
	}
}

// BuildDigest groups items by groupKey and renders each group's summary.
func BuildDigest(items []argusmodel.ActiveAlert) AlertDigest {
	order := make([]string, 0)
	groups := map[string]*DigestGroup{}
	for _, a := range items {
		key := groupKey(a)
		g, ok := groups[key]
		if !ok {
			g = &DigestGroup{Key: key}
			groups[key] = g
			order = append(order, key)
		}
		g.Items = append(g.Items, a)
	}

	out := AlertDigest{FlushedAt: time.Now()}
	for _, key := range order {
		g := groups[key]
		g.Summary = summarize(g)
		out.Groups = append(out.Groups, *g)
	}
	return out
}

func summarize(g *DigestGroup) string {
	if len(g.Items) == 0 {
		return ""
	}
	first := g.Items[0]
	switch {
	case first.Event.Type == "suspicious_outbound" && len(g.Items) > 1:
		ip, _ := first.Event.Data["remote_ip"].(string)
		return fmt.Sprintf("%d new outbound connections to %s", len(g.Items), ip)
	case len(g.Items) > 1:
		return fmt.Sprintf("%s (+%d more)", FormatEvent(first.Event), len(g.Items)-1)
	default:
		return FormatEvent(first.Event)
	}
}

// FormatEvent maps known event types to human phrases; unknown types fall
// back to the event's own message (spec.md §4.6 "Template contract").
func FormatEvent(e argusmodel.Event) string {
	switch e.Type {
	case "suspicious_outbound":
		addr, _ := e.Data["remote_ip"].(string)
		port, _ := e.Data["remote_port"].(float64)
		return fmt.Sprintf("New connection to IP %s on port %.0f", addr, port)
	case "anomaly_detected":
		name, _ := e.Data["metric_name"].(string)
		return fmt.Sprintf("Anomalous reading detected for %s", name)
	case "cpu_high":
		return "CPU usage critically high"
	case "memory_high":
		return "Memory usage critically high"
	case "disk_high":
		return "Disk usage critically high"
	default:
		return e.Message
	}
}
