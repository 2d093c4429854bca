package collector

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
	"github.com/codeready-toolchain/argus/pkg/store"
)

// errorBurstWindow and errorBurstThreshold define how many error-severity
// lines within the window count as an error_burst (spec.md §4.3: error_burst
// carries intrinsic URGENT severity).
const (
	errorBurstWindow    = 60 * time.Second
	errorBurstThreshold = 10
)

var errorLinePattern = regexp.MustCompile(`(?i)\b(error|exception|panic|fatal)\b`)

// LogCollector tails a fixed set of files, classifies matching lines, and
// publishes them. Each file is tracked by byte offset so each poll resumes
// where the previous one stopped; offsets are held in memory only, so a new
// process reads every file from the start.
type LogCollector struct {
	bus     *bus.Bus
	metrics store.MetricsRepository
	tenant  string
	paths   []string
	poll    time.Duration

	offsets     map[string]int64
	errorTimes  map[string][]time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLogCollector creates a collector over paths. poll defaults to 2s.
func NewLogCollector(b *bus.Bus, metrics store.MetricsRepository, tenant string, paths []string, poll time.Duration) *LogCollector {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &LogCollector{
		bus: b, metrics: metrics, tenant: tenant, paths: paths, poll: poll,
		offsets:    map[string]int64{},
		errorTimes: map[string][]time.Time{},
	}
}

// Start launches the tail loop.
func (c *LogCollector) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// Stop cancels the loop and waits for a bounded drain.
func (c *LogCollector) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *LogCollector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range c.paths {
				c.tail(ctx, path)
			}
		}
	}
}

func (c *LogCollector) tail(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("log collector: open failed", "path", path, "error", err)
		return
	}
	defer f.Close()

	offset := c.offsets[path]
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		slog.Warn("log collector: seek failed", "path", path, "error", err)
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	read := offset
	for scanner.Scan() {
		line := scanner.Text()
		read += int64(len(line)) + 1
		c.handleLine(ctx, path, line)
	}
	c.offsets[path] = read
}

func (c *LogCollector) handleLine(ctx context.Context, path, line string) {
	now := time.Now()
	severity := "info"
	isError := errorLinePattern.MatchString(line)
	if isError {
		severity = "error"
	}

	preview := line
	if len(preview) > 500 {
		preview = preview[:500]
	}

	if c.metrics != nil {
		if err := c.metrics.InsertLogEntry(ctx, store.LogEntry{
			Path: path, Offset: c.offsets[path], Severity: severity, Preview: preview,
			Source: "log_watcher", Timestamp: now,
		}); err != nil {
			slog.Warn("log collector: insert failed", "path", path, "error", err)
		}
	}

	if !isError {
		return
	}

	times := append(c.errorTimes[path], now)
	cutoff := now.Add(-errorBurstWindow)
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.errorTimes[path] = kept

	if len(kept) >= errorBurstThreshold {
		c.bus.Publish(argusmodel.Event{
			Source:    argusmodel.SourceLogWatcher,
			Type:      "error_burst",
			Severity:  argusmodel.SeverityUrgent,
			Message:   "error burst detected in " + path,
			Data:      map[string]any{"path": path, "count": float64(len(kept))},
			Timestamp: now,
			Tenant:    c.tenant,
		})
		c.errorTimes[path] = nil
	}
}
