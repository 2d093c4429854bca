package argusmodel

import "time"

// Severity is the three-tier classification applied by the classifier or
// set directly by a producer.
type Severity string

const (
	SeverityNormal  Severity = "NORMAL"
	SeverityNotable Severity = "NOTABLE"
	SeverityUrgent  Severity = "URGENT"
)

// severityRank orders severities for min-severity comparisons (rule
// matching, subscriber filters).
var severityRank = map[Severity]int{
	SeverityNormal:  0,
	SeverityNotable: 1,
	SeverityUrgent:  2,
}

// AtLeast reports whether s is at least as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Valid reports whether s is one of the three known severities.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Source identifies the producer of an event.
type Source string

const (
	SourceSystemMetrics  Source = "system_metrics"
	SourceProcessMonitor Source = "process_monitor"
	SourceLogWatcher     Source = "log_watcher"
	SourceSecurityScanner Source = "security_scanner"
	SourceSDKTelemetry   Source = "sdk_telemetry"
	SourceScheduler      Source = "scheduler"
)

// Event is the uniformly typed record that flows through the bus.
// Immutable after classification.
type Event struct {
	Source    Source
	Type      string
	Severity  Severity
	Message   string
	Data      map[string]any
	Timestamp time.Time
	Tenant    string
}

// Value returns the numeric value for a data key, and whether it was
// present and numeric. Used by the classifier and anomaly detector, which
// both read float64-valued metric keys out of Event.Data.
func (e Event) Value(key string) (float64, bool) {
	v, ok := e.Data[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
