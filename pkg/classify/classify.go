// Package classify implements the pure event → (type, severity) mapping
// described in spec.md §4.3. It has no receiver state beyond the
// configured rule table, mirroring the teacher's preference for small
// free functions over service objects for pure data transforms.
package classify

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

// ThresholdRule maps a numeric metric key present in an event's Data to a
// derived type/severity/message when it crosses one of two thresholds.
type ThresholdRule struct {
	MetricName        string
	NotableThreshold  float64
	UrgentThreshold   float64
	DerivedType       string
	MessageTemplate   string // may reference "{value}" and "{metric}"
}

// intrinsicSeverity holds event types that carry a fixed severity when
// their producer didn't already set one.
var intrinsicSeverity = map[string]argusmodel.Severity{
	"process_crashed":    argusmodel.SeverityUrgent,
	"process_oom_killed": argusmodel.SeverityUrgent,
	"error_burst":        argusmodel.SeverityUrgent,
	"new_error_pattern":  argusmodel.SeverityNotable,
	"new_open_port":      argusmodel.SeverityNotable,
}

// Classifier applies a fixed set of ThresholdRules to raw collector events.
type Classifier struct {
	rules []ThresholdRule
}

// New creates a Classifier configured with rules.
func New(rules []ThresholdRule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns e with Type/Severity/Message possibly updated.
//
// Pre-classified events (severity already NOTABLE/URGENT) are returned
// unmodified. Otherwise: intrinsic-severity types are applied first, then
// every configured threshold rule whose metric key is present in e.Data is
// evaluated in order; a later matching rule may refine an earlier one's
// Decision since the spec does not mandate first-match-wins here (unlike
// the sandbox's risk classifier).
func (c *Classifier) Classify(e argusmodel.Event) argusmodel.Event {
	if e.Severity == argusmodel.SeverityNotable || e.Severity == argusmodel.SeverityUrgent {
		return e
	}

	if sev, ok := intrinsicSeverity[e.Type]; ok {
		e.Severity = sev
	}

	for _, rule := range c.rules {
		value, ok := e.Value(rule.MetricName)
		if !ok {
			continue
		}
		switch {
		case value >= rule.UrgentThreshold:
			e.Severity = argusmodel.SeverityUrgent
			e.Type = rule.DerivedType
			e.Message = renderTemplate(rule.MessageTemplate, rule.MetricName, value)
		case value >= rule.NotableThreshold:
			e.Severity = argusmodel.SeverityNotable
			e.Type = rule.DerivedType
			e.Message = renderTemplate(rule.MessageTemplate, rule.MetricName, value)
		}
	}

	if e.Severity == "" {
		e.Severity = argusmodel.SeverityNormal
	}
	return e
}

func renderTemplate(tmpl, metric string, value float64) string {
	if tmpl == "" {
		return fmt.Sprintf("%s is %.2f", metric, value)
	}
	out := strings.ReplaceAll(tmpl, "{metric}", metric)
	out = strings.ReplaceAll(out, "{value}", fmt.Sprintf("%.2f", value))
	return out
}

// DefaultThresholdRules returns the baseline rule set Argus ships with for
// the core host metrics (cpu, memory, disk). Collectors and tests may
// extend or replace this list via config.
func DefaultThresholdRules() []ThresholdRule {
	return []ThresholdRule{
		{
			MetricName:       "cpu_percent",
			NotableThreshold: 80,
			UrgentThreshold:  95,
			DerivedType:      "cpu_high",
			MessageTemplate:  "CPU usage at {value}%",
		},
		{
			MetricName:       "memory_percent",
			NotableThreshold: 80,
			UrgentThreshold:  95,
			DerivedType:      "memory_high",
			MessageTemplate:  "Memory usage at {value}%",
		},
		{
			MetricName:       "disk_percent",
			NotableThreshold: 85,
			UrgentThreshold:  95,
			DerivedType:      "disk_high",
			MessageTemplate:  "Disk usage at {value}%",
		},
	}
}
