package argusmodel

import "time"

// AlertRule is the static (except for mute) condition that turns matching
// events into alerts.
type AlertRule struct {
	ID              string
	Name            string
	EventTypes      map[string]struct{}
	MinSeverity     Severity
	CooldownSeconds int
	AutoInvestigate bool
}

// Matches reports whether rule matches e: e.Type is in rule.EventTypes and
// e.Severity is at least rule.MinSeverity.
func (r *AlertRule) Matches(e Event) bool {
	if _, ok := r.EventTypes[e.Type]; !ok {
		return false
	}
	return e.Severity.AtLeast(r.MinSeverity)
}

// ActiveAlert is a fired, possibly-resolved alert instance.
type ActiveAlert struct {
	ID                     string
	RuleID                 string
	RuleName               string
	Event                  Event
	Severity               Severity
	DedupKey               string
	Timestamp              time.Time
	Resolved               bool
	AcknowledgedBy         string
	AcknowledgedAt         *time.Time
	AcknowledgedExpiresAt  *time.Time
}
