package alert

import "github.com/codeready-toolchain/argus/pkg/argusmodel"

func eventTypes(types ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(types))
	for _, t := range types {
		m[t] = struct{}{}
	}
	return m
}

// DefaultRules returns the built-in rule set covering every event type the
// collectors, classifier, and baseline detector are known to produce
// (spec.md §4.3/§4.4/§4.5). Deployments may replace this list entirely via
// their own configuration; it exists so the system is useful out of the box.
func DefaultRules() []*argusmodel.AlertRule {
	return []*argusmodel.AlertRule{
		{
			ID:              "host-resource-pressure",
			Name:            "Host resource pressure",
			EventTypes:      eventTypes("cpu_high", "memory_high", "disk_high"),
			MinSeverity:     argusmodel.SeverityNotable,
			CooldownSeconds: 300,
			AutoInvestigate: false,
		},
		{
			ID:              "process-crash",
			Name:            "Process crashed or OOM-killed",
			EventTypes:      eventTypes("process_crashed", "process_oom_killed"),
			MinSeverity:     argusmodel.SeverityNotable,
			CooldownSeconds: 0,
			AutoInvestigate: true,
		},
		{
			ID:              "security-open-port",
			Name:            "New listening port observed",
			EventTypes:      eventTypes("new_open_port"),
			MinSeverity:     argusmodel.SeverityNotable,
			CooldownSeconds: 600,
			AutoInvestigate: true,
		},
		{
			ID:              "log-error-burst",
			Name:            "Error burst in logs",
			EventTypes:      eventTypes("error_burst", "new_error_pattern"),
			MinSeverity:     argusmodel.SeverityNotable,
			CooldownSeconds: 120,
			AutoInvestigate: true,
		},
		{
			ID:              "sdk-anomaly",
			Name:            "SDK telemetry anomaly",
			EventTypes: eventTypes(
				"sdk_error_spike", "sdk_latency_degradation", "sdk_cold_start_spike",
				"sdk_service_silent", "sdk_traffic_burst",
			),
			MinSeverity:     argusmodel.SeverityNotable,
			CooldownSeconds: 300,
			AutoInvestigate: true,
		},
		{
			ID:              "baseline-anomaly",
			Name:            "Metric deviates from baseline",
			EventTypes:      eventTypes("anomaly_detected"),
			MinSeverity:     argusmodel.SeverityNotable,
			CooldownSeconds: 300,
			AutoInvestigate: false,
		},
	}
}
