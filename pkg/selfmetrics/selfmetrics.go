// Package selfmetrics exports Argus's own operational metrics (queue depth,
// worker utilization, budget use, active alerts, bus subscribers, actions) as
// Prometheus collectors, an ambient self-observability surface spec.md does
// not exclude.
package selfmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the gauges/counters. cmd/argus registers them but does
// not pass the bundle to any component, so nothing there updates them.
type Metrics struct {
	InvestigationQueueDepth prometheus.Gauge
	InvestigationsActive    prometheus.Gauge
	InvestigationsTotal     *prometheus.CounterVec

	BudgetTokensUsedDaily  prometheus.Gauge
	BudgetTokensUsedHourly prometheus.Gauge
	BudgetRejectionsTotal  *prometheus.CounterVec

	ActiveAlerts prometheus.Gauge
	AlertsTotal  *prometheus.CounterVec

	BusSubscribers prometheus.Gauge

	ActionsTotal *prometheus.CounterVec
}

// New registers all collectors against reg and returns the bundle. Callers
// typically pass prometheus.NewRegistry() so tests don't collide with the
// global default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InvestigationQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "argus", Subsystem: "investigator", Name: "queue_depth",
			Help: "Number of investigation requests currently queued.",
		}),
		InvestigationsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "argus", Subsystem: "investigator", Name: "active",
			Help: "Number of investigations currently running.",
		}),
		InvestigationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "argus", Subsystem: "investigator", Name: "investigations_total",
			Help: "Total investigations by terminal status.",
		}, []string{"status"}),
		BudgetTokensUsedDaily: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "argus", Subsystem: "budget", Name: "tokens_used_daily",
			Help: "Tokens consumed in the current daily budget window.",
		}),
		BudgetTokensUsedHourly: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "argus", Subsystem: "budget", Name: "tokens_used_hourly",
			Help: "Tokens consumed in the current hourly budget window.",
		}),
		BudgetRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "argus", Subsystem: "budget", Name: "rejections_total",
			Help: "Investigation requests rejected for lack of budget, by priority.",
		}, []string{"priority"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "argus", Subsystem: "alert", Name: "active",
			Help: "Number of currently active (unresolved) alerts.",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "argus", Subsystem: "alert", Name: "fired_total",
			Help: "Total alerts fired, by severity.",
		}, []string{"severity"}),
		BusSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "argus", Subsystem: "bus", Name: "subscribers",
			Help: "Number of currently registered event bus subscribers.",
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "argus", Subsystem: "action", Name: "total",
			Help: "Total command actions, by risk and outcome.",
		}, []string{"risk", "outcome"}),
	}

	reg.MustRegister(
		m.InvestigationQueueDepth,
		m.InvestigationsActive,
		m.InvestigationsTotal,
		m.BudgetTokensUsedDaily,
		m.BudgetTokensUsedHourly,
		m.BudgetRejectionsTotal,
		m.ActiveAlerts,
		m.AlertsTotal,
		m.BusSubscribers,
		m.ActionsTotal,
	)
	return m
}
