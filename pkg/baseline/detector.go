package baseline

import (
	"fmt"
	"math"
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

// anomalyZThreshold is the z-score above which a sample is flagged.
const anomalyZThreshold = 2.0

// Anomaly is a flagged deviation from a metric's baseline.
type Anomaly struct {
	MetricName string
	Value      float64
	Baseline   argusmodel.Baseline
	Z          float64
	Severity   argusmodel.Severity
}

// Detector checks current samples against a Tracker's baselines.
type Detector struct {
	tracker *Tracker
}

// NewDetector wraps tracker.
func NewDetector(tracker *Tracker) *Detector {
	return &Detector{tracker: tracker}
}

// Check evaluates a single (metricName, value) sample. ok is false when no
// baseline exists yet or the baseline has zero variance (nothing to compare
// against).
func (d *Detector) Check(metricName string, value float64) (Anomaly, bool) {
	b, ok := d.tracker.Get(metricName)
	if !ok || b.StdDev <= 0 {
		return Anomaly{}, false
	}
	z := math.Abs(value-b.Mean) / b.StdDev
	if z <= anomalyZThreshold {
		return Anomaly{}, false
	}
	return Anomaly{MetricName: metricName, Value: value, Baseline: b, Z: z, Severity: severityForZ(z)}, true
}

// CheckAllCurrent evaluates a full metrics snapshot, returning every
// anomaly found. Order follows map iteration and is not stable.
func (d *Detector) CheckAllCurrent(metrics map[string]float64) []Anomaly {
	var anomalies []Anomaly
	for name, value := range metrics {
		if a, ok := d.Check(name, value); ok {
			anomalies = append(anomalies, a)
		}
	}
	return anomalies
}

// severityForZ scales severity with how extreme the deviation is: z in
// (2,3] is NOTABLE, anything beyond is URGENT.
func severityForZ(z float64) argusmodel.Severity {
	if z > 3.0 {
		return argusmodel.SeverityUrgent
	}
	return argusmodel.SeverityNotable
}

// ToEvent renders an anomaly as a bus event ready for classification and
// publication.
func (a Anomaly) ToEvent(source argusmodel.Source, tenant string) argusmodel.Event {
	return argusmodel.Event{
		Source:    source,
		Type:      "anomaly_detected",
		Severity:  a.Severity,
		Message:   fmt.Sprintf("%s is %.2f standard deviations from baseline (value=%.2f, mean=%.2f)", a.MetricName, a.Z, a.Value, a.Baseline.Mean),
		Timestamp: time.Now(),
		Tenant:    tenant,
		Data: map[string]any{
			"metric_name": a.MetricName,
			"value":       a.Value,
			"mean":        a.Baseline.Mean,
			"stddev":      a.Baseline.StdDev,
			"z_score":     a.Z,
		},
	}
}
