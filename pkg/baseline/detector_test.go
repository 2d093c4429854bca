package baseline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

func TestDetector_Check_NoBaselineYet(t *testing.T) {
	tr := New(nil, 0, 0)
	d := NewDetector(tr)

	_, ok := d.Check("cpu_percent", 99)
	require.False(t, ok)
}

func TestDetector_Check_BelowThreshold(t *testing.T) {
	tr := New(nil, 0, 0)
	tr.baselines["cpu_percent"] = argusmodel.Baseline{MetricName: "cpu_percent", Mean: 40, StdDev: 10}
	d := NewDetector(tr)

	_, ok := d.Check("cpu_percent", 45)
	require.False(t, ok, "z=0.5 should not trigger")
}

func TestDetector_Check_NotableVsUrgent(t *testing.T) {
	tr := New(nil, 0, 0)
	tr.baselines["cpu_percent"] = argusmodel.Baseline{MetricName: "cpu_percent", Mean: 40, StdDev: 10}
	d := NewDetector(tr)

	notable, ok := d.Check("cpu_percent", 65) // z = 2.5
	require.True(t, ok)
	require.Equal(t, argusmodel.SeverityNotable, notable.Severity)

	urgent, ok := d.Check("cpu_percent", 80) // z = 4.0
	require.True(t, ok)
	require.Equal(t, argusmodel.SeverityUrgent, urgent.Severity)
}

func TestDetector_Check_ZeroStdDevSkipped(t *testing.T) {
	tr := New(nil, 0, 0)
	tr.baselines["cpu_percent"] = argusmodel.Baseline{MetricName: "cpu_percent", Mean: 40, StdDev: 0}
	d := NewDetector(tr)

	_, ok := d.Check("cpu_percent", 9999)
	require.False(t, ok)
}

func TestDetector_CheckAllCurrent(t *testing.T) {
	tr := New(nil, 0, 0)
	tr.baselines["cpu_percent"] = argusmodel.Baseline{MetricName: "cpu_percent", Mean: 40, StdDev: 10}
	tr.baselines["memory_percent"] = argusmodel.Baseline{MetricName: "memory_percent", Mean: 50, StdDev: 5}
	d := NewDetector(tr)

	anomalies := d.CheckAllCurrent(map[string]float64{
		"cpu_percent":    80, // anomalous
		"memory_percent": 51, // not anomalous
	})
	require.Len(t, anomalies, 1)
	require.Equal(t, "cpu_percent", anomalies[0].MetricName)
}

func TestAnomaly_ToEvent(t *testing.T) {
	a := Anomaly{
		MetricName: "cpu_percent", Value: 80, Z: 4.0, Severity: argusmodel.SeverityUrgent,
		Baseline: argusmodel.Baseline{Mean: 40, StdDev: 10},
	}
	e := a.ToEvent(argusmodel.SourceSystemMetrics, "tenant-a")
	require.Equal(t, "anomaly_detected", e.Type)
	require.Equal(t, argusmodel.SeverityUrgent, e.Severity)
	require.Equal(t, "tenant-a", e.Tenant)
	v, ok := e.Value("z_score")
	require.True(t, ok)
	require.Equal(t, 4.0, v)
}
