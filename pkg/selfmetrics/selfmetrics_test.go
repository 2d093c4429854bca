package selfmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAndUpdatesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.InvestigationQueueDepth.Set(3)
	m.ActionsTotal.WithLabelValues("HIGH", "approved").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "argus_investigator_queue_depth" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			require.Equal(t, float64(3), f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	require.True(t, found, "expected queue depth metric to be registered")
}
