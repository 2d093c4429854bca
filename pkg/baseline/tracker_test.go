package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/store"
)

func seedMetric(t *testing.T, ms *store.MemStore, name string, values []float64, at time.Time) {
	t.Helper()
	for i, v := range values {
		require.NoError(t, ms.InsertMetric(context.Background(), store.MetricRow{
			Name: name, Value: v, Timestamp: at.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestTracker_Refresh_SkipsBelowMinSampleCount(t *testing.T) {
	ms := store.NewMemStore()
	seedMetric(t, ms, "cpu_percent", []float64{1, 2, 3}, time.Now())

	tr := New(ms, time.Hour, 7*24*time.Hour)
	tr.Refresh(context.Background())

	_, ok := tr.Get("cpu_percent")
	require.False(t, ok, "fewer than minSampleCount samples must not produce a baseline")
}

func TestTracker_Refresh_ComputesBaseline(t *testing.T) {
	ms := store.NewMemStore()
	values := make([]float64, 20)
	for i := range values {
		values[i] = 40
	}
	seedMetric(t, ms, "cpu_percent", values, time.Now())

	tr := New(ms, time.Hour, 7*24*time.Hour)
	tr.Refresh(context.Background())

	b, ok := tr.Get("cpu_percent")
	require.True(t, ok)
	require.Equal(t, 40.0, b.Mean)
	require.Equal(t, 20, b.SampleCount)

	persisted, err := ms.GetBaselines(context.Background())
	require.NoError(t, err)
	require.Len(t, persisted, 1)
}

func TestSDKMetricKey_AndSpanDurationKey(t *testing.T) {
	require.Equal(t, "sdk.checkout.latency_ms", SDKMetricKey("checkout", "latency_ms"))
	require.Equal(t, "sdk.checkout.span.db_query", SpanDurationKey("checkout", "db_query"))
}
