package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/store"
)

func TestMemStore_MetricsRoundTrip(t *testing.T) {
	m := store.NewMemStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.InsertMetric(ctx, store.MetricRow{Name: "cpu_percent", Value: 42, Timestamp: now}))

	rows, err := m.QueryMetricsSummary(ctx, "cpu_percent", store.Window{Since: now.Add(-time.Minute), Until: now.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 42.0, rows[0].Value)
}

func TestMemStore_FunctionMetricsBucketsAndErrorRate(t *testing.T) {
	m := store.NewMemStore()
	ctx := context.Background()
	base := time.Now().Truncate(time.Hour)

	require.NoError(t, m.InsertSpan(ctx, store.Span{Service: "checkout", Status: "ok", DurationMS: 100, Timestamp: base}))
	require.NoError(t, m.InsertSpan(ctx, store.Span{Service: "checkout", Status: "error", DurationMS: 300, Timestamp: base.Add(time.Minute)}))

	buckets, err := m.QueryFunctionMetrics(ctx, "checkout", store.Window{Since: base.Add(-time.Hour), Until: base.Add(time.Hour)}, time.Hour)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, 2, buckets[0].InvocationCount)
	require.Equal(t, 1, buckets[0].ErrorCount)
	require.InDelta(t, 0.5, buckets[0].ErrorRate, 0.001)
}

func TestMemStore_ErrorGroupsFingerprint(t *testing.T) {
	m := store.NewMemStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, m.InsertSpan(ctx, store.Span{
		Service: "api", Status: "error", ErrorType: "NilPointerException",
		ErrorMsg: "at line 42 in handler.go", Timestamp: now,
	}))
	require.NoError(t, m.InsertSpan(ctx, store.Span{
		Service: "api", Status: "error", ErrorType: "NilPointerException",
		ErrorMsg: "at line 99 in handler.go", Timestamp: now.Add(time.Second),
	}))

	groups, err := m.QueryErrorGroups(ctx, "api", store.Window{Since: now.Add(-time.Minute), Until: now.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, 2, groups[0].Count)
}

func TestMemStore_AlertAckAndMuteLifecycle(t *testing.T) {
	m := store.NewMemStore()
	ctx := context.Background()

	require.NoError(t, m.SaveActiveAlert(ctx, "t1", store.ActiveAlertRow{ID: "a1", DedupKey: "dk1", Timestamp: time.Now()}))
	active, err := m.GetActiveAlerts(ctx, "t1", false)
	require.NoError(t, err)
	require.Len(t, active, 1)

	expires := time.Now().Add(time.Hour)
	require.NoError(t, m.SaveAcknowledgment(ctx, "t1", "dk1", &expires))
	acks, err := m.LoadAcknowledgments(ctx, "t1")
	require.NoError(t, err)
	require.Contains(t, acks, "dk1")

	require.NoError(t, m.SaveMute(ctx, "t1", "rule-1", time.Now().Add(time.Hour)))
	mutes, err := m.LoadMutes(ctx, "t1")
	require.NoError(t, err)
	require.Contains(t, mutes, "rule-1")

	require.NoError(t, m.DeleteMute(ctx, "t1", "rule-1"))
	mutes, err = m.LoadMutes(ctx, "t1")
	require.NoError(t, err)
	require.NotContains(t, mutes, "rule-1")
}

func TestMemStore_AuditListLimitAndOrder(t *testing.T) {
	m := store.NewMemStore()
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.AppendAudit(ctx, "t1", store.AuditRow{
			Timestamp: base.Add(time.Duration(i) * time.Second), Action: "restart", Success: true,
		}))
	}

	entries, err := m.ListAudit(ctx, "t1", 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].Timestamp.After(entries[1].Timestamp))
}

func TestMemStore_BaselineUpsertReplacesSet(t *testing.T) {
	m := store.NewMemStore()
	ctx := context.Background()

	require.NoError(t, m.UpsertBaselines(ctx, []store.BaselineRow{{MetricName: "cpu_percent", Mean: 40}}))
	require.NoError(t, m.UpsertBaselines(ctx, []store.BaselineRow{{MetricName: "memory_percent", Mean: 60}}))

	baselines, err := m.GetBaselines(ctx)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	require.Equal(t, "memory_percent", baselines[0].MetricName)
}
