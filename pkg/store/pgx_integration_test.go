//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/store"
	"github.com/codeready-toolchain/argus/test/util"
)

// Run with: go test -tags=integration ./pkg/store/...
// Grounded on tarsy's pkg/database/client_test.go, which gates its
// container-backed suite behind a CI_DATABASE_URL / testcontainer fallback.

func newTestClient(t *testing.T) *store.Client {
	t.Helper()
	dsn := util.NewTestSchema(t)
	c, err := store.NewClientFromDSN(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestPgxMetricsRepository_InsertAndQuery(t *testing.T) {
	c := newTestClient(t)
	repo := store.NewPgxMetricsRepository(c.Pool)
	ctx := argusmodel.WithTenant(context.Background(), "tenant-a")

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.InsertMetric(ctx, store.MetricRow{
		Name: "cpu_percent", Value: 87.5, Labels: map[string]string{"host": "web-1"}, Timestamp: now,
	}))

	rows, err := repo.QueryMetricsSummary(ctx, "cpu_percent", store.Window{
		Since: now.Add(-time.Minute), Until: now.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 87.5, rows[0].Value, 0.001)
}

func TestPgxMetricsRepository_Baselines(t *testing.T) {
	c := newTestClient(t)
	repo := store.NewPgxMetricsRepository(c.Pool)
	ctx := argusmodel.WithTenant(context.Background(), "tenant-b")

	require.NoError(t, repo.UpsertBaselines(ctx, []store.BaselineRow{
		{MetricName: "cpu_percent", Mean: 40, StdDev: 5, P50: 38, P95: 55, P99: 70, SampleCount: 1000, AsOf: time.Now()},
	}))

	baselines, err := repo.GetBaselines(ctx)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	require.Equal(t, "cpu_percent", baselines[0].MetricName)

	// A second refresh must fully replace the prior set.
	require.NoError(t, repo.UpsertBaselines(ctx, []store.BaselineRow{
		{MetricName: "memory_percent", Mean: 60, StdDev: 8, AsOf: time.Now()},
	}))
	baselines, err = repo.GetBaselines(ctx)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	require.Equal(t, "memory_percent", baselines[0].MetricName)
}

func TestPgxOperationalRepository_AlertLifecycle(t *testing.T) {
	c := newTestClient(t)
	repo := store.NewPgxOperationalRepository(c.Pool)
	ctx := context.Background()
	tenant := "tenant-c"

	alert := store.ActiveAlertRow{
		ID: "alert-1", RuleID: "rule-1", RuleName: "High CPU", EventType: "high_cpu",
		EventSource: "system_metrics", Severity: "urgent", DedupKey: "rule-1:web-1", Timestamp: time.Now(),
	}
	require.NoError(t, repo.SaveActiveAlert(ctx, tenant, alert))

	active, err := repo.GetActiveAlerts(ctx, tenant, false)
	require.NoError(t, err)
	require.Len(t, active, 1)

	expires := time.Now().Add(time.Hour)
	require.NoError(t, repo.SaveAcknowledgment(ctx, tenant, alert.DedupKey, &expires))
	acks, err := repo.LoadAcknowledgments(ctx, tenant)
	require.NoError(t, err)
	require.Contains(t, acks, alert.DedupKey)

	require.NoError(t, repo.DeleteAcknowledgment(ctx, tenant, alert.DedupKey))
	acks, err = repo.LoadAcknowledgments(ctx, tenant)
	require.NoError(t, err)
	require.NotContains(t, acks, alert.DedupKey)
}

func TestPgxOperationalRepository_AuditAndTokenUsage(t *testing.T) {
	c := newTestClient(t)
	repo := store.NewPgxOperationalRepository(c.Pool)
	ctx := context.Background()
	tenant := "tenant-d"

	require.NoError(t, repo.AppendAudit(ctx, tenant, store.AuditRow{
		Timestamp: time.Now(), Action: "restart_service", CommandString: "systemctl restart web",
		Success: true, UserApproved: true,
	}))
	entries, err := repo.ListAudit(ctx, tenant, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, repo.SaveTokenUsage(ctx, tenant, 1200, 300, time.Now()))
}
