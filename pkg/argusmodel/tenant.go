// Package argusmodel holds the plain data types shared across Argus's
// components: events, alert rules, active alerts, investigation requests,
// token budgets, baselines, pending actions, and audit records.
package argusmodel

import "context"

type tenantKey struct{}

// WithTenant returns a context carrying the given tenant id. Every store
// write/read and every entity constructed downstream of an inbound request
// carries this value — the core treats it as an opaque string.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenant)
}

// TenantFromContext returns the tenant id carried by ctx, or "" if none was set.
func TenantFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey{}).(string)
	return v
}
