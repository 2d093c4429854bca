package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxOperationalRepository implements OperationalRepository against the
// operational tables defined in migrations/0001_init.up.sql.
type PgxOperationalRepository struct {
	pool *pgxpool.Pool
}

// NewPgxOperationalRepository wraps pool.
func NewPgxOperationalRepository(pool *pgxpool.Pool) *PgxOperationalRepository {
	return &PgxOperationalRepository{pool: pool}
}

var _ OperationalRepository = (*PgxOperationalRepository)(nil)

func (r *PgxOperationalRepository) SaveActiveAlert(ctx context.Context, tenant string, alert ActiveAlertRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO alert_history (id, tenant_id, rule_id, rule_name, event_type, event_source, severity, dedup_key,
			"timestamp", resolved, acknowledged_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET resolved=$10, acknowledged_by=$11`,
		alert.ID, tenant, alert.RuleID, alert.RuleName, alert.EventType, alert.EventSource, alert.Severity,
		alert.DedupKey, alert.Timestamp, alert.Resolved, nullableStr(alert.AcknowledgedBy))
	return err
}

func (r *PgxOperationalRepository) GetActiveAlerts(ctx context.Context, tenant string, includeResolved bool) ([]ActiveAlertRow, error) {
	query := `SELECT id, rule_id, rule_name, event_type, event_source, severity, dedup_key, "timestamp", resolved,
		coalesce(acknowledged_by,'') FROM alert_history WHERE tenant_id=$1`
	if !includeResolved {
		query += ` AND resolved = FALSE`
	}
	query += ` ORDER BY "timestamp" DESC`

	rows, err := r.pool.Query(ctx, query, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveAlertRow
	for rows.Next() {
		var a ActiveAlertRow
		if err := rows.Scan(&a.ID, &a.RuleID, &a.RuleName, &a.EventType, &a.EventSource, &a.Severity,
			&a.DedupKey, &a.Timestamp, &a.Resolved, &a.AcknowledgedBy); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PgxOperationalRepository) SaveAcknowledgment(ctx context.Context, tenant, dedupKey string, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO alert_acknowledgments (tenant_id, dedup_key, expires_at) VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id, dedup_key) DO UPDATE SET expires_at=$3`, tenant, dedupKey, expiresAt)
	return err
}

func (r *PgxOperationalRepository) DeleteAcknowledgment(ctx context.Context, tenant, dedupKey string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM alert_acknowledgments WHERE tenant_id=$1 AND dedup_key=$2`, tenant, dedupKey)
	return err
}

func (r *PgxOperationalRepository) LoadAcknowledgments(ctx context.Context, tenant string) (map[string]*time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT dedup_key, expires_at FROM alert_acknowledgments WHERE tenant_id=$1`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]*time.Time{}
	for rows.Next() {
		var key string
		var expiresAt *time.Time
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, err
		}
		out[key] = expiresAt
	}
	return out, rows.Err()
}

func (r *PgxOperationalRepository) SaveMute(ctx context.Context, tenant, ruleID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO alert_rule_mutes (tenant_id, rule_id, expires_at) VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id, rule_id) DO UPDATE SET expires_at=$3`, tenant, ruleID, expiresAt)
	return err
}

func (r *PgxOperationalRepository) DeleteMute(ctx context.Context, tenant, ruleID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM alert_rule_mutes WHERE tenant_id=$1 AND rule_id=$2`, tenant, ruleID)
	return err
}

func (r *PgxOperationalRepository) LoadMutes(ctx context.Context, tenant string) (map[string]time.Time, error) {
	rows, err := r.pool.Query(ctx, `SELECT rule_id, expires_at FROM alert_rule_mutes WHERE tenant_id=$1`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var ruleID string
		var expiresAt time.Time
		if err := rows.Scan(&ruleID, &expiresAt); err != nil {
			return nil, err
		}
		out[ruleID] = expiresAt
	}
	return out, rows.Err()
}

func (r *PgxOperationalRepository) SaveInvestigation(ctx context.Context, tenant string, inv InvestigationRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO investigations (investigation_id, tenant_id, event_type, priority, status, summary, tokens_used,
			started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (investigation_id) DO UPDATE SET
		  status=$5, summary=$6, tokens_used=$7, ended_at=$9`,
		inv.InvestigationID, tenant, inv.EventType, inv.Priority, inv.Status, nullableStr(inv.Summary),
		inv.TokensUsed, inv.StartedAt, inv.EndedAt)
	return err
}

func (r *PgxOperationalRepository) AppendAudit(ctx context.Context, tenant string, rec AuditRow) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (tenant_id, "timestamp", action, command, result, success, user_approved, ip_address, conversation_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		tenant, rec.Timestamp, rec.Action, rec.CommandString, nullableStr(rec.ResultExcerpt), rec.Success,
		rec.UserApproved, nullableStr(rec.IPAddress), nullableStr(rec.ConversationID))
	return err
}

func (r *PgxOperationalRepository) ListAudit(ctx context.Context, tenant string, limit int) ([]AuditRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT "timestamp", action, command, coalesce(result,''), success, user_approved,
		       coalesce(ip_address,''), coalesce(conversation_id,'')
		FROM audit_log WHERE tenant_id=$1 ORDER BY "timestamp" DESC LIMIT $2`, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var a AuditRow
		if err := rows.Scan(&a.Timestamp, &a.Action, &a.CommandString, &a.ResultExcerpt, &a.Success,
			&a.UserApproved, &a.IPAddress, &a.ConversationID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PgxOperationalRepository) SaveTokenUsage(ctx context.Context, tenant string, promptTokens, completionTokens int, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO token_usage (tenant_id, "timestamp", prompt_tokens, completion_tokens) VALUES ($1,$2,$3,$4)`,
		tenant, at, promptTokens, completionTokens)
	return err
}
