package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// InsertAudit appends an audit entry. Callers write the audit row inside
// the same transaction as the decision it records wherever the mutating
// operation exposes one (e.g. EnqueueJob, CancelJob); standalone
// admission checks (e.g. a rejected policy token) call this directly.
func (s *Store) InsertAudit(ctx context.Context, a *AuditEntry) (*AuditEntry, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return insertAuditRow(ctx, s.pool, a)
	})
	if err != nil {
		return nil, err
	}
	return res.(*AuditEntry), nil
}

func insertAuditRow(ctx context.Context, q querier, a *AuditEntry) (*AuditEntry, error) {
	rows, err := q.Query(ctx, `
		INSERT INTO audit_entries (tenant, project, action, actor, event_id, job_id, template_key,
			request_payload, response_summary, scopes_granted, policy_token_used, policy_check_result,
			duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING *`,
		a.Tenant, a.Project, a.Action, a.Actor, a.EventID, a.JobID, a.TemplateKey,
		a.RequestPayload, a.ResponseSummary, a.ScopesGranted, a.PolicyTokenUsed, a.PolicyCheckResult,
		a.DurationMS)
	if err != nil {
		return nil, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[AuditEntry])
}

// ListAudit returns recent audit entries for a tenant, newest first,
// capped at limit.
func (s *Store) ListAudit(ctx context.Context, tenant string, limit int) ([]*AuditEntry, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT * FROM audit_entries WHERE tenant = $1 ORDER BY created_at DESC LIMIT $2`, tenant, limit)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[AuditEntry])
	})
	if err != nil {
		return nil, err
	}
	return res.([]*AuditEntry), nil
}
