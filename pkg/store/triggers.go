package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// ListEnabledTriggerRules returns every enabled rule for a tenant,
// optionally scoped to a project, for match evaluation against an event.
func (s *Store) ListEnabledTriggerRules(ctx context.Context, tenant string, project *string) ([]*TriggerRule, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		var rows pgx.Rows
		var err error
		if project != nil {
			rows, err = s.pool.Query(ctx, `
				SELECT * FROM trigger_rules WHERE tenant = $1 AND enabled AND (project IS NULL OR project = $2)`,
				tenant, *project)
		} else {
			rows, err = s.pool.Query(ctx, `SELECT * FROM trigger_rules WHERE tenant = $1 AND enabled`, tenant)
		}
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[TriggerRule])
	})
	if err != nil {
		return nil, err
	}
	return res.([]*TriggerRule), nil
}

// UpsertTriggerRule creates or updates a rule identified by (tenant,
// name), for declarative rule-set files that reload their rules on
// every process start without minting duplicate rows.
func (s *Store) UpsertTriggerRule(ctx context.Context, r *TriggerRule) (*TriggerRule, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			INSERT INTO trigger_rules
				(tenant, project, name, enabled, match, action, cooldown_seconds,
				 max_runs_per_hour, dedupe_key_template, allow_action_jobs)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (tenant, name) DO UPDATE SET
				project = EXCLUDED.project,
				enabled = EXCLUDED.enabled,
				match = EXCLUDED.match,
				action = EXCLUDED.action,
				cooldown_seconds = EXCLUDED.cooldown_seconds,
				max_runs_per_hour = EXCLUDED.max_runs_per_hour,
				dedupe_key_template = EXCLUDED.dedupe_key_template,
				allow_action_jobs = EXCLUDED.allow_action_jobs,
				updated_at = now()
			RETURNING *`,
			r.Tenant, r.Project, r.Name, r.Enabled, r.Match, r.Action,
			r.CooldownSeconds, r.MaxRunsPerHour, r.DedupeKeyTemplate, r.AllowActionJobs)
		if err != nil {
			return nil, err
		}
		return pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[TriggerRule])
	})
	if err != nil {
		return nil, err
	}
	return res.(*TriggerRule), nil
}

// CountRecentFires returns how many times a rule has fired since since,
// for sliding-window rate-limit evaluation.
func (s *Store) CountRecentFires(ctx context.Context, ruleID string, since time.Time) (int64, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		var n int64
		err := s.pool.QueryRow(ctx, `
			SELECT count(*) FROM trigger_fires WHERE rule_id = $1 AND fired_at >= $2`, ruleID, since).Scan(&n)
		return n, err
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// DedupeKeyFired reports whether a dedupe key has already fired for a
// rule, ever.
func (s *Store) DedupeKeyFired(ctx context.Context, ruleID, dedupeKey string) (bool, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		var n int
		err := s.pool.QueryRow(ctx, `
			SELECT count(*) FROM trigger_fires WHERE rule_id = $1 AND dedupe_key = $2`, ruleID, dedupeKey).Scan(&n)
		return n > 0, err
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// RecordFire atomically records a trigger firing and advances the rule's
// cooldown/fire-count bookkeeping, all within one transaction so a racing
// evaluator cannot double-fire the same rule (I5).
func (s *Store) RecordFire(ctx context.Context, ruleID, tenant, eventID string, dedupeKey *string, firedAt time.Time) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return nil, pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			var rule TriggerRule
			rows, err := tx.Query(ctx, `SELECT * FROM trigger_rules WHERE id = $1 FOR UPDATE`, ruleID)
			if err != nil {
				return err
			}
			row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[TriggerRule])
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			if err != nil {
				return err
			}
			rule = *row

			if rule.CooldownSeconds > 0 && rule.LastFiredAt != nil {
				if firedAt.Sub(*rule.LastFiredAt) < time.Duration(rule.CooldownSeconds)*time.Second {
					return ErrCooldownActive
				}
			}

			if _, err := tx.Exec(ctx, `
				INSERT INTO trigger_fires (rule_id, tenant, event_id, fired_at, dedupe_key)
				VALUES ($1, $2, $3, $4, $5)`, ruleID, tenant, eventID, firedAt, dedupeKey); err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				UPDATE trigger_rules SET fire_count = fire_count + 1, last_fired_at = $1, updated_at = $1
				WHERE id = $2`, firedAt, ruleID)
			return err
		})
	})
	return err
}
