package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertManifest creates a pending manifest for a run. runID is supplied
// by the caller (it is also the bundle/replay identity) rather than
// generated here.
func (s *Store) InsertManifest(ctx context.Context, m *Manifest) (*Manifest, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			INSERT INTO manifests (run_id, tenant, project, job_type, version, status, inputs_snapshot_ref,
				env_fingerprint, tool_versions)
			VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8)
			RETURNING *`,
			m.RunID, m.Tenant, m.Project, m.JobType, nonEmptyOr(m.Version, "1.0"), m.InputsSnapshotRef,
			m.EnvFingerprint, m.ToolVersions)
		if err != nil {
			return nil, err
		}
		return pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Manifest])
	})
	if err != nil {
		return nil, err
	}
	return res.(*Manifest), nil
}

// CompleteManifest records the final outputs, decision, metrics and logs
// reference for a run and transitions it to complete or failed.
func (s *Store) CompleteManifest(ctx context.Context, tenant, runID, status string, outputs, metrics, finalDecision, manifestErr []byte, logsRef *string, now time.Time) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		tag, err := s.pool.Exec(ctx, `
			UPDATE manifests SET status = $1, outputs = $2, metrics = $3, final_decision = $4,
				error = $5, logs_ref = $6, completed_at = $7
			WHERE tenant = $8 AND run_id = $9`,
			status, outputs, metrics, finalDecision, manifestErr, logsRef, now, tenant, runID)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrNotFound
		}
		return nil, nil
	})
	return err
}

// GetManifest fetches a tenant-scoped manifest by run ID, for replay
// bundle assembly and Compare.
func (s *Store) GetManifest(ctx context.Context, tenant, runID string) (*Manifest, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `SELECT * FROM manifests WHERE tenant = $1 AND run_id = $2`, tenant, runID)
		if err != nil {
			return nil, err
		}
		row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Manifest])
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return row, err
	})
	if err != nil {
		return nil, err
	}
	return res.(*Manifest), nil
}

func nonEmptyOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
