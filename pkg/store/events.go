package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertEvent records an ingested event.
func (s *Store) InsertEvent(ctx context.Context, e *Event) (*Event, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return insertEventRow(ctx, s.pool, e)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Event), nil
}

// InsertEventWithAudit inserts an event and its event_ingest audit entry
// in a single transaction, so a crash between the two never leaves an
// ingested event with no audit trail (spec §4.12).
func (s *Store) InsertEventWithAudit(ctx context.Context, e *Event, audit *AuditEntry) (*Event, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		var event *Event
		err := pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			var err error
			event, err = insertEventRow(ctx, tx, e)
			if err != nil {
				return err
			}
			eventID := event.ID
			audit.EventID = &eventID
			_, err = insertAuditRow(ctx, tx, audit)
			return err
		})
		return event, err
	})
	if err != nil {
		return nil, err
	}
	return res.(*Event), nil
}

func insertEventRow(ctx context.Context, q querier, e *Event) (*Event, error) {
	rows, err := q.Query(ctx, `
		INSERT INTO events (tenant, project, type, trace_id, source_app, source_module, subject,
			payload, contains_pii, redaction_hints, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING *`,
		e.Tenant, e.Project, e.Type, e.TraceID, e.SourceApp, e.SourceModule, e.Subject,
		e.Payload, e.ContainsPII, e.RedactionHints, e.OccurredAt)
	if err != nil {
		return nil, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Event])
}

// MarkEventProcessed links an event to the job or bundle run it produced.
func (s *Store) MarkEventProcessed(ctx context.Context, tenant, eventID string, processingJobID *string, now time.Time) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		tag, err := s.pool.Exec(ctx, `
			UPDATE events SET processed = true, processed_at = $1, processing_job_id = $2
			WHERE tenant = $3 AND id = $4`, now, processingJobID, tenant, eventID)
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

// GetEvent fetches a single tenant-scoped event.
func (s *Store) GetEvent(ctx context.Context, tenant, eventID string) (*Event, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `SELECT * FROM events WHERE tenant = $1 AND id = $2`, tenant, eventID)
		if err != nil {
			return nil, err
		}
		row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Event])
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return row, err
	})
	if err != nil {
		return nil, err
	}
	return res.(*Event), nil
}
