package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"

	"github.com/jobforge/jobforge/pkg/clock"
)

const pgUniqueViolation = "23505"

// Store is the Postgres-backed persistence layer. Every exported method
// runs its own transaction and is tenant-scoped at the query boundary.
type Store struct {
	pool    *pgxpool.Pool
	breaker *gobreaker.CircuitBreaker
	clk     clock.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for default run_at/locked_at timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clk = c }
}

// WithBreaker wraps every query in a circuit breaker, tripping after
// repeated database failures so a struggling Postgres instance does not
// pile up blocked worker goroutines.
func WithBreaker(settings gobreaker.Settings) Option {
	return func(s *Store) { s.breaker = gobreaker.NewCircuitBreaker(settings) }
}

// New builds a Store over an existing connection pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, clk: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) guard(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(func() (any, error) { return fn(ctx) })
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting the
// row-level helpers below run either standalone or inside a caller's
// transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InsertJob enqueues a job. If idempotencyKey is non-empty and a row
// already exists for (tenant, type, idempotencyKey), the existing row is
// returned instead of a duplicate (I2).
func (s *Store) InsertJob(ctx context.Context, j *Job) (*Job, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return insertJobRow(ctx, s.pool, j)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Job), nil
}

// EnqueueJob inserts a job and its job_request audit entry in a single
// transaction, so a crash between the two never leaves a job with no
// audit trail (spec §4.12).
func (s *Store) EnqueueJob(ctx context.Context, j *Job, audit *AuditEntry) (*Job, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		var job *Job
		err := pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			var err error
			job, err = insertJobRow(ctx, tx, j)
			if err != nil {
				return err
			}
			jobID := job.ID
			audit.JobID = &jobID
			_, err = insertAuditRow(ctx, tx, audit)
			return err
		})
		return job, err
	})
	if err != nil {
		return nil, err
	}
	return res.(*Job), nil
}

func insertJobRow(ctx context.Context, q querier, j *Job) (*Job, error) {
	var idemKey *string
	if j.IdempotencyKey != nil && *j.IdempotencyKey != "" {
		idemKey = j.IdempotencyKey
	}

	rows, err := q.Query(ctx, `
		INSERT INTO jobs (tenant, type, payload, max_attempts, run_at, created_by, idempotency_key,
			parent_bundle_id, triggering_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant, type, idempotency_key) WHERE idempotency_key IS NOT NULL
		DO NOTHING
		RETURNING *`,
		j.Tenant, j.Type, j.Payload, nonZeroOr(j.MaxAttempts, 5), j.RunAt, j.CreatedBy, idemKey,
		j.ParentBundleID, j.TriggeringEventID)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Job])
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || idemKey == nil {
		return nil, err
	}
	rows, err = q.Query(ctx, `
		SELECT * FROM jobs WHERE tenant = $1 AND type = $2 AND idempotency_key = $3`,
		j.Tenant, j.Type, *idemKey)
	if err != nil {
		return nil, err
	}
	existing, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Job])
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// ClaimJobs atomically claims up to limit queued jobs whose run_at has
// elapsed, ordered (run_at ASC, id ASC), using SKIP LOCKED so concurrent
// workers never block on each other (I1).
func (s *Store) ClaimJobs(ctx context.Context, workerIdentity string, limit int, now time.Time) ([]*Job, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		var claimed []*Job
		err := pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			rows, err := tx.Query(ctx, `
				WITH candidates AS (
					SELECT id FROM jobs
					WHERE status = 'queued' AND run_at <= $1
					ORDER BY run_at ASC, id ASC
					LIMIT $2
					FOR UPDATE SKIP LOCKED
				)
				UPDATE jobs SET
					status = 'running',
					locked_by = $3,
					locked_at = $1,
					heartbeat_at = $1,
					started_at = COALESCE(started_at, $1),
					attempts = attempts + 1,
					updated_at = $1
				WHERE id IN (SELECT id FROM candidates)
				RETURNING *`, now, limit, workerIdentity)
			if err != nil {
				return err
			}
			claimed, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[Job])
			if err != nil {
				return err
			}
			for _, job := range claimed {
				if _, err := tx.Exec(ctx, `
					INSERT INTO job_attempts (job_id, tenant, attempt_no, started_at)
					VALUES ($1, $2, $3, $4)`,
					job.ID, job.Tenant, job.Attempts, now,
				); err != nil {
					return err
				}
			}
			return nil
		})
		return claimed, err
	})
	if err != nil {
		return nil, err
	}
	return res.([]*Job), nil
}

// Heartbeat extends a running job's lease. Returns ErrNotFound if the job
// does not exist, ErrNotOwned if workerIdentity does not match locked_by,
// or ErrNotRunning if the job is not currently running.
func (s *Store) Heartbeat(ctx context.Context, tenant, jobID, workerIdentity string, now time.Time) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return nil, pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			job, err := lockJobRow(ctx, tx, tenant, jobID)
			if err != nil {
				return err
			}
			if job.Status != StatusRunning {
				return ErrNotRunning
			}
			if job.LockedBy == nil || *job.LockedBy != workerIdentity {
				return ErrNotOwned
			}
			_, err = tx.Exec(ctx, `UPDATE jobs SET heartbeat_at = $1, updated_at = $1 WHERE id = $2`, now, jobID)
			return err
		})
	})
	return err
}

// CompleteParams describes a terminal or retry transition for a claimed job.
type CompleteParams struct {
	Now            time.Time
	NextRunAt      *time.Time
	ResultPayload  []byte
	ArtifactRef    *string
	FailureError   []byte
	AttemptNote    *string
	Status         Status
}

// Complete transitions a running job to succeeded, failed (retry), or
// dead, recording the matching job_attempts/job_results row. Only the
// worker holding the lock may complete the job (I3).
func (s *Store) Complete(ctx context.Context, tenant, jobID, workerIdentity string, p CompleteParams) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return nil, pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			job, err := lockJobRow(ctx, tx, tenant, jobID)
			if err != nil {
				return err
			}
			if job.Status != StatusRunning {
				return ErrNotRunning
			}
			if job.LockedBy == nil || *job.LockedBy != workerIdentity {
				return ErrNotOwned
			}

			if _, err := tx.Exec(ctx, `
				UPDATE job_attempts SET finished_at = $1, error = $2, note = $3
				WHERE job_id = $4 AND attempt_no = $5`,
				p.Now, p.FailureError, p.AttemptNote, jobID, job.Attempts); err != nil {
				return err
			}

			switch p.Status {
			case StatusSucceeded:
				var resultID string
				if err := tx.QueryRow(ctx, `
					INSERT INTO job_results (job_id, tenant, payload, artifact_ref)
					VALUES ($1, $2, $3, $4) RETURNING id`,
					jobID, tenant, p.ResultPayload, p.ArtifactRef).Scan(&resultID); err != nil {
					return err
				}
				_, err = tx.Exec(ctx, `
					UPDATE jobs SET status = 'succeeded', result_id = $1, finished_at = $2,
						locked_by = NULL, updated_at = $2 WHERE id = $3`,
					resultID, p.Now, jobID)
				return err
			case StatusFailed:
				if p.NextRunAt == nil {
					return errors.New("store: retry requires NextRunAt")
				}
				_, err = tx.Exec(ctx, `
					UPDATE jobs SET status = 'queued', run_at = $1, error = $2,
						locked_by = NULL, locked_at = NULL, heartbeat_at = NULL, updated_at = $3
					WHERE id = $4`,
					p.NextRunAt, p.FailureError, p.Now, jobID)
				return err
			case StatusDead:
				_, err = tx.Exec(ctx, `
					UPDATE jobs SET status = 'dead', error = $1, finished_at = $2,
						locked_by = NULL, updated_at = $2 WHERE id = $3`,
					p.FailureError, p.Now, jobID)
				return err
			default:
				return errors.New("store: unsupported completion status")
			}
		})
	})
	return err
}

// Cancel moves a queued job to canceled. Permitted only from queued (I4)
// — running jobs stop cooperatively at their next heartbeat instead.
func (s *Store) Cancel(ctx context.Context, tenant, jobID string, now time.Time) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return nil, pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			return cancelRow(ctx, tx, tenant, jobID, now)
		})
	})
	return err
}

// CancelJob cancels a job and records its job_cancel audit entry in a
// single transaction (spec §4.12).
func (s *Store) CancelJob(ctx context.Context, tenant, jobID string, now time.Time, audit *AuditEntry) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return nil, pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			if err := cancelRow(ctx, tx, tenant, jobID, now); err != nil {
				return err
			}
			id := jobID
			audit.JobID = &id
			_, err := insertAuditRow(ctx, tx, audit)
			return err
		})
	})
	return err
}

func cancelRow(ctx context.Context, tx pgx.Tx, tenant, jobID string, now time.Time) error {
	job, err := lockJobRow(ctx, tx, tenant, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusQueued {
		return ErrNotCancelable
	}
	_, err = tx.Exec(ctx, `
		UPDATE jobs SET status = 'canceled', finished_at = $1, updated_at = $1 WHERE id = $2`,
		now, jobID)
	return err
}

// Reschedule moves a queued, failed, or dead job back to queued with a
// new run_at. Attempts are preserved unless the caller also raises
// maxAttempts (a non-nil value overrides it).
func (s *Store) Reschedule(ctx context.Context, tenant, jobID string, runAt, now time.Time, maxAttempts *int) error {
	_, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		return nil, pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			job, err := lockJobRow(ctx, tx, tenant, jobID)
			if err != nil {
				return err
			}
			switch job.Status {
			case StatusQueued, StatusFailed, StatusDead:
			default:
				return ErrNotReschedulable
			}
			if maxAttempts != nil {
				_, err = tx.Exec(ctx, `
					UPDATE jobs SET status = 'queued', run_at = $1, max_attempts = $2,
						finished_at = NULL, updated_at = $3 WHERE id = $4`,
					runAt, *maxAttempts, now, jobID)
			} else {
				_, err = tx.Exec(ctx, `
					UPDATE jobs SET status = 'queued', run_at = $1, finished_at = NULL, updated_at = $2
					WHERE id = $3`,
					runAt, now, jobID)
			}
			return err
		})
	})
	return err
}

// ReapStale reclaims jobs whose heartbeat has gone silent past the given
// deadline, returning them to queued for re-claim or to dead if they
// have exhausted max_attempts.
func (s *Store) ReapStale(ctx context.Context, deadline, now time.Time) (requeued, killed int64, err error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		var requeued, killed int64
		err := pgxWithTx(ctx, s.pool, func(tx pgx.Tx) error {
			killedRows, err := tx.Query(ctx, `
				UPDATE jobs SET status = 'dead', finished_at = $1, updated_at = $1,
					error = '{"reason":"reaped: max attempts exhausted"}'
				WHERE status = 'running' AND heartbeat_at < $2 AND attempts >= max_attempts
				RETURNING id, tenant, attempts`, now, deadline)
			if err != nil {
				return err
			}
			killedJobs, err := pgx.CollectRows(killedRows, pgx.RowToStructByPos[reapedJob])
			if err != nil {
				return err
			}
			killed = int64(len(killedJobs))
			if err := closeReapAttempts(ctx, tx, killedJobs, now); err != nil {
				return err
			}

			requeuedRows, err := tx.Query(ctx, `
				UPDATE jobs SET status = 'queued', locked_by = NULL, locked_at = NULL,
					heartbeat_at = NULL, updated_at = $1
				WHERE status = 'running' AND heartbeat_at < $2 AND attempts < max_attempts
				RETURNING id, tenant, attempts`, now, deadline)
			if err != nil {
				return err
			}
			requeuedJobs, err := pgx.CollectRows(requeuedRows, pgx.RowToStructByPos[reapedJob])
			if err != nil {
				return err
			}
			requeued = int64(len(requeuedJobs))
			return closeReapAttempts(ctx, tx, requeuedJobs, now)
		})
		return [2]int64{requeued, killed}, err
	})
	if err != nil {
		return 0, 0, err
	}
	pair := res.([2]int64)
	return pair[0], pair[1], nil
}

// reapedJob is the shape RETURNING id, tenant, attempts scans into for
// the job_attempts annotation below.
type reapedJob struct {
	ID      string
	Tenant  string
	Attempt int
}

// closeReapAttempts closes out the job_attempts row ClaimJobs opened
// for each reaped job's current attempt, annotated as a stale reap
// (spec §4.5, Scenario E), within the caller's transaction.
func closeReapAttempts(ctx context.Context, tx pgx.Tx, jobs []reapedJob, now time.Time) error {
	for _, j := range jobs {
		if _, err := tx.Exec(ctx, `
			UPDATE job_attempts SET finished_at = $1, note = 'stale-reap'
			WHERE job_id = $2 AND attempt_no = $3`,
			now, j.ID, j.Attempt); err != nil {
			return err
		}
	}
	return nil
}

// GetJob fetches a single tenant-scoped job.
func (s *Store) GetJob(ctx context.Context, tenant, jobID string) (*Job, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `SELECT * FROM jobs WHERE tenant = $1 AND id = $2`, tenant, jobID)
		if err != nil {
			return nil, err
		}
		row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Job])
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return row, err
	})
	if err != nil {
		return nil, err
	}
	return res.(*Job), nil
}

// ListAttempts returns a job's attempt history ordered oldest-first,
// including the stale-reap annotation closeReapAttempts writes.
func (s *Store) ListAttempts(ctx context.Context, tenant, jobID string) ([]*JobAttempt, error) {
	res, err := s.guard(ctx, func(ctx context.Context) (any, error) {
		rows, err := s.pool.Query(ctx, `
			SELECT * FROM job_attempts WHERE tenant = $1 AND job_id = $2 ORDER BY attempt_no ASC`,
			tenant, jobID)
		if err != nil {
			return nil, err
		}
		return pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[JobAttempt])
	})
	if err != nil {
		return nil, err
	}
	return res.([]*JobAttempt), nil
}

func lockJobRow(ctx context.Context, tx pgx.Tx, tenant, jobID string) (*Job, error) {
	rows, err := tx.Query(ctx, `SELECT * FROM jobs WHERE tenant = $1 AND id = $2 FOR UPDATE`, tenant, jobID)
	if err != nil {
		return nil, err
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[Job])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return row, err
}

func isTerminal(s Status) bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusDead, StatusCanceled:
		return true
	default:
		return false
	}
}

func nonZeroOr(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (code 23505), e.g. a racing idempotent insert.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func pgxWithTx(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
