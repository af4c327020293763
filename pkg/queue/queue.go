// Package queue implements the job-queue protocol (enqueue, claim,
// heartbeat, complete, cancel, reschedule, reap) on top of pkg/store,
// adding the business rules the store itself stays agnostic of:
// default field population, backoff-on-retry, and audit emission.
package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobforge/jobforge/pkg/clock"
	"github.com/jobforge/jobforge/pkg/flags"
	"github.com/jobforge/jobforge/pkg/store"
)

// Job, Status and the terminal status constants are the store's own
// row shape — the queue protocol does not reshape them, only governs
// the transitions between them.
type Job = store.Job
type Status = store.Status

const (
	StatusQueued    = store.StatusQueued
	StatusRunning   = store.StatusRunning
	StatusSucceeded = store.StatusSucceeded
	StatusFailed    = store.StatusFailed
	StatusDead      = store.StatusDead
	StatusCanceled  = store.StatusCanceled
)

const (
	DefaultMaxAttempts     = 5
	DefaultPollInterval    = 2 * time.Second
	DefaultHeartbeatPeriod = 30 * time.Second
	DefaultReapThreshold   = 5 * time.Minute
)

// Queue is the job-queue protocol surface. Workers and handlers depend
// on this, never on pkg/store directly.
type Queue struct {
	store  *store.Store
	clk    clock.Clock
	logger *slog.Logger
	flags  *flags.Registry
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the clock used for run_at/now computation —
// tests inject a clock.Virtual to assert exact backoff timings.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clk = c }
}

// WithLogger wires the structured logger audit_logging_enabled mirrors
// every admission-point audit entry to, alongside the store's own
// durable audit_entries row.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithFlags wires the feature-flag registry audit_logging_enabled is
// read from.
func WithFlags(fl *flags.Registry) Option {
	return func(q *Queue) { q.flags = fl }
}

// New builds a Queue over a Store.
func New(s *store.Store, opts ...Option) *Queue {
	q := &Queue{store: s, clk: clock.New()}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// logAudit mirrors an admission-point decision to the structured logger
// when audit_logging_enabled is on. The store's audit_entries row is
// the system of record regardless (spec §4.12); this is an additional,
// optional sink for log-aggregation/SIEM consumers.
func (q *Queue) logAudit(action string, fields ...any) {
	if q.flags == nil || q.logger == nil || !q.flags.Enabled(flags.AuditLoggingEnabled) {
		return
	}
	q.logger.Info("audit: "+action, fields...)
}

// EnqueueParams describes a new job (spec §4.5 Enqueue).
type EnqueueParams struct {
	RunAt             *time.Time
	IdempotencyKey    *string
	CreatedBy         *string
	ParentBundleID    *string
	TriggeringEventID *string
	Tenant            string
	Type              string
	Payload           []byte
	MaxAttempts       int
}

// Enqueue creates a job, or returns the existing row unchanged if
// idempotencyKey collides with a prior enqueue for the same
// (tenant, type) (I2). Emits audit(job_request).
func (q *Queue) Enqueue(ctx context.Context, p EnqueueParams) (*Job, error) {
	now := q.clk.Now()
	runAt := now
	if p.RunAt != nil {
		runAt = *p.RunAt
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	checkResult := true
	job, err := q.store.EnqueueJob(ctx, &store.Job{
		Tenant: p.Tenant, Type: p.Type, Payload: p.Payload, RunAt: runAt,
		MaxAttempts: maxAttempts, IdempotencyKey: p.IdempotencyKey, CreatedBy: p.CreatedBy,
		ParentBundleID: p.ParentBundleID, TriggeringEventID: p.TriggeringEventID,
	}, &store.AuditEntry{
		Tenant: p.Tenant, Action: "job_request", PolicyCheckResult: &checkResult,
	})
	if err != nil {
		return nil, err
	}
	q.logAudit("job_request", "tenant", p.Tenant, "job_id", job.ID, "type", p.Type)
	return job, nil
}

// ClaimJobs selects up to limit queued, due jobs and transitions them
// to running (spec §4.5 ClaimJobs).
func (q *Queue) ClaimJobs(ctx context.Context, workerIdentity string, limit int) ([]*Job, error) {
	return q.store.ClaimJobs(ctx, workerIdentity, limit, q.clk.Now())
}

// Heartbeat extends a running job's lease.
func (q *Queue) Heartbeat(ctx context.Context, tenant, jobID, workerIdentity string) error {
	return q.store.Heartbeat(ctx, tenant, jobID, workerIdentity, q.clk.Now())
}

// Outcome is the terminal disposition a handler reports to Complete.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// CompleteParams describes a handler's outcome for a claimed job.
type CompleteParams struct {
	Error       []byte
	Note        *string
	Result      []byte
	ArtifactRef *string
	Outcome     Outcome
	// Terminal forces a failed outcome straight to dead regardless of
	// attempts remaining — used for BadInput, which is never retried
	// (spec §4.7, §7).
	Terminal bool
}

// Complete applies a handler's outcome: on success it persists the
// result; on failure it either re-queues with exponential backoff or
// moves the job to dead once attempts are exhausted or p.Terminal is
// set (spec §4.5).
func (q *Queue) Complete(ctx context.Context, tenant, jobID, workerIdentity string, p CompleteParams) (Status, error) {
	now := q.clk.Now()

	if p.Outcome == OutcomeSucceeded {
		err := q.store.Complete(ctx, tenant, jobID, workerIdentity, store.CompleteParams{
			Now: now, Status: StatusSucceeded, ResultPayload: p.Result, ArtifactRef: p.ArtifactRef,
			AttemptNote: p.Note,
		})
		if err != nil {
			return "", err
		}
		return StatusSucceeded, nil
	}

	job, err := q.store.GetJob(ctx, tenant, jobID)
	if err != nil {
		return "", err
	}

	if p.Terminal || job.Attempts >= job.MaxAttempts {
		err := q.store.Complete(ctx, tenant, jobID, workerIdentity, store.CompleteParams{
			Now: now, Status: StatusDead, FailureError: p.Error, AttemptNote: p.Note,
		})
		if err != nil {
			return "", err
		}
		return StatusDead, nil
	}

	nextRunAt := now.Add(clock.Backoff(job.Attempts))
	err = q.store.Complete(ctx, tenant, jobID, workerIdentity, store.CompleteParams{
		Now: now, Status: StatusFailed, NextRunAt: &nextRunAt, FailureError: p.Error, AttemptNote: p.Note,
	})
	if err != nil {
		return "", err
	}
	return StatusQueued, nil
}

// Cancel moves a queued job to canceled (I4). Running jobs cannot be
// canceled directly; cooperative stop happens at the next heartbeat.
func (q *Queue) Cancel(ctx context.Context, tenant, jobID string) error {
	if err := q.store.CancelJob(ctx, tenant, jobID, q.clk.Now(), &store.AuditEntry{
		Tenant: tenant, Action: "job_cancel",
	}); err != nil {
		return err
	}
	q.logAudit("job_cancel", "tenant", tenant, "job_id", jobID)
	return nil
}

// Reschedule moves a queued, failed, or dead job back to queued with a
// new run_at, preserving attempts unless maxAttempts raises the ceiling.
func (q *Queue) Reschedule(ctx context.Context, tenant, jobID string, runAt time.Time, maxAttempts *int) error {
	return q.store.Reschedule(ctx, tenant, jobID, runAt, q.clk.Now(), maxAttempts)
}

// ReapStale requeues or kills jobs whose heartbeat has gone silent past
// threshold (default 5 minutes).
func (q *Queue) ReapStale(ctx context.Context, threshold time.Duration) (requeued, killed int64, err error) {
	now := q.clk.Now()
	return q.store.ReapStale(ctx, now.Add(-threshold), now)
}
