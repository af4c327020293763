package bundle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jobforge/jobforge/pkg/clock"
	"github.com/jobforge/jobforge/pkg/flags"
	"github.com/jobforge/jobforge/pkg/policy"
	"github.com/jobforge/jobforge/pkg/queue"
	"github.com/jobforge/jobforge/pkg/store"
)

// Mode selects whether accepted requests are actually enqueued.
type Mode string

const (
	ModeDryRun  Mode = "dry_run"
	ModeExecute Mode = "execute"
)

// RequestStatus is the per-request outcome reported back in a Result.
type RequestStatus string

const (
	StatusAccepted RequestStatus = "accepted"
	StatusSkipped  RequestStatus = "skipped"
	StatusDenied   RequestStatus = "denied"
	StatusError    RequestStatus = "error"
)

// RequestResult is one request's disposition within a bundle run.
type RequestResult struct {
	RequestID string
	Status    RequestStatus
	Reason    string
	JobID     *string
}

// Summary tallies a bundle run's request dispositions (spec §4.10
// step 5).
type Summary struct {
	Total             int
	Accepted          int
	Skipped           int
	Denied            int
	ActionJobsBlocked int
}

// Result is the outcome of one Execute call.
type Result struct {
	Summary  Summary
	Requests []RequestResult
}

// Enqueuer is the subset of the queue protocol Execute needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, p queue.EnqueueParams) (*queue.Job, error)
}

// Auditor is the subset of the store Execute needs to record its
// policy-check admission entry.
type Auditor interface {
	InsertAudit(ctx context.Context, a *store.AuditEntry) (*store.AuditEntry, error)
}

// Executor runs request bundles against the queue protocol, enforcing
// tenant isolation, duplicate suppression, and policy-token gating for
// action jobs (spec §4.10).
type Executor struct {
	q      Enqueuer
	audit  Auditor
	flags  *flags.Registry
	signer *policy.Signer
	clk    clock.Clock
}

// Option configures an Executor.
type Option func(*Executor)

// WithClock overrides the clock stored on the Executor. The Executor does
// not read it: policy-token expiry is checked against the Signer's own
// clock (see policy.WithClock).
func WithClock(c clock.Clock) Option {
	return func(e *Executor) { e.clk = c }
}

// New builds an Executor.
func New(q Enqueuer, audit Auditor, fl *flags.Registry, signer *policy.Signer, opts ...Option) *Executor {
	e := &Executor{q: q, audit: audit, flags: fl, signer: signer, clk: clock.New()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute processes a bundle's requests in order, per spec §4.10:
// tenant/project isolation, duplicate suppression, policy-token
// gating for action jobs (bundle-level atomic denial), the autopilot
// kill switch, then enqueue (or dry-run) the survivors.
func (e *Executor) Execute(ctx context.Context, b *RequestBundle, mode Mode, token *policy.Token) (*Result, error) {
	if len(b.Requests) > MaxRequests {
		return nil, ErrTooManyRequests
	}
	for _, r := range b.Requests {
		if r.Tenant != b.Tenant {
			return nil, ErrTenantMismatch
		}
		if b.Project != nil && r.Project != nil && *r.Project != *b.Project {
			return nil, ErrTenantMismatch
		}
	}

	results := make([]RequestResult, len(b.Requests))
	seenIDs := make(map[string]bool, len(b.Requests))
	seenKeys := make(map[string]bool, len(b.Requests))
	accepted := make([]bool, len(b.Requests))

	for i, r := range b.Requests {
		if seenIDs[r.ID] {
			results[i] = RequestResult{RequestID: r.ID, Status: StatusSkipped, Reason: "duplicate_request_id"}
			continue
		}
		seenIDs[r.ID] = true
		if r.IdempotencyKey != nil && seenKeys[*r.IdempotencyKey] {
			results[i] = RequestResult{RequestID: r.ID, Status: StatusSkipped, Reason: "duplicate_idempotency_key"}
			continue
		}
		if r.IdempotencyKey != nil {
			seenKeys[*r.IdempotencyKey] = true
		}
		accepted[i] = true
	}

	if !e.flags.Enabled(flags.AutopilotJobsEnabled) {
		for i, r := range b.Requests {
			if accepted[i] {
				results[i] = RequestResult{RequestID: r.ID, Status: StatusDenied, Reason: "Disabled"}
				accepted[i] = false
			}
		}
		return e.finish(ctx, b, mode, results, accepted)
	}

	hasActionJob := false
	for i, r := range b.Requests {
		if accepted[i] && r.IsActionJob {
			hasActionJob = true
			break
		}
	}

	if hasActionJob {
		var policyOK bool
		var reason string
		if !e.flags.Enabled(flags.ActionJobsEnabled) {
			policyOK, reason = false, "Disabled"
		} else {
			policyOK, reason = e.checkPolicy(b, token, accepted)
		}
		if err := e.recordPolicyCheck(ctx, b, policyOK, reason); err != nil {
			return nil, err
		}
		if !policyOK {
			for i, r := range b.Requests {
				if accepted[i] {
					results[i] = RequestResult{RequestID: r.ID, Status: StatusDenied, Reason: reason}
					accepted[i] = false
				}
			}
		}
	}

	return e.finish(ctx, b, mode, results, accepted)
}

// checkPolicy enforces spec §4.10 step 3: every still-accepted action
// job must carry a token with sufficient scopes, matching tenant and
// action, unexpired, and correctly signed. A single failing action job
// denies the whole bundle.
func (e *Executor) checkPolicy(b *RequestBundle, token *policy.Token, accepted []bool) (ok bool, reason string) {
	requireToken := e.flags.Enabled(flags.RequirePolicyTokens)
	for i, r := range b.Requests {
		if !accepted[i] || !r.IsActionJob {
			continue
		}
		if token == nil {
			if !requireToken {
				continue
			}
			return false, policy.ErrSecretMissing.Error()
		}
		// A token presented when require_policy_tokens is off is still
		// verified in full — disabling the requirement waives absence,
		// never a bad signature or scope mismatch.
		if err := e.signer.Verify(token, r.RequiredScopes, r.Tenant, r.JobType); err != nil {
			return false, err.Error()
		}
	}
	return true, ""
}

func (e *Executor) recordPolicyCheck(ctx context.Context, b *RequestBundle, ok bool, reason string) error {
	result := ok
	var summary []byte
	if !ok {
		summary, _ = json.Marshal(map[string]string{"reason": reason})
	}
	_, err := e.audit.InsertAudit(ctx, &store.AuditEntry{
		Tenant: b.Tenant, Project: b.Project, Action: "policy_check",
		PolicyCheckResult: &result, ResponseSummary: summary,
	})
	return err
}

func (e *Executor) finish(ctx context.Context, b *RequestBundle, mode Mode, results []RequestResult, accepted []bool) (*Result, error) {
	summary := Summary{Total: len(b.Requests)}
	for i, r := range b.Requests {
		if accepted[i] {
			jobID, err := e.admit(ctx, b, r, mode)
			if err != nil {
				results[i] = RequestResult{RequestID: r.ID, Status: StatusError, Reason: err.Error()}
			} else {
				results[i] = RequestResult{RequestID: r.ID, Status: StatusAccepted, JobID: jobID}
			}
		}

		switch results[i].Status {
		case StatusAccepted:
			summary.Accepted++
		case StatusSkipped:
			summary.Skipped++
		case StatusDenied, StatusError:
			summary.Denied++
			if r.IsActionJob {
				summary.ActionJobsBlocked++
			}
		}
	}
	return &Result{Summary: summary, Requests: results}, nil
}

func (e *Executor) admit(ctx context.Context, b *RequestBundle, r Request, mode Mode) (*string, error) {
	if mode == ModeDryRun {
		return nil, nil
	}
	bundleID := b.BundleID
	job, err := e.q.Enqueue(ctx, queue.EnqueueParams{
		Tenant:         r.Tenant,
		Type:           r.JobType,
		Payload:        r.Payload,
		IdempotencyKey: r.IdempotencyKey,
		ParentBundleID: &bundleID,
	})
	if err != nil {
		return nil, fmt.Errorf("bundle: enqueue %s: %w", r.ID, err)
	}
	return &job.ID, nil
}
