// Package jobforge is a multi-tenant durable job queue with an
// event-driven trigger layer, a policy-gated bundle executor, and a
// determinism envelope for replayable job runs.
//
// The module has no single entry-point package; it's a collection of
// composable libraries under pkg/, wired together by the
// cmd/jobforge-worker process:
//
//   - pkg/store and pkg/queue — the durable job table and its
//     claim/lease/complete lifecycle, backed by Postgres with
//     FOR UPDATE SKIP LOCKED claiming.
//   - pkg/worker — the poll loop, handler dispatch, and the lease
//     reaper that reclaims stuck jobs.
//   - pkg/handler — the per-job-type handler registry and payload
//     validation.
//   - pkg/trigger and pkg/bundle — the event-to-action pipeline: a
//     trigger rule matches an event, applies cooldown/rate-limit/
//     dedupe safety checks, and fires a bundle of job requests through
//     the policy-gated executor.
//   - pkg/policy — signed, scoped tokens that gate autopilot action
//     jobs.
//   - pkg/envelope — the determinism envelope: canonical input
//     snapshots, append-only decision traces, and manifest replay
//     comparison.
//   - pkg/codec — canonical JSON encoding and hashing shared by the
//     envelope and policy packages.
//   - pkg/flags — the feature-flag registry gating autopilot/action
//     jobs/replay/etc, with a safety check tying action jobs to a
//     configured signing secret.
//
// cmd/jobforge-worker wires these into a running process: it loads
// internal/config, opens the database and (optionally) Redis, starts
// the worker pool and reaper, and serves /livez and /readyz for
// orchestrator health probes. Job-type handlers are registered by the
// application embedding this module, not by the module itself.
package jobforge
