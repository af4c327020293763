// Package store is the relational truth layer for JobForge: jobs, their
// attempts and results, ingested events, trigger rules and fires,
// manifests, and the audit log. Every exported method owns its own
// transaction; callers never see a bare *pgxpool.Pool.
package store
