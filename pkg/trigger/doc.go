// Package trigger evaluates trigger rules against incoming events:
// match, enabled, cooldown, rate-limit, and dedupe checks in rule-id
// order, firing the survivors into the bundle executor (spec §4.9).
package trigger
