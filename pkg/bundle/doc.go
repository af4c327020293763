// Package bundle executes request bundles: a batch of job requests
// admitted or denied together under tenant isolation, duplicate
// suppression, and policy-token gating for action jobs (spec §4.10).
package bundle
