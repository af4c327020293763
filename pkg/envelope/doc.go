// Package envelope implements the determinism envelope (spec §4.8):
// input snapshots, decision traces, manifests, and replay-bundle
// comparison.
package envelope
