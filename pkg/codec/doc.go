// Package codec implements JobForge's canonical encoding: a
// byte-identical, sorted-key JSON representation used to hash job
// inputs, compare replayed runs, and redact sensitive fields before
// either.
//
// Canonicalize never emits extra whitespace, always sorts object keys
// lexicographically, and rejects values it cannot represent
// deterministically (NaN/Inf, cycles) with ErrBadInput.
package codec
