package envelope

import (
	"encoding/json"

	"github.com/jobforge/jobforge/pkg/codec"
)

// InputSnapshot is the canonicalized, hashed record of a run's input
// payload (spec §4.8 step 1).
type InputSnapshot struct {
	CanonicalJSON      []byte
	Hash               string
	InputKeys          []string
	RedactedKeys       []string
	OriginalSizeBytes  int
	CanonicalSizeBytes int
}

// Snapshot canonicalizes payload (applying redactPaths before hashing,
// per spec §4.1) and records its hash alongside key inventories for
// traceability.
func Snapshot(payload any, redactPaths []string) (*InputSnapshot, error) {
	originalCanonical, err := codec.Canonicalize(payload)
	if err != nil {
		return nil, err
	}

	redacted, redactedKeys, err := codec.Redact(payload, redactPaths)
	if err != nil {
		return nil, err
	}
	hash, canonical, err := codec.Hash(redacted)
	if err != nil {
		return nil, err
	}
	keys, err := codec.ExtractKeys(redacted)
	if err != nil {
		return nil, err
	}

	return &InputSnapshot{
		CanonicalJSON:      canonical,
		Hash:               hash,
		InputKeys:          keys,
		RedactedKeys:       redactedKeys,
		OriginalSizeBytes:  len(originalCanonical),
		CanonicalSizeBytes: len(canonical),
	}, nil
}

// Verify recomputes the hash of CanonicalJSON and confirms it matches
// Hash — the check spec §8 property 7 requires of a stored snapshot.
func (s *InputSnapshot) Verify() error {
	hash, _, err := codec.Hash(json.RawMessage(s.CanonicalJSON))
	if err != nil {
		return err
	}
	if hash != s.Hash {
		return ErrHashMismatch
	}
	return nil
}
