package envelope

import "errors"

var (
	// ErrHashMismatch is returned by InputSnapshot.Verify when a snapshot's
	// recomputed input hash no longer matches its stored hash (spec §8
	// property 7).
	ErrHashMismatch = errors.New("envelope: recomputed hash does not match stored hash")

	// ErrMissingFinalDecision is returned when a manifest is completed
	// without ever recording a final decision or an error.
	ErrMissingFinalDecision = errors.New("envelope: completed manifest must carry a final decision or error")

	// ErrEmptyOutputRef is returned when an output's ref is empty.
	ErrEmptyOutputRef = errors.New("envelope: output ref must be non-empty")
)
