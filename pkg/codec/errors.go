package codec

import "errors"

// Sentinel errors for canonical encoding.
var (
	// ErrBadInput is returned when a value cannot be canonicalized: it
	// contains a non-finite number (NaN/Inf) or a cycle.
	ErrBadInput = errors.New("codec: bad input")
)
