package handler

import "errors"

var (
	// ErrUnknownJobType is returned when no handler is registered for a
	// job's type tag.
	ErrUnknownJobType = errors.New("handler: unknown job type")

	// ErrIncompatibleSchema is returned by Register when a tag is
	// re-registered with a different input or output schema type.
	ErrIncompatibleSchema = errors.New("handler: incompatible schema for already-registered tag")

	// ErrBadInput is returned when a payload fails input-schema
	// validation. It is always terminal, regardless of attempts
	// remaining (spec §4.7).
	ErrBadInput = errors.New("handler: payload failed input validation")
)
