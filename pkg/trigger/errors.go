package trigger

import "errors"

var (
	// ErrBundleRefNotResolved is returned when a rule's action carries
	// bundle_source=ref but the resolver can't produce a bundle for it.
	ErrBundleRefNotResolved = errors.New("trigger: bundle_ref did not resolve to a bundle")

	// ErrNoBundleSource is returned when neither an inline bundle nor a
	// resolvable ref is present on a firing rule.
	ErrNoBundleSource = errors.New("trigger: action has neither bundle_inline nor a resolvable bundle_ref")

	// ErrEventsDisabled is returned by Ingest when events_enabled is off.
	ErrEventsDisabled = errors.New("trigger: event ingestion is disabled")
)
