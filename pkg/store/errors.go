package store

import "errors"

var (
	// ErrNotFound is returned when a row does not exist for the given
	// tenant-scoped lookup.
	ErrNotFound = errors.New("store: not found")

	// ErrNotOwned is returned when a mutation's worker_identity does not
	// match the row's locked_by.
	ErrNotOwned = errors.New("store: job not owned by caller")

	// ErrNotRunning is returned when a mutation requires status=running
	// and the row is in a different state.
	ErrNotRunning = errors.New("store: job is not running")

	// ErrNotCancelable is returned by Cancel when the job is not queued.
	// Running jobs are stopped cooperatively at the next heartbeat, not
	// canceled directly.
	ErrNotCancelable = errors.New("store: job is not cancelable")

	// ErrNotReschedulable is returned by Reschedule when the job is
	// running, succeeded, or canceled.
	ErrNotReschedulable = errors.New("store: job is not reschedulable")

	// ErrForbidden is returned when a caller's tenant does not match the
	// row's tenant.
	ErrForbidden = errors.New("store: tenant mismatch")

	// ErrCooldownActive is returned by RecordFire when a rule's cooldown
	// window has not yet elapsed since its last fire.
	ErrCooldownActive = errors.New("store: trigger rule in cooldown")
)
