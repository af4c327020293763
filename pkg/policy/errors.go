package policy

import "errors"

// Rejection causes, each a distinct typed error per spec §4.11.
var (
	ErrSecretMissing    = errors.New("policy: signing secret not configured")
	ErrExpired          = errors.New("policy: token expired")
	ErrTenantMismatch   = errors.New("policy: tenant mismatch")
	ErrScopeInsufficient = errors.New("policy: insufficient scopes")
	ErrActionMismatch   = errors.New("policy: action mismatch")
	ErrBadSignature     = errors.New("policy: bad signature")
)
