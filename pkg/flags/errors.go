package flags

import "errors"

var (
	// ErrUnknownFlag is returned by Set for any name outside the
	// enumerated registry.
	ErrUnknownFlag = errors.New("flags: unknown flag")

	// ErrSigningSecretRequired is returned by CheckSafety when
	// action_jobs_enabled and require_policy_tokens are both on but no
	// signing secret has been configured — spec §4.3's fail-fast
	// safety check.
	ErrSigningSecretRequired = errors.New("flags: policy token signing secret is required when action jobs and required tokens are both enabled")
)

// CheckSafety enforces spec §4.3's startup safety check: if
// action_jobs_enabled and require_policy_tokens are both on, a signing
// secret must be configured.
func (r *Registry) CheckSafety(signingSecretConfigured bool) error {
	if r.Enabled(ActionJobsEnabled) && r.Enabled(RequirePolicyTokens) && !signingSecretConfigured {
		return ErrSigningSecretRequired
	}
	return nil
}
