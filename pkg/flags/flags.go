// Package flags implements the fixed, enumerated feature-switch
// registry of spec §4.3: every legal flag name is known up front with a
// fixed default (two on, the rest off), and the registry never learns a new name at
// runtime — only a process restart can add one.
package flags

import (
	"fmt"
	"sync"
)

// Name is one of the enumerated runtime switches.
type Name string

// The closed set of legal flag names. require_policy_tokens and
// security_validation_enabled default on; every other flag defaults
// off, per spec §4.3.
const (
	EventsEnabled              Name = "events_enabled"
	TriggersEnabled            Name = "triggers_enabled"
	AutopilotJobsEnabled       Name = "autopilot_jobs_enabled"
	ActionJobsEnabled          Name = "action_jobs_enabled"
	RequirePolicyTokens        Name = "require_policy_tokens"
	ManifestsEnabled           Name = "manifests_enabled"
	ReplayPackEnabled          Name = "replay_pack_enabled"
	BundleTriggersEnabled      Name = "bundle_triggers_enabled"
	SecurityValidationEnabled Name = "security_validation_enabled"
	AuditLoggingEnabled        Name = "audit_logging_enabled"
	RateLimitingEnabled        Name = "rate_limiting_enabled"
)

// defaults holds the factory-default value of every legal flag.
var defaults = map[Name]bool{
	EventsEnabled:              false,
	TriggersEnabled:            false,
	AutopilotJobsEnabled:       false,
	ActionJobsEnabled:          false,
	RequirePolicyTokens:        true,
	ManifestsEnabled:           false,
	ReplayPackEnabled:          false,
	BundleTriggersEnabled:      false,
	SecurityValidationEnabled: true,
	AuditLoggingEnabled:        false,
	RateLimitingEnabled:        false,
}

// Registry is a process-wide, enumerated set of feature switches.
// It is safe for concurrent reads; writes are only expected during
// process initialization (spec §9: "changes after init require
// restart").
type Registry struct {
	mu     sync.RWMutex
	values map[Name]bool
}

// New creates a Registry with every flag at its factory default.
func New() *Registry {
	r := &Registry{values: make(map[Name]bool, len(defaults))}
	for name, def := range defaults {
		r.values[name] = def
	}
	return r
}

// IsValid reports whether name is one of the enumerated flags.
func IsValid(name Name) bool {
	_, ok := defaults[name]
	return ok
}

// Names returns every legal flag name.
func Names() []Name {
	names := make([]Name, 0, len(defaults))
	for n := range defaults {
		names = append(names, n)
	}
	return names
}

// Set assigns a value to a known flag. It returns ErrUnknownFlag for
// any name not in the enumerated set — the registry never silently
// learns a new switch.
func (r *Registry) Set(name Name, value bool) error {
	if !IsValid(name) {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = value
	return nil
}

// Enabled reports whether name is currently on. An unknown name is
// always reported as off; callers that must distinguish "unknown" from
// "off" should use IsValid first.
func (r *Registry) Enabled(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[name]
}

// Snapshot returns a copy of every flag's current value, safe for a
// caller to cache (e.g. behind pkg/cache with a short TTL per spec §9's
// "memoization is a hint, not truth" guidance).
func (r *Registry) Snapshot() map[Name]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Name]bool, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
