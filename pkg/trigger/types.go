package trigger

import "github.com/jobforge/jobforge/pkg/bundle"

// MatchSpec is trigger_rules.match, unmarshaled.
type MatchSpec struct {
	EventTypeAllowlist    []string `json:"event_type_allowlist"`
	SourceModuleAllowlist []string `json:"source_module_allowlist,omitempty"`
	Severity              *string  `json:"severity,omitempty"`
	Priority              *int     `json:"priority,omitempty"`
}

// BundleSource names where action.bundle comes from.
type BundleSource string

const (
	BundleSourceInline BundleSource = "inline"
	BundleSourceRef    BundleSource = "ref"
)

// ActionSpec is trigger_rules.action, unmarshaled.
type ActionSpec struct {
	BundleSource BundleSource           `json:"bundle_source"`
	BundleRef    *string                `json:"bundle_ref,omitempty"`
	BundleInline *bundle.RequestBundle  `json:"bundle_inline,omitempty"`
	Mode         bundle.Mode            `json:"mode"`
}

// Outcome is the disposition of one rule against one event.
type Outcome string

const (
	OutcomeSkip          Outcome = "skip"
	OutcomeDisabled      Outcome = "disabled"
	OutcomeCooldown      Outcome = "cooldown"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeSkipDuplicate Outcome = "skip(duplicate)"
	OutcomeFire          Outcome = "fire"
)

// SafetyChecks records which of the three rate/abuse guards passed,
// regardless of the final outcome (spec §4.9).
type SafetyChecks struct {
	CooldownPassed  bool
	RateLimitPassed bool
	DedupePassed    bool
}

// EvaluationResult is one rule's evaluation against one event (spec
// §4.9's TriggerEvaluationResult).
type EvaluationResult struct {
	RuleID       string
	Outcome      Outcome
	SafetyChecks SafetyChecks
	DedupeKey    *string
	BundleResult *bundle.Result
}
