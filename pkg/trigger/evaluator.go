package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"text/template"
	"time"

	"github.com/jobforge/jobforge/pkg/bundle"
	"github.com/jobforge/jobforge/pkg/clock"
	"github.com/jobforge/jobforge/pkg/flags"
	"github.com/jobforge/jobforge/pkg/policy"
	"github.com/jobforge/jobforge/pkg/store"
)

// RuleStore is the subset of the store an Evaluator needs.
type RuleStore interface {
	ListEnabledTriggerRules(ctx context.Context, tenant string, project *string) ([]*store.TriggerRule, error)
	CountRecentFires(ctx context.Context, ruleID string, since time.Time) (int64, error)
	DedupeKeyFired(ctx context.Context, ruleID, dedupeKey string) (bool, error)
	RecordFire(ctx context.Context, ruleID, tenant, eventID string, dedupeKey *string, firedAt time.Time) error
}

// Auditor is the subset of the store an Evaluator needs to record its
// trigger_fire admission entries.
type Auditor interface {
	InsertAudit(ctx context.Context, a *store.AuditEntry) (*store.AuditEntry, error)
}

// EventInserter is the subset of the store an Evaluator needs to admit
// a raw event and its event_ingest audit entry atomically.
type EventInserter interface {
	InsertEventWithAudit(ctx context.Context, e *store.Event, audit *store.AuditEntry) (*store.Event, error)
}

// BundleResolver resolves a rule's bundle_ref into a concrete bundle,
// for rules whose action carries bundle_source=ref.
type BundleResolver interface {
	Resolve(ctx context.Context, ref string) (*bundle.RequestBundle, error)
}

// BundleExecutor is the subset of *bundle.Executor an Evaluator needs.
type BundleExecutor interface {
	Execute(ctx context.Context, b *bundle.RequestBundle, mode bundle.Mode, token *policy.Token) (*bundle.Result, error)
}

// Evaluator runs trigger rules against events (spec §4.9).
type Evaluator struct {
	store    RuleStore
	audit    Auditor
	events   EventInserter
	resolver BundleResolver
	executor BundleExecutor
	flags    *flags.Registry
	clk      clock.Clock
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the clock used for cooldown/rate-limit windows.
func WithClock(c clock.Clock) Option {
	return func(e *Evaluator) { e.clk = c }
}

// WithEvents wires the event-ingestion store Ingest persists through.
// An Evaluator built without it can still Evaluate pre-stored events,
// but Ingest always fails with ErrEventsDisabled.
func WithEvents(ev EventInserter) Option {
	return func(e *Evaluator) { e.events = ev }
}

// New builds an Evaluator.
func New(st RuleStore, audit Auditor, resolver BundleResolver, executor BundleExecutor, fl *flags.Registry, opts ...Option) *Evaluator {
	e := &Evaluator{store: st, audit: audit, resolver: resolver, executor: executor, flags: fl, clk: clock.New()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ingest admits a raw event — persisting it and its event_ingest audit
// entry in one transaction (spec §4.12) — then evaluates it against the
// tenant's trigger rules. Returns ErrEventsDisabled when events_enabled
// is off, or when no EventInserter was wired via WithEvents.
func (e *Evaluator) Ingest(ctx context.Context, ev *store.Event, token *policy.Token) (*store.Event, []EvaluationResult, error) {
	if !e.flags.Enabled(flags.EventsEnabled) || e.events == nil {
		return nil, nil, ErrEventsDisabled
	}

	result := true
	stored, err := e.events.InsertEventWithAudit(ctx, ev, &store.AuditEntry{
		Tenant: ev.Tenant, Project: ev.Project, Action: "event_ingest", PolicyCheckResult: &result,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("trigger: ingest event: %w", err)
	}

	results, err := e.Evaluate(ctx, stored, token)
	return stored, results, err
}

// Evaluate runs every enabled rule for event's tenant/project against
// event, in ascending rule-id order, and fires the survivors (spec
// §4.9, §5 "Trigger evaluation for a single event visits rules in id
// order; fires are recorded in that order"). When triggers_enabled is
// off, no rule is even listed — the component is a no-op.
func (e *Evaluator) Evaluate(ctx context.Context, event *store.Event, token *policy.Token) ([]EvaluationResult, error) {
	if !e.flags.Enabled(flags.TriggersEnabled) {
		return nil, nil
	}

	rules, err := e.store.ListEnabledTriggerRules(ctx, event.Tenant, event.Project)
	if err != nil {
		return nil, fmt.Errorf("trigger: list rules: %w", err)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })

	results := make([]EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		res, err := e.evaluateRule(ctx, rule, event, token)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *store.TriggerRule, event *store.Event, token *policy.Token) (EvaluationResult, error) {
	var match MatchSpec
	if err := json.Unmarshal(rule.Match, &match); err != nil {
		return EvaluationResult{}, fmt.Errorf("trigger: unmarshal match for rule %s: %w", rule.ID, err)
	}

	if !matches(match, event) {
		return EvaluationResult{RuleID: rule.ID, Outcome: OutcomeSkip}, nil
	}

	now := e.clk.Now()
	checks := SafetyChecks{CooldownPassed: true, RateLimitPassed: true, DedupePassed: true}

	if rule.CooldownSeconds > 0 && rule.LastFiredAt != nil {
		if now.Sub(*rule.LastFiredAt) < time.Duration(rule.CooldownSeconds)*time.Second {
			checks.CooldownPassed = false
			return EvaluationResult{RuleID: rule.ID, Outcome: OutcomeCooldown, SafetyChecks: checks}, nil
		}
	}

	if e.flags.Enabled(flags.RateLimitingEnabled) && rule.MaxRunsPerHour > 0 {
		n, err := e.store.CountRecentFires(ctx, rule.ID, now.Add(-time.Hour))
		if err != nil {
			return EvaluationResult{}, fmt.Errorf("trigger: count recent fires for rule %s: %w", rule.ID, err)
		}
		if n >= int64(rule.MaxRunsPerHour) {
			checks.RateLimitPassed = false
			return EvaluationResult{RuleID: rule.ID, Outcome: OutcomeRateLimited, SafetyChecks: checks}, nil
		}
	}

	var dedupeKey *string
	if rule.DedupeKeyTemplate != nil && *rule.DedupeKeyTemplate != "" {
		key, err := renderDedupeKey(*rule.DedupeKeyTemplate, event)
		if err != nil {
			return EvaluationResult{}, fmt.Errorf("trigger: render dedupe key for rule %s: %w", rule.ID, err)
		}
		fired, err := e.store.DedupeKeyFired(ctx, rule.ID, key)
		if err != nil {
			return EvaluationResult{}, fmt.Errorf("trigger: dedupe lookup for rule %s: %w", rule.ID, err)
		}
		if fired {
			checks.DedupePassed = false
			return EvaluationResult{RuleID: rule.ID, Outcome: OutcomeSkipDuplicate, SafetyChecks: checks, DedupeKey: &key}, nil
		}
		dedupeKey = &key
	}

	return e.fire(ctx, rule, event, token, checks, dedupeKey)
}

func (e *Evaluator) fire(ctx context.Context, rule *store.TriggerRule, event *store.Event, token *policy.Token, checks SafetyChecks, dedupeKey *string) (EvaluationResult, error) {
	if !e.flags.Enabled(flags.BundleTriggersEnabled) {
		return EvaluationResult{RuleID: rule.ID, Outcome: OutcomeDisabled, SafetyChecks: checks, DedupeKey: dedupeKey}, nil
	}

	var action ActionSpec
	if err := json.Unmarshal(rule.Action, &action); err != nil {
		return EvaluationResult{}, fmt.Errorf("trigger: unmarshal action for rule %s: %w", rule.ID, err)
	}

	now := e.clk.Now()
	if err := e.store.RecordFire(ctx, rule.ID, event.Tenant, event.ID, dedupeKey, now); err != nil {
		if errors.Is(err, store.ErrCooldownActive) {
			checks.CooldownPassed = false
			return EvaluationResult{RuleID: rule.ID, Outcome: OutcomeCooldown, SafetyChecks: checks}, nil
		}
		return EvaluationResult{}, fmt.Errorf("trigger: record fire for rule %s: %w", rule.ID, err)
	}

	b, err := e.resolveBundle(ctx, action)
	if err != nil {
		return EvaluationResult{}, err
	}

	mode := action.Mode
	if mode == "" {
		mode = bundle.ModeExecute
	}
	bundleResult, err := e.executor.Execute(ctx, b, mode, token)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("trigger: execute bundle for rule %s: %w", rule.ID, err)
	}

	eventID := event.ID
	if _, err := e.audit.InsertAudit(ctx, &store.AuditEntry{
		Tenant: event.Tenant, Project: event.Project, Action: "trigger_fire",
		EventID: &eventID, TemplateKey: &rule.ID,
	}); err != nil {
		return EvaluationResult{}, fmt.Errorf("trigger: audit trigger_fire for rule %s: %w", rule.ID, err)
	}

	return EvaluationResult{RuleID: rule.ID, Outcome: OutcomeFire, SafetyChecks: checks, DedupeKey: dedupeKey, BundleResult: bundleResult}, nil
}

func (e *Evaluator) resolveBundle(ctx context.Context, action ActionSpec) (*bundle.RequestBundle, error) {
	switch action.BundleSource {
	case BundleSourceInline:
		if action.BundleInline == nil {
			return nil, ErrNoBundleSource
		}
		return action.BundleInline, nil
	case BundleSourceRef:
		if action.BundleRef == nil || e.resolver == nil {
			return nil, ErrBundleRefNotResolved
		}
		return e.resolver.Resolve(ctx, *action.BundleRef)
	default:
		return nil, ErrNoBundleSource
	}
}

func matches(m MatchSpec, event *store.Event) bool {
	if !contains(m.EventTypeAllowlist, event.Type) {
		return false
	}
	if len(m.SourceModuleAllowlist) > 0 {
		if event.SourceModule == nil || !contains(m.SourceModuleAllowlist, *event.SourceModule) {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// renderDedupeKey renders a rule's dedupe_key_template against the
// event with text/template, producing a one-line key.
func renderDedupeKey(tmplSrc string, event *store.Event) (string, error) {
	tmpl, err := template.New("dedupe_key").Parse(tmplSrc)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var payload map[string]any
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return "", fmt.Errorf("unmarshal event payload: %w", err)
		}
	}
	data := map[string]any{
		"EventID": event.ID,
		"Tenant":  event.Tenant,
		"Type":    event.Type,
		"TraceID": event.TraceID,
		"Payload": payload,
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
