package config

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/jobforge/jobforge/pkg/store"
)

// RuleSetEntry is one trigger rule as authored in a rule-set file.
// Match and Action decode as plain maps rather than pkg/trigger's
// MatchSpec/ActionSpec so the YAML author writes the same
// snake_case keys the JSONB columns store, with no separate yaml
// struct-tag vocabulary to keep in sync.
type RuleSetEntry struct {
	Name              string         `yaml:"name"`
	Tenant            string         `yaml:"tenant"`
	Project           *string        `yaml:"project"`
	Enabled           *bool          `yaml:"enabled"`
	Match             map[string]any `yaml:"match"`
	Action            map[string]any `yaml:"action"`
	CooldownSeconds   int            `yaml:"cooldown_seconds"`
	MaxRunsPerHour    int            `yaml:"max_runs_per_hour"`
	DedupeKeyTemplate *string        `yaml:"dedupe_key_template"`
	AllowActionJobs   bool           `yaml:"allow_action_jobs"`
}

// RuleSet is a declarative trigger-rule-set file: rules-as-code seeding
// for the trigger_rules table, loaded once at process startup and
// upserted by (tenant, name) so re-running the loader is idempotent.
type RuleSet struct {
	Rules []RuleSetEntry `yaml:"rules"`
}

// LoadRuleSet parses a YAML rule-set document, rejecting unknown keys
// so a typo in a rule file fails loudly instead of silently no-oping.
func LoadRuleSet(r io.Reader) (*RuleSet, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var rs RuleSet
	if err := dec.Decode(&rs); err != nil {
		return nil, fmt.Errorf("ruleset: %w", err)
	}
	for i, rule := range rs.Rules {
		if rule.Name == "" {
			return nil, fmt.Errorf("ruleset: rule %d: name is required", i)
		}
		if rule.Tenant == "" {
			return nil, fmt.Errorf("ruleset: rule %q: tenant is required", rule.Name)
		}
	}
	return &rs, nil
}

// ToTriggerRule converts the entry into the store's row shape, ready
// for Store.UpsertTriggerRule. Enabled defaults to true when omitted.
func (e RuleSetEntry) ToTriggerRule() (*store.TriggerRule, error) {
	matchJSON, err := json.Marshal(e.Match)
	if err != nil {
		return nil, fmt.Errorf("ruleset: rule %q: match: %w", e.Name, err)
	}
	actionJSON, err := json.Marshal(e.Action)
	if err != nil {
		return nil, fmt.Errorf("ruleset: rule %q: action: %w", e.Name, err)
	}

	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}

	return &store.TriggerRule{
		Tenant:            e.Tenant,
		Project:           e.Project,
		Name:              e.Name,
		Enabled:           enabled,
		Match:             matchJSON,
		Action:            actionJSON,
		CooldownSeconds:   e.CooldownSeconds,
		MaxRunsPerHour:    e.MaxRunsPerHour,
		DedupeKeyTemplate: e.DedupeKeyTemplate,
		AllowActionJobs:   e.AllowActionJobs,
	}, nil
}
