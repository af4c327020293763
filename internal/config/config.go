// Package config loads the environment configuration spec §6
// enumerates: the feature-flag registry, the policy-token signing
// secret, and its issuance expiry. It also loads the optional YAML
// trigger rule-set file (see ruleset.go).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jobforge/jobforge/pkg/flags"
)

// envToFlag maps an environment variable name to its registry flag.
var envToFlag = map[string]flags.Name{
	"EVENTS_ENABLED":              flags.EventsEnabled,
	"TRIGGERS_ENABLED":            flags.TriggersEnabled,
	"AUTOPILOT_JOBS_ENABLED":      flags.AutopilotJobsEnabled,
	"ACTION_JOBS_ENABLED":         flags.ActionJobsEnabled,
	"REQUIRE_POLICY_TOKENS":       flags.RequirePolicyTokens,
	"MANIFESTS_ENABLED":           flags.ManifestsEnabled,
	"REPLAY_PACK_ENABLED":         flags.ReplayPackEnabled,
	"BUNDLE_TRIGGERS_ENABLED":     flags.BundleTriggersEnabled,
	"SECURITY_VALIDATION_ENABLED": flags.SecurityValidationEnabled,
	"AUDIT_LOGGING_ENABLED":       flags.AuditLoggingEnabled,
	"RATE_LIMITING_ENABLED":       flags.RateLimitingEnabled,
}

// DefaultPolicyTokenExpiryHours is policy_token_expiry_hours' default
// (spec §6).
const DefaultPolicyTokenExpiryHours = 1

// Config is the process's fully-loaded, validated configuration.
type Config struct {
	Flags                  *flags.Registry
	DatabaseURL            string
	RedisURL               string
	PolicyTokenSecret      string
	PolicyTokenExpiryHours int
	Address                string
	HealthAddress          string
	TriggerRulesFile       string
	SentryDSN              string
	SentryEnvironment      string
}

// Load reads every enumerated environment variable via getenv,
// building and validating a Config. A nil getenv defaults to
// os.Getenv. Returns a *ValidationError (exit code 2 at the call site)
// when a required value is missing or malformed.
func Load(getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	reg := flags.New()
	for env, name := range envToFlag {
		raw := getenv(env)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, &ValidationError{Field: env, Err: fmt.Errorf("not a boolean: %q", raw)}
		}
		if err := reg.Set(name, v); err != nil {
			return nil, &ValidationError{Field: env, Err: err}
		}
	}

	expiryHours := DefaultPolicyTokenExpiryHours
	if raw := getenv("POLICY_TOKEN_EXPIRY_HOURS"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return nil, &ValidationError{Field: "POLICY_TOKEN_EXPIRY_HOURS", Err: fmt.Errorf("must be a positive integer, got %q", raw)}
		}
		expiryHours = v
	}

	cfg := &Config{
		Flags:                  reg,
		DatabaseURL:            getenv("DATABASE_URL"),
		RedisURL:               getenv("REDIS_URL"),
		PolicyTokenSecret:      getenv("POLICY_TOKEN_SECRET"),
		PolicyTokenExpiryHours: expiryHours,
		Address:                getenv("ADDRESS"),
		HealthAddress:          getenv("HEALTH_ADDRESS"),
		TriggerRulesFile:       getenv("TRIGGER_RULES_FILE"),
		SentryDSN:              getenv("SENTRY_DSN"),
		SentryEnvironment:      getenv("SENTRY_ENVIRONMENT"),
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.HealthAddress == "" {
		cfg.HealthAddress = ":8081"
	}
	if cfg.SentryEnvironment == "" {
		cfg.SentryEnvironment = "production"
	}

	if err := reg.CheckSafety(cfg.PolicyTokenSecret != ""); err != nil {
		return nil, &ValidationError{Field: "POLICY_TOKEN_SECRET", Err: err}
	}
	if cfg.DatabaseURL == "" {
		return nil, &ValidationError{Field: "DATABASE_URL", Err: fmt.Errorf("required")}
	}

	return cfg, nil
}

// PolicyTokenExpiry returns the configured policy-token issuance
// expiry as a time.Duration.
func (c *Config) PolicyTokenExpiry() time.Duration {
	return time.Duration(c.PolicyTokenExpiryHours) * time.Hour
}
