package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/pkg/flags"
)

func envMap(overrides map[string]string) func(string) string {
	return func(key string) string { return overrides[key] }
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	_, err := Load(envMap(nil))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "DATABASE_URL", ve.Field)
}

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"DATABASE_URL":     "postgres://localhost/jobforge",
		"EVENTS_ENABLED":   "true",
		"TRIGGERS_ENABLED": "1",
	}))
	require.NoError(t, err)
	assert.True(t, cfg.Flags.Enabled(flags.EventsEnabled))
	assert.True(t, cfg.Flags.Enabled(flags.TriggersEnabled))
	assert.False(t, cfg.Flags.Enabled(flags.AutopilotJobsEnabled))
	assert.Equal(t, DefaultPolicyTokenExpiryHours, cfg.PolicyTokenExpiryHours)
	assert.Equal(t, ":8080", cfg.Address)
}

func TestLoad_RejectsMalformedBool(t *testing.T) {
	_, err := Load(envMap(map[string]string{
		"DATABASE_URL":   "postgres://localhost/jobforge",
		"EVENTS_ENABLED": "maybe",
	}))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "EVENTS_ENABLED", ve.Field)
}

func TestLoad_RejectsMalformedExpiry(t *testing.T) {
	_, err := Load(envMap(map[string]string{
		"DATABASE_URL":               "postgres://localhost/jobforge",
		"POLICY_TOKEN_EXPIRY_HOURS": "-1",
	}))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "POLICY_TOKEN_EXPIRY_HOURS", ve.Field)
}

func TestLoad_RequiresSigningSecretWhenActionJobsAndTokensBothOn(t *testing.T) {
	_, err := Load(envMap(map[string]string{
		"DATABASE_URL":         "postgres://localhost/jobforge",
		"ACTION_JOBS_ENABLED": "true",
	}))
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "POLICY_TOKEN_SECRET", ve.Field)
}

func TestLoad_ActionJobsWithSecretSucceeds(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"DATABASE_URL":         "postgres://localhost/jobforge",
		"ACTION_JOBS_ENABLED":  "true",
		"POLICY_TOKEN_SECRET": "s3cr3t",
	}))
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", cfg.PolicyTokenSecret)
}

func TestConfig_PolicyTokenExpiry(t *testing.T) {
	cfg, err := Load(envMap(map[string]string{
		"DATABASE_URL":               "postgres://localhost/jobforge",
		"POLICY_TOKEN_EXPIRY_HOURS": "3",
	}))
	require.NoError(t, err)
	assert.Equal(t, "3h0m0s", cfg.PolicyTokenExpiry().String())
}
