package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/pkg/clock"
	"github.com/jobforge/jobforge/pkg/policy"
)

func TestIssue_RequiresSecret(t *testing.T) {
	t.Parallel()

	s := policy.NewSigner(nil)
	_, err := s.Issue(policy.IssueParams{Tenant: "t1", Actor: "a1", Action: "job.run"})
	require.ErrorIs(t, err, policy.ErrSecretMissing)
}

func TestIssueAndVerify_Roundtrip(t *testing.T) {
	t.Parallel()

	s := policy.NewSigner([]byte("super-secret"))
	tok, err := s.Issue(policy.IssueParams{
		Tenant: "t1", Actor: "svc", Action: "ops.write", Scopes: []string{"ops:write", "ops:read"},
	})
	require.NoError(t, err)

	err = s.Verify(tok, []string{"ops:write"}, "t1", "ops.write")
	assert.NoError(t, err)
}

func TestVerify_BadSignatureOnTamper(t *testing.T) {
	t.Parallel()

	s := policy.NewSigner([]byte("super-secret"))
	tok, err := s.Issue(policy.IssueParams{Tenant: "t1", Actor: "svc", Action: "ops.write", Scopes: []string{"ops:write"}})
	require.NoError(t, err)

	tok.Scopes = append(tok.Scopes, "ops:admin")

	err = s.Verify(tok, []string{"ops:write"}, "t1", "ops.write")
	assert.ErrorIs(t, err, policy.ErrBadSignature)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	vc := clock.NewVirtual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := policy.NewSigner([]byte("super-secret"), policy.WithClock(vc), policy.WithExpiry(time.Minute))

	tok, err := s.Issue(policy.IssueParams{Tenant: "t1", Actor: "svc", Action: "ops.write", Scopes: []string{"ops:write"}})
	require.NoError(t, err)

	vc.Advance(2 * time.Minute)

	err = s.Verify(tok, []string{"ops:write"}, "t1", "ops.write")
	assert.ErrorIs(t, err, policy.ErrExpired)
}

func TestVerify_TenantAndActionAndScopeMismatch(t *testing.T) {
	t.Parallel()

	s := policy.NewSigner([]byte("super-secret"))
	tok, err := s.Issue(policy.IssueParams{Tenant: "t1", Actor: "svc", Action: "ops.write", Scopes: []string{"ops:write"}})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(tok, []string{"ops:write"}, "t2", "ops.write"), policy.ErrTenantMismatch)
	assert.ErrorIs(t, s.Verify(tok, []string{"ops:write"}, "t1", "ops.delete"), policy.ErrActionMismatch)
	assert.ErrorIs(t, s.Verify(tok, []string{"ops:admin"}, "t1", "ops.write"), policy.ErrScopeInsufficient)
}
