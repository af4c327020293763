package policy

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jobforge/jobforge/pkg/clock"
	"github.com/jobforge/jobforge/pkg/codec"
)

// Signer issues and verifies policy tokens. The secret is an injected
// dependency per spec §9 ("never persisted in the store").
type Signer struct {
	clk    clock.Clock
	newID  func() string
	secret []byte
	expiry time.Duration
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithClock overrides the clock used for issued_at/expires_at.
func WithClock(c clock.Clock) SignerOption {
	return func(s *Signer) { s.clk = c }
}

// WithIDFunc overrides the token ID generator (default: google/uuid).
func WithIDFunc(f func() string) SignerOption {
	return func(s *Signer) { s.newID = f }
}

// WithExpiry overrides the default issuance expiry (spec §4.11:
// default 1 hour).
func WithExpiry(d time.Duration) SignerOption {
	return func(s *Signer) { s.expiry = d }
}

// NewSigner creates a Signer. secret must be non-empty; an empty
// secret makes every Issue/Verify call fail with ErrSecretMissing
// rather than silently signing with a weak key.
func NewSigner(secret []byte, opts ...SignerOption) *Signer {
	s := &Signer{
		clk:    clock.New(),
		secret: secret,
		expiry: DefaultExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newID == nil {
		s.newID = newUUID
	}
	return s
}

// IssueParams describes the capability being granted.
type IssueParams struct {
	ExpiresIn *time.Duration
	Context   map[string]any
	Tenant    string
	Project   string
	Actor     string
	Action    string
	Resource  string
	Scopes    []string
}

// Issue mints and signs a new token.
func (s *Signer) Issue(p IssueParams) (*Token, error) {
	if len(s.secret) == 0 {
		return nil, ErrSecretMissing
	}

	expiry := s.expiry
	if p.ExpiresIn != nil {
		expiry = *p.ExpiresIn
	}

	now := s.clk.Now()
	t := &Token{
		ID:        s.newID(),
		Version:   Version,
		IssuedAt:  now,
		Tenant:    p.Tenant,
		Project:   p.Project,
		Actor:     p.Actor,
		Scopes:    p.Scopes,
		Action:    p.Action,
		Resource:  p.Resource,
		Context:   p.Context,
	}
	if expiry > 0 {
		exp := now.Add(expiry)
		t.ExpiresAt = &exp
	}

	sig, err := s.sign(t)
	if err != nil {
		return nil, err
	}
	t.Signature = sig

	return t, nil
}

// Verify checks a token's signature and validity for a specific call:
// the required scopes, the expected tenant, and the expected action.
// Rejection causes are distinguishable via errors.Is.
func (s *Signer) Verify(t *Token, requiredScopes []string, tenant, action string) error {
	if len(s.secret) == 0 {
		return ErrSecretMissing
	}

	expected, err := s.sign(t)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(t.Signature)) != 1 {
		return ErrBadSignature
	}

	if t.ExpiresAt != nil && !s.clk.Now().Before(*t.ExpiresAt) {
		return ErrExpired
	}
	if t.Tenant != tenant {
		return ErrTenantMismatch
	}
	if t.Action != action {
		return ErrActionMismatch
	}
	if !t.HasScopes(requiredScopes) {
		return ErrScopeInsufficient
	}

	return nil
}

// sign computes the base64url HMAC-SHA256 of the token's canonical
// signing fields.
func (s *Signer) sign(t *Token) (string, error) {
	canonical, err := codec.Canonicalize(t.signingFields())
	if err != nil {
		return "", fmt.Errorf("policy: canonicalize signing fields: %w", err)
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
