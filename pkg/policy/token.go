// Package policy implements spec §4.11's policy tokens: HMAC-signed
// capability grants that gate write-class ("action") jobs.
package policy

import (
	"time"
)

// Version is the wire-pinned token version.
const Version = "1.0"

// DefaultExpiry is the default issuance expiry (spec §4.11).
const DefaultExpiry = time.Hour

// Token is a signed capability grant, matching the wire form in
// spec §3/§6: a JSON object with a base64url-encoded signature.
type Token struct {
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	ID        string         `json:"id"`
	Version   string         `json:"version"`
	Tenant    string         `json:"tenant"`
	Project   string         `json:"project,omitempty"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource,omitempty"`
	Signature string         `json:"signature"`
	Scopes    []string       `json:"scopes"`
}

// HasScopes reports whether the token's scopes are a superset of
// required.
func (t *Token) HasScopes(required []string) bool {
	granted := make(map[string]struct{}, len(t.Scopes))
	for _, s := range t.Scopes {
		granted[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := granted[r]; !ok {
			return false
		}
	}
	return true
}

// signingFields returns the fields covered by the signature, as a
// canonicalization-ready value, excluding Signature itself.
func (t *Token) signingFields() map[string]any {
	m := map[string]any{
		"id":        t.ID,
		"version":   t.Version,
		"issued_at": t.IssuedAt.UTC().Format(time.RFC3339Nano),
		"tenant":    t.Tenant,
		"actor":     t.Actor,
		"action":    t.Action,
		"scopes":    toAnySlice(t.Scopes),
	}
	if t.ExpiresAt != nil {
		m["expires_at"] = t.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if t.Project != "" {
		m["project"] = t.Project
	}
	if t.Resource != "" {
		m["resource"] = t.Resource
	}
	if t.Context != nil {
		m["context"] = t.Context
	}
	return m
}

func toAnySlice(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
