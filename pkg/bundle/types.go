package bundle

import (
	"time"

	"github.com/jobforge/jobforge/pkg/id"
)

// Version is the wire-pinned bundle schema version.
const Version = "1.0"

// NewBundleID generates a lexicographically sortable bundle identifier.
func NewBundleID() string {
	return id.NewULID()
}

// MaxRequests is the largest number of requests one bundle may carry.
const MaxRequests = 100

// Request is one job request inside a bundle.
type Request struct {
	ID              string
	JobType         string
	Tenant          string
	Project         *string
	Payload         []byte
	IdempotencyKey  *string
	RequiredScopes  []string
	IsActionJob     bool
}

// Metadata carries provenance for a bundle.
type Metadata struct {
	Source         string
	TriggeredAt    time.Time
	CorrelationID  *string
}

// RequestBundle is a batch of job requests admitted or denied
// together (spec §3 RequestBundle).
type RequestBundle struct {
	Version  string
	BundleID string
	Tenant   string
	Project  *string
	TraceID  string
	Requests []Request
	Metadata Metadata
}
