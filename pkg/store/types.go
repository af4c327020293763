// Package store implements spec §4.4's durable operations against the
// relational truth layer: one pgx transaction per mutation, tenant
// isolation at the query boundary, and the row shapes spec §3 defines.
package store

import "time"

// Status is a Job's lifecycle state (spec §3).
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusDead      Status = "dead"
	StatusCanceled  Status = "canceled"
)

// Job is one unit of durable work (spec §3).
type Job struct {
	RunAt             time.Time  `db:"run_at"`
	LockedAt          *time.Time `db:"locked_at"`
	HeartbeatAt       *time.Time `db:"heartbeat_at"`
	StartedAt         *time.Time `db:"started_at"`
	FinishedAt        *time.Time `db:"finished_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	LockedBy          *string    `db:"locked_by"`
	IdempotencyKey    *string    `db:"idempotency_key"`
	CreatedBy         *string    `db:"created_by"`
	ResultID          *string    `db:"result_id"`
	ParentBundleID    *string    `db:"parent_bundle_id"`
	TriggeringEventID *string    `db:"triggering_event_id"`
	ID                string     `db:"id"`
	Tenant            string     `db:"tenant"`
	Type              string     `db:"type"`
	Status            Status     `db:"status"`
	Payload           []byte     `db:"payload"`
	Error             []byte     `db:"error"`
	Attempts          int        `db:"attempts"`
	MaxAttempts       int        `db:"max_attempts"`
}

// JobAttempt is an append-only per-attempt log entry (spec §3).
type JobAttempt struct {
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	CreatedAt  time.Time  `db:"created_at"`
	Error      []byte     `db:"error"`
	Note       *string    `db:"note"`
	ID         string     `db:"id"`
	JobID      string     `db:"job_id"`
	Tenant     string     `db:"tenant"`
	AttemptNo  int        `db:"attempt_no"`
}

// JobResult is the single terminal-run result owned by a job (spec §3).
type JobResult struct {
	CreatedAt   time.Time `db:"created_at"`
	ArtifactRef *string   `db:"artifact_ref"`
	ID          string    `db:"id"`
	JobID       string    `db:"job_id"`
	Tenant      string    `db:"tenant"`
	Payload     []byte    `db:"payload"`
}

// Event is an ingested occurrence that may trigger rules (spec §3).
type Event struct {
	OccurredAt       time.Time  `db:"occurred_at"`
	ProcessedAt      *time.Time `db:"processed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	Project          *string    `db:"project"`
	SourceModule     *string    `db:"source_module"`
	Subject          []byte     `db:"subject"`
	RedactionHints   []byte     `db:"redaction_hints"`
	ProcessingJobID  *string    `db:"processing_job_id"`
	ID               string     `db:"id"`
	Tenant           string     `db:"tenant"`
	Type             string     `db:"type"`
	TraceID          string     `db:"trace_id"`
	SourceApp        string     `db:"source_app"`
	Payload          []byte     `db:"payload"`
	ContainsPII      bool       `db:"contains_pii"`
	Processed        bool       `db:"processed"`
}

// TriggerRule matches events to bundle-firing actions (spec §3).
type TriggerRule struct {
	LastFiredAt       *time.Time `db:"last_fired_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
	Project           *string    `db:"project"`
	DedupeKeyTemplate *string    `db:"dedupe_key_template"`
	ID                string     `db:"id"`
	Tenant            string     `db:"tenant"`
	Name              string     `db:"name"`
	Match             []byte     `db:"match"`
	Action            []byte     `db:"action"`
	CooldownSeconds   int        `db:"cooldown_seconds"`
	MaxRunsPerHour    int        `db:"max_runs_per_hour"`
	FireCount         int64      `db:"fire_count"`
	Enabled           bool       `db:"enabled"`
	AllowActionJobs   bool       `db:"allow_action_jobs"`
}

// Manifest is the per-run durable record of inputs, outputs, decisions
// and fingerprints (spec §3/§4.8).
type Manifest struct {
	CompletedAt       *time.Time `db:"completed_at"`
	CreatedAt         time.Time  `db:"created_at"`
	Project           *string    `db:"project"`
	InputsSnapshotRef *string    `db:"inputs_snapshot_ref"`
	LogsRef           *string    `db:"logs_ref"`
	FinalDecision     []byte     `db:"final_decision"`
	Error             []byte     `db:"error"`
	RunID             string     `db:"run_id"`
	Tenant            string     `db:"tenant"`
	JobType           string     `db:"job_type"`
	Version           string     `db:"version"`
	Status            string     `db:"status"`
	Outputs           []byte     `db:"outputs"`
	Metrics           []byte     `db:"metrics"`
	EnvFingerprint    []byte     `db:"env_fingerprint"`
	ToolVersions      []byte     `db:"tool_versions"`
}

// AuditEntry is an append-only record of an admission/decision (spec §3).
type AuditEntry struct {
	CreatedAt         time.Time `db:"created_at"`
	Project           *string   `db:"project"`
	Actor             *string   `db:"actor"`
	EventID           *string   `db:"event_id"`
	JobID             *string   `db:"job_id"`
	TemplateKey       *string   `db:"template_key"`
	RequestPayload    []byte    `db:"request_payload"`
	ResponseSummary   []byte    `db:"response_summary"`
	ScopesGranted     []byte    `db:"scopes_granted"`
	PolicyTokenUsed   *string   `db:"policy_token_used"`
	PolicyCheckResult *bool     `db:"policy_check_result"`
	DurationMS        *int64    `db:"duration_ms"`
	ID                string    `db:"id"`
	Tenant            string    `db:"tenant"`
	Action            string    `db:"action"`
}
