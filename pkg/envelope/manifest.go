package envelope

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jobforge/jobforge/pkg/clock"
	"github.com/jobforge/jobforge/pkg/codec"
	"github.com/jobforge/jobforge/pkg/id"
	"github.com/jobforge/jobforge/pkg/store"
)

// ManifestStore is the subset of *store.Store a ManifestBuilder needs.
type ManifestStore interface {
	InsertManifest(ctx context.Context, m *store.Manifest) (*store.Manifest, error)
	CompleteManifest(ctx context.Context, tenant, runID, status string, outputs, metrics, finalDecision, manifestErr []byte, logsRef *string, now time.Time) error
	GetManifest(ctx context.Context, tenant, runID string) (*store.Manifest, error)
}

// NewRunID generates a lexicographically sortable run identifier. The
// manifests table's run_id column has no database default, so callers
// that don't already have a run ID to correlate against (a job ID, an
// event ID) should mint one with this.
func NewRunID() string {
	return id.NewULID()
}

// ManifestBuilder assembles and persists the determinism manifest for
// one run (spec §4.8). The stored manifest holds the input snapshot,
// outputs, metrics, final decision and error. The environment
// fingerprint, tool versions and the trace's recorded decisions are held
// on the builder only; they are not written to the store, and the
// stored env_fingerprint and tool_versions stay empty objects.
type ManifestBuilder struct {
	st  ManifestStore
	clk clock.Clock

	tenant  string
	runID   string
	jobType string
	version string

	snapshot    *InputSnapshot
	trace       *Trace
	outputs     []Output
	metrics     map[string]any
	envFP       map[string]any
	toolVers    map[string]string
	project     *string
}

// NewManifestBuilder opens a manifest for one run, recording the input
// snapshot up front so a crash mid-run still leaves a recoverable
// inputs hash (spec §4.8 step 1).
func NewManifestBuilder(ctx context.Context, st ManifestStore, clk clock.Clock, tenant, runID, jobType, version string, snapshot *InputSnapshot, project *string) (*ManifestBuilder, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	b := &ManifestBuilder{
		st:       st,
		clk:      clk,
		tenant:   tenant,
		runID:    runID,
		jobType:  jobType,
		version:  version,
		snapshot: snapshot,
		trace:    NewTrace(),
		project:  project,
	}

	snapRef, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal input snapshot: %w", err)
	}
	snapRefStr := string(snapRef)

	_, err = st.InsertManifest(ctx, &store.Manifest{
		RunID:             runID,
		Tenant:            tenant,
		Project:           project,
		JobType:           jobType,
		Version:           version,
		Status:            "pending",
		InputsSnapshotRef: &snapRefStr,
		EnvFingerprint:    []byte(`{}`),
		ToolVersions:      []byte(`{}`),
		CreatedAt:         clk.Now(),
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Trace returns the run's decision trace for handlers to record into.
func (b *ManifestBuilder) Trace() *Trace { return b.trace }

// AddOutput appends a validated artifact reference to the manifest.
func (b *ManifestBuilder) AddOutput(o Output) error {
	if err := o.Validate(); err != nil {
		return err
	}
	b.outputs = append(b.outputs, o)
	return nil
}

// SetMetrics records free-form numeric/observability metrics for the run.
func (b *ManifestBuilder) SetMetrics(m map[string]any) { b.metrics = m }

// SetEnvFingerprint records the environment the run executed under
// (handler version, worker identity, OS/arch — whatever the caller
// considers part of the determinism envelope) on the builder. Complete
// does not persist it.
func (b *ManifestBuilder) SetEnvFingerprint(fp map[string]any) { b.envFP = fp }

// SetToolVersions records third-party tool/library versions exercised
// by the run on the builder. Complete does not persist them, and Compare
// does not read them.
func (b *ManifestBuilder) SetToolVersions(tv map[string]string) { b.toolVers = tv }

// Complete closes the trace with runErr (nil on success) and persists
// the finished manifest. A completed manifest must carry a final
// decision or an error — never neither (spec §4.8 step 2/3).
func (b *ManifestBuilder) Complete(ctx context.Context, final *Decision, runErr error) error {
	b.trace.Close(final, runErr)
	if final == nil && runErr == nil {
		return ErrMissingFinalDecision
	}

	status := "complete"
	var errPayload []byte
	if runErr != nil {
		status = "failed"
		ep, err := json.Marshal(map[string]string{"error": runErr.Error()})
		if err != nil {
			return err
		}
		errPayload = ep
	}

	var finalPayload []byte
	if final != nil {
		fp, err := json.Marshal(final)
		if err != nil {
			return err
		}
		finalPayload = fp
	}

	outputsPayload, err := codec.Canonicalize(b.outputs)
	if err != nil {
		return fmt.Errorf("envelope: canonicalize outputs: %w", err)
	}
	metricsPayload, err := codec.Canonicalize(b.metrics)
	if err != nil {
		return fmt.Errorf("envelope: canonicalize metrics: %w", err)
	}

	return b.st.CompleteManifest(ctx, b.tenant, b.runID, status, outputsPayload, metricsPayload, finalPayload, errPayload, nil, b.clk.Now())
}

// OutputsHash returns the canonical hash of the recorded outputs, used
// by replay comparison to detect output drift without re-reading
// artifact bytes.
func (b *ManifestBuilder) OutputsHash() (string, error) {
	hash, _, err := codec.Hash(b.outputs)
	return hash, err
}
