package envelope

import (
	"sync"
	"time"
)

// DecisionKind is the outcome of one step in a run's decision trace.
type DecisionKind string

const (
	DecisionAllow       DecisionKind = "allow"
	DecisionDeny        DecisionKind = "deny"
	DecisionConditional DecisionKind = "conditional"
	DecisionError       DecisionKind = "error"
)

// Decision is one entry in a run's decision trace (spec §4.8 step 2).
type Decision struct {
	Timestamp     time.Time
	InputContext  any
	OutputContext any
	StepID        string
	Kind          DecisionKind
	Reason        string
	DurationMS    int64
}

// Trace is the ordered, append-only log of decisions a handler records
// over the course of one run.
type Trace struct {
	mu            sync.Mutex
	decisions     []Decision
	finalDecision *Decision
	finalErr      error
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{}
}

// Record appends a decision.
func (t *Trace) Record(d Decision) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.decisions = append(t.decisions, d)
}

// Close marks the trace complete, recording the final decision and the
// run error as given; both, one or neither may be set. ManifestBuilder.Complete
// is what rejects a run that has neither.
func (t *Trace) Close(final *Decision, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finalDecision = final
	t.finalErr = err
}

// Decisions returns a snapshot of the recorded decisions.
func (t *Trace) Decisions() []Decision {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Decision, len(t.decisions))
	copy(out, t.decisions)
	return out
}

// FinalDecision returns the trace's closing decision and error, if any.
func (t *Trace) FinalDecision() (*Decision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finalDecision, t.finalErr
}
