// Package handler is the job-type handler registry (spec §4.7): each
// job type tag maps to an input/output schema pair, a timeout, and the
// function that executes it. Registration is idempotent by tag.
package handler

import (
	"context"
	"reflect"
	"time"
)

// Context is the ambient context a handler runs with: job/tenant
// identity, the attempt number, trace correlation, a heartbeat it must
// call on its own schedule, and the cancellation signal carried by the
// embedded context.Context (spec §4.6, §9 "callback/event-loop
// handlers").
type Context struct {
	context.Context
	JobID     string
	Tenant    string
	TraceID   string
	AttemptNo int

	heartbeat func(ctx context.Context) error
}

// Heartbeat extends the job's lease. Handlers doing long work should
// call this periodically on their own schedule.
func (c *Context) Heartbeat(ctx context.Context) error {
	if c.heartbeat == nil {
		return nil
	}
	return c.heartbeat(ctx)
}

// NewContext builds a handler Context. heartbeat may be nil in tests.
func NewContext(ctx context.Context, jobID, tenant, traceID string, attemptNo int, heartbeat func(context.Context) error) *Context {
	return &Context{Context: ctx, JobID: jobID, Tenant: tenant, TraceID: traceID, AttemptNo: attemptNo, heartbeat: heartbeat}
}

// Result is what a handler hands back on success.
type Result struct {
	ArtifactRef *string
	Payload     []byte
}

// Func is the function a registered handler executes. A non-nil error
// becomes a failed outcome; the queue decides retry vs. dead.
type Func func(ctx *Context, payload []byte) (*Result, error)

// Spec describes one job type's handler (spec §4.7).
type Spec struct {
	// InputSchema and OutputSchema, when non-nil, are pointers to
	// struct types carrying github.com/go-playground/validator/v10
	// tags. Payloads are unmarshaled into a new InputSchema value and
	// validated before Run is invoked.
	InputSchema  any
	OutputSchema any
	Run          Func
	Tag          string
	MaxAttempts  int
	Timeout      time.Duration
}

func schemaType(v any) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}
