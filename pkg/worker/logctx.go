package worker

import (
	"context"
	"log/slog"
)

type ctxKey string

const (
	ctxKeyTenant         ctxKey = "tenant"
	ctxKeyJobID          ctxKey = "job_id"
	ctxKeyWorkerIdentity ctxKey = "worker_identity"
	ctxKeyTraceID        ctxKey = "trace_id"
)

// withLogContext stamps the identity of one job run onto ctx so the
// logger's context extractors can inject it into every record emitted
// while the run is in flight (spec §10.1).
func withLogContext(ctx context.Context, tenant, jobID, workerIdentity, traceID string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyTenant, tenant)
	ctx = context.WithValue(ctx, ctxKeyJobID, jobID)
	ctx = context.WithValue(ctx, ctxKeyWorkerIdentity, workerIdentity)
	if traceID != "" {
		ctx = context.WithValue(ctx, ctxKeyTraceID, traceID)
	}
	return ctx
}

// TenantExtractor, JobIDExtractor, WorkerIdentityExtractor and
// TraceIDExtractor are pkg/logger.ContextExtractor values for the job
// identity withLogContext stamps onto a run's context.
func TenantExtractor(ctx context.Context) (slog.Attr, bool) {
	return ctxStringAttr(ctx, ctxKeyTenant, "tenant")
}

func JobIDExtractor(ctx context.Context) (slog.Attr, bool) {
	return ctxStringAttr(ctx, ctxKeyJobID, "job_id")
}

func WorkerIdentityExtractor(ctx context.Context) (slog.Attr, bool) {
	return ctxStringAttr(ctx, ctxKeyWorkerIdentity, "worker_identity")
}

func TraceIDExtractor(ctx context.Context) (slog.Attr, bool) {
	return ctxStringAttr(ctx, ctxKeyTraceID, "trace_id")
}

func ctxStringAttr(ctx context.Context, key ctxKey, name string) (slog.Attr, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return slog.Attr{}, false
	}
	return slog.String(name, v), true
}
