package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jobforge/jobforge/pkg/clock"
	"github.com/jobforge/jobforge/pkg/envelope"
	"github.com/jobforge/jobforge/pkg/flags"
	"github.com/jobforge/jobforge/pkg/handler"
	"github.com/jobforge/jobforge/pkg/id"
	"github.com/jobforge/jobforge/pkg/queue"
)

// Queuer is the subset of *queue.Queue the pool depends on — narrowed
// to an interface so tests can substitute a fake and exercise the
// claim/heartbeat/complete loop without a database.
type Queuer interface {
	ClaimJobs(ctx context.Context, workerIdentity string, limit int) ([]*queue.Job, error)
	Heartbeat(ctx context.Context, tenant, jobID, workerIdentity string) error
	Complete(ctx context.Context, tenant, jobID, workerIdentity string, p queue.CompleteParams) (queue.Status, error)
}

// Pool is one worker process's cooperative job-task scheduler.
type Pool struct {
	identity        string
	q               Queuer
	registry        *handler.Registry
	logger          *slog.Logger
	metrics         *Metrics
	flags           *flags.Registry
	manifests       envelope.ManifestStore
	artifacts       envelope.ArtifactStore
	clk             clock.Clock
	concurrency     int
	pollInterval    time.Duration
	heartbeatPeriod time.Duration
	shutdownGrace   time.Duration
}

// Option configures a Pool.
type Option func(*Pool)

func WithConcurrency(n int) Option          { return func(p *Pool) { p.concurrency = n } }
func WithPollInterval(d time.Duration) Option    { return func(p *Pool) { p.pollInterval = d } }
func WithHeartbeatPeriod(d time.Duration) Option { return func(p *Pool) { p.heartbeatPeriod = d } }
func WithShutdownGrace(d time.Duration) Option   { return func(p *Pool) { p.shutdownGrace = d } }
func WithLogger(l *slog.Logger) Option           { return func(p *Pool) { p.logger = l } }
func WithMetrics(m *Metrics) Option              { return func(p *Pool) { p.metrics = m } }

// WithFlags enables flag-gated behavior: manifests_enabled opens a
// determinism envelope around every run, replay_pack_enabled additionally
// archives it to the artifact store on completion (spec §4.3, §4.8).
func WithFlags(fl *flags.Registry) Option { return func(p *Pool) { p.flags = fl } }

// WithManifestStore wires the determinism-envelope persistence layer.
// Runs go unmanifested whenever this is nil, regardless of flags.
func WithManifestStore(st envelope.ManifestStore) Option {
	return func(p *Pool) { p.manifests = st }
}

// WithArtifactStore wires where completed replay packs are archived
// when replay_pack_enabled is on.
func WithArtifactStore(as envelope.ArtifactStore) Option {
	return func(p *Pool) { p.artifacts = as }
}

// New builds a Pool with the given stable worker identity.
func New(identity string, q Queuer, registry *handler.Registry, opts ...Option) *Pool {
	p := &Pool{
		identity:        identity,
		q:               q,
		registry:        registry,
		logger:          slog.Default(),
		clk:             clock.New(),
		concurrency:     10,
		pollInterval:    queue.DefaultPollInterval,
		heartbeatPeriod: queue.DefaultHeartbeatPeriod,
		shutdownGrace:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls for work until ctx is canceled, then stops claiming, waits
// up to the shutdown grace period for in-flight job tasks, and returns.
// In-flight tasks run on a context that ctx's cancellation does not
// reach, so they are not told to stop. Any job still running past grace
// is left to the reaper.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, p.concurrency)

	jitter := time.Duration(rand.Int63n(int64(p.pollInterval) / 4))
	ticker := time.NewTicker(p.pollInterval + jitter)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.drain(g)
		case <-ticker.C:
			p.claimAndDispatch(gctx, g, sem)
		}
	}
}

func (p *Pool) claimAndDispatch(ctx context.Context, g *errgroup.Group, sem chan struct{}) {
	free := cap(sem) - len(sem)
	if free <= 0 {
		return
	}
	jobs, err := p.q.ClaimJobs(ctx, p.identity, free)
	if err != nil {
		p.logger.Error("claim failed", "worker", p.identity, "error", err)
		return
	}
	for _, job := range jobs {
		job := job
		if p.metrics != nil {
			p.metrics.ClaimedTotal.Inc()
		}
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			p.runJob(ctx, job)
			return nil
		})
	}
}

func (p *Pool) drain(g *errgroup.Group) error {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.shutdownGrace):
		p.logger.Warn("shutdown grace period elapsed with jobs still running; leaving them to the reaper",
			"worker", p.identity)
	}
	return nil
}

func (p *Pool) runJob(ctx context.Context, job *queue.Job) {
	if p.metrics != nil {
		p.metrics.ActiveJobs.Inc()
		defer p.metrics.ActiveJobs.Dec()
	}

	ctx = withLogContext(ctx, job.Tenant, job.ID, p.identity, "")

	spec, ok := p.registry.Lookup(job.Type)
	if !ok {
		p.completeFailed(ctx, job, fmt.Errorf("%s: %w", job.Type, handler.ErrUnknownJobType), nil, nil)
		return
	}

	if err := p.registry.ValidateInput(ctx, job.Type, job.Payload); err != nil {
		// BadInput is terminal regardless of attempts remaining (spec §4.7).
		p.completeDead(ctx, job, err, nil)
		return
	}

	mb := p.openManifest(ctx, job)

	traceID := id.NewULID()
	ctx = withLogContext(ctx, job.Tenant, job.ID, p.identity, traceID)

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stopHeartbeat := p.startHeartbeat(jobCtx, job)
	defer stopHeartbeat()

	hctx := handler.NewContext(jobCtx, job.ID, job.Tenant, traceID, job.Attempts, func(ctx context.Context) error {
		return p.q.Heartbeat(ctx, job.Tenant, job.ID, p.identity)
	})

	result, err := p.invoke(hctx, spec, job)
	if err != nil {
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			p.completeFailed(ctx, job, fmt.Errorf("%w: %v", ErrTimeout, err), nil, mb)
			return
		}
		p.completeFailed(ctx, job, err, nil, mb)
		return
	}

	if mb != nil {
		if result.ArtifactRef != nil {
			_ = mb.AddOutput(envelope.Output{Name: "result", Type: "handler_result", Ref: *result.ArtifactRef})
		}
		p.closeManifest(ctx, job, mb, &envelope.Decision{
			StepID: "run", Kind: envelope.DecisionAllow, Reason: "handler completed successfully",
		}, nil)
	}

	status, err := p.q.Complete(ctx, job.Tenant, job.ID, p.identity, queue.CompleteParams{
		Outcome: queue.OutcomeSucceeded, Result: result.Payload, ArtifactRef: result.ArtifactRef,
	})
	if err != nil {
		p.logger.Error("complete(succeeded) failed", "job_id", job.ID, "error", err)
		return
	}
	p.observeCompletion(status)
}

// openManifest opens a determinism envelope for job when manifests_enabled
// is on and a ManifestStore is wired; returns nil otherwise, in which case
// the run proceeds unmanifested (spec §4.3, §4.8 step 1).
func (p *Pool) openManifest(ctx context.Context, job *queue.Job) *envelope.ManifestBuilder {
	if p.flags == nil || p.manifests == nil || !p.flags.Enabled(flags.ManifestsEnabled) {
		return nil
	}

	snapshot, err := envelope.Snapshot(json.RawMessage(job.Payload), nil)
	if err != nil {
		p.logger.Warn("failed to snapshot job input", "job_id", job.ID, "error", err)
		return nil
	}

	mb, err := envelope.NewManifestBuilder(ctx, p.manifests, p.clk, job.Tenant, job.ID, job.Type, "1", snapshot, nil)
	if err != nil {
		p.logger.Warn("failed to open manifest", "job_id", job.ID, "error", err)
		return nil
	}
	mb.SetEnvFingerprint(map[string]any{"worker_identity": p.identity})
	return mb
}

// closeManifest persists the run's final decision trace and, when
// replay_pack_enabled is also on, archives a replay bundle built from it
// (spec §4.8 steps 2-4).
func (p *Pool) closeManifest(ctx context.Context, job *queue.Job, mb *envelope.ManifestBuilder, final *envelope.Decision, runErr error) {
	if err := mb.Complete(ctx, final, runErr); err != nil {
		p.logger.Warn("failed to complete manifest", "job_id", job.ID, "error", err)
		return
	}
	if p.artifacts == nil || !p.flags.Enabled(flags.ReplayPackEnabled) {
		return
	}

	outputsHash, err := mb.OutputsHash()
	if err != nil {
		p.logger.Warn("failed to hash manifest outputs", "job_id", job.ID, "error", err)
		return
	}
	bundle := envelope.Bundle{RunID: job.ID, Decisions: mb.Trace().Decisions(), OutputsHash: outputsHash}
	payload, err := json.Marshal(bundle)
	if err != nil {
		p.logger.Warn("failed to marshal replay pack", "job_id", job.ID, "error", err)
		return
	}
	key := fmt.Sprintf("replay-packs/%s/%s.json", job.Tenant, job.ID)
	if _, err := p.artifacts.Put(ctx, key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		p.logger.Warn("failed to archive replay pack", "job_id", job.ID, "error", err)
	}
}

// invoke runs the handler in an isolation boundary: any panic is
// converted into a structured failure rather than crashing the worker
// (spec §4.6 step 3).
func (p *Pool) invoke(hctx *handler.Context, spec *handler.Spec, job *queue.Job) (result *handler.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
		}
	}()
	return spec.Run(hctx, job.Payload)
}

func (p *Pool) startHeartbeat(ctx context.Context, job *queue.Job) func() {
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.heartbeatPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.q.Heartbeat(ctx, job.Tenant, job.ID, p.identity); err != nil {
					p.logger.Warn("heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

func (p *Pool) completeFailed(ctx context.Context, job *queue.Job, err error, note *string, mb *envelope.ManifestBuilder) {
	if mb != nil {
		p.closeManifest(ctx, job, mb, nil, err)
	}
	status, cerr := p.q.Complete(ctx, job.Tenant, job.ID, p.identity, queue.CompleteParams{
		Outcome: queue.OutcomeFailed, Error: []byte(fmt.Sprintf(`{"message":%q}`, err.Error())), Note: note,
	})
	if cerr != nil {
		p.logger.Error("complete(failed) failed", "job_id", job.ID, "error", cerr)
		return
	}
	p.observeCompletion(status)
}

func (p *Pool) completeDead(ctx context.Context, job *queue.Job, err error, mb *envelope.ManifestBuilder) {
	if mb != nil {
		p.closeManifest(ctx, job, mb, nil, err)
	}
	// BadInput bypasses the retry ladder entirely: Terminal makes
	// Complete's failed-outcome path land on dead.
	status, cerr := p.q.Complete(ctx, job.Tenant, job.ID, p.identity, queue.CompleteParams{
		Outcome: queue.OutcomeFailed, Terminal: true,
		Error: []byte(fmt.Sprintf(`{"code":"BadInput","message":%q}`, err.Error())),
	})
	if cerr != nil {
		p.logger.Error("complete(bad input) failed", "job_id", job.ID, "error", cerr)
		return
	}
	p.observeCompletion(status)
}

func (p *Pool) observeCompletion(status queue.Status) {
	if p.metrics != nil {
		p.metrics.CompletedTotal.WithLabelValues(string(status)).Inc()
	}
}
