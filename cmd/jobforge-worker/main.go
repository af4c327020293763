// Command jobforge-worker runs the durable job-queue worker: it polls
// for due jobs, dispatches them to registered handlers, and reaps
// stale leases on a cron schedule (spec §6 exit codes: 0 success, 1
// operational failure, 2 configuration error).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jobforge/jobforge/internal/config"
	"github.com/jobforge/jobforge/migrations"
	"github.com/jobforge/jobforge/pkg/cache"
	"github.com/jobforge/jobforge/pkg/db"
	"github.com/jobforge/jobforge/pkg/handler"
	"github.com/jobforge/jobforge/pkg/health"
	"github.com/jobforge/jobforge/pkg/id"
	"github.com/jobforge/jobforge/pkg/logger"
	"github.com/jobforge/jobforge/pkg/queue"
	"github.com/jobforge/jobforge/pkg/redis"
	"github.com/jobforge/jobforge/pkg/store"
	"github.com/jobforge/jobforge/pkg/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	extractors := []logger.ContextExtractor{
		worker.TenantExtractor, worker.JobIDExtractor, worker.WorkerIdentityExtractor, worker.TraceIDExtractor,
	}
	log := logger.New(extractors...)

	cfg, err := config.Load(os.Getenv)
	if err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			log.Error("invalid configuration", "field", ve.Field, "error", ve.Err)
		} else {
			log.Error("invalid configuration", "error", err)
		}
		return 2
	}

	// Once the config is known, rebuild the logger so errors after this
	// point also reach Sentry when SENTRY_DSN is configured; DSN absent
	// degrades to the same stdout-only logger built above.
	log = logger.NewWithSentry(logger.SentryConfig{DSN: cfg.SentryDSN, Environment: cfg.SentryEnvironment}, extractors...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool := db.MustOpen(ctx, cfg.DatabaseURL,
		db.WithMigrations(migrations.FS),
		db.WithLogger(log),
	)
	defer pool.Close()

	st := store.New(pool)
	q := queue.New(st, queue.WithLogger(log), queue.WithFlags(cfg.Flags))

	if cfg.TriggerRulesFile != "" {
		if err := loadTriggerRules(ctx, st, cfg.TriggerRulesFile); err != nil {
			log.Error("failed to load trigger rule set", "error", err)
			return 1
		}
	}

	healthChecks := health.Checks{
		"postgres": func(ctx context.Context) error { return pool.Ping(ctx) },
	}

	// The dedupe/validation memo defaults to an in-process cache; when
	// REDIS_URL is set it's backed by Redis instead so the memo is
	// shared across worker replicas.
	validationMemo := cache.Cache[bool](cache.NewMemory[bool]())
	if cfg.RedisURL != "" {
		rdb, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer rdb.Close()
		validationMemo = cache.NewRedis[bool](rdb, nil)
		healthChecks["redis"] = redis.Healthcheck(rdb)
	}

	registry := handler.NewRegistry(validationMemo, cfg.Flags)
	// Job-type handlers are registered by the importing application via
	// registry.Register before Run is reached in a real deployment; this
	// binary wires the runtime, not the handler catalog.

	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "jobforge-worker"
	}
	// Append a short random suffix so two processes started on the same
	// host (e.g. two containers sharing a hostname, or a local replica
	// count > 1) never collide as the same locked_by/worker identity.
	identity := host + "-" + id.NewShortID()

	metrics := worker.NewMetrics()
	pl := worker.New(identity, q, registry,
		worker.WithLogger(log),
		worker.WithMetrics(metrics),
		worker.WithFlags(cfg.Flags),
		worker.WithManifestStore(st),
	)

	reaper := worker.NewReaper(q, log, queue.DefaultReapThreshold)
	if err := reaper.Start(ctx, "@every 1m"); err != nil {
		log.Error("failed to start reaper", "error", err)
		return 1
	}

	healthMux := http.NewServeMux()
	healthMux.Handle("/livez", health.LivenessHandler())
	healthMux.Handle("/readyz", health.ReadinessHandler(healthChecks))
	healthSrv := &http.Server{Addr: cfg.HealthAddress, Handler: healthMux}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server exited", "error", err)
		}
	}()
	defer healthSrv.Close()

	log.Info("jobforge-worker starting", "identity", identity)
	if err := pl.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("worker pool exited", "error", err)
		return 1
	}

	log.Info("jobforge-worker stopped")
	return 0
}

// loadTriggerRules reads a declarative YAML rule-set file and upserts
// every rule it defines, keyed by (tenant, name), so re-running the
// worker against an unchanged file is a no-op.
func loadTriggerRules(ctx context.Context, st *store.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rs, err := config.LoadRuleSet(f)
	if err != nil {
		return err
	}

	for _, entry := range rs.Rules {
		rule, err := entry.ToTriggerRule()
		if err != nil {
			return err
		}
		if _, err := st.UpsertTriggerRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}
