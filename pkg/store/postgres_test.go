package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jobforge/jobforge/migrations"
	"github.com/jobforge/jobforge/pkg/db"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	require.False(t, IsUniqueViolation(errors.New("boom")))
	require.False(t, IsUniqueViolation(nil))
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	for _, s := range []Status{StatusSucceeded, StatusFailed, StatusDead, StatusCanceled} {
		require.True(t, isTerminal(s))
	}
	for _, s := range []Status{StatusQueued, StatusRunning} {
		require.False(t, isTerminal(s))
	}
}

func TestNonZeroOr(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5, nonZeroOr(0, 5))
	require.Equal(t, 3, nonZeroOr(3, 5))
}

// newTestStore brings up a Store against JOBFORGE_TEST_DATABASE_URL and
// applies migrations, skipping when the variable is unset so this suite
// never runs against a database the CI environment hasn't provisioned.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("JOBFORGE_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("JOBFORGE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.WithMigrations(migrations.FS))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return New(pool)
}

func TestStore_EnqueueClaimComplete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	key := "idem-1"
	job, err := s.InsertJob(ctx, &Job{
		Tenant: "tenant-a", Type: "send_email", Payload: []byte(`{}`),
		RunAt: now, IdempotencyKey: &key,
	})
	require.NoError(t, err)
	require.Equal(t, StatusQueued, job.Status)

	dup, err := s.InsertJob(ctx, &Job{
		Tenant: "tenant-a", Type: "send_email", Payload: []byte(`{"x":1}`),
		RunAt: now, IdempotencyKey: &key,
	})
	require.NoError(t, err)
	require.Equal(t, job.ID, dup.ID)

	claimed, err := s.ClaimJobs(ctx, "worker-1", 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, StatusRunning, claimed[0].Status)

	require.NoError(t, s.Heartbeat(ctx, "tenant-a", job.ID, "worker-1", now.Add(time.Second)))

	err = s.Complete(ctx, "tenant-a", job.ID, "worker-1", CompleteParams{
		Now: now.Add(2 * time.Second), Status: StatusSucceeded, ResultPayload: []byte(`{"ok":true}`),
	})
	require.NoError(t, err)

	got, err := s.GetJob(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, got.Status)
}

func TestStore_EnqueueJobWritesAuditInSameTransaction(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	checkResult := true
	job, err := s.EnqueueJob(ctx, &Job{
		Tenant: "tenant-a", Type: "send_email", Payload: []byte(`{}`), RunAt: now,
	}, &AuditEntry{Tenant: "tenant-a", Action: "job_request", PolicyCheckResult: &checkResult})
	require.NoError(t, err)

	entries, err := s.ListAudit(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "job_request", entries[0].Action)
	require.NotNil(t, entries[0].JobID)
	require.Equal(t, job.ID, *entries[0].JobID)
}

func TestStore_CancelJobWritesAuditInSameTransaction(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := s.InsertJob(ctx, &Job{Tenant: "tenant-a", Type: "t", Payload: []byte(`{}`), RunAt: now})
	require.NoError(t, err)

	require.NoError(t, s.CancelJob(ctx, "tenant-a", job.ID, now, &AuditEntry{
		Tenant: "tenant-a", Action: "job_cancel",
	}))

	got, err := s.GetJob(ctx, "tenant-a", job.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCanceled, got.Status)

	entries, err := s.ListAudit(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "job_cancel", entries[0].Action)
	require.NotNil(t, entries[0].JobID)
	require.Equal(t, job.ID, *entries[0].JobID)
}

func TestStore_CompleteWrongWorker(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	job, err := s.InsertJob(ctx, &Job{Tenant: "tenant-a", Type: "t", Payload: []byte(`{}`), RunAt: now})
	require.NoError(t, err)

	_, err = s.ClaimJobs(ctx, "worker-1", 10, now)
	require.NoError(t, err)

	err = s.Complete(ctx, "tenant-a", job.ID, "worker-2", CompleteParams{Now: now, Status: StatusSucceeded})
	require.ErrorIs(t, err, ErrNotOwned)
}
