package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStore_ManifestLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	runID := "11111111-1111-1111-1111-111111111111"

	m, err := s.InsertManifest(ctx, &Manifest{
		RunID: runID, Tenant: "tenant-a", JobType: "send_email",
		EnvFingerprint: []byte(`{}`), ToolVersions: []byte(`{}`),
	})
	require.NoError(t, err)
	require.Equal(t, "pending", m.Status)

	err = s.CompleteManifest(ctx, "tenant-a", runID, "complete",
		[]byte(`[]`), []byte(`{}`), []byte(`{"decision":"allow"}`), nil, nil, now)
	require.NoError(t, err)

	got, err := s.GetManifest(ctx, "tenant-a", runID)
	require.NoError(t, err)
	require.Equal(t, "complete", got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestStore_GetManifest_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.GetManifest(context.Background(), "tenant-a", "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}
