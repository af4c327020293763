package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_AuditAppendAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	ok := true
	_, err := s.InsertAudit(ctx, &AuditEntry{
		Tenant: "tenant-a", Action: "job_request",
		RequestPayload: []byte(`{}`), PolicyCheckResult: &ok,
	})
	require.NoError(t, err)

	entries, err := s.ListAudit(ctx, "tenant-a", 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.Equal(t, "job_request", entries[0].Action)
}
