package promptsync

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// newPGTestBackend connects to the database named by
// PROMPTSYNC_TEST_DATABASE_URL, or skips the test when it is unset.
func newPGTestBackend(t *testing.T) *PGBackend {
	t.Helper()
	dsn := os.Getenv("PROMPTSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("PROMPTSYNC_TEST_DATABASE_URL not set; skipping Postgres backend tests")
	}
	backend, err := NewPGBackend(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = backend.pool.Exec(ctx, `TRUNCATE promptsync_entities`)
		_, _ = backend.pool.Exec(ctx, `UPDATE promptsync_state SET last_sync_id = 0 WHERE id = 1`)
		backend.Close()
	})
	return backend
}

func TestPGBackendRoundTrip(t *testing.T) {
	backend := newPGTestBackend(t)
	ctx := context.Background()
	svc := NewService(backend, nil, nil)

	resp, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			{
				ID: "m1", Operation: OpCreate, EntityType: EntityPrompt, EntityID: "p1",
				Payload: json.RawMessage(`{"title":"T","content":"C"}`), Timestamp: NowUTC(),
			},
			{
				ID: "m2", Operation: OpUpdate, EntityType: EntityPrompt, EntityID: "p1",
				Payload: json.RawMessage(`{"title":"T2"}`), Timestamp: NowUTC(),
			},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Results[0].Success)
	require.True(t, resp.Results[1].Success)
	require.Equal(t, int64(2), resp.SyncID)

	pull, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0})
	require.NoError(t, err)
	require.Len(t, pull.Changes.Prompts.Created, 1)
	require.Equal(t, "T2", pull.Changes.Prompts.Created[0].Title)
	require.Equal(t, "C", pull.Changes.Prompts.Created[0].Content)
	require.Equal(t, int64(2), pull.SyncID)
}

func TestPGBackendDeleteDoesNotBurnCursor(t *testing.T) {
	backend := newPGTestBackend(t)
	ctx := context.Background()

	_, applied, err := backend.ApplyMutation(ctx, &Mutation{
		ID: "m1", Operation: OpDelete, EntityType: EntityPrompt, EntityID: "ghost",
	}, NowUTC())
	require.NoError(t, err)
	require.False(t, applied)

	head, err := backend.HeadSyncID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), head)
}
