package promptsync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *MemBackend) {
	t.Helper()
	backend := NewMemBackend()
	return NewService(backend, nil, nil), backend
}

func createMutation(id, entityID string, payload any) Mutation {
	raw, _ := json.Marshal(payload)
	return Mutation{
		ID:         id,
		Operation:  OpCreate,
		EntityType: EntityPrompt,
		EntityID:   entityID,
		Payload:    raw,
		Timestamp:  NowUTC(),
	}
}

func TestProcessMutationsAdvancesCursor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			createMutation("m1", "p1", map[string]any{"title": "T", "content": "C"}),
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, int64(1), resp.SyncID)
	require.Len(t, resp.Results, 1)
	require.True(t, resp.Results[0].Success)
	require.Equal(t, "m1", resp.Results[0].MutationID)
	require.NotNil(t, resp.Results[0].Entity)

	var p Prompt
	require.NoError(t, json.Unmarshal(resp.Results[0].Entity, &p))
	require.Equal(t, "p1", p.ID)
	require.Equal(t, EntityPrompt, p.Type)
	require.Equal(t, "T", p.Title)
	require.NotNil(t, p.SyncID)
	require.Equal(t, int64(1), *p.SyncID)
	require.NotEmpty(t, p.CreatedAt)
	require.NotEmpty(t, p.UpdatedAt)
}

func TestProcessSyncReturnsCreatedEntities(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			createMutation("m1", "p1", map[string]any{"title": "T", "content": "C", "category": "", "isFavorite": false}),
		},
	})
	require.NoError(t, err)

	resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0})
	require.NoError(t, err)
	require.Equal(t, int64(1), resp.SyncID)
	require.False(t, resp.HasMore)
	require.Len(t, resp.Changes.Prompts.Created, 1)
	require.Empty(t, resp.Changes.Prompts.Updated)
	require.Empty(t, resp.Changes.Prompts.Deleted)
	require.Equal(t, "p1", resp.Changes.Prompts.Created[0].ID)
}

func TestProcessSyncBeyondHeadEchoesCursor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 99})
	require.NoError(t, err)
	require.Equal(t, int64(99), resp.SyncID)
	require.False(t, resp.HasMore)
	require.Empty(t, resp.Changes.Prompts.Created)
}

func TestCreatedVsUpdatedSplit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			createMutation("m1", "p1", map[string]any{"title": "v1", "content": "C"}),
			{
				ID: "m2", Operation: OpUpdate, EntityType: EntityPrompt, EntityID: "p1",
				Payload: json.RawMessage(`{"title":"v2"}`), Timestamp: NowUTC(),
			},
		},
	})
	require.NoError(t, err)

	// From zero the entity was born inside the window: one created row with
	// the latest state.
	resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0})
	require.NoError(t, err)
	require.Len(t, resp.Changes.Prompts.Created, 1)
	require.Empty(t, resp.Changes.Prompts.Updated)
	require.Equal(t, "v2", resp.Changes.Prompts.Created[0].Title)
	require.Equal(t, "C", resp.Changes.Prompts.Created[0].Content, "partial update must preserve unnamed fields")

	// From cursor 1 the birth predates the window: the same row is an update.
	resp, err = svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 1})
	require.NoError(t, err)
	require.Empty(t, resp.Changes.Prompts.Created)
	require.Len(t, resp.Changes.Prompts.Updated, 1)
	require.Equal(t, "v2", resp.Changes.Prompts.Updated[0].Title)
}

func TestDeleteSurfacesAsDeletedID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			createMutation("m1", "p1", map[string]any{"title": "T"}),
			{ID: "m2", Operation: OpDelete, EntityType: EntityPrompt, EntityID: "p1", Timestamp: NowUTC()},
		},
	})
	require.NoError(t, err)

	resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0})
	require.NoError(t, err)
	require.Empty(t, resp.Changes.Prompts.Created)
	require.Empty(t, resp.Changes.Prompts.Updated)
	require.Equal(t, []string{"p1"}, resp.Changes.Prompts.Deleted)
	require.Equal(t, int64(2), resp.SyncID)
}

func TestDeleteMissingRowDoesNotBurnCursor(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	resp, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			{ID: "m1", Operation: OpDelete, EntityType: EntityPrompt, EntityID: "ghost", Timestamp: NowUTC()},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Results[0].Success)
	require.Nil(t, resp.Results[0].Entity)

	head, err := backend.HeadSyncID(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), head)
}

func TestUnknownEntityKindIsPerMutationFailure(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			{ID: "m1", Operation: OpCreate, EntityType: "bogus", EntityID: "x", Payload: json.RawMessage(`{}`), Timestamp: NowUTC()},
			createMutation("m2", "p1", map[string]any{"title": "T"}),
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Success, "a per-mutation rejection must not fail the batch")
	require.Len(t, resp.Results, 2)
	require.False(t, resp.Results[0].Success)
	require.Contains(t, resp.Results[0].Error, "unknown entity type")
	require.True(t, resp.Results[1].Success)
}

func TestUpdateMissingIDUpserts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			{
				ID: "m1", Operation: OpUpdate, EntityType: EntityGroup, EntityID: "g1",
				Payload: json.RawMessage(`{"name":"n","color":"red"}`), Timestamp: NowUTC(),
			},
		},
	})
	require.NoError(t, err)
	require.True(t, resp.Results[0].Success)

	pull, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0})
	require.NoError(t, err)
	require.Len(t, pull.Changes.Groups.Created, 1)
	require.Equal(t, "g1", pull.Changes.Groups.Created[0].ID)
	require.Equal(t, "red", pull.Changes.Groups.Created[0].Color)
}

func TestSyncPaging(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var mutations []Mutation
	for i := 0; i < 5; i++ {
		mutations = append(mutations, createMutation(
			fmt.Sprintf("m%d", i), fmt.Sprintf("p%d", i), map[string]any{"title": fmt.Sprintf("t%d", i)}))
	}
	_, err := svc.ProcessMutations(ctx, &MutationsRequest{ClientID: "c1", Mutations: mutations})
	require.NoError(t, err)

	seen := map[string]bool{}
	cursor := int64(0)
	pages := 0
	for {
		resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: cursor, Limit: 2})
		require.NoError(t, err)
		require.GreaterOrEqual(t, resp.SyncID, cursor, "cursor must never regress")
		for _, p := range resp.Changes.Prompts.Created {
			seen[p.ID] = true
		}
		cursor = resp.SyncID
		pages++
		if !resp.HasMore {
			break
		}
	}
	require.Equal(t, 3, pages)
	require.Len(t, seen, 5)
	require.Equal(t, int64(5), cursor)
}

func TestSyncLimitZeroUsesDefault(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var mutations []Mutation
	for i := 0; i < 7; i++ {
		mutations = append(mutations, createMutation(
			fmt.Sprintf("m%d", i), fmt.Sprintf("p%d", i), map[string]any{"title": "t"}))
	}
	_, err := svc.ProcessMutations(ctx, &MutationsRequest{ClientID: "c1", Mutations: mutations})
	require.NoError(t, err)

	resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0, Limit: 0})
	require.NoError(t, err)
	require.False(t, resp.HasMore)
	require.Len(t, resp.Changes.Prompts.Created, 7)
}

func TestLastWriterWinsInBatchOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ProcessMutations(ctx, &MutationsRequest{
		ClientID: "c1",
		Mutations: []Mutation{
			createMutation("m1", "p1", map[string]any{"title": "first"}),
			createMutation("m2", "p1", map[string]any{"title": "second"}),
		},
	})
	require.NoError(t, err)

	resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0})
	require.NoError(t, err)
	require.Len(t, resp.Changes.Prompts.Created, 1)
	require.Equal(t, "second", resp.Changes.Prompts.Created[0].Title)
}

func TestSeedInstallsEntities(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	require.NoError(t, backend.Seed(EntityPrompt, Prompt{
		Envelope: Envelope{ID: "a", Type: EntityPrompt, CreatedAt: NowUTC(), UpdatedAt: NowUTC()},
		Title:    "seeded",
	}))

	resp, err := svc.ProcessSync(ctx, &SyncRequest{LastSyncID: 0})
	require.NoError(t, err)
	require.Len(t, resp.Changes.Prompts.Created, 1)
	require.Equal(t, "seeded", resp.Changes.Prompts.Created[0].Title)
	require.NotNil(t, resp.Changes.Prompts.Created[0].SyncID)
}

func TestValidateMutation(t *testing.T) {
	require.Empty(t, validateMutation(&Mutation{
		ID: "m", Operation: OpDelete, EntityType: EntityPrompt, EntityID: "p",
	}))
	require.NotEmpty(t, validateMutation(&Mutation{Operation: OpDelete, EntityType: EntityPrompt, EntityID: "p"}))
	require.NotEmpty(t, validateMutation(&Mutation{ID: "m", Operation: "rename", EntityType: EntityPrompt, EntityID: "p"}))
	require.NotEmpty(t, validateMutation(&Mutation{ID: "m", Operation: OpCreate, EntityType: EntityPrompt, EntityID: ""}))
	require.NotEmpty(t, validateMutation(&Mutation{
		ID: "m", Operation: OpCreate, EntityType: EntityPrompt, EntityID: "p",
		Payload: json.RawMessage(`{not json`),
	}))
}
