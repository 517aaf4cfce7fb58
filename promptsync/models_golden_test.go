package promptsync

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// The wire shape is a compatibility contract with non-Go clients; these
// goldens pin it down to the byte.

func TestSyncResponseWireShape(t *testing.T) {
	ts := "2024-01-01T00:00:00.000000000Z"
	syncID := int64(42)

	resp := SyncResponse{
		SyncID:    42,
		Timestamp: ts,
		HasMore:   false,
		Changes:   EmptyChanges(),
	}
	resp.Changes.Prompts.Created = []Prompt{{
		Envelope:   Envelope{ID: "p-1", Type: EntityPrompt, CreatedAt: ts, UpdatedAt: ts, SyncID: &syncID},
		Title:      "Greeting",
		Content:    "Say hello",
		Category:   "general",
		IsFavorite: true,
	}}
	resp.Changes.Prompts.Deleted = []string{"p-9"}
	resp.Changes.Groups.Created = []Group{{
		Envelope: Envelope{ID: "g-1", Type: EntityGroup, CreatedAt: ts, UpdatedAt: ts},
		Name:     "work",
		Color:    "blue",
	}}

	data, err := json.MarshalIndent(resp, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "sync_response", append(data, '\n'))
}

func TestMutationsResponseWireShape(t *testing.T) {
	resp := MutationsResponse{
		Success: true,
		SyncID:  7,
		Results: []MutationResult{
			{
				MutationID: "m-1",
				Success:    true,
				Entity:     json.RawMessage(`{"id":"p-1","type":"prompt"}`),
			},
			{
				MutationID: "m-2",
				Success:    false,
				Error:      `unknown entity type "bogus"`,
			},
		},
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "mutations_response", append(data, '\n'))
}
