package promptsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type memRow struct {
	doc        json.RawMessage
	createdSeq int64
	syncID     int64
	deleted    bool
}

// MemBackend is an in-memory Backend. It backs the reference server's demo
// mode and the test suites; a process restart loses its state.
type MemBackend struct {
	mu         sync.Mutex
	rows       map[EntityType]map[string]*memRow
	lastSyncID int64
}

// NewMemBackend creates an empty in-memory backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{
		rows: map[EntityType]map[string]*memRow{
			EntityPrompt:        {},
			EntityPromptVersion: {},
			EntityGroup:         {},
		},
	}
}

// Deltas implements Backend.
func (b *MemBackend) Deltas(_ context.Context, after int64, limit int) ([]DeltaRow, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []DeltaRow
	for kind, byID := range b.rows {
		for id, row := range byID {
			if row.syncID > after {
				out = append(out, DeltaRow{
					Kind:       kind,
					ID:         id,
					Doc:        row.doc,
					CreatedSeq: row.createdSeq,
					SyncID:     row.syncID,
					Deleted:    row.deleted,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SyncID < out[j].SyncID })

	hasMore := false
	if limit > 0 && len(out) > limit {
		out = out[:limit]
		hasMore = true
	}
	return out, hasMore, nil
}

// ApplyMutation implements Backend. Each applied write advances the cursor
// by exactly one; a delete of a missing row acks without a write.
func (b *MemBackend) ApplyMutation(_ context.Context, m *Mutation, now string) (json.RawMessage, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID, ok := b.rows[m.EntityType]
	if !ok {
		return nil, false, fmt.Errorf("unknown entity kind %q", m.EntityType)
	}

	var current json.RawMessage
	existing := byID[m.EntityID]
	if existing != nil {
		current = existing.doc
	}

	seq := b.lastSyncID + 1
	doc, write, err := applyChange(m, current, seq, now)
	if err != nil {
		return nil, false, err
	}
	if !write {
		return nil, false, nil
	}

	b.lastSyncID = seq
	row := existing
	if row == nil {
		row = &memRow{createdSeq: seq}
		byID[m.EntityID] = row
	}
	row.doc = doc
	row.syncID = seq
	row.deleted = docDeleted(doc)
	return doc, true, nil
}

// HeadSyncID implements Backend.
func (b *MemBackend) HeadSyncID(_ context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSyncID, nil
}

// Seed installs entities directly, bypassing the mutation path. Each entity
// consumes one cursor position, as if a client had written it. Used by the
// reference server's demo mode and by tests.
func (b *MemBackend) Seed(kind EntityType, docs ...any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID, ok := b.rows[kind]
	if !ok {
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	for _, d := range docs {
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal seed entity: %w", err)
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("failed to read seed envelope: %w", err)
		}
		if env.ID == "" {
			return fmt.Errorf("seed entity for %s has no id", kind)
		}

		b.lastSyncID++
		// Stamp the assigned cursor into the stored document.
		doc := map[string]any{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("failed to parse seed entity: %w", err)
		}
		doc["type"] = string(kind)
		doc["syncId"] = b.lastSyncID
		stamped, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal seed entity: %w", err)
		}

		byID[env.ID] = &memRow{
			doc:        stamped,
			createdSeq: b.lastSyncID,
			syncID:     b.lastSyncID,
			deleted:    env.IsDeleted,
		}
	}
	return nil
}
