package promptsync

import (
	"encoding/json"
	"fmt"
)

// applyChange computes the post-apply entity document for one mutation
// against the current server row (current == nil when the row is absent).
// Last-writer-wins at the entity level: payload fields overwrite the current
// document, the envelope is normalized, and the caller-provided seq becomes
// the row's syncId. The second return value is false when nothing needs to
// be written (delete of a missing row).
func applyChange(m *Mutation, current json.RawMessage, seq int64, now string) (json.RawMessage, bool, error) {
	doc := map[string]any{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &doc); err != nil {
			return nil, false, fmt.Errorf("failed to parse current row %s/%s: %w", m.EntityType, m.EntityID, err)
		}
	}

	switch m.Operation {
	case OpCreate, OpUpdate:
		patch := map[string]any{}
		if len(m.Payload) > 0 {
			if err := json.Unmarshal(m.Payload, &patch); err != nil {
				return nil, false, fmt.Errorf("failed to parse payload for %s/%s: %w", m.EntityType, m.EntityID, err)
			}
		}
		for k, v := range patch {
			doc[k] = v
		}
		if _, ok := patch["updatedAt"]; !ok {
			doc["updatedAt"] = now
		}
	case OpDelete:
		if len(current) == 0 {
			// Nothing to tombstone; the server never synthesizes a row just
			// to hold the deleted flag.
			return nil, false, nil
		}
		doc["isDeleted"] = true
		doc["updatedAt"] = now
	default:
		return nil, false, fmt.Errorf("unknown operation %q", m.Operation)
	}

	doc["id"] = m.EntityID
	doc["type"] = string(m.EntityType)
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = now
	}
	doc["syncId"] = seq

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal entity %s/%s: %w", m.EntityType, m.EntityID, err)
	}
	return out, true, nil
}

// docDeleted reports whether a stored entity document carries the soft-delete
// flag.
func docDeleted(doc json.RawMessage) bool {
	var probe struct {
		IsDeleted bool `json:"isDeleted"`
	}
	_ = json.Unmarshal(doc, &probe)
	return probe.IsDeleted
}
