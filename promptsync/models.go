// Package promptsync implements the server side of the prompt catalog sync
// protocol: the wire model shared with clients, the authority service that
// hands out delta pages and applies client mutation batches, and net/http
// handlers exposing both as JSON endpoints.
package promptsync

import (
	"encoding/json"
	"time"
)

// EntityType discriminates the three synchronized entity kinds on the wire.
type EntityType string

const (
	EntityPrompt        EntityType = "prompt"
	EntityPromptVersion EntityType = "prompt_version"
	EntityGroup         EntityType = "group"
)

// KnownEntityType reports whether t is one of the wire-level entity kinds.
func KnownEntityType(t EntityType) bool {
	switch t {
	case EntityPrompt, EntityPromptVersion, EntityGroup:
		return true
	}
	return false
}

// Operation is the kind of a client mutation.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// KnownOperation reports whether op is a valid mutation operation.
func KnownOperation(op Operation) bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// TimeLayout is the fixed-width UTC timestamp format used everywhere a
// timestamp crosses the wire or lands in storage. Fixed width keeps string
// comparison consistent with chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// NowUTC returns the current time formatted with TimeLayout.
func NowUTC() string {
	return time.Now().UTC().Format(TimeLayout)
}

// Envelope carries the fields common to every synchronized entity.
type Envelope struct {
	ID        string     `json:"id"`
	Type      EntityType `json:"type"`
	CreatedAt string     `json:"createdAt"`
	UpdatedAt string     `json:"updatedAt"`
	SyncID    *int64     `json:"syncId,omitempty"`
	IsDeleted bool       `json:"isDeleted,omitempty"`
}

// Prompt is a user-authored prompt. GroupID may reference a Group id; a
// dangling reference is a valid state and means "no group".
type Prompt struct {
	Envelope
	Title      string `json:"title"`
	Content    string `json:"content"`
	Category   string `json:"category"`
	IsFavorite bool   `json:"isFavorite"`
	GroupID    string `json:"groupId,omitempty"`
}

// PromptVersion is an immutable snapshot of a prompt's content. Versions may
// outlive the Prompt they reference.
type PromptVersion struct {
	Envelope
	PromptID string `json:"promptId"`
	Content  string `json:"content"`
	Note     string `json:"note,omitempty"`
}

// Group is a named collection prompts can reference.
type Group struct {
	Envelope
	Name  string `json:"name"`
	Color string `json:"color"`
}

// PromptChanges is the per-kind change bag for prompts in a delta packet.
type PromptChanges struct {
	Created []Prompt `json:"created"`
	Updated []Prompt `json:"updated"`
	Deleted []string `json:"deleted"`
}

// PromptVersionChanges is the per-kind change bag for prompt versions.
type PromptVersionChanges struct {
	Created []PromptVersion `json:"created"`
	Updated []PromptVersion `json:"updated"`
	Deleted []string        `json:"deleted"`
}

// GroupChanges is the per-kind change bag for groups.
type GroupChanges struct {
	Created []Group  `json:"created"`
	Updated []Group  `json:"updated"`
	Deleted []string `json:"deleted"`
}

// Changes groups the three per-kind change bags of a delta packet.
type Changes struct {
	Prompts        PromptChanges        `json:"prompts"`
	PromptVersions PromptVersionChanges `json:"promptVersions"`
	Groups         GroupChanges         `json:"groups"`
}

// EmptyChanges returns a Changes value whose slices are allocated, so the
// packet always marshals arrays rather than nulls.
func EmptyChanges() Changes {
	return Changes{
		Prompts:        PromptChanges{Created: []Prompt{}, Updated: []Prompt{}, Deleted: []string{}},
		PromptVersions: PromptVersionChanges{Created: []PromptVersion{}, Updated: []PromptVersion{}, Deleted: []string{}},
		Groups:         GroupChanges{Created: []Group{}, Updated: []Group{}, Deleted: []string{}},
	}
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	LastSyncID int64 `json:"lastSyncId"`
	Limit      int   `json:"limit,omitempty"`
}

// SyncResponse is the delta packet returned by POST /api/sync. SyncID is the
// new cursor and is always >= the request's LastSyncID.
type SyncResponse struct {
	SyncID    int64   `json:"syncId"`
	Timestamp string  `json:"timestamp"`
	HasMore   bool    `json:"hasMore"`
	Changes   Changes `json:"changes"`
}

// Mutation is one queued client edit. Payload carries a partial entity for
// create/update and is null for delete.
type Mutation struct {
	ID         string          `json:"id"`
	Operation  Operation       `json:"operation"`
	EntityType EntityType      `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  string          `json:"timestamp"`
	RetryCount int             `json:"retryCount"`
}

// MutationsRequest is the body of POST /api/mutations.
type MutationsRequest struct {
	ClientID  string     `json:"clientId"`
	Mutations []Mutation `json:"mutations"`
}

// MutationResult is the per-mutation outcome in a MutationsResponse. Entity,
// when present, is the server-authoritative record after apply; clients pick
// it up via the next pull rather than installing it from here.
type MutationResult struct {
	MutationID string          `json:"mutationId"`
	Success    bool            `json:"success"`
	Entity     json.RawMessage `json:"entity,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// MutationsResponse is the batch result of POST /api/mutations. Conflicts is
// reserved; it is never produced and clients ignore it.
type MutationsResponse struct {
	Success   bool              `json:"success"`
	SyncID    int64             `json:"syncId"`
	Results   []MutationResult  `json:"results"`
	Conflicts []json.RawMessage `json:"conflicts,omitempty"`
}
