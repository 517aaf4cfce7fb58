package promptlite

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/promptpad/promptsync/promptsync"
)

// View is the in-memory projection of the durable store. The presentation
// layer reads snapshots from it and applies mutations through it; it never
// touches the network. Mutations become visible to readers before the
// durable write resolves.
type View struct {
	store  *Store
	logger *slog.Logger

	mu       sync.RWMutex
	prompts  map[string]*promptsync.Prompt
	versions map[string]*promptsync.PromptVersion
	groups   map[string]*promptsync.Group
	status   Status
	ready    bool

	subs    map[int]func()
	nextSub int
}

// NewView creates a view over the given store. logger may be nil.
func NewView(store *Store, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		store:    store,
		logger:   logger,
		prompts:  map[string]*promptsync.Prompt{},
		versions: map[string]*promptsync.PromptVersion{},
		groups:   map[string]*promptsync.Group{},
		status:   Status{State: StateIdle, IsOnline: true},
		subs:     map[int]func(){},
	}
}

// Hydrate populates the view from the durable store and marks it ready. A
// store read failure still marks the view ready with empty contents so the
// UI can render; the next successful pull repopulates from the server.
func (v *View) Hydrate(ctx context.Context) error {
	prompts, versions, groups, pending, meta, err := v.loadAll(ctx)
	if err != nil {
		v.logger.Error("Hydration failed, starting with empty view", "error", err)
		v.mu.Lock()
		v.ready = true
		v.status.State = StateError
		v.status.LastError = err.Error()
		v.mu.Unlock()
		v.notify()
		return nil
	}

	v.mu.Lock()
	v.prompts = map[string]*promptsync.Prompt{}
	v.versions = map[string]*promptsync.PromptVersion{}
	v.groups = map[string]*promptsync.Group{}
	for i := range prompts {
		v.prompts[prompts[i].ID] = &prompts[i]
	}
	for i := range versions {
		v.versions[versions[i].ID] = &versions[i]
	}
	for i := range groups {
		v.groups[groups[i].ID] = &groups[i]
	}
	v.status.PendingCount = pending
	if meta != nil {
		v.status.LastSyncID = meta.LastSyncID
		v.status.LastSyncedAt = meta.LastSyncedAt
	}
	v.ready = true
	v.mu.Unlock()
	v.notify()
	return nil
}

func (v *View) loadAll(ctx context.Context) ([]promptsync.Prompt, []promptsync.PromptVersion, []promptsync.Group, int, *Metadata, error) {
	prompts, err := v.store.ActivePrompts(ctx)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}
	versions, err := v.store.ActivePromptVersions(ctx)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}
	groups, err := v.store.ActiveGroups(ctx)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}
	pending, err := v.store.PendingCount(ctx)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}
	meta, err := v.store.ReadMeta(ctx)
	if err != nil {
		return nil, nil, nil, 0, nil, err
	}
	return prompts, versions, groups, pending, meta, nil
}

// Ready reports whether Hydrate has completed.
func (v *View) Ready() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ready
}

// Subscribe registers an observer invoked after every change to the view or
// its status record. The returned function unsubscribes.
func (v *View) Subscribe(fn func()) func() {
	v.mu.Lock()
	id := v.nextSub
	v.nextSub++
	v.subs[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}

func (v *View) notify() {
	v.mu.RLock()
	fns := make([]func(), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// ---- selectors ----

// ActivePrompts returns all non-deleted prompts, oldest first.
func (v *View) ActivePrompts() []promptsync.Prompt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]promptsync.Prompt, 0, len(v.prompts))
	for _, p := range v.prompts {
		if !p.IsDeleted {
			out = append(out, *p)
		}
	}
	sortByCreatedAt(out, func(p promptsync.Prompt) (string, string) { return p.CreatedAt, p.ID })
	return out
}

// FavoritePrompts returns non-deleted prompts flagged as favorites.
func (v *View) FavoritePrompts() []promptsync.Prompt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []promptsync.Prompt
	for _, p := range v.prompts {
		if !p.IsDeleted && p.IsFavorite {
			out = append(out, *p)
		}
	}
	sortByCreatedAt(out, func(p promptsync.Prompt) (string, string) { return p.CreatedAt, p.ID })
	return out
}

// PromptsInGroup returns non-deleted prompts referencing the given group id.
func (v *View) PromptsInGroup(groupID string) []promptsync.Prompt {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []promptsync.Prompt
	for _, p := range v.prompts {
		if !p.IsDeleted && p.GroupID == groupID {
			out = append(out, *p)
		}
	}
	sortByCreatedAt(out, func(p promptsync.Prompt) (string, string) { return p.CreatedAt, p.ID })
	return out
}

// ActiveGroups returns all non-deleted groups.
func (v *View) ActiveGroups() []promptsync.Group {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]promptsync.Group, 0, len(v.groups))
	for _, g := range v.groups {
		if !g.IsDeleted {
			out = append(out, *g)
		}
	}
	sortByCreatedAt(out, func(g promptsync.Group) (string, string) { return g.CreatedAt, g.ID })
	return out
}

// ActivePromptVersions returns all non-deleted prompt versions.
func (v *View) ActivePromptVersions() []promptsync.PromptVersion {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]promptsync.PromptVersion, 0, len(v.versions))
	for _, pv := range v.versions {
		if !pv.IsDeleted {
			out = append(out, *pv)
		}
	}
	sortByCreatedAt(out, func(pv promptsync.PromptVersion) (string, string) { return pv.CreatedAt, pv.ID })
	return out
}

// VersionsOf returns the non-deleted versions of a prompt, newest first.
func (v *View) VersionsOf(promptID string) []promptsync.PromptVersion {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []promptsync.PromptVersion
	for _, pv := range v.versions {
		if !pv.IsDeleted && pv.PromptID == promptID {
			out = append(out, *pv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Status returns a snapshot of the sync status record.
func (v *View) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

func sortByCreatedAt[T any](items []T, key func(T) (string, string)) {
	sort.Slice(items, func(i, j int) bool {
		ci, ii := key(items[i])
		cj, ij := key(items[j])
		if ci != cj {
			return ci < cj
		}
		return ii < ij
	})
}

// ---- mutation inputs ----

// PromptFields are the caller-supplied fields of a new prompt.
type PromptFields struct {
	Title      string
	Content    string
	Category   string
	IsFavorite bool
	GroupID    string
}

// PromptPatch is a partial update; nil fields are left untouched.
type PromptPatch struct {
	Title      *string
	Content    *string
	Category   *string
	IsFavorite *bool
	GroupID    *string
}

// GroupFields are the caller-supplied fields of a new group.
type GroupFields struct {
	Name  string
	Color string
}

// GroupPatch is a partial group update; nil fields are left untouched.
type GroupPatch struct {
	Name  *string
	Color *string
}

// VersionFields are the caller-supplied fields of a new prompt version.
type VersionFields struct {
	PromptID string
	Content  string
	Note     string
}

// ---- mutations ----

// CreatePrompt mints a prompt, installs it optimistically, persists it, and
// queues a create mutation.
func (v *View) CreatePrompt(ctx context.Context, fields PromptFields) (*promptsync.Prompt, error) {
	now := promptsync.NowUTC()
	p := &promptsync.Prompt{
		Envelope: promptsync.Envelope{
			ID:        uuid.New().String(),
			Type:      promptsync.EntityPrompt,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Title:      fields.Title,
		Content:    fields.Content,
		Category:   fields.Category,
		IsFavorite: fields.IsFavorite,
		GroupID:    fields.GroupID,
	}

	v.mu.Lock()
	v.prompts[p.ID] = p
	snapshot := *p
	v.mu.Unlock()

	err := v.commitLocal(ctx, &snapshot, promptsync.OpCreate, promptsync.EntityPrompt, p.ID, now)
	v.notify()
	return &snapshot, err
}

// UpdatePrompt merges a patch into an existing prompt. Unknown ids are a
// silent no-op. An empty patch still refreshes the updated timestamp.
func (v *View) UpdatePrompt(ctx context.Context, id string, patch PromptPatch) error {
	now := promptsync.NowUTC()

	v.mu.Lock()
	p, ok := v.prompts[id]
	if !ok {
		v.mu.Unlock()
		return nil
	}
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	if patch.IsFavorite != nil {
		p.IsFavorite = *patch.IsFavorite
	}
	if patch.GroupID != nil {
		p.GroupID = *patch.GroupID
	}
	p.UpdatedAt = now
	snapshot := *p
	v.mu.Unlock()

	err := v.commitLocal(ctx, &snapshot, promptsync.OpUpdate, promptsync.EntityPrompt, id, now)
	v.notify()
	return err
}

// DeletePrompt soft-deletes a prompt. Unknown ids are a silent no-op.
func (v *View) DeletePrompt(ctx context.Context, id string) error {
	return v.deleteEntity(ctx, promptsync.EntityPrompt, id)
}

// CreateGroup mints a group, installs it optimistically, persists it, and
// queues a create mutation.
func (v *View) CreateGroup(ctx context.Context, fields GroupFields) (*promptsync.Group, error) {
	now := promptsync.NowUTC()
	g := &promptsync.Group{
		Envelope: promptsync.Envelope{
			ID:        uuid.New().String(),
			Type:      promptsync.EntityGroup,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Name:  fields.Name,
		Color: fields.Color,
	}

	v.mu.Lock()
	v.groups[g.ID] = g
	snapshot := *g
	v.mu.Unlock()

	err := v.commitLocal(ctx, &snapshot, promptsync.OpCreate, promptsync.EntityGroup, g.ID, now)
	v.notify()
	return &snapshot, err
}

// UpdateGroup merges a patch into an existing group. Unknown ids are a
// silent no-op.
func (v *View) UpdateGroup(ctx context.Context, id string, patch GroupPatch) error {
	now := promptsync.NowUTC()

	v.mu.Lock()
	g, ok := v.groups[id]
	if !ok {
		v.mu.Unlock()
		return nil
	}
	if patch.Name != nil {
		g.Name = *patch.Name
	}
	if patch.Color != nil {
		g.Color = *patch.Color
	}
	g.UpdatedAt = now
	snapshot := *g
	v.mu.Unlock()

	err := v.commitLocal(ctx, &snapshot, promptsync.OpUpdate, promptsync.EntityGroup, id, now)
	v.notify()
	return err
}

// DeleteGroup soft-deletes a group. Unknown ids are a silent no-op.
func (v *View) DeleteGroup(ctx context.Context, id string) error {
	return v.deleteEntity(ctx, promptsync.EntityGroup, id)
}

// CreatePromptVersion mints a prompt version, installs it optimistically,
// persists it, and queues a create mutation.
func (v *View) CreatePromptVersion(ctx context.Context, fields VersionFields) (*promptsync.PromptVersion, error) {
	now := promptsync.NowUTC()
	pv := &promptsync.PromptVersion{
		Envelope: promptsync.Envelope{
			ID:        uuid.New().String(),
			Type:      promptsync.EntityPromptVersion,
			CreatedAt: now,
			UpdatedAt: now,
		},
		PromptID: fields.PromptID,
		Content:  fields.Content,
		Note:     fields.Note,
	}

	v.mu.Lock()
	v.versions[pv.ID] = pv
	snapshot := *pv
	v.mu.Unlock()

	err := v.commitLocal(ctx, &snapshot, promptsync.OpCreate, promptsync.EntityPromptVersion, pv.ID, now)
	v.notify()
	return &snapshot, err
}

// deleteEntity sets the soft-delete flag in the view, persists the flagged
// row, and queues a delete mutation.
func (v *View) deleteEntity(ctx context.Context, kind promptsync.EntityType, id string) error {
	now := promptsync.NowUTC()

	v.mu.Lock()
	var entity any
	switch kind {
	case promptsync.EntityPrompt:
		p, ok := v.prompts[id]
		if !ok {
			v.mu.Unlock()
			return nil
		}
		p.IsDeleted = true
		p.UpdatedAt = now
		snapshot := *p
		entity = &snapshot
	case promptsync.EntityPromptVersion:
		pv, ok := v.versions[id]
		if !ok {
			v.mu.Unlock()
			return nil
		}
		pv.IsDeleted = true
		pv.UpdatedAt = now
		snapshot := *pv
		entity = &snapshot
	case promptsync.EntityGroup:
		g, ok := v.groups[id]
		if !ok {
			v.mu.Unlock()
			return nil
		}
		g.IsDeleted = true
		g.UpdatedAt = now
		snapshot := *g
		entity = &snapshot
	default:
		v.mu.Unlock()
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	v.mu.Unlock()

	err := v.commitDelete(ctx, entity, kind, id, now)
	v.notify()
	return err
}

// commitLocal persists an optimistic create/update: payload is the full
// post-merge entity so server-side apply is a plain last-writer-wins upsert.
func (v *View) commitLocal(ctx context.Context, entity any, op promptsync.Operation, kind promptsync.EntityType, id, now string) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s/%s: %w", kind, id, err)
	}
	m := &promptsync.Mutation{
		ID:         uuid.New().String(),
		Operation:  op,
		EntityType: kind,
		EntityID:   id,
		Payload:    payload,
		Timestamp:  now,
	}
	return v.persistLocal(ctx, entity, m)
}

func (v *View) commitDelete(ctx context.Context, entity any, kind promptsync.EntityType, id, now string) error {
	m := &promptsync.Mutation{
		ID:         uuid.New().String(),
		Operation:  promptsync.OpDelete,
		EntityType: kind,
		EntityID:   id,
		Timestamp:  now,
	}
	return v.persistLocal(ctx, entity, m)
}

// persistLocal commits the entity row and the queue record in one store
// transaction. On failure the optimistic in-memory state is kept and the
// status record flips to error; the next successful pull reconciles.
func (v *View) persistLocal(ctx context.Context, entity any, m *promptsync.Mutation) error {
	if err := v.store.CommitLocal(ctx, entity, m); err != nil {
		v.logger.Error("Failed to persist local mutation",
			"mutation_id", m.ID, "entity", m.EntityID, "error", err)
		v.mu.Lock()
		v.status.State = StateError
		v.status.LastError = err.Error()
		v.mu.Unlock()
		return err
	}
	v.mu.Lock()
	v.status.PendingCount++
	v.mu.Unlock()
	return nil
}

// ---- engine-facing operations ----

// ApplyServerChanges installs one delta packet: durable first, then the
// in-memory projection, atomically with respect to readers. The cursor never
// goes backward; a stale packet still applies its upserts.
func (v *View) ApplyServerChanges(ctx context.Context, packet *promptsync.SyncResponse) error {
	if err := v.store.ApplyDeltas(ctx, packet); err != nil {
		return err
	}

	ch := &packet.Changes
	v.mu.Lock()
	for i := range ch.Prompts.Created {
		p := ch.Prompts.Created[i]
		v.prompts[p.ID] = &p
	}
	for i := range ch.Prompts.Updated {
		p := ch.Prompts.Updated[i]
		v.prompts[p.ID] = &p
	}
	for i := range ch.PromptVersions.Created {
		pv := ch.PromptVersions.Created[i]
		v.versions[pv.ID] = &pv
	}
	for i := range ch.PromptVersions.Updated {
		pv := ch.PromptVersions.Updated[i]
		v.versions[pv.ID] = &pv
	}
	for i := range ch.Groups.Created {
		g := ch.Groups.Created[i]
		v.groups[g.ID] = &g
	}
	for i := range ch.Groups.Updated {
		g := ch.Groups.Updated[i]
		v.groups[g.ID] = &g
	}
	for _, id := range ch.Prompts.Deleted {
		if p, ok := v.prompts[id]; ok {
			p.IsDeleted = true
			p.UpdatedAt = packet.Timestamp
		}
	}
	for _, id := range ch.PromptVersions.Deleted {
		if pv, ok := v.versions[id]; ok {
			pv.IsDeleted = true
			pv.UpdatedAt = packet.Timestamp
		}
	}
	for _, id := range ch.Groups.Deleted {
		if g, ok := v.groups[id]; ok {
			g.IsDeleted = true
			g.UpdatedAt = packet.Timestamp
		}
	}
	if packet.SyncID > v.status.LastSyncID {
		v.status.LastSyncID = packet.SyncID
		v.status.LastSyncedAt = packet.Timestamp
	}
	v.mu.Unlock()
	v.notify()
	return nil
}

// RemovePendingMutation drops an acknowledged mutation from the queue and
// refreshes the pending count.
func (v *View) RemovePendingMutation(ctx context.Context, id string) error {
	if err := v.store.DequeueMutation(ctx, id); err != nil {
		return err
	}
	count, err := v.store.PendingCount(ctx)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.status.PendingCount = count
	v.mu.Unlock()
	v.notify()
	return nil
}

// updateStatus merges a change into the status record and notifies
// observers.
func (v *View) updateStatus(apply func(*Status)) {
	v.mu.Lock()
	apply(&v.status)
	v.mu.Unlock()
	v.notify()
}
