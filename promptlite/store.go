// Package promptlite is the client side of the prompt catalog sync engine:
// a crash-safe SQLite replica of the server dataset, an in-memory projected
// view the UI reads from, and a background sync engine that exchanges deltas
// and queued mutations with the remote authority.
package promptlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/promptpad/promptsync/promptsync"
)

// metaKey is the fixed key of the singleton sync metadata row.
const metaKey = "sync_metadata"

// dbtx is satisfied by both *sql.DB and *sql.Tx so store operations can run
// standalone or inside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS prompts (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL DEFAULT '',
    content     TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    is_favorite INTEGER NOT NULL DEFAULT 0,
    group_id    TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    sync_id     INTEGER,
    is_deleted  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS prompt_versions (
    id          TEXT PRIMARY KEY,
    prompt_id   TEXT NOT NULL,
    content     TEXT NOT NULL DEFAULT '',
    note        TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    sync_id     INTEGER,
    is_deleted  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS groups (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    color       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL,
    sync_id     INTEGER,
    is_deleted  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS pending_mutations (
    id          TEXT PRIMARY KEY,
    operation   TEXT NOT NULL CHECK (operation IN ('create','update','delete')),
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    payload     TEXT,
    created_at  TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_metadata (
    key            TEXT PRIMARY KEY CHECK (key = 'sync_metadata'),
    last_sync_id   INTEGER NOT NULL DEFAULT 0,
    last_synced_at TEXT NOT NULL DEFAULT '',
    client_id      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prompt_versions_prompt ON prompt_versions(prompt_id);
CREATE INDEX IF NOT EXISTS idx_pending_mutations_created ON pending_mutations(created_at);
`

// Store is the client-side durable store: entity replicas, the pending
// mutation queue, and the singleton sync metadata row.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database at path and initializes
// the schema.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore initializes the schema on an existing database handle. Tests pass
// an in-memory handle here.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---- entities ----

func putPrompt(ctx context.Context, q dbtx, p *promptsync.Prompt) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO prompts (id, title, content, category, is_favorite, group_id, created_at, updated_at, sync_id, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			is_favorite = excluded.is_favorite,
			group_id = excluded.group_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_id = excluded.sync_id,
			is_deleted = excluded.is_deleted
	`, p.ID, p.Title, p.Content, p.Category, boolInt(p.IsFavorite), p.GroupID,
		p.CreatedAt, p.UpdatedAt, nullInt(p.SyncID), boolInt(p.IsDeleted))
	if err != nil {
		return fmt.Errorf("failed to upsert prompt %s: %w", p.ID, err)
	}
	return nil
}

func putPromptVersion(ctx context.Context, q dbtx, v *promptsync.PromptVersion) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO prompt_versions (id, prompt_id, content, note, created_at, updated_at, sync_id, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			prompt_id = excluded.prompt_id,
			content = excluded.content,
			note = excluded.note,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_id = excluded.sync_id,
			is_deleted = excluded.is_deleted
	`, v.ID, v.PromptID, v.Content, v.Note, v.CreatedAt, v.UpdatedAt, nullInt(v.SyncID), boolInt(v.IsDeleted))
	if err != nil {
		return fmt.Errorf("failed to upsert prompt version %s: %w", v.ID, err)
	}
	return nil
}

func putGroup(ctx context.Context, q dbtx, g *promptsync.Group) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO groups (id, name, color, created_at, updated_at, sync_id, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			sync_id = excluded.sync_id,
			is_deleted = excluded.is_deleted
	`, g.ID, g.Name, g.Color, g.CreatedAt, g.UpdatedAt, nullInt(g.SyncID), boolInt(g.IsDeleted))
	if err != nil {
		return fmt.Errorf("failed to upsert group %s: %w", g.ID, err)
	}
	return nil
}

// PutPrompt upserts a prompt row.
func (s *Store) PutPrompt(ctx context.Context, p *promptsync.Prompt) error {
	return putPrompt(ctx, s.db, p)
}

// PutPromptVersion upserts a prompt version row.
func (s *Store) PutPromptVersion(ctx context.Context, v *promptsync.PromptVersion) error {
	return putPromptVersion(ctx, s.db, v)
}

// PutGroup upserts a group row.
func (s *Store) PutGroup(ctx context.Context, g *promptsync.Group) error {
	return putGroup(ctx, s.db, g)
}

func scanPrompt(rows interface{ Scan(...any) error }) (*promptsync.Prompt, error) {
	var p promptsync.Prompt
	var fav, deleted int
	var syncID sql.NullInt64
	if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &fav, &p.GroupID,
		&p.CreatedAt, &p.UpdatedAt, &syncID, &deleted); err != nil {
		return nil, err
	}
	p.Type = promptsync.EntityPrompt
	p.IsFavorite = fav != 0
	p.IsDeleted = deleted != 0
	if syncID.Valid {
		p.SyncID = &syncID.Int64
	}
	return &p, nil
}

func scanPromptVersion(rows interface{ Scan(...any) error }) (*promptsync.PromptVersion, error) {
	var v promptsync.PromptVersion
	var deleted int
	var syncID sql.NullInt64
	if err := rows.Scan(&v.ID, &v.PromptID, &v.Content, &v.Note,
		&v.CreatedAt, &v.UpdatedAt, &syncID, &deleted); err != nil {
		return nil, err
	}
	v.Type = promptsync.EntityPromptVersion
	v.IsDeleted = deleted != 0
	if syncID.Valid {
		v.SyncID = &syncID.Int64
	}
	return &v, nil
}

func scanGroup(rows interface{ Scan(...any) error }) (*promptsync.Group, error) {
	var g promptsync.Group
	var deleted int
	var syncID sql.NullInt64
	if err := rows.Scan(&g.ID, &g.Name, &g.Color, &g.CreatedAt, &g.UpdatedAt, &syncID, &deleted); err != nil {
		return nil, err
	}
	g.Type = promptsync.EntityGroup
	g.IsDeleted = deleted != 0
	if syncID.Valid {
		g.SyncID = &syncID.Int64
	}
	return &g, nil
}

const promptCols = `id, title, content, category, is_favorite, group_id, created_at, updated_at, sync_id, is_deleted`
const versionCols = `id, prompt_id, content, note, created_at, updated_at, sync_id, is_deleted`
const groupCols = `id, name, color, created_at, updated_at, sync_id, is_deleted`

// GetPrompt returns the prompt row, or nil when absent.
func (s *Store) GetPrompt(ctx context.Context, id string) (*promptsync.Prompt, error) {
	p, err := scanPrompt(s.db.QueryRowContext(ctx,
		`SELECT `+promptCols+` FROM prompts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %s: %w", id, err)
	}
	return p, nil
}

// GetPromptVersion returns the prompt version row, or nil when absent.
func (s *Store) GetPromptVersion(ctx context.Context, id string) (*promptsync.PromptVersion, error) {
	v, err := scanPromptVersion(s.db.QueryRowContext(ctx,
		`SELECT `+versionCols+` FROM prompt_versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt version %s: %w", id, err)
	}
	return v, nil
}

// GetGroup returns the group row, or nil when absent.
func (s *Store) GetGroup(ctx context.Context, id string) (*promptsync.Group, error) {
	g, err := scanGroup(s.db.QueryRowContext(ctx,
		`SELECT `+groupCols+` FROM groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	return g, nil
}

// ActivePrompts returns all prompts whose soft-delete flag is clear.
func (s *Store) ActivePrompts(ctx context.Context) ([]promptsync.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+promptCols+` FROM prompts WHERE is_deleted = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompts: %w", err)
	}
	defer rows.Close()

	var out []promptsync.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ActivePromptVersions returns all prompt versions whose soft-delete flag is
// clear.
func (s *Store) ActivePromptVersions(ctx context.Context) ([]promptsync.PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionCols+` FROM prompt_versions WHERE is_deleted = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt versions: %w", err)
	}
	defer rows.Close()

	var out []promptsync.PromptVersion
	for rows.Next() {
		v, err := scanPromptVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ActiveGroups returns all groups whose soft-delete flag is clear.
func (s *Store) ActiveGroups(ctx context.Context) ([]promptsync.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+groupCols+` FROM groups WHERE is_deleted = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var out []promptsync.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// VersionsOf returns the non-deleted versions of a prompt, newest first.
func (s *Store) VersionsOf(ctx context.Context, promptID string) ([]promptsync.PromptVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionCols+` FROM prompt_versions
		 WHERE prompt_id = ? AND is_deleted = 0
		 ORDER BY created_at DESC, id DESC`, promptID)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions of %s: %w", promptID, err)
	}
	defer rows.Close()

	var out []promptsync.PromptVersion
	for rows.Next() {
		v, err := scanPromptVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan prompt version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ---- pending mutation queue ----

// PendingMutation is one queued local edit plus its local retry bookkeeping.
type PendingMutation struct {
	promptsync.Mutation
	LastError string
}

func enqueueMutation(ctx context.Context, q dbtx, m *promptsync.Mutation) error {
	payload := sql.NullString{}
	if len(m.Payload) > 0 {
		payload = sql.NullString{String: string(m.Payload), Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO pending_mutations (id, operation, entity_type, entity_id, payload, created_at, retry_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, string(m.Operation), string(m.EntityType), m.EntityID, payload, m.Timestamp, m.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation %s: %w", m.ID, err)
	}
	return nil
}

// EnqueueMutation appends a mutation to the pending queue.
func (s *Store) EnqueueMutation(ctx context.Context, m *promptsync.Mutation) error {
	return enqueueMutation(ctx, s.db, m)
}

// DequeueMutation removes a mutation from the queue. Removing an unknown id
// is a no-op.
func (s *Store) DequeueMutation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_mutations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to dequeue mutation %s: %w", id, err)
	}
	return nil
}

// UpdateMutation records a failed push attempt for a queued mutation.
func (s *Store) UpdateMutation(ctx context.Context, id string, retryCount int, lastError string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE pending_mutations SET retry_count = ?, last_error = ? WHERE id = ?
	`, retryCount, lastError, id); err != nil {
		return fmt.Errorf("failed to update mutation %s: %w", id, err)
	}
	return nil
}

// PendingOrdered returns up to limit pending mutations, oldest first. A
// non-positive limit returns the whole queue.
func (s *Store) PendingOrdered(ctx context.Context, limit int) ([]PendingMutation, error) {
	query := `
		SELECT id, operation, entity_type, entity_id, payload, created_at, retry_count, last_error
		FROM pending_mutations
		ORDER BY created_at, rowid
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending mutations: %w", err)
	}
	defer rows.Close()

	var out []PendingMutation
	for rows.Next() {
		var m PendingMutation
		var op, kind string
		var payload sql.NullString
		if err := rows.Scan(&m.ID, &op, &kind, &m.EntityID, &payload, &m.Timestamp, &m.RetryCount, &m.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan pending mutation: %w", err)
		}
		m.Operation = promptsync.Operation(op)
		m.EntityType = promptsync.EntityType(kind)
		if payload.Valid {
			m.Payload = []byte(payload.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// PendingCount returns the number of queued mutations.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_mutations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending mutations: %w", err)
	}
	return n, nil
}

// ---- sync metadata ----

// Metadata is the singleton sync metadata record.
type Metadata struct {
	LastSyncID   int64
	LastSyncedAt string
	ClientID     string
}

// ReadMeta returns the metadata row, or nil when it has not been created.
func (s *Store) ReadMeta(ctx context.Context) (*Metadata, error) {
	var m Metadata
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sync_id, last_synced_at, client_id FROM sync_metadata WHERE key = ?
	`, metaKey).Scan(&m.LastSyncID, &m.LastSyncedAt, &m.ClientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync metadata: %w", err)
	}
	return &m, nil
}

// WriteMeta upserts the cursor fields of the metadata row, leaving the client
// identity untouched when the row already exists.
func (s *Store) WriteMeta(ctx context.Context, lastSyncID int64, lastSyncedAt string) error {
	return writeMeta(ctx, s.db, lastSyncID, lastSyncedAt)
}

func writeMeta(ctx context.Context, q dbtx, lastSyncID int64, lastSyncedAt string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, last_sync_id, last_synced_at, client_id)
		VALUES (?, ?, ?, '')
		ON CONFLICT(key) DO UPDATE SET
			last_sync_id = excluded.last_sync_id,
			last_synced_at = excluded.last_synced_at
	`, metaKey, lastSyncID, lastSyncedAt)
	if err != nil {
		return fmt.Errorf("failed to write sync metadata: %w", err)
	}
	return nil
}

// EnsureClientID returns the persisted per-device identity, minting and
// storing one on first use. A non-empty override replaces the stored value.
func (s *Store) EnsureClientID(ctx context.Context, override string) (string, error) {
	if override != "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sync_metadata (key, client_id) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET client_id = excluded.client_id
		`, metaKey, override)
		if err != nil {
			return "", fmt.Errorf("failed to store client id: %w", err)
		}
		return override, nil
	}

	meta, err := s.ReadMeta(ctx)
	if err != nil {
		return "", err
	}
	if meta != nil && meta.ClientID != "" {
		return meta.ClientID, nil
	}

	clientID := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, client_id) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET client_id = excluded.client_id
	`, metaKey, clientID)
	if err != nil {
		return "", fmt.Errorf("failed to persist client id: %w", err)
	}
	return clientID, nil
}

// ---- batch operations ----

// CommitLocal writes the optimistic entity row and its queue record in one
// transaction, so a crash can never leave a visible edit without its pending
// mutation.
func (s *Store) CommitLocal(ctx context.Context, entity any, m *promptsync.Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	switch e := entity.(type) {
	case *promptsync.Prompt:
		err = putPrompt(ctx, tx, e)
	case *promptsync.PromptVersion:
		err = putPromptVersion(ctx, tx, e)
	case *promptsync.Group:
		err = putGroup(ctx, tx, e)
	default:
		err = fmt.Errorf("unsupported entity type %T", entity)
	}
	if err != nil {
		return err
	}

	if err := enqueueMutation(ctx, tx, m); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit local change: %w", err)
	}
	return nil
}

// ApplyDeltas installs one delta packet atomically: created and updated
// entities are upserted, deleted ids get their soft-delete flag set (absent
// rows are skipped), and the cursor advances when the packet carries a newer
// one. All or nothing.
func (s *Store) ApplyDeltas(ctx context.Context, packet *promptsync.SyncResponse) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ch := &packet.Changes
	for i := range ch.Prompts.Created {
		if err := putPrompt(ctx, tx, &ch.Prompts.Created[i]); err != nil {
			return err
		}
	}
	for i := range ch.Prompts.Updated {
		if err := putPrompt(ctx, tx, &ch.Prompts.Updated[i]); err != nil {
			return err
		}
	}
	for i := range ch.PromptVersions.Created {
		if err := putPromptVersion(ctx, tx, &ch.PromptVersions.Created[i]); err != nil {
			return err
		}
	}
	for i := range ch.PromptVersions.Updated {
		if err := putPromptVersion(ctx, tx, &ch.PromptVersions.Updated[i]); err != nil {
			return err
		}
	}
	for i := range ch.Groups.Created {
		if err := putGroup(ctx, tx, &ch.Groups.Created[i]); err != nil {
			return err
		}
	}
	for i := range ch.Groups.Updated {
		if err := putGroup(ctx, tx, &ch.Groups.Updated[i]); err != nil {
			return err
		}
	}

	deletes := []struct {
		table string
		ids   []string
	}{
		{"prompts", ch.Prompts.Deleted},
		{"prompt_versions", ch.PromptVersions.Deleted},
		{"groups", ch.Groups.Deleted},
	}
	for _, d := range deletes {
		for _, id := range d.ids {
			if _, err := tx.ExecContext(ctx,
				`UPDATE `+d.table+` SET is_deleted = 1, updated_at = ? WHERE id = ?`,
				packet.Timestamp, id); err != nil {
				return fmt.Errorf("failed to soft-delete %s/%s: %w", d.table, id, err)
			}
		}
	}

	// Never rewind: a replayed packet applies its upserts but leaves the
	// cursor alone.
	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT last_sync_id FROM sync_metadata WHERE key = ?`, metaKey).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read cursor: %w", err)
	}
	if packet.SyncID > current {
		if err := writeMeta(ctx, tx, packet.SyncID, packet.Timestamp); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delta packet: %w", err)
	}
	return nil
}

// ClearAll removes every record from every namespace. Used for logout/reset.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"prompts", "prompt_versions", "groups", "pending_mutations", "sync_metadata"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
