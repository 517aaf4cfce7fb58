package promptsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/promptpad/promptsync/promptsync/migrations"
)

// PGBackend is the Postgres-backed Backend used by production deployments of
// the reference server. Entities are stored as JSONB documents alongside the
// cursor bookkeeping columns; the single-row promptsync_state table holds the
// monotonic cursor.
type PGBackend struct {
	pool *pgxpool.Pool
}

// NewPGBackend connects to Postgres, runs the embedded migrations, and
// returns a ready backend. The caller owns the pool's lifecycle via Close.
func NewPGBackend(ctx context.Context, databaseURL string) (*PGBackend, error) {
	if err := runMigrations(ctx, databaseURL); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PGBackend{pool: pool}, nil
}

// Close releases the connection pool.
func (b *PGBackend) Close() {
	b.pool.Close()
}

// runMigrations applies the embedded goose migrations through a short-lived
// database/sql connection; pgx's stdlib driver keeps goose and the pool on
// the same driver stack.
func runMigrations(ctx context.Context, databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// Deltas implements Backend.
func (b *PGBackend) Deltas(ctx context.Context, after int64, limit int) ([]DeltaRow, bool, error) {
	// Fetch one extra row to detect truncation without a second query.
	rows, err := b.pool.Query(ctx, `
		SELECT kind, id, doc, created_seq, sync_id, is_deleted
		FROM promptsync_entities
		WHERE sync_id > $1
		ORDER BY sync_id
		LIMIT $2
	`, after, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query deltas: %w", err)
	}
	defer rows.Close()

	var out []DeltaRow
	for rows.Next() {
		var r DeltaRow
		var kind string
		var doc []byte
		if err := rows.Scan(&kind, &r.ID, &doc, &r.CreatedSeq, &r.SyncID, &r.Deleted); err != nil {
			return nil, false, fmt.Errorf("failed to scan delta row: %w", err)
		}
		r.Kind = EntityType(kind)
		r.Doc = json.RawMessage(doc)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("failed to iterate delta rows: %w", err)
	}

	hasMore := false
	if len(out) > limit {
		out = out[:limit]
		hasMore = true
	}
	return out, hasMore, nil
}

// ApplyMutation implements Backend. The row lock and the cursor bump share
// one transaction so concurrent batches serialize per entity and the cursor
// never skips.
func (b *PGBackend) ApplyMutation(ctx context.Context, m *Mutation, now string) (json.RawMessage, bool, error) {
	var doc json.RawMessage
	applied := false

	err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		var current []byte
		err := tx.QueryRow(ctx, `
			SELECT doc FROM promptsync_entities
			WHERE kind = $1 AND id = $2
			FOR UPDATE
		`, string(m.EntityType), m.EntityID).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to load current row: %w", err)
		}

		var seq int64
		if err := tx.QueryRow(ctx, `
			UPDATE promptsync_state SET last_sync_id = last_sync_id + 1
			WHERE id = 1
			RETURNING last_sync_id
		`).Scan(&seq); err != nil {
			return fmt.Errorf("failed to advance cursor: %w", err)
		}

		next, write, err := applyChange(m, current, seq, now)
		if err != nil {
			return err
		}
		if !write {
			// Roll the cursor bump back; a no-op must not burn a position.
			if _, err := tx.Exec(ctx, `
				UPDATE promptsync_state SET last_sync_id = last_sync_id - 1 WHERE id = 1
			`); err != nil {
				return fmt.Errorf("failed to restore cursor: %w", err)
			}
			return nil
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO promptsync_entities (kind, id, doc, created_seq, sync_id, is_deleted)
			VALUES ($1, $2, $3, $4, $4, $5)
			ON CONFLICT (kind, id) DO UPDATE
			SET doc = EXCLUDED.doc, sync_id = EXCLUDED.sync_id, is_deleted = EXCLUDED.is_deleted
		`, string(m.EntityType), m.EntityID, []byte(next), seq, docDeleted(next)); err != nil {
			return fmt.Errorf("failed to upsert entity: %w", err)
		}

		doc = next
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return doc, applied, nil
}

// HeadSyncID implements Backend.
func (b *PGBackend) HeadSyncID(ctx context.Context) (int64, error) {
	var head int64
	if err := b.pool.QueryRow(ctx, `SELECT last_sync_id FROM promptsync_state WHERE id = 1`).Scan(&head); err != nil {
		return 0, fmt.Errorf("failed to read cursor: %w", err)
	}
	return head, nil
}
