package promptsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DeltaRow is one entity row as stored by a Backend, in cursor order.
type DeltaRow struct {
	Kind       EntityType
	ID         string
	Doc        json.RawMessage
	CreatedSeq int64
	SyncID     int64
	Deleted    bool
}

// Backend is the storage behind a Service. Implementations must keep the
// sync cursor monotonic: every persistent write advances it by one, and
// Deltas returns rows strictly after the given cursor in ascending order.
type Backend interface {
	// Deltas returns up to limit rows with SyncID > after, ordered by
	// SyncID ascending, and whether rows beyond the page remain.
	Deltas(ctx context.Context, after int64, limit int) ([]DeltaRow, bool, error)

	// ApplyMutation applies one client mutation with last-writer-wins
	// semantics and returns the authoritative post-apply document. applied
	// is false when the mutation was a no-op (delete of a missing row).
	ApplyMutation(ctx context.Context, m *Mutation, now string) (json.RawMessage, bool, error)

	// HeadSyncID returns the current cursor high watermark.
	HeadSyncID(ctx context.Context) (int64, error)
}

// ServiceConfig holds configuration for the sync service.
type ServiceConfig struct {
	DefaultLimit int // page size when the request omits or zeroes limit
	MaxLimit     int // hard cap on requested page size (0 = no cap)
}

// DefaultServiceConfig returns the stock service configuration.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		DefaultLimit: 100,
		MaxLimit:     1000,
	}
}

// Service implements the remote authority contract over a Backend.
type Service struct {
	backend Backend
	config  *ServiceConfig
	logger  *slog.Logger
}

// NewService creates a sync service. config and logger may be nil.
func NewService(backend Backend, config *ServiceConfig, logger *slog.Logger) *Service {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: backend, config: config, logger: logger}
}

// ProcessSync returns the effective net changes since req.LastSyncID, up to
// the requested limit, with HasMore set when the page was truncated. The
// returned SyncID never regresses below the request's cursor.
func (s *Service) ProcessSync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	if req.LastSyncID < 0 {
		return nil, fmt.Errorf("lastSyncId must be >= 0, got %d", req.LastSyncID)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if s.config.MaxLimit > 0 && limit > s.config.MaxLimit {
		limit = s.config.MaxLimit
	}

	rows, hasMore, err := s.backend.Deltas(ctx, req.LastSyncID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read deltas after %d: %w", req.LastSyncID, err)
	}

	resp := &SyncResponse{
		SyncID:    req.LastSyncID,
		Timestamp: NowUTC(),
		HasMore:   hasMore,
		Changes:   EmptyChanges(),
	}
	for _, row := range rows {
		if row.SyncID > resp.SyncID {
			resp.SyncID = row.SyncID
		}
		if err := appendRow(&resp.Changes, row, req.LastSyncID); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// appendRow files one backend row into the packet's per-kind change bags.
// Rows first written after the cursor count as created, the rest as updated;
// tombstoned rows surface as bare ids in deleted.
func appendRow(ch *Changes, row DeltaRow, after int64) error {
	if row.Deleted {
		switch row.Kind {
		case EntityPrompt:
			ch.Prompts.Deleted = append(ch.Prompts.Deleted, row.ID)
		case EntityPromptVersion:
			ch.PromptVersions.Deleted = append(ch.PromptVersions.Deleted, row.ID)
		case EntityGroup:
			ch.Groups.Deleted = append(ch.Groups.Deleted, row.ID)
		default:
			return fmt.Errorf("backend returned unknown entity kind %q", row.Kind)
		}
		return nil
	}

	created := row.CreatedSeq > after
	switch row.Kind {
	case EntityPrompt:
		var p Prompt
		if err := json.Unmarshal(row.Doc, &p); err != nil {
			return fmt.Errorf("failed to decode prompt %s: %w", row.ID, err)
		}
		if created {
			ch.Prompts.Created = append(ch.Prompts.Created, p)
		} else {
			ch.Prompts.Updated = append(ch.Prompts.Updated, p)
		}
	case EntityPromptVersion:
		var v PromptVersion
		if err := json.Unmarshal(row.Doc, &v); err != nil {
			return fmt.Errorf("failed to decode prompt version %s: %w", row.ID, err)
		}
		if created {
			ch.PromptVersions.Created = append(ch.PromptVersions.Created, v)
		} else {
			ch.PromptVersions.Updated = append(ch.PromptVersions.Updated, v)
		}
	case EntityGroup:
		var g Group
		if err := json.Unmarshal(row.Doc, &g); err != nil {
			return fmt.Errorf("failed to decode group %s: %w", row.ID, err)
		}
		if created {
			ch.Groups.Created = append(ch.Groups.Created, g)
		} else {
			ch.Groups.Updated = append(ch.Groups.Updated, g)
		}
	default:
		return fmt.Errorf("backend returned unknown entity kind %q", row.Kind)
	}
	return nil
}

// ProcessMutations applies the batch in listed order against current server
// state. Validation problems and apply rejections surface as per-mutation
// failures; only a storage fault fails the batch.
func (s *Service) ProcessMutations(ctx context.Context, req *MutationsRequest) (*MutationsResponse, error) {
	results := make([]MutationResult, 0, len(req.Mutations))
	now := NowUTC()

	for i := range req.Mutations {
		m := &req.Mutations[i]
		if reason := validateMutation(m); reason != "" {
			s.logger.Warn("Rejected mutation", "mutation_id", m.ID, "client_id", req.ClientID, "reason", reason)
			results = append(results, MutationResult{MutationID: m.ID, Success: false, Error: reason})
			continue
		}

		entity, _, err := s.backend.ApplyMutation(ctx, m, now)
		if err != nil {
			return nil, fmt.Errorf("failed to apply mutation %s: %w", m.ID, err)
		}
		results = append(results, MutationResult{MutationID: m.ID, Success: true, Entity: entity})
	}

	head, err := s.backend.HeadSyncID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read head cursor: %w", err)
	}

	return &MutationsResponse{Success: true, SyncID: head, Results: results}, nil
}

// validateMutation returns a rejection reason, or "" when the mutation is
// well formed.
func validateMutation(m *Mutation) string {
	if m.ID == "" {
		return "mutation id is required"
	}
	if !KnownOperation(m.Operation) {
		return fmt.Sprintf("unknown operation %q", m.Operation)
	}
	if !KnownEntityType(m.EntityType) {
		return fmt.Sprintf("unknown entity type %q", m.EntityType)
	}
	if m.EntityID == "" {
		return "entity id is required"
	}
	if m.Operation != OpDelete && len(m.Payload) > 0 && !json.Valid(m.Payload) {
		return "payload is not valid JSON"
	}
	if m.Operation != OpDelete && len(m.Payload) > 0 {
		var fields map[string]any
		if err := json.Unmarshal(m.Payload, &fields); err != nil {
			return "payload is not a JSON object"
		}
	}
	return ""
}
