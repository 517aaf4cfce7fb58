package promptsync

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handlers exposes a Service over HTTP. Both endpoints speak JSON and are
// mounted under /api by Register.
type Handlers struct {
	service *Service
	logger  *slog.Logger
}

// NewHandlers creates HTTP handlers for the given service.
func NewHandlers(service *Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{service: service, logger: logger}
}

// Register mounts the sync endpoints on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/sync", h.HandleSync)
	mux.HandleFunc("/api/mutations", h.HandleMutations)
	mux.HandleFunc("/healthz", h.HandleHealthz)
}

// HandleSync serves POST /api/sync: deltas since the client's cursor.
func (h *Handlers) HandleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse sync request")
		return
	}
	if req.LastSyncID < 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "lastSyncId must be >= 0")
		return
	}

	resp, err := h.service.ProcessSync(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to process sync", "error", err, "last_sync_id", req.LastSyncID)
		h.writeError(w, http.StatusInternalServerError, "sync_failed", "Failed to process sync")
		return
	}

	h.writeJSON(w, resp)
}

// HandleMutations serves POST /api/mutations: a batch of client mutations.
func (h *Handlers) HandleMutations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}

	var req MutationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse mutations request")
		return
	}

	resp, err := h.service.ProcessMutations(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to process mutations", "error", err,
			"client_id", req.ClientID, "count", len(req.Mutations))
		h.writeError(w, http.StatusInternalServerError, "mutations_failed", "Failed to process mutations")
		return
	}

	h.writeJSON(w, resp)
}

// HandleHealthz serves GET /healthz for the reference server binary.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	h.writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errCode,
		"message": message,
	})
}
