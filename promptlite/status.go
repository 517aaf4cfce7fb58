package promptlite

// State is the sync engine's coarse activity state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StatePushing State = "pushing"
	StateError   State = "error"
	StateOffline State = "offline"
)

// Status is the sync status record exposed to the presentation layer.
type Status struct {
	State        State  `json:"state"`
	LastSyncID   int64  `json:"lastSyncId"`
	LastSyncedAt string `json:"lastSyncedAt,omitempty"`
	PendingCount int    `json:"pendingCount"`
	IsOnline     bool   `json:"isOnline"`
	LastError    string `json:"lastError,omitempty"`
}
