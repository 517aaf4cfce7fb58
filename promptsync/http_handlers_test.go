package promptsync

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *MemBackend) {
	t.Helper()
	backend := NewMemBackend()
	service := NewService(backend, nil, nil)
	handlers := NewHandlers(service, nil)
	mux := http.NewServeMux()
	handlers.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, backend
}

func TestHandleSyncHappyPath(t *testing.T) {
	ts, backend := newTestServer(t)

	require.NoError(t, backend.Seed(EntityGroup, Group{
		Envelope: Envelope{ID: "g1", Type: EntityGroup, CreatedAt: NowUTC(), UpdatedAt: NowUTC()},
		Name:     "work", Color: "blue",
	}))

	body, _ := json.Marshal(SyncRequest{LastSyncID: 0, Limit: 10})
	resp, err := http.Post(ts.URL+"/api/sync", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var packet SyncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&packet))
	require.Equal(t, int64(1), packet.SyncID)
	require.Len(t, packet.Changes.Groups.Created, 1)
	require.Equal(t, "work", packet.Changes.Groups.Created[0].Name)
	require.NotEmpty(t, packet.Timestamp)
}

func TestHandleSyncRejectsNonPost(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sync")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleSyncRejectsBadBody(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/sync", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleSyncRejectsNegativeCursor(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/sync", "application/json", strings.NewReader(`{"lastSyncId":-1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "invalid_request", payload["error"])
}

func TestHandleMutationsHappyPath(t *testing.T) {
	ts, _ := newTestServer(t)

	req := MutationsRequest{
		ClientID: "device-1",
		Mutations: []Mutation{
			{
				ID: "m1", Operation: OpCreate, EntityType: EntityPrompt, EntityID: "p1",
				Payload: json.RawMessage(`{"title":"T","content":"C"}`), Timestamp: NowUTC(),
			},
		},
	}
	body, _ := json.Marshal(req)
	resp, err := http.Post(ts.URL+"/api/mutations", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out MutationsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.True(t, out.Success)
	require.Equal(t, int64(1), out.SyncID)
	require.Len(t, out.Results, 1)
	require.True(t, out.Results[0].Success)
}

func TestHandleMutationsRejectsNonPost(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/mutations")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload["status"])
}
