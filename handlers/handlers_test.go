package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poi-map/cache"
	"poi-map/middleware"
	"poi-map/models"
	"poi-map/remote"
	"poi-map/services"
)

type testServer struct {
	srv           *httptest.Server
	repo          *services.MemoryRepository
	session       *services.Session
	localCache    *cache.LocalCache
	notifications *services.NotificationLog
}

// newTestServer wires the backing store and the session API on one router,
// with the session's remote client pointing at remoteURL (or the server
// itself when empty).
func newTestServer(t *testing.T, remoteURL string, approved ...models.POI) *testServer {
	t.Helper()
	r := mux.NewRouter()
	r.Use(middleware.CORSMiddleware([]string{"http://localhost:5173"}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	if remoteURL == "" {
		remoteURL = srv.URL + "/"
	}
	client, err := remote.NewClient(remoteURL, nil)
	require.NoError(t, err)

	repo := services.NewMemoryRepository(approved...)
	localCache := cache.NewLocalCache(cache.NewMemoryKV(), "", "")
	notifications := services.NewNotificationLog(20)
	drafts := services.NewDraftService(client, localCache, notifications)
	store := services.NewPOIStore(localCache, services.WithSubmitter(drafts))
	coordinator := services.NewSyncCoordinator(store, client, localCache, notifications, 0)
	session := services.NewSession(store, coordinator, drafts, notifications)

	NewBackendHandler(repo).Register(r)
	NewSessionHandler(session, notifications).Register(r)

	return &testServer{srv: srv, repo: repo, session: session, localCache: localCache, notifications: notifications}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestBackendHandler_SavePOI(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"invalid json", "{nope", http.StatusBadRequest},
		{"missing id", models.POI{Name: "x"}, http.StatusBadRequest},
		{"valid", models.POI{ID: "poi-1", Type: "npc", Approved: true}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/save-poi", tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	resp := ts.do(t, http.MethodGet, "/api/pois-draft", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	drafts := decode[[]models.POI](t, resp)
	require.Len(t, drafts, 1)
	assert.Equal(t, "poi-1", drafts[0].ID)
	assert.False(t, drafts[0].Approved, "the backing store never approves a submission")
}

func TestBackendHandler_ListsAreArrays(t *testing.T) {
	ts := newTestServer(t, "")
	for _, path := range []string{"/api/pois-approved", "/api/pois-draft"} {
		resp := ts.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		assert.Empty(t, decode[[]models.POI](t, resp))
	}
}

func TestSessionHandler_Flow(t *testing.T) {
	ts := newTestServer(t, "", models.POI{ID: "a1", Name: "Camp", Type: "shelter", X: 10, Y: 20, Visible: true})

	// Sync pulls the approved list.
	resp := ts.do(t, http.MethodPost, "/session/sync?force=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := decode[services.SyncOutcome](t, resp)
	assert.True(t, outcome.Ran)
	assert.Equal(t, 1, outcome.Approved)

	// Create a POI from the context menu.
	resp = ts.do(t, http.MethodPost, "/session/pois", services.CreateInput{Type: "boss", Description: "dragon", X: 300, Y: 400})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[POIResponse](t, resp)
	assert.True(t, strings.HasPrefix(created.POI.ID, "poi-"))
	assert.True(t, created.POI.AwaitingApproval)
	assert.Equal(t, "#e91e63", created.POI.Color)
	require.NotNil(t, created.Submission)
	assert.True(t, created.Submission.OK)

	drafts, err := ts.repo.ListDraft(context.Background())
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, created.POI.ID, drafts[0].ID)

	// Read it back.
	resp = ts.do(t, http.MethodGet, "/session/pois/"+created.POI.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "dragon", decode[POIResponse](t, resp).POI.Description)

	// Edit the approved one; it becomes a draft again.
	resp = ts.do(t, http.MethodPatch, "/session/pois/a1", map[string]string{"description": "flooded"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	edited := decode[POIResponse](t, resp)
	assert.Equal(t, "flooded", edited.POI.Description)
	assert.False(t, edited.POI.Approved)

	// Hide the boss group.
	resp = ts.do(t, http.MethodPut, "/session/groups/boss/visibility", map[string]bool{"visible": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/session/pois", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[POIListResponse](t, resp)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "a1", list.Markers[0].ID)
	assert.NotZero(t, list.LastSyncTime)

	resp = ts.do(t, http.MethodGet, "/session/pois?all=true", nil)
	assert.Equal(t, 2, decode[POIListResponse](t, resp).Count)

	// Single visibility toggle.
	resp = ts.do(t, http.MethodPut, "/session/pois/a1/visibility", map[string]bool{"visible": false})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/session/pois", nil)
	assert.Equal(t, 0, decode[POIListResponse](t, resp).Count)

	// Delete is local only.
	resp = ts.do(t, http.MethodDelete, "/session/pois/"+created.POI.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/session/pois/"+created.POI.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	drafts, _ = ts.repo.ListDraft(context.Background())
	assert.Len(t, drafts, 2)

	resp = ts.do(t, http.MethodGet, "/session/notifications", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decode[[]services.Notification](t, resp))
}

func TestSessionHandler_UnknownIDs(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPatch, "/session/pois/ghost", map[string]string{"type": "boss"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/session/pois/ghost", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/session/pois/ghost/visibility", map[string]bool{"visible": true})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/session/pois/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionHandler_BadInput(t *testing.T) {
	ts := newTestServer(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"create invalid json", http.MethodPost, "/session/pois", "{"},
		{"visibility missing flag", http.MethodPut, "/session/pois/a/visibility", map[string]string{}},
		{"group visibility invalid", http.MethodPut, "/session/groups/boss/visibility", "[]"},
		{"sync bad force", http.MethodPost, "/session/sync?force=maybe", nil},
		{"stage invalid json", http.MethodPost, "/session/draft", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestSessionHandler_DraftFlow(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPost, "/session/draft/commit", map[string]string{"type": "npc"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/session/draft", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/session/draft", map[string]float64{"x": 7, "y": 8})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	staged := decode[models.POI](t, resp)
	assert.True(t, strings.HasPrefix(staged.ID, "temp-"))

	resp = ts.do(t, http.MethodGet, "/session/draft", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/session/draft/commit", map[string]string{"type": "npc", "description": "trader"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	committed := decode[POIResponse](t, resp)
	assert.True(t, strings.HasPrefix(committed.POI.ID, "poi-"))
	assert.Equal(t, staged.Name, committed.POI.Name)
	assert.Equal(t, 7.0, committed.POI.X)

	resp = ts.do(t, http.MethodPost, "/session/draft", map[string]float64{"x": 1, "y": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = ts.do(t, http.MethodDelete, "/session/draft", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = ts.do(t, http.MethodGet, "/session/draft", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSessionHandler_RemoteDown(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL + "/"
	dead.Close()

	ts := newTestServer(t, deadURL)
	require.NoError(t, ts.localCache.Save(context.Background(), []models.POI{{ID: "cached", Type: "bunker", Visible: true}}, ts.session.Store.LastSync()))

	resp := ts.do(t, http.MethodPost, "/session/sync?force=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[services.SyncOutcome](t, resp).FromCache)
	_, ok := ts.session.Store.Find("cached")
	assert.True(t, ok)

	resp = ts.do(t, http.MethodPost, "/session/pois", services.CreateInput{Type: "npc"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[POIResponse](t, resp)
	assert.False(t, created.Submission.OK)
	assert.True(t, created.Submission.Queued)
	assert.NotEmpty(t, created.Submission.Error)

	resp = ts.do(t, http.MethodGet, "/session/fallback", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[[]models.POI](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, created.POI.ID, pending[0].ID)

	resp = ts.do(t, http.MethodPost, "/session/fallback/replay", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replay := decode[services.ReplayResult](t, resp)
	assert.Equal(t, []string{created.POI.ID}, replay.Remaining)
}

func TestSessionHandler_OptionsDoesNotMutate(t *testing.T) {
	ts := newTestServer(t, "")

	resp := ts.do(t, http.MethodPost, "/session/draft", map[string]float64{"x": 1, "y": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, path := range []string{"/session/sync", "/session/draft/commit", "/session/pois", "/session/fallback/replay"} {
		resp = ts.do(t, http.MethodOptions, path, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode, path)
	}

	_, staged := ts.session.StagedDraft()
	assert.True(t, staged, "commit handler did not run")
	assert.Empty(t, ts.session.Store.List())
	assert.True(t, ts.session.Store.LastSync().IsZero(), "no sync ran")
}

func TestSessionHandler_ListTypes(t *testing.T) {
	ts := newTestServer(t, "")
	resp := ts.do(t, http.MethodGet, "/session/types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	types := decode[[]typeInfo](t, resp)
	require.Len(t, types, 8)
	assert.Equal(t, models.TypeShelter, types[0].Type)
	assert.Equal(t, "#ff5252", types[0].Color)
}
