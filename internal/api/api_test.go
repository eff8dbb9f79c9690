// Hexwave - Location-Scoped Real-Time Chat
// Copyright 2026 Hexwave Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/hexwave/hexwave

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexwave/hexwave/internal/config"
	"github.com/hexwave/hexwave/internal/grid"
	"github.com/hexwave/hexwave/internal/identity"
	"github.com/hexwave/hexwave/internal/models"
	"github.com/hexwave/hexwave/internal/room"
	"github.com/hexwave/hexwave/internal/session"
	"github.com/hexwave/hexwave/internal/store"
	"github.com/hexwave/hexwave/internal/wire"
)

type testAPI struct {
	router   *Router
	store    *store.MemoryStore
	registry *room.Registry
}

func newTestAPI(t *testing.T, secCfg config.SecurityConfig, ready func() bool) *testAPI {
	t.Helper()

	st := store.NewMemoryStore()
	reg := room.NewRegistry(room.Config{GracePeriod: time.Minute, TypingTTL: time.Second})
	idp := identity.Static{
		"tok1": {UserID: "u1", Username: "alice"},
	}
	core := session.NewCore(reg, st, idp, nil, session.Config{
		DefaultResolution: 8,
		HistoryLimit:      50,
		QueueSize:         64,
		NeighborRings:     1,
		MaxContentLength:  4096,
	})
	mgr := session.NewManager(core, nil)
	t.Cleanup(mgr.Shutdown)

	chatCfg := config.Default().Chat
	rt := NewRouter(mgr, reg, st, idp, secCfg, chatCfg, ready)
	return &testAPI{router: rt, store: st, registry: reg}
}

func defaultSecurity() config.SecurityConfig {
	return config.SecurityConfig{CORSOrigins: []string{"*"}}
}

func doGet(t *testing.T, h http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func mustCell(t *testing.T, lat, lng float64) grid.CellID {
	t.Helper()
	cell, err := grid.CellAt(lat, lng, 8)
	require.NoError(t, err)
	return cell
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()

	rec := doGet(t, h, "/api/v1/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doGet(t, h, "/api/v1/health/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadinessGate(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), func() bool { return false }).router.Handler()
	rec := doGet(t, h, "/api/v1/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()

	rec := doGet(t, h, "/api/v1/health/live", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestResolveCell(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()

	rec := doGet(t, h, "/api/v1/cells/resolve?lat=51.5074&lng=-0.1278", "tok1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var info wire.CellInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Len(t, info.CellID, 16)
	assert.Equal(t, 8, info.Resolution)
	assert.Len(t, info.Boundary, 6)
	assert.Len(t, info.Neighbors, 6)
	assert.Equal(t, string(mustCell(t, 51.5074, -0.1278)), info.CellID)
}

func TestResolveCellValidation(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()

	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/api/v1/cells/resolve?lng=0", "tok1").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/api/v1/cells/resolve?lat=91&lng=0", "tok1").Code)
	assert.Equal(t, http.StatusBadRequest, doGet(t, h, "/api/v1/cells/resolve?lat=0&lng=0&resolution=99", "tok1").Code)
}

func TestRESTRequiresAuth(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()
	cell := mustCell(t, 51.5, -0.12)

	rec := doGet(t, h, "/api/v1/rooms/"+string(cell)+"/messages", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doGet(t, h, "/api/v1/rooms/"+string(cell)+"/messages", "bogus")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoomMessages(t *testing.T) {
	env := newTestAPI(t, defaultSecurity(), nil)
	h := env.router.Handler()
	cell := mustCell(t, 51.5, -0.12)
	roomID := string(cell)

	for i := 0; i < 3; i++ {
		_, err := env.store.Append(context.Background(), roomID, models.Message{
			UserID: "u1", Username: "alice", Content: fmt.Sprintf("msg %d", i),
		})
		require.NoError(t, err)
	}

	rec := doGet(t, h, "/api/v1/rooms/"+roomID+"/messages", "tok1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		RoomID   string           `json:"room_id"`
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 3)
	assert.Equal(t, "msg 2", body.Messages[0].Content, "newest first")

	rec = doGet(t, h, "/api/v1/rooms/"+roomID+"/messages?limit=2", "tok1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Messages, 2)

	rec = doGet(t, h, "/api/v1/rooms/"+roomID+"/messages?before="+body.Messages[1].ID, "tok1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "msg 0", body.Messages[0].Content)
}

func TestRoomMessagesEmptyRoom(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()
	cell := mustCell(t, 35.68, 139.69)

	rec := doGet(t, h, "/api/v1/rooms/"+string(cell)+"/messages", "tok1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)
}

func TestRoomMessagesInvalidRoomID(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()
	rec := doGet(t, h, "/api/v1/rooms/not-a-cell/messages", "tok1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoomMessagesUnknownCursor(t *testing.T) {
	env := newTestAPI(t, defaultSecurity(), nil)
	h := env.router.Handler()
	cell := mustCell(t, 51.5, -0.12)
	roomID := string(cell)

	_, err := env.store.Append(context.Background(), roomID, models.Message{
		UserID: "u1", Username: "alice", Content: "hello",
	})
	require.NoError(t, err)

	rec := doGet(t, h, "/api/v1/rooms/"+roomID+"/messages?before=ffffffffffffffff", "tok1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown before cursor")
}

func TestRoomMessagesStoreUnavailable(t *testing.T) {
	env := newTestAPI(t, defaultSecurity(), nil)
	env.store.FailReads = true
	cell := mustCell(t, 51.5, -0.12)

	rec := doGet(t, env.router.Handler(), "/api/v1/rooms/"+string(cell)+"/messages", "tok1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoomNeighbors(t *testing.T) {
	env := newTestAPI(t, defaultSecurity(), nil)
	h := env.router.Handler()
	cell := mustCell(t, 51.5, -0.12)

	rec := doGet(t, h, "/api/v1/rooms/"+string(cell)+"/neighbors", "tok1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		CellID    string              `json:"cell_id"`
		Neighbors []wire.RoomNeighbor `json:"neighbors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Neighbors, 6)

	rec = doGet(t, h, "/api/v1/rooms/dm:conv-1/neighbors", "tok1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	sec := defaultSecurity()
	sec.RateLimitReqs = 2
	sec.RateLimitWindow = time.Minute
	h := newTestAPI(t, sec, nil).router.Handler()

	assert.Equal(t, http.StatusOK, doGet(t, h, "/api/v1/cells/resolve?lat=0&lng=0", "tok1").Code)
	assert.Equal(t, http.StatusOK, doGet(t, h, "/api/v1/cells/resolve?lat=0&lng=0", "tok1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(t, h, "/api/v1/cells/resolve?lat=0&lng=0", "tok1").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestAPI(t, defaultSecurity(), nil).router.Handler()
	rec := doGet(t, h, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// TestWebsocketJoin exercises the full path: HTTP upgrade through the router,
// in-band auth on the first join frame, and the room_joined acknowledgment.
func TestWebsocketJoin(t *testing.T) {
	srv := httptest.NewServer(newTestAPI(t, defaultSecurity(), nil).router.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	defer conn.Close()

	join := wire.MustNew(wire.TypeJoin, wire.Join{Lat: 51.5, Lng: -0.12, Token: "tok1"})
	data, err := join.Marshal()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var f wire.Frame
	require.NoError(t, json.Unmarshal(payload, &f))
	require.Equal(t, wire.TypeRoomJoined, f.Type)

	var rj wire.RoomJoined
	require.NoError(t, f.Decode(&rj))
	assert.Equal(t, room.KindSpatial, rj.Kind)
	assert.Equal(t, 1, rj.MemberCount)
	require.NotNil(t, rj.Cell)
	assert.Equal(t, string(mustCell(t, 51.5, -0.12)), rj.Cell.CellID)
}
