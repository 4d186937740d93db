package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagebrawl/stagebrawl/internal/auth"
	"github.com/stagebrawl/stagebrawl/internal/config"
	"github.com/stagebrawl/stagebrawl/internal/room"
)

func newTestServer(t *testing.T) (*Server, *room.Registry) {
	t.Helper()
	cfg := &config.Config{
		Env:             "development",
		TicketSecret:    "secret",
		DefaultRoomSize: 4,
	}
	rooms := room.NewRegistry(30*time.Second, slog.Default())
	t.Cleanup(rooms.Stop)
	hub := NewHub(cfg.TicketSecret, nil, slog.Default())
	return New(cfg, nil, nil, hub, rooms, slog.Default()), rooms
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateRoomEndpoint(t *testing.T) {
	srv, rooms := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/rooms", `{"name":"brawl","max_players":2}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var info room.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "brawl", info.Name)
	assert.Equal(t, 2, info.MaxPlayers)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 1, rooms.Count())

	// Omitted capacity falls back to the configured default.
	rec = doJSON(t, h, "POST", "/api/rooms", `{"name":"defaults"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, 4, info.MaxPlayers)
}

func TestCreateRoomValidation(t *testing.T) {
	srv, rooms := newTestServer(t)
	h := srv.Handler()

	for _, body := range []string{
		`{"max_players":2}`,            // no name
		`{"name":" ","max_players":2}`, // blank name
		`{"name":"x","max_players":1}`,
		`{"name":"x","max_players":5}`,
		`not json`,
	} {
		rec := doJSON(t, h, "POST", "/api/rooms", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
	assert.Equal(t, 0, rooms.Count())
}

func TestListAndGetRooms(t *testing.T) {
	srv, rooms := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, "GET", "/api/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	r, err := rooms.Create(room.Config{Name: "brawl", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = r.Join("alice", time.Now())
	require.NoError(t, err)

	rec = doJSON(t, h, "GET", "/api/rooms", "")
	var infos []room.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].PlayerCount)

	rec = doJSON(t, h, "GET", "/api/rooms/"+r.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap room.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Contains(t, snap.Players, "alice")

	rec = doJSON(t, h, "GET", "/api/rooms/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRoomEndpoint(t *testing.T) {
	srv, rooms := newTestServer(t)
	h := srv.Handler()

	r, err := rooms.Create(room.Config{Name: "brawl", MaxPlayers: 4})
	require.NoError(t, err)
	_, err = r.Join("alice", time.Now())
	require.NoError(t, err)

	rec := doJSON(t, h, "DELETE", "/api/rooms/"+r.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code, "occupied room must not be deletable")

	_, err = r.Leave("alice", time.Now())
	require.NoError(t, err)
	rec = doJSON(t, h, "DELETE", "/api/rooms/"+r.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, rooms.Count())
}

func TestPersistenceEndpointsDegradeWithoutBackends(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	for _, path := range []string{
		"/api/leaderboard",
		"/api/leaderboard/rank/alice",
		"/api/player/alice",
		"/api/matches",
	} {
		rec := doJSON(t, h, "GET", path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestHealthWithoutBackends(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Handler(), "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	// Optional backends are absent, not degraded.
	assert.NotContains(t, status, "db")
	assert.NotContains(t, status, "redis")
}

func TestDevTicketEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := doJSON(t, h, "POST", "/api/ticket", `{"username":"alice"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	username, err := auth.VerifyTicket("secret", resp["ticket"], time.Now())
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	rec = doJSON(t, h, "POST", "/api/ticket", `{"username":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
