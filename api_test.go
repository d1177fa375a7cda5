package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/Seednode/platematch/results"
	"github.com/Seednode/platematch/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server

	cfg   *Config
	store *rooms.Store
	log   results.Log
	relay *Relay
}

func testConfig() *Config {
	return &Config{
		bind:          "127.0.0.1",
		port:          8080,
		gameOverDelay: 20 * time.Millisecond,
		roundWindow:   time.Second,
		mainWindow:    time.Second,
		messageRate:   1000,
		messageBurst:  1000,
	}
}

func newTestServer(t *testing.T, opts ...func(*Config)) *testServer {
	t.Helper()

	return newTestServerWithLog(t, results.NewMemory(), opts...)
}

func newTestServerWithLog(t *testing.T, log results.Log, opts ...func(*Config)) *testServer {
	t.Helper()

	cfg := testConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	store := rooms.New()
	relay := newRelay(cfg, store, log, newRegistry())

	errs := make(chan error, 64)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-errs:
			case <-done:
				return
			}
		}
	}()

	srv := httptest.NewServer(newMux(cfg, store, log, relay, errs))
	t.Cleanup(func() {
		srv.Close()
		close(done)
	})

	return &testServer{Server: srv, cfg: cfg, store: store, log: log, relay: relay}
}

// call sends body as JSON and decodes the API envelope.
func (ts *testServer) call(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func TestCreateRoom(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	status, out := ts.call(t, http.MethodPost, "/api/rooms", map[string]any{"plateCount": 13})
	require.Equal(t, http.StatusCreated, status)
	assert.True(t, out.OK)
	require.NotNil(t, out.Room)
	assert.Equal(t, 14, out.Room.PlateCount)
	assert.Equal(t, out.RoomID, out.Room.ID)
	assert.Len(t, out.Code, 6)
	assert.Nil(t, out.Room.Player1)
	assert.Equal(t, out.Room.FirstSeat, out.Room.CurrentTurn)

	status, out = ts.call(t, http.MethodPost, "/api/rooms", nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, match.DefaultPlates, out.Room.PlateCount)

	status, out = ts.call(t, http.MethodPost, "/api/rooms", map[string]any{"plateCount": 99})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, match.MaxPlates, out.Room.PlateCount)

	assert.Equal(t, 3, ts.store.Len())
}

func TestCreateRoomRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/api/rooms", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, ts.store.Len())
}

func TestJoinRoom(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, created := ts.call(t, http.MethodPost, "/api/rooms", nil)
	path := "/api/rooms/" + created.RoomID + "/join"

	status, out := ts.call(t, http.MethodPost, path, map[string]string{"playerName": "alice"})
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, out.PlayerIndex)
	assert.Equal(t, match.Seat0, *out.PlayerIndex)
	require.NotNil(t, out.Room.Player1)
	assert.Equal(t, "alice", out.Room.Player1.Name)

	status, out = ts.call(t, http.MethodPost, path, map[string]string{"playerName": "  "})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, match.Seat1, *out.PlayerIndex)
	assert.Equal(t, "Player", out.Room.Player2.Name)

	status, out = ts.call(t, http.MethodPost, path, map[string]string{"playerName": "carol"})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, out.OK)
	assert.Contains(t, out.Error, "room full")

	status, out = ts.call(t, http.MethodPost, "/api/rooms/nope/join", map[string]string{"playerName": "dave"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "room not found", out.Error)
}

func TestRoomLookups(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, created := ts.call(t, http.MethodPost, "/api/rooms", nil)

	status, out := ts.call(t, http.MethodGet, "/api/rooms/"+created.RoomID, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created.Code, out.Room.Code)

	status, out = ts.call(t, http.MethodGet, "/api/codes/"+strings.ToLower(created.Code), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created.RoomID, out.RoomID)

	status, _ = ts.call(t, http.MethodGet, "/api/rooms/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = ts.call(t, http.MethodGet, "/api/codes/ZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestJoinByCode(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, created := ts.call(t, http.MethodPost, "/api/rooms", nil)

	status, out := ts.call(t, http.MethodPost, "/api/codes/"+strings.ToLower(created.Code)+"/join", map[string]string{"playerName": "alice"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, created.RoomID, out.RoomID)
	assert.Equal(t, match.Seat0, *out.PlayerIndex)
}

func TestJoinableRooms(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, open := ts.call(t, http.MethodPost, "/api/rooms", nil)
	_, full := ts.call(t, http.MethodPost, "/api/rooms", nil)
	for _, name := range []string{"a", "b"} {
		status, _ := ts.call(t, http.MethodPost, "/api/rooms/"+full.RoomID+"/join", map[string]string{"playerName": name})
		require.Equal(t, http.StatusOK, status)
	}

	status, out := ts.call(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out.Rooms, 1)
	assert.Equal(t, open.RoomID, out.Rooms[0].ID)
}

func TestLeaveRoom(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, created := ts.call(t, http.MethodPost, "/api/rooms", nil)
	join := "/api/rooms/" + created.RoomID + "/join"
	leave := "/api/rooms/" + created.RoomID + "/leave"

	ts.call(t, http.MethodPost, join, map[string]string{"playerName": "alice"})
	ts.call(t, http.MethodPost, join, map[string]string{"playerName": "bob"})

	status, _ := ts.call(t, http.MethodPost, leave, map[string]int{"playerIndex": 0})
	require.Equal(t, http.StatusOK, status)

	room, err := ts.store.Get(created.RoomID)
	require.NoError(t, err)
	assert.Nil(t, room.Player1)
	assert.NotNil(t, room.Player2)

	status, out := ts.call(t, http.MethodPost, leave, map[string]int{"playerIndex": 5})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid seat", out.Error)

	status, _ = ts.call(t, http.MethodPost, leave, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = ts.call(t, http.MethodPost, leave, map[string]int{"playerIndex": 1})
	require.Equal(t, http.StatusOK, status)

	_, err = ts.store.Get(created.RoomID)
	assert.ErrorIs(t, err, rooms.ErrRoomNotFound)

	status, _ = ts.call(t, http.MethodPost, leave, map[string]int{"playerIndex": 1})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRecentResults(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	ctx := context.Background()
	for i := range 5 {
		_, err := ts.log.Save(ctx, results.Result{
			RoomID:     fmt.Sprintf("room-%d", i),
			Reason:     match.ReasonWin,
			WinnerSeat: match.Seat0,
			LoserSeat:  match.Seat1,
			PlateCount: 10,
		})
		require.NoError(t, err)
	}

	status, out := ts.call(t, http.MethodGet, "/api/results?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, out.Results, 2)
	assert.Equal(t, "room-4", out.Results[0].RoomID)

	status, out = ts.call(t, http.MethodGet, "/api/results", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out.Results, 5)

	status, out = ts.call(t, http.MethodGet, "/api/results?limit=0", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, out.Results, 1)

	status, _ = ts.call(t, http.MethodGet, "/api/results?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestInviteQR(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, created := ts.call(t, http.MethodPost, "/api/rooms", nil)

	resp, err := ts.Client().Get(ts.URL + "/api/rooms/" + created.RoomID + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("\x89PNG")))

	resp, err = ts.Client().Get(ts.URL + "/api/rooms/missing/qr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInviteURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.com/game/?code=ABC234", inviteURL("https", "example.com", "/game", "ABC234"))
	assert.Equal(t, "http://localhost:8080/?code=ABC234", inviteURL("http", "localhost:8080", "", "ABC234"))
}

func TestPlainRoutes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	for path, want := range map[string]string{
		"/healthz": "Ok\n",
		"/version": "platematch v" + releaseVersion + "\n",
	} {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, want, string(body), path)
		assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"), path)
	}

	resp, err := ts.Client().Get(ts.URL + "/favicon.svg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
}

func TestHomePageListsOpenRooms(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	_, created := ts.call(t, http.MethodPost, "/api/rooms", nil)
	ts.call(t, http.MethodPost, "/api/rooms/"+created.RoomID+"/join", map[string]string{"playerName": "<alice>"})

	resp, err := ts.Client().Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), created.Code)
	assert.Contains(t, string(body), "&lt;alice&gt;")
}

func TestPrefixedPagesLinkFavicon(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(cfg *Config) {
		cfg.prefix = "/game"
	})

	resp, err := ts.Client().Get(ts.URL + "/game/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Contains(t, string(body), `href="/game/favicon.svg"`)

	resp, err = ts.Client().Get(ts.URL + "/game/favicon.svg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	page := newPage("/game", "Server Error", "oops")
	assert.Contains(t, page, `href="/game/favicon.svg"`)
	assert.Contains(t, page, `<a href="/game/">oops</a>`)
}

func TestHumanReadableSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "999 B", humanReadableSize(999))
	assert.Equal(t, "1.0 kB", humanReadableSize(1000))
	assert.Equal(t, "2.5 MB", humanReadableSize(2_500_000))
}

func TestProfileRoutes(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, func(cfg *Config) {
		cfg.profile = true
	})

	resp, err := ts.Client().Get(ts.URL + "/pprof/heap")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	plain := newTestServer(t)
	resp, err = plain.Client().Get(plain.URL + "/pprof/heap")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
