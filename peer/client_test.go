package peer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Seednode/platematch/match"
	"github.com/Seednode/platematch/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeResponse(t *testing.T, w http.ResponseWriter, status int, body apiResponse) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	assert.NoError(t, json.NewEncoder(w).Encode(body))
}

// fakeAPI serves one room through the shape of the room API.
func fakeAPI(t *testing.T) *httptest.Server {
	t.Helper()

	store := rooms.New()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlateCount *float64 `json:"plateCount"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		room := store.Create(body.PlateCount)
		writeResponse(t, w, http.StatusCreated, apiResponse{OK: true, RoomID: room.ID, Code: room.Code, Room: &room})
	})
	mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeResponse(t, w, http.StatusOK, apiResponse{OK: true, Rooms: store.Joinable()})
	})
	mux.HandleFunc("GET /api/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		room, err := store.Get(r.PathValue("id"))
		if err != nil {
			writeResponse(t, w, http.StatusNotFound, apiResponse{Error: err.Error()})

			return
		}
		writeResponse(t, w, http.StatusOK, apiResponse{OK: true, Room: &room})
	})
	join := func(lookup func(key, name string) (match.Seat, rooms.Room, error), param string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				PlayerName string `json:"playerName"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

			seat, room, err := lookup(r.PathValue(param), body.PlayerName)
			switch {
			case err == nil:
				writeResponse(t, w, http.StatusOK, apiResponse{OK: true, PlayerIndex: &seat, Room: &room})
			case errors.Is(err, rooms.ErrRoomNotFound):
				writeResponse(t, w, http.StatusNotFound, apiResponse{Error: err.Error()})
			default:
				writeResponse(t, w, http.StatusConflict, apiResponse{Error: err.Error()})
			}
		}
	}
	mux.HandleFunc("POST /api/rooms/{id}/join", join(store.Join, "id"))
	mux.HandleFunc("POST /api/codes/{code}/join", join(store.JoinByCode, "code"))
	mux.HandleFunc("POST /api/rooms/{id}/leave", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerIndex match.Seat `json:"playerIndex"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if _, err := store.Leave(r.PathValue("id"), body.PlayerIndex); err != nil {
			writeResponse(t, w, http.StatusBadRequest, apiResponse{Error: err.Error()})

			return
		}
		writeResponse(t, w, http.StatusOK, apiResponse{OK: true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestClientRoomLifecycle(t *testing.T) {
	t.Parallel()

	srv := fakeAPI(t)
	c := NewClient(srv.URL + "/")
	ctx := context.Background()

	plates := 16.0
	room, err := c.Create(ctx, &plates)
	require.NoError(t, err)
	assert.Equal(t, 16, room.PlateCount)

	seat, joined, err := c.Join(ctx, room.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, match.Seat0, seat)
	assert.Equal(t, "alice", joined.Player1.Name)

	open, err := c.Joinable(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, room.ID, open[0].ID)

	seat, joined, err = c.JoinByCode(ctx, room.Code, "bob")
	require.NoError(t, err)
	assert.Equal(t, match.Seat1, seat)
	assert.True(t, joined.Full())

	_, _, err = c.Join(ctx, room.ID, "carol")
	assert.ErrorIs(t, err, rooms.ErrRoomFull)

	require.NoError(t, c.Leave(ctx, room.ID, match.Seat0))

	got, err := c.Room(ctx, room.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Player1)

	err = c.Leave(ctx, room.ID, match.Seat(4))
	assert.ErrorIs(t, err, ErrRequest)
}

func TestClientNotFound(t *testing.T) {
	t.Parallel()

	srv := fakeAPI(t)
	c := NewClient(srv.URL)
	ctx := context.Background()

	_, err := c.Room(ctx, "missing")
	assert.ErrorIs(t, err, rooms.ErrRoomNotFound)

	_, _, err = c.JoinByCode(ctx, "ZZZZZZ", "alice")
	assert.ErrorIs(t, err, rooms.ErrRoomNotFound)
}

func TestWebsocketURL(t *testing.T) {
	t.Parallel()

	for base, want := range map[string]string{
		"http://localhost:8080":       "ws://localhost:8080/ws",
		"https://example.com/":        "wss://example.com/ws",
		"https://example.com/game":    "wss://example.com/game/ws",
		"http://127.0.0.1:9000/game/": "ws://127.0.0.1:9000/game/ws",
	} {
		got, err := NewClient(base).WebsocketURL()
		require.NoError(t, err)
		assert.Equal(t, want, got, base)
	}
}
