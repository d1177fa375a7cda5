package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/Seednode/platematch/results"
	"github.com/Seednode/platematch/rooms"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	maxBodySize    = 4096
	defaultResults = 20
	maxResults     = 100
	qrSize         = 320
)

type apiResponse struct {
	OK          bool             `json:"ok"`
	Error       string           `json:"error,omitempty"`
	RoomID      string           `json:"roomId,omitempty"`
	Code        string           `json:"code,omitempty"`
	PlayerIndex *match.Seat      `json:"playerIndex,omitempty"`
	Room        *rooms.Room      `json:"room,omitempty"`
	Rooms       []rooms.Room     `json:"rooms,omitempty"`
	Results     []results.Result `json:"results,omitempty"`
}

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}

func writeJSON(cfg *Config, w http.ResponseWriter, r *http.Request, errs chan<- error, status int, body apiResponse) {
	startTime := time.Now()

	data, err := json.Marshal(body)
	if err != nil {
		errs <- err
		http.Error(w, "encoding failed", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	written, err := w.Write(data)
	if err != nil {
		errs <- err

		return
	}

	logf(cfg, "SERVE: %s %s %d (%s) to %s in %s",
		r.Method,
		r.URL.Path,
		status,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, errs chan<- error, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, rooms.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, rooms.ErrRoomFull):
		status = http.StatusConflict
	}

	writeJSON(cfg, w, r, errs, status, apiResponse{Error: err.Error()})
}

// readBody decodes an optional JSON body into v.
func readBody(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	return fmt.Errorf("invalid request body: %w", err)
}

func serveJoinable(cfg *Config, store *rooms.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, r, errs, http.StatusOK, apiResponse{OK: true, Rooms: store.Joinable()})
	}
}

func serveCreateRoom(cfg *Config, store *rooms.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			PlateCount *float64 `json:"plateCount"`
		}
		if err := readBody(w, r, &body); err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}

		room := store.Create(body.PlateCount)

		logf(cfg, "ROOMS: Created room %s (code %s, %d plates) for %s", room.ID, room.Code, room.PlateCount, realIP(r))

		writeJSON(cfg, w, r, errs, http.StatusCreated, apiResponse{
			OK:     true,
			RoomID: room.ID,
			Code:   room.Code,
			Room:   &room,
		})
	}
}

func serveRoom(cfg *Config, store *rooms.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := store.Get(ps.ByName("roomId"))
		if err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}

		writeJSON(cfg, w, r, errs, http.StatusOK, apiResponse{OK: true, RoomID: room.ID, Code: room.Code, Room: &room})
	}
}

func serveRoomByCode(cfg *Config, store *rooms.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := store.GetByCode(ps.ByName("code"))
		if err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}

		writeJSON(cfg, w, r, errs, http.StatusOK, apiResponse{OK: true, RoomID: room.ID, Code: room.Code, Room: &room})
	}
}

type joinFunc func(key, name string) (match.Seat, rooms.Room, error)

func serveJoin(cfg *Config, param string, join joinFunc, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			PlayerName string `json:"playerName"`
		}
		if err := readBody(w, r, &body); err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}

		seat, room, err := join(ps.ByName(param), body.PlayerName)
		if err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}

		logf(cfg, "ROOMS: %q took seat %d of room %s", room.Seat(seat).Name, seat, room.ID)

		writeJSON(cfg, w, r, errs, http.StatusOK, apiResponse{
			OK:          true,
			RoomID:      room.ID,
			Code:        room.Code,
			PlayerIndex: &seat,
			Room:        &room,
		})
	}
}

func serveLeave(cfg *Config, store *rooms.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var body struct {
			PlayerIndex *match.Seat `json:"playerIndex"`
		}
		if err := readBody(w, r, &body); err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}
		if body.PlayerIndex == nil {
			writeError(cfg, w, r, errs, rooms.ErrInvalidSeat)

			return
		}

		id := ps.ByName("roomId")
		deleted, err := store.Leave(id, *body.PlayerIndex)
		if err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}

		logf(cfg, "ROOMS: Seat %d left room %s (deleted: %t)", *body.PlayerIndex, id, deleted)

		writeJSON(cfg, w, r, errs, http.StatusOK, apiResponse{OK: true, RoomID: id})
	}
}

func serveResults(cfg *Config, log results.Log, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		limit := defaultResults
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(cfg, w, r, errs, fmt.Errorf("invalid limit %q", v))

				return
			}
			limit = min(max(n, 1), maxResults)
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		list, err := log.Recent(ctx, limit)
		if err != nil {
			errs <- err
			writeJSON(cfg, w, r, errs, http.StatusInternalServerError, apiResponse{Error: "results unavailable"})

			return
		}

		writeJSON(cfg, w, r, errs, http.StatusOK, apiResponse{OK: true, Results: list})
	}
}

// serveInviteQR renders a PNG QR code pointing at the room's invite link.
func serveInviteQR(cfg *Config, store *rooms.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := store.Get(ps.ByName("roomId"))
		if err != nil {
			writeError(cfg, w, r, errs, err)

			return
		}

		// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		png, err := qrcode.Encode(inviteURL(scheme, r.Host, cfg.prefix, room.Code), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		securityHeaders(cfg, w)

		if _, err := w.Write(png); err != nil {
			errs <- err
		}
	}
}

func inviteURL(scheme, host, prefix, code string) string {
	u := url.URL{
		Scheme:   scheme,
		Host:     host,
		Path:     prefix + "/",
		RawQuery: url.Values{"code": {code}}.Encode(),
	}

	return u.String()
}

func registerRoomAPI(cfg *Config, mux *httprouter.Router, store *rooms.Store, log results.Log, errs chan<- error) {
	mux.GET(cfg.prefix+"/api/rooms", serveJoinable(cfg, store, errs))
	mux.POST(cfg.prefix+"/api/rooms", serveCreateRoom(cfg, store, errs))
	mux.GET(cfg.prefix+"/api/rooms/:roomId", serveRoom(cfg, store, errs))
	mux.POST(cfg.prefix+"/api/rooms/:roomId/join", serveJoin(cfg, "roomId", store.Join, errs))
	mux.POST(cfg.prefix+"/api/rooms/:roomId/leave", serveLeave(cfg, store, errs))
	mux.GET(cfg.prefix+"/api/rooms/:roomId/qr", serveInviteQR(cfg, store, errs))

	mux.GET(cfg.prefix+"/api/codes/:code", serveRoomByCode(cfg, store, errs))
	mux.POST(cfg.prefix+"/api/codes/:code/join", serveJoin(cfg, "code", store.JoinByCode, errs))

	mux.GET(cfg.prefix+"/api/results", serveResults(cfg, log, errs))
}
