/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package peer is a Go participant for a platematch server: a small REST
// client for the room API and a websocket Peer that keeps its own copy of
// the match state machine.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/Seednode/platematch/rooms"
)

var ErrRequest = errors.New("request failed")

// apiResponse mirrors every body the room API writes.
type apiResponse struct {
	OK          bool         `json:"ok"`
	Error       string       `json:"error,omitempty"`
	RoomID      string       `json:"roomId,omitempty"`
	Code        string       `json:"code,omitempty"`
	PlayerIndex *match.Seat  `json:"playerIndex,omitempty"`
	Room        *rooms.Room  `json:"room,omitempty"`
	Rooms       []rooms.Room `json:"rooms,omitempty"`
}

// Client talks to the room API rooted at Base.
type Client struct {
	Base string
	HTTP *http.Client
}

func NewClient(base string) *Client {
	return &Client{
		Base: strings.TrimSuffix(base, "/"),
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

// WebsocketURL returns the relay endpoint for Base.
func (c *Client) WebsocketURL() (string, error) {
	u, err := url.Parse(c.Base)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"

	return u.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (apiResponse, error) {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apiResponse{}, err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, reader)
	if err != nil {
		return apiResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return apiResponse{}, fmt.Errorf("%w: %s %s: %s", ErrRequest, method, path, resp.Status)
	}

	if out.OK {
		return out, nil
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return out, fmt.Errorf("%w: %s", rooms.ErrRoomNotFound, out.Error)
	case http.StatusConflict:
		return out, fmt.Errorf("%w: %s", rooms.ErrRoomFull, out.Error)
	}

	return out, fmt.Errorf("%w: %s", ErrRequest, out.Error)
}

// Create opens a new room. A nil plateCount uses the server default.
func (c *Client) Create(ctx context.Context, plateCount *float64) (rooms.Room, error) {
	out, err := c.do(ctx, http.MethodPost, "/api/rooms", map[string]any{"plateCount": plateCount})
	if err != nil {
		return rooms.Room{}, err
	}
	if out.Room == nil {
		return rooms.Room{}, fmt.Errorf("%w: create returned no room", ErrRequest)
	}

	return *out.Room, nil
}

func (c *Client) Room(ctx context.Context, id string) (rooms.Room, error) {
	out, err := c.do(ctx, http.MethodGet, "/api/rooms/"+url.PathEscape(id), nil)
	if err != nil {
		return rooms.Room{}, err
	}
	if out.Room == nil {
		return rooms.Room{}, fmt.Errorf("%w: no room in response", ErrRequest)
	}

	return *out.Room, nil
}

func (c *Client) Joinable(ctx context.Context) ([]rooms.Room, error) {
	out, err := c.do(ctx, http.MethodGet, "/api/rooms", nil)
	if err != nil {
		return nil, err
	}

	return out.Rooms, nil
}

func (c *Client) Join(ctx context.Context, id, name string) (match.Seat, rooms.Room, error) {
	return c.join(ctx, "/api/rooms/"+url.PathEscape(id)+"/join", name)
}

func (c *Client) JoinByCode(ctx context.Context, code, name string) (match.Seat, rooms.Room, error) {
	return c.join(ctx, "/api/codes/"+url.PathEscape(code)+"/join", name)
}

func (c *Client) join(ctx context.Context, path, name string) (match.Seat, rooms.Room, error) {
	out, err := c.do(ctx, http.MethodPost, path, map[string]string{"playerName": name})
	if err != nil {
		return 0, rooms.Room{}, err
	}
	if out.PlayerIndex == nil || out.Room == nil {
		return 0, rooms.Room{}, fmt.Errorf("%w: join returned no seat", ErrRequest)
	}

	return *out.PlayerIndex, *out.Room, nil
}

func (c *Client) Leave(ctx context.Context, id string, seat match.Seat) error {
	_, err := c.do(ctx, http.MethodPost, "/api/rooms/"+url.PathEscape(id)+"/leave", map[string]int{"playerIndex": int(seat)})

	return err
}
