// Platematch relay
//
// Every participant keeps its own copy of the match state; the relay only
// moves their actions between them. It keeps three facts of record:
// - who holds each seat of a room (rooms.Store)
// - whose turn it is, flipped on each accepted round-done
// - the result of every finished game (results.Log)
//
// Features:
// - one websocket endpoint, rooms chosen by join-room
// - one hub goroutine per room, so a room's events are handled in order
// - actions must name the seat the connection joined as
// - per-connection rate limiting (golang.org/x/time/rate)
// - optional shadow validation through match.Reduce
// - rooms torn down a short delay after game-over, or when idle

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/Seednode/platematch/results"
	"github.com/Seednode/platematch/rooms"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"golang.org/x/time/rate"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	id      string
	conn    *websocket.Conn
	send    chan match.Message
	done    chan struct{}
	limiter *rate.Limiter
	hub     atomic.Pointer[Hub]
}

// deliver queues m without blocking; a client that cannot keep up is
// disconnected.
func (c *Client) deliver(m match.Message) {
	select {
	case c.send <- m:
	default:
		_ = c.conn.Close()
	}
}

func (c *Client) reject(roomID, reason string) {
	c.deliver(match.Message{Type: match.TypeError, RoomID: roomID, Error: reason})
}

type eventKind int

const (
	eventJoin eventKind = iota
	eventMessage
	eventLeave
	eventDisconnect
)

type hubEvent struct {
	kind   eventKind
	client *Client
	msg    match.Message
}

// Hub serializes everything that happens in one room.
type Hub struct {
	id    string
	relay *Relay

	events   chan hubEvent
	finalize chan struct{}
	quit     chan struct{}
	done     chan struct{}

	mu         sync.RWMutex
	lastActive time.Time

	// Owned by run.
	clients  map[*Client]match.Seat
	seats    [2]*Client
	started  bool
	finished bool
	shadow   *match.State
	teardown *time.Timer
}

func newHub(rl *Relay, roomID string) *Hub {
	return &Hub{
		id:         roomID,
		relay:      rl,
		events:     make(chan hubEvent),
		finalize:   make(chan struct{}, 1),
		quit:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		lastActive: time.Now(),
		clients:    make(map[*Client]match.Seat),
	}
}

// submit hands ev to the hub, reporting false if the hub has already shut
// down.
func (h *Hub) submit(ev hubEvent) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) run() {
	cfg := h.relay.cfg

	defer func() {
		if h.teardown != nil {
			h.teardown.Stop()
		}
		h.relay.remove(h)
		close(h.done)
	}()

	for {
		select {
		case ev := <-h.events:
			h.touch()

			switch ev.kind {
			case eventJoin:
				h.handleJoin(ev.client, ev.msg)
			case eventMessage:
				if h.handleMessage(ev.client, ev.msg) {
					return
				}
			case eventLeave:
				h.handleLeave(ev.client, true)
			case eventDisconnect:
				h.handleLeave(ev.client, false)
			}

		case <-h.finalize:
			h.closeRoom("game finished")

			return

		case <-h.quit:
			h.closeRoom("idle")

			return
		}

		if len(h.clients) == 0 {
			logf(cfg, "RELAY: No connections left in room %s", h.id)

			return
		}
	}
}

func (h *Hub) touch() {
	h.mu.Lock()
	h.lastActive = time.Now()
	h.mu.Unlock()
}

func (h *Hub) idleSince() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.lastActive
}

func (h *Hub) broadcast(m match.Message) {
	for c := range h.clients {
		c.deliver(m)
	}
}

func (h *Hub) ready() bool {
	return h.seats[0] != nil && h.seats[1] != nil
}

func (h *Hub) handleJoin(c *Client, m match.Message) {
	cfg := h.relay.cfg

	room, err := h.relay.store.Get(h.id)
	if err != nil {
		h.rejectJoin(c, err.Error())

		return
	}

	if !m.Seat.Valid() || room.Seat(m.Seat) == nil {
		h.rejectJoin(c, "that seat is not taken in this room")

		return
	}

	if prev, ok := h.clients[c]; ok && prev != m.Seat {
		c.reject(h.id, "already joined this room as another seat")

		return
	}

	if old := h.seats[m.Seat]; old != nil && old != c {
		delete(h.clients, old)
		old.hub.CompareAndSwap(h, nil)
		old.reject(h.id, "seat taken over by another connection")
		logf(cfg, "RELAY: Connection %s replaced %s in seat %d of room %s", c.id, old.id, m.Seat, h.id)
	}

	h.clients[c] = m.Seat
	h.seats[m.Seat] = c
	c.hub.Store(h)

	session, _ := h.relay.sessions.Join(c.id, m.Name, h.id, m.Seat)

	logf(cfg, "RELAY: %q joined room %s as seat %d", session.Name, h.id, m.Seat)

	h.broadcast(match.Message{
		Type:        match.TypeJoined,
		RoomID:      h.id,
		Seat:        m.Seat,
		Name:        session.Name,
		PlateCount:  room.PlateCount,
		FirstSeat:   room.FirstSeat,
		CurrentTurn: room.CurrentTurn,
		Ready:       h.ready(),
	})
}

func (h *Hub) rejectJoin(c *Client, reason string) {
	if _, joined := h.clients[c]; !joined {
		c.hub.CompareAndSwap(h, nil)
	}
	c.reject(h.id, reason)
}

// handleMessage applies one message from a joined client and reports
// whether the room was closed.
func (h *Hub) handleMessage(c *Client, m match.Message) bool {
	cfg := h.relay.cfg

	seat, ok := h.clients[c]
	if !ok {
		logf(cfg, "RELAY: Dropped %s from %s: not in room %s", m.Type, c.id, h.id)

		return false
	}

	if m.RoomID != h.id {
		logf(cfg, "RELAY: Dropped %s from seat %d: room %q does not match %s", m.Type, seat, m.RoomID, h.id)

		return false
	}

	if match.Claims(m.Type) && m.Seat != seat {
		logf(cfg, "RELAY: Dropped %s in room %s: seat %d claimed seat %d", m.Type, h.id, seat, m.Seat)

		return false
	}

	switch m.Type {
	case match.TypeStartGame:
		h.startGame(c, seat)

	case match.TypePlateClick, match.TypePairSelected, match.TypeTokenPlaced,
		match.TypeWrongAnswerSettled, match.TypeTimeoutPenalty:
		h.forward(seat, m)

	case match.TypeRoundDone:
		h.roundDone(seat)

	case match.TypeGameOver:
		h.gameOver(seat, m)

	case match.TypeGameEndFinalize:
		h.closeRoom(fmt.Sprintf("finalized by seat %d", seat))

		return true

	case match.TypeLeaveRoom:
		h.handleLeave(c, true)

	default:
		logf(cfg, "RELAY: Dropped unknown message type %q in room %s", m.Type, h.id)
	}

	return false
}

func (h *Hub) startGame(c *Client, seat match.Seat) {
	cfg := h.relay.cfg

	if seat != match.Seat0 {
		c.reject(h.id, "only the host can start the game")

		return
	}
	if h.started {
		logf(cfg, "RELAY: Dropped duplicate start-game in room %s", h.id)

		return
	}

	room, err := h.relay.store.Get(h.id)
	if err != nil {
		c.reject(h.id, err.Error())

		return
	}
	if !room.Full() {
		c.reject(h.id, "waiting for an opponent")

		return
	}

	if cfg.shadowValidate {
		st, err := match.Reduce(match.NewState(room.PlateCount, room.FirstSeat), match.Start{Turn: room.CurrentTurn})
		if err != nil {
			errorf("shadow start in room %s: %v", h.id, err)

			return
		}
		h.shadow = &st
	}

	h.started = true

	logf(cfg, "GAMES: Started room %s with %d plates, seat %d first", h.id, room.PlateCount, room.FirstSeat)

	h.broadcast(match.Message{
		Type:        match.TypeStartGame,
		RoomID:      h.id,
		Seat:        seat,
		PlateCount:  room.PlateCount,
		FirstSeat:   room.FirstSeat,
		CurrentTurn: room.CurrentTurn,
	}.WithTiming(cfg.timing()))
}

// forward rebroadcasts a game action, re-encoded from its decoded event so
// only the fields that event defines are relayed.
func (h *Hub) forward(seat match.Seat, m match.Message) {
	cfg := h.relay.cfg

	if !h.started || h.finished {
		logf(cfg, "RELAY: Dropped %s in room %s: no game in progress", m.Type, h.id)

		return
	}

	e, err := m.Event()
	if err != nil {
		logf(cfg, "RELAY: Dropped %s in room %s: %v", m.Type, h.id, err)

		return
	}

	if err := h.shadowApply(e); err != nil {
		logf(cfg, "RELAY: Shadow rejected %s from seat %d in room %s: %v", m.Type, seat, h.id, err)

		return
	}

	out, err := match.MessageFor(h.id, e)
	if err != nil {
		return
	}
	out.Seat = seat

	h.broadcast(out)
}

// shadowApply runs e through the server-side copy of the match, when
// enabled. The settle pause is implied by the first main-phase action.
func (h *Hub) shadowApply(e match.Event) error {
	if h.shadow == nil {
		return nil
	}

	st := *h.shadow
	if st.Closing {
		switch e.(type) {
		case match.PairSelected, match.TokenPlaced, match.WrongAnswerSettled, match.TimeoutPenalty:
			settled, err := match.Reduce(st, match.Settled{})
			if err != nil {
				return err
			}
			st = settled
		}
	}

	next, err := match.Reduce(st, e)
	if err != nil {
		return err
	}
	*h.shadow = next

	return nil
}

func (h *Hub) roundDone(seat match.Seat) {
	cfg := h.relay.cfg

	if !h.started || h.finished {
		return
	}

	room, err := h.relay.store.Get(h.id)
	if err != nil {
		return
	}
	if room.CurrentTurn != seat {
		logf(cfg, "RELAY: Dropped round-done from seat %d in room %s: turn is %d", seat, h.id, room.CurrentTurn)

		return
	}
	if h.shadow != nil && !h.shadow.InFlight {
		logf(cfg, "RELAY: Dropped round-done from seat %d in room %s: no completed action", seat, h.id)

		return
	}

	next := seat.Other()
	if err := h.relay.store.SetCurrentTurn(h.id, next); err != nil {
		errorf("set turn in room %s: %v", h.id, err)

		return
	}
	if err := h.shadowApply(match.TurnSwitch{Turn: next}); err != nil {
		errorf("shadow turn switch in room %s: %v", h.id, err)
	}

	h.broadcast(match.Message{Type: match.TypeTurnSwitch, RoomID: h.id, CurrentTurn: next})
}

func (h *Hub) gameOver(seat match.Seat, m match.Message) {
	cfg := h.relay.cfg

	if !h.started || h.finished {
		logf(cfg, "RELAY: Dropped game-over from seat %d in room %s", seat, h.id)

		return
	}

	e := match.GameOver{Reason: m.Reason, Winner: m.WinnerSeat, Loser: m.LoserSeat}
	if !e.Reason.Valid() || !e.Winner.Valid() || !e.Loser.Valid() || e.Winner == e.Loser {
		logf(cfg, "RELAY: Dropped game-over from seat %d in room %s: bad reason or seats", seat, h.id)

		return
	}

	if h.shadow != nil {
		st := *h.shadow
		if !st.Over() || st.Reason != e.Reason || st.Winner != e.Winner || st.Loser != e.Loser {
			logf(cfg, "RELAY: Shadow rejected game-over from seat %d in room %s", seat, h.id)

			return
		}
	}

	room, err := h.relay.store.Get(h.id)
	if err != nil {
		return
	}

	result := results.Result{
		RoomID:     h.id,
		Reason:     e.Reason,
		WinnerSeat: e.Winner,
		LoserSeat:  e.Loser,
		PlateCount: room.PlateCount,
	}
	if p := room.Seat(e.Winner); p != nil {
		result.WinnerID, result.WinnerName = p.ID, p.Name
	}
	if p := room.Seat(e.Loser); p != nil {
		result.LoserID, result.LoserName = p.ID, p.Name
	}

	h.finished = true

	out, _ := match.MessageFor(h.id, e)
	out.Seat = seat
	h.broadcast(out)

	h.teardown = time.AfterFunc(cfg.gameOverDelay, func() {
		select {
		case h.finalize <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	saved, err := h.relay.results.Save(ctx, result)
	cancel()
	if err != nil {
		errorf("record result of room %s: %v", h.id, err)

		return
	}

	logf(cfg, "GAMES: Room %s over, seat %d (%q) beat seat %d by %s", h.id, saved.WinnerSeat, saved.WinnerName, saved.LoserSeat, saved.Reason)
}

// handleLeave detaches c and, if it still held its seat, vacates the seat
// and tells the rest of the room.
func (h *Hub) handleLeave(c *Client, voluntary bool) {
	cfg := h.relay.cfg

	seat, ok := h.clients[c]
	if !ok {
		return
	}

	delete(h.clients, c)
	c.hub.CompareAndSwap(h, nil)

	if h.seats[seat] != c {
		return
	}
	h.seats[seat] = nil

	if _, err := h.relay.store.Leave(h.id, seat); err != nil {
		logf(cfg, "ROOMS: Leave seat %d of room %s: %v", seat, h.id, err)
	}

	how := "disconnected from"
	if voluntary {
		how = "left"
	}
	logf(cfg, "RELAY: Seat %d %s room %s", seat, how, h.id)

	h.broadcast(match.Message{Type: match.TypePeerLeft, RoomID: h.id, Seat: seat})
}

// closeRoom tells everyone the room is gone, detaches every connection and
// vacates both seats.
func (h *Hub) closeRoom(reason string) {
	cfg := h.relay.cfg

	h.broadcast(match.Message{Type: match.TypeRoomClosed, RoomID: h.id})

	for c := range h.clients {
		c.hub.CompareAndSwap(h, nil)
		delete(h.clients, c)
	}
	h.seats = [2]*Client{}

	for _, seat := range []match.Seat{match.Seat0, match.Seat1} {
		_, _ = h.relay.store.Leave(h.id, seat)
	}

	logf(cfg, "GAMES: Closed room %s (%s)", h.id, reason)
}

// Relay owns the hubs of every active room.
type Relay struct {
	cfg      *Config
	store    *rooms.Store
	results  results.Log
	sessions *Registry

	mu   sync.Mutex
	hubs map[string]*Hub
}

func newRelay(cfg *Config, store *rooms.Store, log results.Log, sessions *Registry) *Relay {
	return &Relay{
		cfg:      cfg,
		store:    store,
		results:  log,
		sessions: sessions,
		hubs:     make(map[string]*Hub),
	}
}

func (rl *Relay) hub(roomID string) *Hub {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if h, ok := rl.hubs[roomID]; ok {
		return h
	}

	h := newHub(rl, roomID)
	rl.hubs[roomID] = h
	go h.run()

	return h
}

func (rl *Relay) remove(h *Hub) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.hubs[h.id] == h {
		delete(rl.hubs, h.id)
	}
}

func (rl *Relay) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return len(rl.hubs)
}

// reaperLoop closes rooms idle longer than the session timeout, including
// rooms nobody ever connected to.
func (rl *Relay) reaperLoop(ctx context.Context) {
	timeout := rl.cfg.sessionTimeout

	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-timeout)

		rl.mu.Lock()
		for _, h := range rl.hubs {
			if h.idleSince().Before(cutoff) {
				select {
				case h.quit <- struct{}{}:
				default:
				}
			}
		}
		rl.mu.Unlock()

		for _, room := range rl.store.CreatedBefore(cutoff) {
			rl.mu.Lock()
			_, active := rl.hubs[room.ID]
			rl.mu.Unlock()
			if active {
				continue
			}

			for _, seat := range []match.Seat{match.Seat0, match.Seat1} {
				_, _ = rl.store.Leave(room.ID, seat)
			}
			logf(rl.cfg, "ROOMS: Reaped unused room %s", room.ID)
		}
	}
}

// dispatch routes one inbound message to the hub it belongs to.
func (rl *Relay) dispatch(c *Client, m match.Message) {
	m.RoomID = strings.TrimSpace(m.RoomID)

	if m.Type != match.TypeJoinRoom {
		h := c.hub.Load()
		if h == nil {
			logf(rl.cfg, "RELAY: Dropped %s from %s: not in a room", m.Type, c.id)

			return
		}
		h.submit(hubEvent{kind: eventMessage, client: c, msg: m})

		return
	}

	if _, err := rl.store.Get(m.RoomID); err != nil {
		c.reject(m.RoomID, err.Error())

		return
	}

	if cur := c.hub.Load(); cur != nil && cur.id != m.RoomID {
		cur.submit(hubEvent{kind: eventLeave, client: c})
	}

	// A hub that shut down between lookup and submit is replaced on retry.
	for range 2 {
		h := rl.hub(m.RoomID)
		c.hub.Store(h)
		if h.submit(hubEvent{kind: eventJoin, client: c, msg: m}) {
			return
		}
		c.hub.CompareAndSwap(h, nil)
	}

	c.reject(m.RoomID, "room closed")
}

func (rl *Relay) serveWS() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(rl.cfg, "RELAY: Upgrade failed for %s: %v", realIP(r), err)

			return
		}

		session := rl.sessions.Connect()

		c := &Client{
			id:      session.ID,
			conn:    conn,
			send:    make(chan match.Message, sendBuffer),
			done:    make(chan struct{}),
			limiter: rate.NewLimiter(rate.Limit(rl.cfg.messageRate), rl.cfg.messageBurst),
		}

		logf(rl.cfg, "RELAY: Connection %s (%s) from %s", c.id, session.Name, realIP(r))

		go c.writePump()
		rl.readPump(c)
	}
}

func (rl *Relay) readPump(c *Client) {
	defer func() {
		if h := c.hub.Load(); h != nil {
			h.submit(hubEvent{kind: eventDisconnect, client: c})
		}
		name := "unknown"
		if s, ok := rl.sessions.Get(c.id); ok {
			name = s.Name
		}
		rl.sessions.Remove(c.id)
		close(c.done)
		_ = c.conn.Close()

		logf(rl.cfg, "RELAY: Connection %s (%s) closed", c.id, name)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		if !c.limiter.Allow() {
			logf(rl.cfg, "RELAY: Rate limited connection %s", c.id)

			continue
		}

		var m match.Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.reject("", "malformed message")

			continue
		}

		rl.dispatch(c, m)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case m := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(m); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
