/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package rooms keeps the in-memory set of live rooms: their two seats,
// plate count, first player and the authoritative turn pointer.
package rooms

import (
	"crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/google/uuid"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultName  = "Player"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomFull     = errors.New("room full")
	ErrInvalidSeat  = errors.New("invalid seat")
)

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Room is a point-in-time copy of a stored room; mutating it has no effect
// on the store.
type Room struct {
	ID          string     `json:"id"`
	Code        string     `json:"code"`
	Player1     *Player    `json:"player1"`
	Player2     *Player    `json:"player2"`
	PlateCount  int        `json:"plateCount"`
	FirstSeat   match.Seat `json:"firstPlayerIndex"`
	CurrentTurn match.Seat `json:"currentTurn"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Seat returns the occupant of seat, or nil.
func (r Room) Seat(seat match.Seat) *Player {
	switch seat {
	case match.Seat0:
		return r.Player1
	case match.Seat1:
		return r.Player2
	}

	return nil
}

func (r Room) Full() bool {
	return r.Player1 != nil && r.Player2 != nil
}

func (r Room) Empty() bool {
	return r.Player1 == nil && r.Player2 == nil
}

type room struct {
	id          string
	code        string
	seats       [2]*Player
	plateCount  int
	firstSeat   match.Seat
	currentTurn match.Seat
	createdAt   time.Time
}

func (r *room) snapshot() Room {
	out := Room{
		ID:          r.id,
		Code:        r.code,
		PlateCount:  r.plateCount,
		FirstSeat:   r.firstSeat,
		CurrentTurn: r.currentTurn,
		CreatedAt:   r.createdAt,
	}
	if p := r.seats[0]; p != nil {
		c := *p
		out.Player1 = &c
	}
	if p := r.seats[1]; p != nil {
		c := *p
		out.Player2 = &c
	}

	return out
}

// Store holds every live room keyed by id, plus an index of invite codes.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*room
	codes map[string]string

	now       func() time.Time
	firstSeat func() match.Seat
}

func New() *Store {
	return &Store{
		rooms: make(map[string]*room),
		codes: make(map[string]string),
		now:   time.Now,
		firstSeat: func() match.Seat {
			return match.Seat(mrand.IntN(2))
		},
	}
}

// Create opens a room with no players. A nil hint selects the default
// plate count; any other value is clamped with match.ClampPlateCount.
func (s *Store) Create(plateCountHint *float64) Room {
	plates := match.DefaultPlates
	if plateCountHint != nil {
		plates = match.ClampPlateCount(*plateCountHint)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	first := s.firstSeat()
	r := &room{
		id:          uuid.NewString(),
		code:        s.newCodeLocked(),
		plateCount:  plates,
		firstSeat:   first,
		currentTurn: first,
		createdAt:   s.now(),
	}
	s.rooms[r.id] = r
	s.codes[r.code] = r.id

	return r.snapshot()
}

// newCodeLocked generates an invite code that no live room is using.
func (s *Store) newCodeLocked() string {
	buf := make([]byte, codeLength)
	out := make([]byte, codeLength)

	for {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		for i := range out {
			out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}

		if _, exists := s.codes[string(out)]; !exists {
			return string(out)
		}
	}
}

func (s *Store) Get(id string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	return r.snapshot(), nil
}

// GetByCode looks a room up by invite code, ignoring case.
func (s *Store) GetByCode(code string) (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byCodeLocked(code)
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	return r.snapshot(), nil
}

func (s *Store) byCodeLocked(code string) (*room, bool) {
	id, ok := s.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[id]

	return r, ok
}

// Join seats name in the first free seat, seat 0 before seat 1.
func (s *Store) Join(id, name string) (match.Seat, Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return 0, Room{}, ErrRoomNotFound
	}

	return s.joinLocked(r, name)
}

func (s *Store) JoinByCode(code, name string) (match.Seat, Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byCodeLocked(code)
	if !ok {
		return 0, Room{}, ErrRoomNotFound
	}

	return s.joinLocked(r, name)
}

func (s *Store) joinLocked(r *room, name string) (match.Seat, Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName
	}

	for i, p := range r.seats {
		if p != nil {
			continue
		}
		r.seats[i] = &Player{
			ID:       uuid.NewString(),
			Name:     name,
			JoinedAt: s.now(),
		}

		return match.Seat(i), r.snapshot(), nil
	}

	return 0, Room{}, fmt.Errorf("%w: %s", ErrRoomFull, r.id)
}

// Leave vacates seat and deletes the room once both seats are empty. It
// reports whether the room was deleted.
func (s *Store) Leave(id string, seat match.Seat) (bool, error) {
	if !seat.Valid() {
		return false, ErrInvalidSeat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return false, ErrRoomNotFound
	}

	r.seats[seat] = nil
	if r.seats[0] != nil || r.seats[1] != nil {
		return false, nil
	}

	delete(s.rooms, id)
	delete(s.codes, r.code)

	return true, nil
}

// SetCurrentTurn records the authoritative turn pointer. Only the relay
// calls it, after validating a completed action.
func (s *Store) SetCurrentTurn(id string, seat match.Seat) error {
	if !seat.Valid() {
		return ErrInvalidSeat
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	r.currentTurn = seat

	return nil
}

// Joinable lists rooms whose second seat is free, oldest first.
func (s *Store) Joinable() []Room {
	s.mu.RLock()
	out := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		if r.seats[1] == nil {
			out = append(out, r.snapshot())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Room) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return out
}

// CreatedBefore lists rooms opened before t.
func (s *Store) CreatedBefore(t time.Time) []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Room
	for _, r := range s.rooms {
		if r.createdAt.Before(t) {
			out = append(out, r.snapshot())
		}
	}

	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rooms)
}
