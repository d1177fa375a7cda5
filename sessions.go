package main

import (
	"strings"
	"sync"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/google/uuid"
)

// Session is what the relay knows about one websocket connection.
type Session struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	RoomID      string     `json:"roomId,omitempty"`
	Seat        match.Seat `json:"seatIndex"`
	ConnectedAt time.Time  `json:"connectedAt"`
}

// Registry maps live connection ids to display names. Entries exist only
// while the connection is open.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func newRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

func guestName() string {
	return "Guest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// Connect allocates a connection id with a guest name.
func (r *Registry) Connect() Session {
	s := Session{
		ID:          uuid.NewString(),
		Name:        guestName(),
		ConnectedAt: time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	return s
}

// Join records the room and seat a connection claimed. A blank name keeps
// the guest name.
func (r *Registry) Join(id, name, roomID string, seat match.Seat) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	if name = strings.TrimSpace(name); name != "" {
		s.Name = name
	}
	s.RoomID = roomID
	s.Seat = seat
	r.sessions[id] = s

	return s, true
}

func (r *Registry) Get(id string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]

	return s, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}
