/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package results records finished matches.
package results

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/google/uuid"
)

var ErrInvalidResult = errors.New("invalid result")

// Result is one finished match as reported by the relay.
type Result struct {
	ID         string       `json:"id"`
	RoomID     string       `json:"roomId"`
	Reason     match.Reason `json:"reason"`
	WinnerSeat match.Seat   `json:"winnerSeat"`
	LoserSeat  match.Seat   `json:"loserSeat"`
	WinnerID   string       `json:"winnerId"`
	WinnerName string       `json:"winnerName"`
	LoserID    string       `json:"loserId"`
	LoserName  string       `json:"loserName"`
	PlateCount int          `json:"plateCount"`
	FinishedAt time.Time    `json:"finishedAt"`
}

func (r Result) validate() error {
	switch {
	case r.RoomID == "":
		return fmt.Errorf("%w: missing room id", ErrInvalidResult)
	case !r.Reason.Valid():
		return fmt.Errorf("%w: unknown reason %q", ErrInvalidResult, r.Reason)
	case !r.WinnerSeat.Valid() || !r.LoserSeat.Valid() || r.WinnerSeat == r.LoserSeat:
		return fmt.Errorf("%w: seats %d/%d", ErrInvalidResult, r.WinnerSeat, r.LoserSeat)
	}

	return nil
}

// prepare validates r and fills in the id and timestamp when absent.
func prepare(r Result) (Result, error) {
	if err := r.validate(); err != nil {
		return Result{}, err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}

	return r, nil
}

// Log is an append-only record of finished matches.
type Log interface {
	Save(ctx context.Context, r Result) (Result, error)
	// Recent returns at most limit results, newest first.
	Recent(ctx context.Context, limit int) ([]Result, error)
	Close()
}

// Open returns a PostgreSQL log for a non-empty url and an in-memory log
// otherwise.
func Open(ctx context.Context, url string) (Log, error) {
	if url == "" {
		return NewMemory(), nil
	}

	return NewPostgres(ctx, url)
}

type Memory struct {
	mu      sync.RWMutex
	results []Result
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Save(_ context.Context, r Result) (Result, error) {
	r, err := prepare(r)
	if err != nil {
		return Result{}, err
	}

	m.mu.Lock()
	m.results = append(m.results, r)
	m.mu.Unlock()

	return r, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(max(limit, 0), len(m.results))
	out := make([]Result, 0, n)
	for _, r := range slices.Backward(m.results) {
		if len(out) == n {
			break
		}
		out = append(out, r)
	}

	return out, nil
}

func (m *Memory) Close() {}
