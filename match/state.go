/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package match holds the turn and phase state machine for a two-seat
// plate-matching game. Every participant (and optionally the relay) runs
// its own copy; copies stay convergent because they apply identical event
// sequences through the same pure Reduce function.
package match

import (
	"math"
	"slices"
)

const (
	MinPlates     = 10
	MaxPlates     = 20
	DefaultPlates = MinPlates
)

// Seat identifies one of the two players in a room.
type Seat int

const (
	Seat0 Seat = 0
	Seat1 Seat = 1
)

func (s Seat) Valid() bool {
	return s == Seat0 || s == Seat1
}

func (s Seat) Other() Seat {
	return 1 - s
}

type Phase string

const (
	PhaseSetup    Phase = "setup"
	PhaseRound    Phase = "round"
	PhaseMain     Phase = "main"
	PhaseGameOver Phase = "game_over"
)

// Step is the sub-state of the acting player inside the main phase.
type Step string

const (
	StepChoose Step = "choose" // picking two plates
	StepPlace  Step = "place"  // correct guess, placing one held token
	StepReveal Step = "reveal" // wrong guess, plates shown until settled
)

type Reason string

const (
	ReasonWin     Reason = "win"
	ReasonPenalty Reason = "penalty"
)

func (r Reason) Valid() bool {
	return r == ReasonWin || r == ReasonPenalty
}

// Plate is one slot of the ring. Tokens is indexed by seat.
type Plate struct {
	Covered bool   `json:"covered"`
	Tokens  [2]int `json:"tokens"`
}

func (p Plate) Total() int {
	return p.Tokens[0] + p.Tokens[1]
}

// State is one participant's view of a match. It is a plain value: Reduce
// never mutates its input.
type State struct {
	Phase       Phase   `json:"phase"`
	PlateCount  int     `json:"plateCount"`
	FirstSeat   Seat    `json:"firstSeat"`
	Turn        Seat    `json:"turn"`
	Plates      []Plate `json:"plates"`
	Rounds      [2]int  `json:"rounds"`
	Held        [2]int  `json:"held"`
	InitialHeld int     `json:"initialHeld"`

	// InFlight is set once the acting player has finished and the
	// relay's turn-switch has not arrived yet.
	InFlight bool `json:"inFlight"`
	// Closing is set between the terminal round and the settle signal.
	Closing bool `json:"closing"`

	Step      Step  `json:"step,omitempty"`
	Selection []int `json:"selection,omitempty"`

	Reason Reason `json:"reason,omitempty"`
	Winner Seat   `json:"winner"`
	Loser  Seat   `json:"loser"`
}

// NewState returns a match waiting in setup. plateCount must already be
// normalized with ClampPlateCount.
func NewState(plateCount int, firstSeat Seat) State {
	return State{
		Phase:       PhaseSetup,
		PlateCount:  plateCount,
		FirstSeat:   firstSeat,
		Turn:        firstSeat,
		Plates:      make([]Plate, plateCount),
		InitialHeld: InitialHeld(plateCount),
	}
}

// ClampPlateCount rounds n to the nearest even value in [MinPlates, MaxPlates].
func ClampPlateCount(n float64) int {
	c := min(MaxPlates, max(MinPlates, int(math.Round(n))))
	if (c-MinPlates)%2 != 0 {
		c++
	}

	return c
}

func InitialHeld(plateCount int) int {
	return plateCount / 2
}

// LastRound is the terminal round index for a ring of plateCount plates.
func LastRound(plateCount int) int {
	return plateCount/2 - 1
}

func (s State) LastRound() int {
	return LastRound(s.PlateCount)
}

// NextRound is the amount seat places on its next round-phase action.
func (s State) NextRound(seat Seat) int {
	return s.Rounds[seat] + 1
}

func (s State) SecondSeat() Seat {
	return s.FirstSeat.Other()
}

func (s State) Over() bool {
	return s.Phase == PhaseGameOver
}

// Uncovered lists plates still available in the round phase.
func (s State) Uncovered() []int {
	var out []int
	for i, p := range s.Plates {
		if !p.Covered {
			out = append(out, i)
		}
	}

	return out
}

// Matches reports whether plates a and b hold equal total token counts.
func (s State) Matches(a, b int) bool {
	return s.Plates[a].Total() == s.Plates[b].Total()
}

// PlacedCounts returns plate's per-seat counts after seat adds one token.
func (s State) PlacedCounts(seat Seat, plate int) [2]int {
	counts := s.Plates[plate].Tokens
	counts[seat]++

	return counts
}

// CanAct reports whether seat may take an action right now.
func (s State) CanAct(seat Seat) bool {
	if s.Phase != PhaseRound && s.Phase != PhaseMain {
		return false
	}

	return seat == s.Turn && !s.InFlight && !s.Closing
}

func (s State) validPlate(i int) bool {
	return i >= 0 && i < len(s.Plates)
}

func (s State) clone() State {
	c := s
	c.Plates = slices.Clone(s.Plates)
	c.Selection = slices.Clone(s.Selection)

	return c
}
