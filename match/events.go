package match

// Event is the closed set of inputs accepted by Reduce.
type Event interface {
	event()
}

// Start moves setup into the round phase. Turn mirrors the room's
// current-turn pointer.
type Start struct {
	Turn Seat
}

// PlateClick covers an uncovered plate during the round phase and places
// Round tokens on it for Seat.
type PlateClick struct {
	Seat  Seat
	Plate int
	Round int
}

// Toggle selects or deselects a plate for the acting player in the main
// phase. It never travels over the wire.
type Toggle struct {
	Seat  Seat
	Plate int
}

// PairSelected resolves a main-phase guess. Correct is computed by the
// acting participant and trusted by the others.
type PairSelected struct {
	Seat    Seat
	A, B    int
	Correct bool
}

// TokenPlaced follows a correct guess. Counts are the absolute per-seat
// token counts of Plate after the placement.
type TokenPlaced struct {
	Seat   Seat
	Plate  int
	Counts [2]int
}

// WrongAnswerSettled closes the revealed pair after a wrong guess.
type WrongAnswerSettled struct {
	Seat Seat
}

// TimeoutPenalty is a main-phase countdown expiry for Seat.
type TimeoutPenalty struct {
	Seat Seat
}

// TurnSwitch carries the relay's authoritative turn pointer.
type TurnSwitch struct {
	Turn Seat
}

// Settled ends the pause that follows the terminal round.
type Settled struct{}

// GameOver is a terminal notice from the participant that detected it.
type GameOver struct {
	Reason Reason
	Winner Seat
	Loser  Seat
}

func (Start) event()              {}
func (PlateClick) event()         {}
func (Toggle) event()             {}
func (PairSelected) event()       {}
func (TokenPlaced) event()        {}
func (WrongAnswerSettled) event() {}
func (TimeoutPenalty) event()     {}
func (TurnSwitch) event()         {}
func (Settled) event()            {}
func (GameOver) event()           {}

// Actor returns the seat an event claims to come from. Events issued by
// the relay or the local clock have no actor.
func Actor(e Event) (Seat, bool) {
	switch e := e.(type) {
	case PlateClick:
		return e.Seat, true
	case Toggle:
		return e.Seat, true
	case PairSelected:
		return e.Seat, true
	case TokenPlaced:
		return e.Seat, true
	case WrongAnswerSettled:
		return e.Seat, true
	case TimeoutPenalty:
		return e.Seat, true
	}

	return 0, false
}
