package match

import (
	"fmt"
	"time"
)

// Message types exchanged between participants and the relay.
const (
	TypeJoinRoom           = "join-room"
	TypeJoined             = "joined"
	TypeError              = "error"
	TypeStartGame          = "start-game"
	TypePlateClick         = "plate-click"
	TypePairSelected       = "pair-selected"
	TypeTokenPlaced        = "token-placed"
	TypeWrongAnswerSettled = "wrong-answer-settled"
	TypeTimeoutPenalty     = "timeout-penalty"
	TypeRoundDone          = "round-done"
	TypeTurnSwitch         = "turn-switch"
	TypeGameOver           = "game-over"
	TypeGameEndFinalize    = "game-end-finalize"
	TypeRoomClosed         = "room-closed"
	TypeLeaveRoom          = "leave-room"
	TypePeerLeft           = "peer-left"
)

// Message is the JSON envelope for every relay event. Which fields are
// meaningful depends on Type.
type Message struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	Seat   Seat   `json:"seatIndex"`

	Name string `json:"name,omitempty"` // join-room

	PlateIndex int  `json:"plateIndex"`      // plate-click / token-placed
	Round      int  `json:"round,omitempty"` // plate-click
	PlateA     int  `json:"plateA"`          // pair-selected
	PlateB     int  `json:"plateB"`          // pair-selected
	Correct    bool `json:"correct"`         // pair-selected
	CountSeat0 int  `json:"countSeat0"`      // token-placed
	CountSeat1 int  `json:"countSeat1"`      // token-placed

	CurrentTurn Seat `json:"currentTurn"` // turn-switch / start-game / joined

	Reason     Reason `json:"reason,omitempty"` // game-over
	WinnerSeat Seat   `json:"winnerSeat"`       // game-over
	LoserSeat  Seat   `json:"loserSeat"`        // game-over

	// start-game / joined
	PlateCount    int   `json:"plateCount,omitempty"`
	FirstSeat     Seat  `json:"firstPlayerIndex"`
	RoundWindowMs int64 `json:"roundWindowMs,omitempty"`
	MainWindowMs  int64 `json:"mainWindowMs,omitempty"`
	SettleMs      int64 `json:"settleMs,omitempty"`

	Ready bool `json:"ready,omitempty"` // joined: both seats are connected

	Error string `json:"message,omitempty"` // error
}

// Timing is the clock configuration shared with both participants.
type Timing struct {
	RoundWindow time.Duration
	MainWindow  time.Duration
	Settle      time.Duration
}

var DefaultTiming = Timing{
	RoundWindow: 30 * time.Second,
	MainWindow:  60 * time.Second,
	Settle:      5 * time.Second,
}

// Window is the countdown length for a turn in phase p.
func (t Timing) Window(p Phase) time.Duration {
	if p == PhaseMain {
		return t.MainWindow
	}

	return t.RoundWindow
}

// Timing extracts the clock configuration carried by start-game.
func (m Message) Timing() Timing {
	return Timing{
		RoundWindow: time.Duration(m.RoundWindowMs) * time.Millisecond,
		MainWindow:  time.Duration(m.MainWindowMs) * time.Millisecond,
		Settle:      time.Duration(m.SettleMs) * time.Millisecond,
	}
}

// WithTiming copies t into a start-game message.
func (m Message) WithTiming(t Timing) Message {
	m.RoundWindowMs = t.RoundWindow.Milliseconds()
	m.MainWindowMs = t.MainWindow.Milliseconds()
	m.SettleMs = t.Settle.Milliseconds()

	return m
}

// Event decodes the state-machine event carried by m.
func (m Message) Event() (Event, error) {
	switch m.Type {
	case TypeStartGame:
		return Start{Turn: m.CurrentTurn}, nil
	case TypePlateClick:
		return PlateClick{Seat: m.Seat, Plate: m.PlateIndex, Round: m.Round}, nil
	case TypePairSelected:
		return PairSelected{Seat: m.Seat, A: m.PlateA, B: m.PlateB, Correct: m.Correct}, nil
	case TypeTokenPlaced:
		return TokenPlaced{Seat: m.Seat, Plate: m.PlateIndex, Counts: [2]int{m.CountSeat0, m.CountSeat1}}, nil
	case TypeWrongAnswerSettled:
		return WrongAnswerSettled{Seat: m.Seat}, nil
	case TypeTimeoutPenalty:
		return TimeoutPenalty{Seat: m.Seat}, nil
	case TypeTurnSwitch:
		return TurnSwitch{Turn: m.CurrentTurn}, nil
	case TypeGameOver:
		return GameOver{Reason: m.Reason, Winner: m.WinnerSeat, Loser: m.LoserSeat}, nil
	}

	return nil, fmt.Errorf("%w: %q carries no game event", ErrUnknownEvent, m.Type)
}

// MessageFor encodes e for roomID. Local-only events (Toggle, Settled)
// have no wire form.
func MessageFor(roomID string, e Event) (Message, error) {
	m := Message{RoomID: roomID}

	switch e := e.(type) {
	case Start:
		m.Type = TypeStartGame
		m.CurrentTurn = e.Turn
	case PlateClick:
		m.Type = TypePlateClick
		m.Seat = e.Seat
		m.PlateIndex = e.Plate
		m.Round = e.Round
	case PairSelected:
		m.Type = TypePairSelected
		m.Seat = e.Seat
		m.PlateA = e.A
		m.PlateB = e.B
		m.Correct = e.Correct
	case TokenPlaced:
		m.Type = TypeTokenPlaced
		m.Seat = e.Seat
		m.PlateIndex = e.Plate
		m.CountSeat0 = e.Counts[0]
		m.CountSeat1 = e.Counts[1]
	case WrongAnswerSettled:
		m.Type = TypeWrongAnswerSettled
		m.Seat = e.Seat
	case TimeoutPenalty:
		m.Type = TypeTimeoutPenalty
		m.Seat = e.Seat
	case TurnSwitch:
		m.Type = TypeTurnSwitch
		m.CurrentTurn = e.Turn
	case GameOver:
		m.Type = TypeGameOver
		m.Reason = e.Reason
		m.WinnerSeat = e.Winner
		m.LoserSeat = e.Loser
	default:
		return Message{}, fmt.Errorf("%w: %T has no wire form", ErrUnknownEvent, e)
	}

	return m, nil
}

// Claims reports whether messages of type t name an acting seat that the
// relay must check against the sending connection.
func Claims(t string) bool {
	switch t {
	case TypePlateClick, TypePairSelected, TypeTokenPlaced, TypeWrongAnswerSettled,
		TypeTimeoutPenalty, TypeRoundDone, TypeGameOver, TypeLeaveRoom:
		return true
	}

	return false
}
