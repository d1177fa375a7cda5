package peer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/Seednode/platematch/match"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

var (
	ErrJoinRejected   = errors.New("join rejected")
	ErrConnectionLost = errors.New("connection lost")
)

type Config struct {
	URL    string // relay websocket endpoint
	RoomID string
	Seat   match.Seat
	Name   string

	// Host sends start-game once both seats are connected.
	Host bool
	// Think delays each decision; zero acts immediately.
	Think time.Duration

	Strategy Strategy
	Rand     *rand.Rand
	Dialer   *websocket.Dialer
	Logf     func(format string, args ...any)
}

// Outcome is how a Run ended.
type Outcome struct {
	Over     bool         `json:"over"`
	Reason   match.Reason `json:"reason,omitempty"`
	Winner   match.Seat   `json:"winner"`
	Loser    match.Seat   `json:"loser"`
	PeerLeft bool         `json:"peerLeft"`
	State    match.State  `json:"state"`
}

func (o Outcome) Won(seat match.Seat) bool {
	return o.Over && o.Winner == seat
}

// Peer is one seat's participant. All state is owned by the Run loop.
type Peer struct {
	cfg  Config
	conn *websocket.Conn

	state  match.State
	timing match.Timing

	joined    bool
	startSent bool
	outcome   Outcome

	turn   *match.Countdown
	settle *match.Countdown
	think  *match.Countdown
}

func New(cfg Config) *Peer {
	if cfg.Strategy == nil {
		cfg.Strategy = Pass{}
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logf == nil {
		cfg.Logf = func(string, ...any) {}
	}

	return &Peer{
		cfg:    cfg,
		state:  match.NewState(match.DefaultPlates, match.Seat0),
		timing: match.DefaultTiming,
		turn:   match.NewCountdown(),
		settle: match.NewCountdown(),
		think:  match.NewCountdown(),
	}
}

// Run joins the room and plays until the room closes, the opponent leaves,
// the connection drops or ctx is cancelled.
func (p *Peer) Run(ctx context.Context) (Outcome, error) {
	conn, _, err := p.cfg.Dialer.DialContext(ctx, p.cfg.URL, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("dial relay: %w", err)
	}
	p.conn = conn
	defer conn.Close()
	defer p.stopTimers()

	in := make(chan match.Message, 16)
	errc := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go p.readLoop(in, errc, done)

	if err := p.send(match.Message{
		Type:   match.TypeJoinRoom,
		RoomID: p.cfg.RoomID,
		Seat:   p.cfg.Seat,
		Name:   p.cfg.Name,
	}); err != nil {
		return Outcome{}, err
	}

	for {
		var err error

		select {
		case <-ctx.Done():
			_ = p.send(match.Message{Type: match.TypeLeaveRoom, RoomID: p.cfg.RoomID, Seat: p.cfg.Seat})

			return p.result(), ctx.Err()

		case err := <-errc:
			if p.outcome.Over {
				return p.result(), nil
			}

			return p.result(), fmt.Errorf("%w: %w", ErrConnectionLost, err)

		case m := <-in:
			var finished bool
			finished, err = p.handle(m)
			if finished {
				return p.result(), nil
			}

		case t := <-p.turn.C:
			if p.turn.Live(t) {
				err = p.expire()
			}

		case t := <-p.settle.C:
			if p.settle.Live(t) {
				if p.apply(match.Settled{}) == nil {
					err = p.act()
				}
			}

		case t := <-p.think.C:
			if p.think.Live(t) {
				err = p.decide()
			}
		}

		if err != nil {
			return p.result(), err
		}
	}
}

func (p *Peer) result() Outcome {
	o := p.outcome
	o.State = p.state

	return o
}

func (p *Peer) readLoop(in chan<- match.Message, errc chan<- error, done <-chan struct{}) {
	for {
		var m match.Message
		if err := p.conn.ReadJSON(&m); err != nil {
			errc <- err

			return
		}

		select {
		case in <- m:
		case <-done:
			return
		}
	}
}

func (p *Peer) send(m match.Message) error {
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return p.conn.WriteJSON(m)
}

// emit sends a local event to the relay on behalf of this seat.
func (p *Peer) emit(e match.Event) error {
	m, err := match.MessageFor(p.cfg.RoomID, e)
	if err != nil {
		return err
	}
	m.Seat = p.cfg.Seat

	return p.send(m)
}

func (p *Peer) roundDone() error {
	return p.send(match.Message{Type: match.TypeRoundDone, RoomID: p.cfg.RoomID, Seat: p.cfg.Seat})
}

// handle processes one relay message and reports whether the session ended.
func (p *Peer) handle(m match.Message) (bool, error) {
	switch m.Type {
	case match.TypeError:
		if !p.joined {
			return false, fmt.Errorf("%w: %s", ErrJoinRejected, m.Error)
		}
		p.cfg.Logf("relay error: %s", m.Error)

		return false, nil

	case match.TypeJoined:
		if m.RoomID != p.cfg.RoomID {
			return false, nil
		}
		if m.Seat == p.cfg.Seat {
			p.joined = true
		}
		if p.cfg.Host && m.Ready && !p.startSent && p.state.Phase == match.PhaseSetup {
			p.startSent = true

			return false, p.send(match.Message{Type: match.TypeStartGame, RoomID: p.cfg.RoomID, Seat: p.cfg.Seat})
		}

		return false, nil

	case match.TypeRoomClosed:
		return m.RoomID == p.cfg.RoomID, nil

	case match.TypePeerLeft:
		if m.Seat == p.cfg.Seat || m.RoomID != p.cfg.RoomID {
			return false, nil
		}
		p.outcome.PeerLeft = true

		return true, nil

	case match.TypeStartGame:
		if p.state.Phase != match.PhaseSetup || m.RoomID != p.cfg.RoomID {
			return false, nil
		}
		p.timing = m.Timing()
		if p.timing.RoundWindow <= 0 || p.timing.MainWindow <= 0 {
			p.timing = match.DefaultTiming
		}
		p.state = match.NewState(match.ClampPlateCount(float64(m.PlateCount)), m.FirstSeat)
	}

	if m.RoomID != p.cfg.RoomID {
		p.cfg.Logf("dropped %s for room %q", m.Type, m.RoomID)

		return false, nil
	}

	// The relay broadcasts to the whole room, sender included.
	if match.Claims(m.Type) && m.Seat == p.cfg.Seat {
		return false, nil
	}

	e, err := m.Event()
	if err != nil {
		p.cfg.Logf("dropped %s: %v", m.Type, err)

		return false, nil
	}

	if err := p.apply(e); err != nil {
		p.cfg.Logf("dropped %s: %v", m.Type, err)

		return false, nil
	}

	return false, p.act()
}

// apply reduces e into the local state and keeps the countdowns in step
// with the result.
func (p *Peer) apply(e match.Event) error {
	prev := p.state

	next, err := match.Reduce(prev, e)
	if err != nil {
		return err
	}
	p.state = next

	switch e.(type) {
	case match.Start, match.TurnSwitch:
		if !next.Closing {
			p.armTurn()
		}
	case match.TimeoutPenalty:
		p.armTurn()
	case match.PlateClick, match.PairSelected:
		p.turn.Cancel()
		p.think.Cancel()
		if next.Closing && !prev.Closing {
			p.settle.Arm(p.timing.Settle)
		}
	case match.Settled:
		if !next.InFlight {
			p.armTurn()
		}
	}

	if next.Over() && !prev.Over() {
		p.stopTimers()
		p.outcome = Outcome{
			Over:   true,
			Reason: next.Reason,
			Winner: next.Winner,
			Loser:  next.Loser,
		}
		p.cfg.Logf("game over: seat %d wins by %s", next.Winner, next.Reason)
	}

	return nil
}

func (p *Peer) armTurn() {
	p.turn.Arm(p.timing.Window(p.state.Phase))
}

func (p *Peer) stopTimers() {
	p.turn.Cancel()
	p.settle.Cancel()
	p.think.Cancel()
}

// act schedules a decision when this seat holds the turn.
func (p *Peer) act() error {
	if !p.state.CanAct(p.cfg.Seat) {
		return nil
	}
	if p.cfg.Think <= 0 {
		return p.decide()
	}
	if !p.think.Armed() {
		p.think.Arm(p.cfg.Think)
	}

	return nil
}

func (p *Peer) decide() error {
	if !p.state.CanAct(p.cfg.Seat) {
		return nil
	}

	switch p.state.Phase {
	case match.PhaseRound:
		plate, ok := p.cfg.Strategy.Plate(p.state, p.cfg.Seat)
		if !ok {
			return nil
		}

		return p.clickPlate(plate)

	case match.PhaseMain:
		a, b, ok := p.cfg.Strategy.Pair(p.state, p.cfg.Seat)
		if !ok {
			return nil
		}

		return p.guess(a, b)
	}

	return nil
}

func (p *Peer) clickPlate(plate int) error {
	e := match.PlateClick{Seat: p.cfg.Seat, Plate: plate, Round: p.state.NextRound(p.cfg.Seat)}
	if err := p.apply(e); err != nil {
		p.cfg.Logf("strategy chose plate %d: %v", plate, err)

		return nil
	}

	if err := p.emit(e); err != nil {
		return err
	}

	return p.roundDone()
}

func (p *Peer) guess(a, b int) error {
	for _, plate := range []int{a, b} {
		if err := p.apply(match.Toggle{Seat: p.cfg.Seat, Plate: plate}); err != nil {
			p.cfg.Logf("strategy chose plate %d: %v", plate, err)

			return nil
		}
	}

	e := match.PairSelected{Seat: p.cfg.Seat, A: a, B: b, Correct: p.state.Matches(a, b)}
	if err := p.apply(e); err != nil {
		p.cfg.Logf("strategy chose pair %d/%d: %v", a, b, err)

		return nil
	}
	if err := p.emit(e); err != nil {
		return err
	}

	if p.state.Over() {
		return p.emitGameOver()
	}

	var follow match.Event
	switch p.state.Step {
	case match.StepPlace:
		plate := p.cfg.Strategy.Place(p.state, p.cfg.Seat, a, b)
		if plate != a && plate != b {
			plate = a
		}
		follow = match.TokenPlaced{Seat: p.cfg.Seat, Plate: plate, Counts: p.state.PlacedCounts(p.cfg.Seat, plate)}
	case match.StepReveal:
		follow = match.WrongAnswerSettled{Seat: p.cfg.Seat}
	}

	if err := p.apply(follow); err != nil {
		return err
	}
	if err := p.emit(follow); err != nil {
		return err
	}

	return p.roundDone()
}

func (p *Peer) emitGameOver() error {
	return p.emit(match.GameOver{Reason: p.state.Reason, Winner: p.state.Winner, Loser: p.state.Loser})
}

// expire handles a turn countdown running out. Only the seat holding the
// turn acts on it.
func (p *Peer) expire() error {
	if !p.state.CanAct(p.cfg.Seat) {
		return nil
	}
	p.think.Cancel()

	switch p.state.Phase {
	case match.PhaseRound:
		free := p.state.Uncovered()
		if len(free) == 0 {
			return nil
		}
		p.cfg.Logf("round window expired, forcing a plate")

		return p.clickPlate(free[p.cfg.Rand.IntN(len(free))])

	case match.PhaseMain:
		e := match.TimeoutPenalty{Seat: p.cfg.Seat}
		if err := p.apply(e); err != nil {
			return nil
		}
		if err := p.emit(e); err != nil {
			return err
		}
		if p.state.Over() {
			return p.emitGameOver()
		}

		return p.act()
	}

	return nil
}
