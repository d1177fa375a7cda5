package match

import "slices"

// Reduce applies e to s and returns the resulting state. On error the
// returned state is s unchanged.
func Reduce(s State, e Event) (State, error) {
	if s.Phase == PhaseGameOver {
		return s, ErrGameOver
	}

	if seat, ok := Actor(e); ok && !seat.Valid() {
		return s, ErrInvalidSeat
	}

	next := s.clone()

	var err error
	switch e := e.(type) {
	case Start:
		err = next.start(e)
	case PlateClick:
		err = next.plateClick(e)
	case Toggle:
		err = next.toggle(e)
	case PairSelected:
		err = next.pairSelected(e)
	case TokenPlaced:
		err = next.tokenPlaced(e)
	case WrongAnswerSettled:
		err = next.wrongAnswerSettled(e)
	case TimeoutPenalty:
		err = next.timeoutPenalty(e)
	case TurnSwitch:
		err = next.turnSwitch(e)
	case Settled:
		err = next.settled()
	case GameOver:
		err = next.gameOver(e)
	default:
		err = ErrUnknownEvent
	}
	if err != nil {
		return s, err
	}

	return next, nil
}

// ReduceAll folds events over s, stopping at the first rejection.
func ReduceAll(s State, events ...Event) (State, error) {
	var err error
	for _, e := range events {
		s, err = Reduce(s, e)
		if err != nil {
			return s, err
		}
	}

	return s, nil
}

func (s *State) start(e Start) error {
	if s.Phase != PhaseSetup {
		return ErrWrongPhase
	}
	if !e.Turn.Valid() {
		return ErrInvalidSeat
	}

	s.Phase = PhaseRound
	s.Turn = e.Turn
	s.Rounds = [2]int{}
	s.Held = [2]int{s.InitialHeld, s.InitialHeld}
	s.InFlight = false
	s.Closing = false

	return nil
}

func (s *State) actorGuard(phase Phase, seat Seat) error {
	switch {
	case s.Phase != phase:
		return ErrWrongPhase
	case seat != s.Turn:
		return ErrNotYourTurn
	case s.InFlight || s.Closing:
		return ErrInFlight
	}

	return nil
}

func (s *State) plateClick(e PlateClick) error {
	if err := s.actorGuard(PhaseRound, e.Seat); err != nil {
		return err
	}
	if !s.validPlate(e.Plate) {
		return ErrInvalidPlate
	}
	if s.Plates[e.Plate].Covered {
		return ErrPlateCovered
	}
	if e.Round != s.NextRound(e.Seat) || e.Round > s.LastRound() {
		return ErrRoundMismatch
	}

	s.Plates[e.Plate].Covered = true
	s.Plates[e.Plate].Tokens[e.Seat] += e.Round
	s.Rounds[e.Seat]++
	s.InFlight = true

	// Only the second seat's final action ends the phase; the first seat's
	// final action always leaves exactly two plates for it.
	if e.Seat == s.SecondSeat() && e.Round == s.LastRound() {
		for i := range s.Plates {
			s.Plates[i].Covered = true
		}
		s.Closing = true
	}

	return nil
}

func (s *State) mainGuard(seat Seat, step Step) error {
	if err := s.actorGuard(PhaseMain, seat); err != nil {
		return err
	}
	if s.Step != step {
		return ErrWrongStep
	}

	return nil
}

func (s *State) toggle(e Toggle) error {
	if err := s.mainGuard(e.Seat, StepChoose); err != nil {
		return err
	}
	if !s.validPlate(e.Plate) {
		return ErrInvalidPlate
	}

	if i := slices.Index(s.Selection, e.Plate); i >= 0 {
		s.Selection = slices.Delete(s.Selection, i, i+1)

		return nil
	}
	if len(s.Selection) < 2 {
		s.Selection = append(s.Selection, e.Plate)
	}

	return nil
}

func (s *State) pairSelected(e PairSelected) error {
	if err := s.mainGuard(e.Seat, StepChoose); err != nil {
		return err
	}
	if !s.validPlate(e.A) || !s.validPlate(e.B) || e.A == e.B {
		return ErrInvalidPlate
	}

	s.Selection = []int{e.A, e.B}

	if e.Correct {
		if s.Held[e.Seat] == 1 {
			s.finish(ReasonWin, e.Seat, e.Seat.Other())

			return nil
		}
		s.Step = StepPlace

		return nil
	}

	s.Step = StepReveal
	s.penalize(e.Seat)

	return nil
}

func (s *State) tokenPlaced(e TokenPlaced) error {
	if err := s.mainGuard(e.Seat, StepPlace); err != nil {
		return err
	}
	if !slices.Contains(s.Selection, e.Plate) {
		return ErrNotRevealed
	}

	s.Plates[e.Plate].Tokens = e.Counts
	s.Held[e.Seat]--
	s.Selection = nil
	s.Step = StepChoose
	s.InFlight = true

	return nil
}

func (s *State) wrongAnswerSettled(e WrongAnswerSettled) error {
	if err := s.mainGuard(e.Seat, StepReveal); err != nil {
		return err
	}

	s.Selection = nil
	s.Step = StepChoose
	s.InFlight = true

	return nil
}

func (s *State) timeoutPenalty(e TimeoutPenalty) error {
	if err := s.mainGuard(e.Seat, StepChoose); err != nil {
		return err
	}

	s.Selection = nil
	s.penalize(e.Seat)

	return nil
}

func (s *State) turnSwitch(e TurnSwitch) error {
	if s.Phase != PhaseRound && s.Phase != PhaseMain {
		return ErrWrongPhase
	}
	if !e.Turn.Valid() {
		return ErrInvalidSeat
	}

	s.Turn = e.Turn
	s.InFlight = false
	s.Selection = nil
	if s.Phase == PhaseMain {
		s.Step = StepChoose
	}

	return nil
}

func (s *State) settled() error {
	if s.Phase != PhaseRound || !s.Closing {
		return ErrWrongPhase
	}

	s.Phase = PhaseMain
	s.Closing = false
	s.Step = StepChoose
	s.Selection = nil

	return nil
}

func (s *State) gameOver(e GameOver) error {
	if s.Phase != PhaseRound && s.Phase != PhaseMain {
		return ErrWrongPhase
	}
	if !e.Winner.Valid() || !e.Loser.Valid() || e.Winner == e.Loser {
		return ErrInvalidSeat
	}
	if !e.Reason.Valid() {
		return ErrInvalidReason
	}

	s.finish(e.Reason, e.Winner, e.Loser)

	return nil
}

// penalize adds one held token to seat and ends the match once the pool
// reaches twice its initial size.
func (s *State) penalize(seat Seat) {
	s.Held[seat]++
	if s.Held[seat] >= 2*s.InitialHeld {
		s.finish(ReasonPenalty, seat.Other(), seat)
	}
}

func (s *State) finish(reason Reason, winner, loser Seat) {
	s.Phase = PhaseGameOver
	s.Reason = reason
	s.Winner = winner
	s.Loser = loser
	s.InFlight = false
	s.Closing = false
}
