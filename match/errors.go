package match

import (
	"errors"
	"fmt"
)

// ErrIllegal is wrapped by every rejection Reduce can return. Callers
// receiving a peer's event drop it silently when errors.Is(err, ErrIllegal).
var ErrIllegal = errors.New("illegal action")

var (
	ErrWrongPhase    = fmt.Errorf("%w: not allowed in this phase", ErrIllegal)
	ErrNotYourTurn   = fmt.Errorf("%w: seat does not hold the turn", ErrIllegal)
	ErrInFlight      = fmt.Errorf("%w: previous action still in flight", ErrIllegal)
	ErrInvalidSeat   = fmt.Errorf("%w: invalid seat", ErrIllegal)
	ErrInvalidPlate  = fmt.Errorf("%w: invalid plate", ErrIllegal)
	ErrPlateCovered  = fmt.Errorf("%w: plate already covered", ErrIllegal)
	ErrRoundMismatch = fmt.Errorf("%w: unexpected round index", ErrIllegal)
	ErrWrongStep     = fmt.Errorf("%w: not allowed in this step", ErrIllegal)
	ErrNotRevealed   = fmt.Errorf("%w: plate is not part of the revealed pair", ErrIllegal)
	ErrGameOver      = fmt.Errorf("%w: match is over", ErrIllegal)
	ErrInvalidReason = fmt.Errorf("%w: unknown game-over reason", ErrIllegal)
	ErrUnknownEvent  = fmt.Errorf("%w: unknown event", ErrIllegal)
)
