package input

import (
	"math"

	"github.com/project-flowstate/flowstate/internal/protocol"
	"github.com/project-flowstate/flowstate/internal/sim"
)

// Result classifies what happened to a received input. The set is closed;
// every drop reason the server can produce is listed here.
type Result int

const (
	Accepted Result = iota
	AcceptedWithClamp
	DroppedNaNInf
	DroppedBelowFloor
	DroppedLate
	DroppedTooFuture
	DroppedRateLimit
	DroppedPreWelcome
	DroppedUnknownSession
)

// IsAccepted reports whether the input made it into the buffer.
func (r Result) IsAccepted() bool {
	return r == Accepted || r == AcceptedWithClamp
}

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case AcceptedWithClamp:
		return "accepted_with_clamp"
	case DroppedNaNInf:
		return "dropped_nan_inf"
	case DroppedBelowFloor:
		return "dropped_below_floor"
	case DroppedLate:
		return "dropped_late"
	case DroppedTooFuture:
		return "dropped_too_future"
	case DroppedRateLimit:
		return "dropped_rate_limit"
	case DroppedPreWelcome:
		return "dropped_pre_welcome"
	case DroppedUnknownSession:
		return "dropped_unknown_session"
	default:
		return "unknown"
	}
}

// Validate runs the admission pipeline for one input. Checks run in order
// and the first failure short-circuits:
//
//  1. move_dir must be [x, y] with finite components.
//  2. tick below the session's target tick floor → drop.
//  3. tick below the current tick → drop.
//  4. tick beyond current + max_future_ticks → drop.
//  5. buffer admission (rate limit, seq selection, clamp).
//
// The player id comes from the session, never from the wire.
func Validate(cmd protocol.InputCmd, currentTick, targetTickFloor sim.Tick, buf *Buffer, player sim.PlayerID) Result {
	if len(cmd.MoveDir) != 2 {
		return DroppedNaNInf
	}
	x, y := cmd.MoveDir[0], cmd.MoveDir[1]
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return DroppedNaNInf
	}

	if sim.Tick(cmd.Tick) < targetTickFloor {
		return DroppedBelowFloor
	}
	if sim.Tick(cmd.Tick) < currentTick {
		return DroppedLate
	}
	if cmd.Tick > uint64(currentTick)+buf.cfg.MaxFutureTicks {
		return DroppedTooFuture
	}

	return buf.TryBuffer(player, cmd)
}
