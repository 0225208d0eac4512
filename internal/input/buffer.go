// Package input implements server-side input mediation: per-(player, tick)
// buffering with sequence-number tie-breaking, rate limiting, and the
// validation pipeline that guards the buffer.
package input

import (
	"github.com/project-flowstate/flowstate/internal/protocol"
	"github.com/project-flowstate/flowstate/internal/sim"
)

// Config bounds what the buffer will admit.
type Config struct {
	MaxFutureTicks       uint64
	InputRateLimitPerSec uint32
	TickRateHz           uint32
}

// DefaultConfig returns the v0 parameters.
func DefaultConfig() Config {
	return Config{
		MaxFutureTicks:       120,
		InputRateLimitPerSec: 120,
		TickRateHz:           60,
	}
}

type slotKey struct {
	player sim.PlayerID
	tick   sim.Tick
}

// entry is the per-(player, tick) slot. selected always holds the command
// with the greatest input_seq seen so far; tied marks that the max was seen
// more than once.
type entry struct {
	selected     protocol.InputCmd
	maxInputSeq  uint64
	tied         bool
	receiveCount uint32
}

// Buffer admits one winning InputCmd per (player, tick).
type Buffer struct {
	cfg          Config
	perTickLimit uint32
	slots        map[slotKey]*entry
}

// NewBuffer creates a buffer. The per-tick admission limit is
// ceil(input_rate_limit_per_sec / tick_rate_hz).
func NewBuffer(cfg Config) *Buffer {
	limit := (cfg.InputRateLimitPerSec + cfg.TickRateHz - 1) / cfg.TickRateHz
	return &Buffer{
		cfg:          cfg,
		perTickLimit: limit,
		slots:        make(map[slotKey]*entry),
	}
}

// Config returns the buffer configuration.
func (b *Buffer) Config() Config { return b.cfg }

// TryBuffer admits an input for (player, cmd.Tick). Returns Accepted,
// AcceptedWithClamp, or DroppedRateLimit.
//
// Selection per slot: a greater input_seq replaces the winner and clears the
// tied flag; an equal input_seq sets the tied flag; a lesser one is ignored
// for selection but still counts against the rate limit.
func (b *Buffer) TryBuffer(player sim.PlayerID, cmd protocol.InputCmd) Result {
	key := slotKey{player: player, tick: sim.Tick(cmd.Tick)}

	if e, ok := b.slots[key]; ok {
		if e.receiveCount >= b.perTickLimit {
			return DroppedRateLimit
		}
		e.receiveCount++

		if cmd.InputSeq > e.maxInputSeq {
			e.maxInputSeq = cmd.InputSeq
			e.tied = false
			e.selected = cmd
		} else if cmd.InputSeq == e.maxInputSeq {
			e.tied = true
		}

		if clampCmd(&e.selected) {
			return AcceptedWithClamp
		}
		return Accepted
	}

	clamped := clampCmd(&cmd)
	b.slots[key] = &entry{
		selected:     cmd,
		maxInputSeq:  cmd.InputSeq,
		receiveCount: 1,
	}
	if clamped {
		return AcceptedWithClamp
	}
	return Accepted
}

// Take removes and returns the winning input for (player, tick). The second
// return is false when no slot exists or the max input_seq was tied — a tie
// means the buffer cannot canonically choose, so the caller falls back to
// last-known-intent.
func (b *Buffer) Take(player sim.PlayerID, tick sim.Tick) (protocol.InputCmd, bool) {
	key := slotKey{player: player, tick: tick}
	e, ok := b.slots[key]
	if !ok {
		return protocol.InputCmd{}, false
	}
	delete(b.slots, key)
	if e.tied {
		return protocol.InputCmd{}, false
	}
	return e.selected, true
}

// EvictBefore drops every slot targeting a tick before the given tick.
func (b *Buffer) EvictBefore(tick sim.Tick) {
	for key := range b.slots {
		if key.tick < tick {
			delete(b.slots, key)
		}
	}
}

func (b *Buffer) hasEntry(player sim.PlayerID, tick sim.Tick) bool {
	_, ok := b.slots[slotKey{player: player, tick: tick}]
	return ok
}

// clampCmd clamps the command's move_dir to unit magnitude in place and
// reports whether it changed anything.
func clampCmd(cmd *protocol.InputCmd) bool {
	if len(cmd.MoveDir) != 2 {
		return false
	}
	x, y := cmd.MoveDir[0], cmd.MoveDir[1]
	if x*x+y*y <= 1.0 {
		return false
	}
	dir := sim.ClampMoveDir(sim.Vec2{X: x, Y: y})
	cmd.MoveDir[0] = dir.X
	cmd.MoveDir[1] = dir.Y
	return true
}
