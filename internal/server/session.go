package server

import (
	"github.com/project-flowstate/flowstate/internal/sim"
)

// SessionID is a server-internal session identifier, monotonic from 1.
type SessionID uint64

// Session represents a connected client. Sessions are weak back-references:
// the world owns the character, the session just knows which one.
type Session struct {
	ID                 SessionID
	PlayerID           sim.PlayerID
	ControlledEntityID sim.EntityID

	// WelcomeSent gates input admission: anything arriving before the
	// welcome is dropped.
	WelcomeSent bool

	// TargetTickFloor is the last floor broadcast to this session. Inputs
	// below it are rejected.
	TargetTickFloor sim.Tick

	// Diagnostics: last accepted input tick and sequence number.
	LastValidTick uint64
	LastInputSeq  uint64
}
