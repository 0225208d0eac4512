// Package protocol defines the wire messages shared by the server, the
// replay system, and clients, plus their binary codec. Messages use the
// protobuf wire format (length-delimited, field-tagged, little-endian
// fixed64 doubles) so any protobuf toolchain can read them.
package protocol

// Two logical channels carry these messages:
//
//   - Control (reliable, ordered): ClientHello, ServerWelcome, JoinBaseline.
//   - Realtime (unreliable, sequenced): InputCmd client→server, Snapshot
//     server→client.

// ClientHello opens the control channel.
type ClientHello struct {
	ProtocolVersion uint32
}

// ServerWelcome binds a session to a player and its controlled entity.
type ServerWelcome struct {
	TargetTickFloor    uint64
	TickRateHz         uint32
	PlayerID           uint32
	ControlledEntityID uint64
}

// JoinBaseline hands a joining client the pre-match world view.
type JoinBaseline struct {
	Tick     uint64
	Entities []EntitySnapshot
	Digest   uint64
}

// InputCmd is a client's movement intent for a target tick. The player id is
// never on the wire; the server binds it from the session.
type InputCmd struct {
	Tick     uint64
	InputSeq uint64
	MoveDir  []float64
}

// Snapshot is the authoritative post-step world view broadcast every tick.
type Snapshot struct {
	Tick            uint64
	Entities        []EntitySnapshot
	Digest          uint64
	TargetTickFloor uint64
}

// EntitySnapshot is the serialized state of one entity. Position and
// velocity are length-2 [x, y].
type EntitySnapshot struct {
	EntityID uint64
	Position []float64
	Velocity []float64
}

// AppliedInput is the canonical input truth the server chose for one
// (player, tick). IsFallback marks last-known-intent substitution.
type AppliedInput struct {
	Tick       uint64
	PlayerID   uint32
	MoveDir    []float64
	IsFallback bool
}

// BuildFingerprint identifies the binary that produced an artifact.
type BuildFingerprint struct {
	BinarySHA256 string
	TargetTriple string
	Profile      string
	VCSCommit    string
}

// PlayerEntityMapping records which entity a player controls.
type PlayerEntityMapping struct {
	PlayerID uint32
	EntityID uint64
}

// TuningParameter is a named simulation constant snapped into an artifact.
type TuningParameter struct {
	Key   string
	Value float64
}

// EndReason records why a match finished.
type EndReason uint32

const (
	EndReasonUnknown EndReason = iota
	EndReasonComplete
	EndReasonDisconnect
	EndReasonAborted
)

func (r EndReason) String() string {
	switch r {
	case EndReasonComplete:
		return "complete"
	case EndReasonDisconnect:
		return "disconnect"
	case EndReasonAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ReplayFormatVersion is the current artifact format version.
const ReplayFormatVersion = 1

// ReplayArtifact is the self-contained record of a match: everything needed
// to re-derive the final digest on the same build.
type ReplayArtifact struct {
	ReplayFormatVersion uint32
	InitialBaseline     *JoinBaseline
	Seed                uint64
	RNGAlgorithm        string
	TickRateHz          uint32
	StateDigestAlgoID   string
	EntitySpawnOrder    []uint32
	PlayerEntityMapping []PlayerEntityMapping
	TuningParameters    []TuningParameter
	Inputs              []AppliedInput
	BuildFingerprint    *BuildFingerprint
	FinalDigest         uint64
	CheckpointTick      uint64
	EndReason           EndReason
	TestMode            bool
	TestPlayerIDs       []uint32
}
