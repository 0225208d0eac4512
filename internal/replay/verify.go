package replay

import (
	"fmt"
	"sort"

	"github.com/project-flowstate/flowstate/internal/protocol"
	"github.com/project-flowstate/flowstate/internal/sim"
)

// ErrorCode classifies verification failures. The set is closed; callers
// switch on it rather than matching message text.
type ErrorCode int

const (
	CodeBuildMismatch ErrorCode = iota
	CodeMissingBaseline
	CodeInitializationAnchorMismatch
	CodeSpawnReconstructionMismatch
	CodeInputStreamInvalid
	CodeFinalDigestMismatch
	CodeCheckpointTickMismatch
	CodeInvalidFormat
)

func (c ErrorCode) String() string {
	switch c {
	case CodeBuildMismatch:
		return "BuildMismatch"
	case CodeMissingBaseline:
		return "MissingBaseline"
	case CodeInitializationAnchorMismatch:
		return "InitializationAnchorMismatch"
	case CodeSpawnReconstructionMismatch:
		return "SpawnReconstructionMismatch"
	case CodeInputStreamInvalid:
		return "InputStreamInvalid"
	case CodeFinalDigestMismatch:
		return "FinalDigestMismatch"
	case CodeCheckpointTickMismatch:
		return "CheckpointTickMismatch"
	case CodeInvalidFormat:
		return "InvalidFormat"
	default:
		return "Unknown"
	}
}

// VerifyError is a structured verification failure.
type VerifyError struct {
	Code   ErrorCode
	Detail string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("replay verify: %s: %s", e.Code, e.Detail)
}

func verr(code ErrorCode, format string, args ...any) *VerifyError {
	return &VerifyError{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// VerifyOptions controls the build scope check.
type VerifyOptions struct {
	// CurrentBuild is the fingerprint of the verifying binary. Nil skips the
	// build scope check entirely.
	CurrentBuild *protocol.BuildFingerprint
	// StrictBuildCheck turns a fingerprint mismatch into a failure instead
	// of a warning.
	StrictBuildCheck bool
}

// VerifyResult carries non-fatal observations from a successful or
// non-strict verification.
type VerifyResult struct {
	Warnings []string
}

// Verify re-executes an artifact and proves its recorded final digest.
//
// The pipeline: build scope check, input-stream integrity, world
// reconstruction, spawn-order replay with entity-id checks, baseline anchor
// check, tick-by-tick replay, and the checkpoint/digest post-checks. Any
// failure returns a *VerifyError; a nil error means the artifact reproduces
// bit-identically.
func Verify(art *protocol.ReplayArtifact, opts VerifyOptions) (VerifyResult, error) {
	var res VerifyResult

	if art.ReplayFormatVersion != protocol.ReplayFormatVersion {
		return res, verr(CodeInvalidFormat, "unsupported format version %d", art.ReplayFormatVersion)
	}
	if art.StateDigestAlgoID != sim.StateDigestAlgoID {
		return res, verr(CodeInvalidFormat, "unsupported digest algorithm %q", art.StateDigestAlgoID)
	}
	if art.TickRateHz == 0 {
		return res, verr(CodeInvalidFormat, "tick rate is zero")
	}
	if art.InitialBaseline == nil {
		return res, verr(CodeMissingBaseline, "artifact has no initial baseline")
	}

	// Build scope. The commit field is metadata and never gates.
	if opts.CurrentBuild != nil && art.BuildFingerprint != nil &&
		!FingerprintsMatch(opts.CurrentBuild, art.BuildFingerprint) {
		if opts.StrictBuildCheck {
			return res, verr(CodeBuildMismatch,
				"artifact built by %s/%s/%s, verifier is %s/%s/%s",
				art.BuildFingerprint.BinarySHA256, art.BuildFingerprint.TargetTriple, art.BuildFingerprint.Profile,
				opts.CurrentBuild.BinarySHA256, opts.CurrentBuild.TargetTriple, opts.CurrentBuild.Profile)
		}
		res.Warnings = append(res.Warnings,
			"build fingerprint differs from the verifying binary; replay is only guaranteed within one build")
	}

	initialTick := art.InitialBaseline.Tick
	if art.CheckpointTick < initialTick {
		return res, verr(CodeInvalidFormat, "checkpoint tick %d before baseline tick %d", art.CheckpointTick, initialTick)
	}

	// Input-stream integrity: exactly one AppliedInput per (player, tick)
	// over [initialTick, checkpoint), no strays outside the mapping or the
	// tick range.
	players := make(map[uint32]uint64, len(art.PlayerEntityMapping))
	for _, pe := range art.PlayerEntityMapping {
		if pe.PlayerID > 255 {
			return res, verr(CodeInputStreamInvalid, "player id %d exceeds 8-bit range", pe.PlayerID)
		}
		if _, dup := players[pe.PlayerID]; dup {
			return res, verr(CodeInputStreamInvalid, "duplicate mapping for player %d", pe.PlayerID)
		}
		players[pe.PlayerID] = pe.EntityID
	}

	type slot struct {
		player uint32
		tick   uint64
	}
	seen := make(map[slot]int, len(art.Inputs))
	for i := range art.Inputs {
		in := &art.Inputs[i]
		if _, ok := players[in.PlayerID]; !ok {
			return res, verr(CodeInputStreamInvalid, "input references unmapped player %d", in.PlayerID)
		}
		if in.Tick < initialTick || in.Tick >= art.CheckpointTick {
			return res, verr(CodeInputStreamInvalid, "input tick %d outside [%d, %d)", in.Tick, initialTick, art.CheckpointTick)
		}
		if len(in.MoveDir) != 2 {
			return res, verr(CodeInputStreamInvalid, "input for player %d tick %d has move_dir length %d", in.PlayerID, in.Tick, len(in.MoveDir))
		}
		key := slot{player: in.PlayerID, tick: in.Tick}
		seen[key]++
		if seen[key] > 1 {
			return res, verr(CodeInputStreamInvalid, "duplicate input for player %d tick %d", in.PlayerID, in.Tick)
		}
	}
	expected := uint64(len(players)) * (art.CheckpointTick - initialTick)
	if uint64(len(seen)) != expected {
		return res, verr(CodeInputStreamInvalid, "have %d applied inputs, expected %d", len(seen), expected)
	}

	// Reconstruct the world and replay the recorded spawns, checking that
	// each allocation lands on the mapping's entity id.
	world, err := sim.NewWorld(art.Seed, art.TickRateHz)
	if err != nil {
		return res, verr(CodeInvalidFormat, "reconstruct world: %v", err)
	}
	for _, pid := range art.EntitySpawnOrder {
		want, ok := players[pid]
		if !ok {
			return res, verr(CodeSpawnReconstructionMismatch, "spawn order references unmapped player %d", pid)
		}
		got := world.SpawnCharacter(sim.PlayerID(pid))
		if uint64(got) != want {
			return res, verr(CodeSpawnReconstructionMismatch, "player %d spawned entity %d, mapping expects %d", pid, got, want)
		}
	}

	// Anchor: the reconstructed pre-start view must match the recorded one.
	if world.Baseline().Digest != art.InitialBaseline.Digest {
		return res, verr(CodeInitializationAnchorMismatch,
			"reconstructed baseline digest %x != recorded %x", world.Baseline().Digest, art.InitialBaseline.Digest)
	}

	// Replay. Inputs are grouped by tick and sorted by player id: a correct
	// recorder writes spawn order, which is not guaranteed to be player-id
	// order, and a corrupt artifact may hold any order at all.
	byTick := make(map[uint64][]sim.StepInput)
	for i := range art.Inputs {
		in := &art.Inputs[i]
		byTick[in.Tick] = append(byTick[in.Tick], sim.StepInput{
			Player:  sim.PlayerID(in.PlayerID),
			MoveDir: sim.Vec2{X: in.MoveDir[0], Y: in.MoveDir[1]},
		})
	}
	for tick := initialTick; tick < art.CheckpointTick; tick++ {
		steps := byTick[tick]
		sort.Slice(steps, func(i, j int) bool { return steps[i].Player < steps[j].Player })
		if _, err := world.Advance(sim.Tick(tick), steps); err != nil {
			return res, verr(CodeInvalidFormat, "advance at tick %d: %v", tick, err)
		}
	}

	if uint64(world.Tick()) != art.CheckpointTick {
		return res, verr(CodeCheckpointTickMismatch, "replay ended at tick %d, artifact checkpoint %d", world.Tick(), art.CheckpointTick)
	}
	if world.StateDigest() != art.FinalDigest {
		return res, verr(CodeFinalDigestMismatch, "replay digest %x != recorded %x", world.StateDigest(), art.FinalDigest)
	}

	return res, nil
}
