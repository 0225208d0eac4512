package replay

import (
	"sort"

	"github.com/project-flowstate/flowstate/internal/protocol"
	"github.com/project-flowstate/flowstate/internal/sim"
)

// RNGAlgorithm names the kernel's random source. v0 has none; the field is
// carried so future kernels can declare one without a format bump.
const RNGAlgorithm = "rng-v0-none"

// RecorderConfig is snapped into the artifact at finalize time.
type RecorderConfig struct {
	Seed          uint64
	TickRateHz    uint32
	TestMode      bool
	TestPlayerIDs []uint32
}

// Recorder accumulates the match record during the Running phase. It is
// owned by the orchestrator and never observed concurrently.
type Recorder struct {
	cfg        RecorderConfig
	spawnOrder []uint32
	mapping    []protocol.PlayerEntityMapping
	baseline   *protocol.JoinBaseline
	inputs     []protocol.AppliedInput
	tuning     map[string]float64
}

// NewRecorder creates an empty recorder for one match.
func NewRecorder(cfg RecorderConfig) *Recorder {
	return &Recorder{
		cfg:    cfg,
		tuning: map[string]float64{"move_speed": sim.MoveSpeed},
	}
}

// RecordSpawn appends a player to the spawn order and its entity mapping.
func (r *Recorder) RecordSpawn(player sim.PlayerID, entity sim.EntityID) {
	r.spawnOrder = append(r.spawnOrder, uint32(player))
	r.mapping = append(r.mapping, protocol.PlayerEntityMapping{
		PlayerID: uint32(player),
		EntityID: uint64(entity),
	})
}

// RecordBaseline stores the pre-start world view.
func (r *Recorder) RecordBaseline(b *protocol.JoinBaseline) {
	r.baseline = b
}

// RecordInput appends one applied input. The orchestrator calls this once
// per (player, tick) in production order.
func (r *Recorder) RecordInput(in protocol.AppliedInput) {
	r.inputs = append(r.inputs, in)
}

// InputCount returns the number of recorded applied inputs.
func (r *Recorder) InputCount() int { return len(r.inputs) }

// Finalize freezes the record into a self-contained artifact. Tuning
// parameters are emitted sorted by key so the encoding is deterministic.
func (r *Recorder) Finalize(finalDigest uint64, checkpointTick sim.Tick, reason protocol.EndReason, fp *protocol.BuildFingerprint) *protocol.ReplayArtifact {
	keys := make([]string, 0, len(r.tuning))
	for k := range r.tuning {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tuning := make([]protocol.TuningParameter, 0, len(keys))
	for _, k := range keys {
		tuning = append(tuning, protocol.TuningParameter{Key: k, Value: r.tuning[k]})
	}

	return &protocol.ReplayArtifact{
		ReplayFormatVersion: protocol.ReplayFormatVersion,
		InitialBaseline:     r.baseline,
		Seed:                r.cfg.Seed,
		RNGAlgorithm:        RNGAlgorithm,
		TickRateHz:          r.cfg.TickRateHz,
		StateDigestAlgoID:   sim.StateDigestAlgoID,
		EntitySpawnOrder:    r.spawnOrder,
		PlayerEntityMapping: r.mapping,
		TuningParameters:    tuning,
		Inputs:              r.inputs,
		BuildFingerprint:    fp,
		FinalDigest:         finalDigest,
		CheckpointTick:      uint64(checkpointTick),
		EndReason:           reason,
		TestMode:            r.cfg.TestMode,
		TestPlayerIDs:       r.cfg.TestPlayerIDs,
	}
}
