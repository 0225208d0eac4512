package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/project-flowstate/flowstate/internal/input"
	"github.com/project-flowstate/flowstate/internal/protocol"
	"github.com/project-flowstate/flowstate/internal/replay"
)

func testConfig() ServerConfig {
	cfg := DefaultConfig()
	cfg.MatchDurationTicks = 20
	return cfg
}

func startedMatch(t *testing.T, cfg ServerConfig) (*Match, []SessionWelcome) {
	t.Helper()
	m, err := NewMatch(cfg)
	require.NoError(t, err)

	for i := 0; i < cfg.MaxPlayers; i++ {
		_, err := m.AcceptSession()
		require.NoError(t, err)
	}
	require.True(t, m.IsReadyToStart())

	welcomes, err := m.StartMatch()
	require.NoError(t, err)
	return m, welcomes
}

func TestTwoPlayerBaseline(t *testing.T) {
	m, welcomes := startedMatch(t, testConfig())

	require.Equal(t, PhaseRunning, m.Phase())
	require.Len(t, welcomes, 2)

	// PlayerIDs 0 and 1, entities 1 and 2, floor = initial + 1.
	require.Equal(t, uint32(0), welcomes[0].Welcome.PlayerID)
	require.Equal(t, uint32(1), welcomes[1].Welcome.PlayerID)
	require.Equal(t, uint64(1), welcomes[0].Welcome.ControlledEntityID)
	require.Equal(t, uint64(2), welcomes[1].Welcome.ControlledEntityID)
	require.Equal(t, uint64(1), welcomes[0].Welcome.TargetTickFloor)

	base := welcomes[0].Baseline
	require.Equal(t, uint64(0), base.Tick)
	require.Len(t, base.Entities, 2)
	require.NotZero(t, base.Digest)
	require.Equal(t, base, welcomes[1].Baseline)
	for _, e := range base.Entities {
		require.Equal(t, []float64{0, 0}, e.Position)
	}
}

func TestLifecycleGuards(t *testing.T) {
	cfg := testConfig()
	m, err := NewMatch(cfg)
	require.NoError(t, err)

	// Step and start are illegal before the roster is full.
	_, err = m.Step()
	require.Error(t, err)
	_, err = m.StartMatch()
	require.Error(t, err)

	_, err = m.AcceptSession()
	require.NoError(t, err)
	_, err = m.AcceptSession()
	require.NoError(t, err)

	// Third accept exceeds the cap.
	_, err = m.AcceptSession()
	require.Error(t, err)

	_, err = m.StartMatch()
	require.NoError(t, err)

	// Accept is illegal once running.
	_, err = m.AcceptSession()
	require.Error(t, err)
}

func TestReceiveInputGuards(t *testing.T) {
	cfg := testConfig()
	m, err := NewMatch(cfg)
	require.NoError(t, err)
	sess, err := m.AcceptSession()
	require.NoError(t, err)

	cmd := protocol.InputCmd{Tick: 1, InputSeq: 1, MoveDir: []float64{1, 0}}

	// Before the match starts nothing has been welcomed.
	require.Equal(t, input.DroppedPreWelcome, m.ReceiveInput(sess.ID, cmd))

	_, err = m.AcceptSession()
	require.NoError(t, err)
	_, err = m.StartMatch()
	require.NoError(t, err)

	require.Equal(t, input.DroppedUnknownSession, m.ReceiveInput(SessionID(99), cmd))
	require.True(t, m.ReceiveInput(sess.ID, cmd).IsAccepted())
}

func TestBroadcastFloorMonotonic(t *testing.T) {
	m, _ := startedMatch(t, testConfig())

	var lastFloor uint64
	for i := 0; i < 5; i++ {
		data, err := m.Step()
		require.NoError(t, err)

		var snap protocol.Snapshot
		require.NoError(t, snap.Unmarshal(data))
		require.Equal(t, uint64(i+1), snap.Tick)
		require.Equal(t, snap.Tick+1, snap.TargetTickFloor)
		require.NotZero(t, snap.Digest)
		require.Len(t, snap.Entities, 2)

		if i > 0 {
			require.Equal(t, lastFloor+1, snap.TargetTickFloor)
		}
		lastFloor = snap.TargetTickFloor
	}
}

func TestLKIFallbackWithNoInputs(t *testing.T) {
	m, _ := startedMatch(t, testConfig())

	for i := 0; i < 10; i++ {
		_, err := m.Step()
		require.NoError(t, err)
	}

	art, err := m.Finalize(protocol.EndReasonComplete)
	require.NoError(t, err)

	// Every applied input is a (0,0) fallback; nobody moved.
	require.Len(t, art.Inputs, 20)
	for _, in := range art.Inputs {
		require.True(t, in.IsFallback)
		require.Equal(t, []float64{0, 0}, in.MoveDir)
	}
	for _, e := range art.InitialBaseline.Entities {
		require.Equal(t, []float64{0, 0}, e.Position)
	}

	_, err = replay.Verify(art, replay.VerifyOptions{})
	require.NoError(t, err)
}

func TestLKIReplaysLastAppliedIntent(t *testing.T) {
	m, welcomes := startedMatch(t, testConfig())
	sid := welcomes[0].SessionID

	// One input at tick 1, then silence: tick 1 applies it, later ticks
	// fall back to the same direction.
	res := m.ReceiveInput(sid, protocol.InputCmd{Tick: 1, InputSeq: 1, MoveDir: []float64{1, 0}})
	require.True(t, res.IsAccepted())

	for i := 0; i < 3; i++ {
		_, err := m.Step()
		require.NoError(t, err)
	}

	art, err := m.Finalize(protocol.EndReasonComplete)
	require.NoError(t, err)

	byTick := map[uint64]protocol.AppliedInput{}
	for _, in := range art.Inputs {
		if in.PlayerID == welcomes[0].Welcome.PlayerID {
			byTick[in.Tick] = in
		}
	}
	require.True(t, byTick[0].IsFallback)
	require.False(t, byTick[1].IsFallback)
	require.Equal(t, []float64{1, 0}, byTick[1].MoveDir)
	require.True(t, byTick[2].IsFallback)
	require.Equal(t, []float64{1, 0}, byTick[2].MoveDir)
}

func TestTiedSeqFallsBackToLKI(t *testing.T) {
	m, welcomes := startedMatch(t, testConfig())
	sid := welcomes[0].SessionID

	require.True(t, m.ReceiveInput(sid, protocol.InputCmd{Tick: 1, InputSeq: 5, MoveDir: []float64{1, 0}}).IsAccepted())
	require.True(t, m.ReceiveInput(sid, protocol.InputCmd{Tick: 1, InputSeq: 5, MoveDir: []float64{0, 1}}).IsAccepted())

	_, err := m.Step() // tick 0
	require.NoError(t, err)
	_, err = m.Step() // tick 1: tie → LKI (0,0)
	require.NoError(t, err)

	art, err := m.Finalize(protocol.EndReasonComplete)
	require.NoError(t, err)

	for _, in := range art.Inputs {
		if in.PlayerID == welcomes[0].Welcome.PlayerID && in.Tick == 1 {
			require.True(t, in.IsFallback)
			require.Equal(t, []float64{0, 0}, in.MoveDir)
		}
	}
}

func TestNonContiguousPlayerIDs(t *testing.T) {
	cfg := testConfig()
	cfg.TestMode = true
	cfg.TestPlayerIDs = []uint32{17, 99}
	m, welcomes := startedMatch(t, cfg)

	require.Equal(t, uint32(17), welcomes[0].Welcome.PlayerID)
	require.Equal(t, uint32(99), welcomes[1].Welcome.PlayerID)

	// Queue movement for ticks 1..5: player 17 along x, player 99 along y.
	for tick := uint64(1); tick <= 5; tick++ {
		require.True(t, m.ReceiveInput(welcomes[0].SessionID,
			protocol.InputCmd{Tick: tick, InputSeq: tick, MoveDir: []float64{1, 0}}).IsAccepted())
		require.True(t, m.ReceiveInput(welcomes[1].SessionID,
			protocol.InputCmd{Tick: tick, InputSeq: tick, MoveDir: []float64{0, 1}}).IsAccepted())
	}
	for i := 0; i < 6; i++ {
		_, err := m.Step()
		require.NoError(t, err)
	}

	art, err := m.Finalize(protocol.EndReasonComplete)
	require.NoError(t, err)

	require.Equal(t, []uint32{17, 99}, art.EntitySpawnOrder)
	require.Equal(t, []uint32{17, 99}, art.TestPlayerIDs)
	require.True(t, art.TestMode)

	// The verifier reproduces the non-contiguous match bit-exactly.
	res, err := replay.Verify(art, replay.VerifyOptions{})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
}

func TestEntityMovesOnlyOnItsAxis(t *testing.T) {
	cfg := testConfig()
	cfg.TestMode = true
	cfg.TestPlayerIDs = []uint32{17, 99}
	m, welcomes := startedMatch(t, cfg)

	for tick := uint64(1); tick <= 5; tick++ {
		m.ReceiveInput(welcomes[0].SessionID, protocol.InputCmd{Tick: tick, InputSeq: tick, MoveDir: []float64{1, 0}})
		m.ReceiveInput(welcomes[1].SessionID, protocol.InputCmd{Tick: tick, InputSeq: tick, MoveDir: []float64{0, 1}})
	}

	var data []byte
	for i := 0; i < 6; i++ {
		var err error
		data, err = m.Step()
		require.NoError(t, err)
	}

	var snap protocol.Snapshot
	require.NoError(t, snap.Unmarshal(data))
	require.Len(t, snap.Entities, 2)

	// Entity 1 is player 17 (x only), entity 2 is player 99 (y only).
	require.Greater(t, snap.Entities[0].Position[0], 0.0)
	require.Equal(t, 0.0, snap.Entities[0].Position[1])
	require.Equal(t, 0.0, snap.Entities[1].Position[0])
	require.Greater(t, snap.Entities[1].Position[1], 0.0)
}

func TestDisconnectEndsMatch(t *testing.T) {
	m, welcomes := startedMatch(t, testConfig())

	_, err := m.Step()
	require.NoError(t, err)
	require.Equal(t, EndNone, m.ShouldEndMatch())

	m.DisconnectSession(welcomes[0].SessionID)
	require.Equal(t, EndDisconnect, m.ShouldEndMatch())

	art, err := m.Finalize(protocol.EndReasonDisconnect)
	require.NoError(t, err)
	require.Equal(t, protocol.EndReasonDisconnect, art.EndReason)

	// Finalize consumes the match.
	_, err = m.Finalize(protocol.EndReasonDisconnect)
	require.Error(t, err)
}

func TestMatchCompletesAtDuration(t *testing.T) {
	m, _ := startedMatch(t, testConfig())

	for m.ShouldEndMatch() == EndNone {
		_, err := m.Step()
		require.NoError(t, err)
	}
	require.Equal(t, EndComplete, m.ShouldEndMatch())
	require.Equal(t, uint64(20), uint64(m.Tick()))

	art, err := m.Finalize(protocol.EndReasonComplete)
	require.NoError(t, err)
	require.Equal(t, uint64(20), art.CheckpointTick)

	_, err = replay.Verify(art, replay.VerifyOptions{})
	require.NoError(t, err)
}

func TestRunPumpCompletesMatch(t *testing.T) {
	m, _ := startedMatch(t, testConfig())

	inbox := make(chan Event, 8)
	var broadcasts int
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	art, err := Run(ctx, m, inbox, func([]byte) { broadcasts++ })
	require.NoError(t, err)
	require.Equal(t, protocol.EndReasonComplete, art.EndReason)
	require.Equal(t, 20, broadcasts)

	_, err = replay.Verify(art, replay.VerifyOptions{})
	require.NoError(t, err)
}

func TestDeterministicMatchesProduceIdenticalBroadcasts(t *testing.T) {
	run := func() [][]byte {
		m, welcomes := startedMatch(t, testConfig())
		for tick := uint64(1); tick <= 4; tick++ {
			m.ReceiveInput(welcomes[0].SessionID, protocol.InputCmd{Tick: tick, InputSeq: tick, MoveDir: []float64{0.5, -0.5}})
		}
		var out [][]byte
		for i := 0; i < 5; i++ {
			data, err := m.Step()
			require.NoError(t, err)
			out = append(out, data)
		}
		return out
	}

	a, b := run(), run()
	require.Equal(t, a, b)
}
