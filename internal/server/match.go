package server

import (
	"fmt"
	"sort"

	"github.com/project-flowstate/flowstate/internal/input"
	"github.com/project-flowstate/flowstate/internal/logger"
	"github.com/project-flowstate/flowstate/internal/metrics"
	"github.com/project-flowstate/flowstate/internal/protocol"
	"github.com/project-flowstate/flowstate/internal/replay"
	"github.com/project-flowstate/flowstate/internal/sim"
)

// Phase is the match lifecycle state.
type Phase int

const (
	PhaseAccepting Phase = iota
	PhaseRunning
	PhaseEnded
)

// EndCondition is the result of polling ShouldEndMatch.
type EndCondition int

const (
	EndNone EndCondition = iota
	EndComplete
	EndDisconnect
)

// SessionWelcome pairs a session with its join messages, built at match
// start.
type SessionWelcome struct {
	SessionID SessionID
	Welcome   *protocol.ServerWelcome
	Baseline  *protocol.JoinBaseline
}

// Match drives one match end to end. It exclusively owns the world, the
// input buffer, the session table, the last-known-intent map, and the
// recorder; nothing here is safe for concurrent use.
type Match struct {
	cfg      ServerConfig
	phase    Phase
	world    *sim.World
	buffer   *input.Buffer
	recorder *replay.Recorder

	sessions      map[SessionID]*Session
	nextSessionID SessionID

	// spawnOrder is the stable per-tick iteration order. It never depends
	// on map traversal.
	spawnOrder   []sim.PlayerID
	playerEntity map[sim.PlayerID]sim.EntityID
	lastIntent   map[sim.PlayerID]sim.Vec2

	initialTick sim.Tick
	sessionLost bool
}

// NewMatch creates a match in the Accepting phase.
func NewMatch(cfg ServerConfig) (*Match, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	world, err := sim.NewWorld(cfg.Seed, cfg.TickRateHz)
	if err != nil {
		return nil, err
	}
	return &Match{
		cfg:   cfg,
		world: world,
		buffer: input.NewBuffer(input.Config{
			MaxFutureTicks:       cfg.MaxFutureTicks,
			InputRateLimitPerSec: cfg.InputRateLimitPerSec,
			TickRateHz:           cfg.TickRateHz,
		}),
		recorder: replay.NewRecorder(replay.RecorderConfig{
			Seed:          cfg.Seed,
			TickRateHz:    cfg.TickRateHz,
			TestMode:      cfg.TestMode,
			TestPlayerIDs: cfg.TestPlayerIDs,
		}),
		sessions:      make(map[SessionID]*Session),
		nextSessionID: 1,
		playerEntity:  make(map[sim.PlayerID]sim.EntityID),
		lastIntent:    make(map[sim.PlayerID]sim.Vec2),
	}, nil
}

// Phase returns the lifecycle state.
func (m *Match) Phase() Phase { return m.phase }

// Tick returns the world's current tick.
func (m *Match) Tick() sim.Tick { return m.world.Tick() }

// InitialTick returns the tick frozen at match start.
func (m *Match) InitialTick() sim.Tick { return m.initialTick }

// SessionCount returns the number of live sessions.
func (m *Match) SessionCount() int { return len(m.sessions) }

// IsReadyToStart reports whether the session cap is reached. An external
// caller polls this against ConnectTimeout and aborts the match if the
// sessions never arrive.
func (m *Match) IsReadyToStart() bool {
	return m.phase == PhaseAccepting && len(m.sessions) == m.cfg.MaxPlayers
}

// AcceptSession admits one client: allocates a session id, chooses the
// player id, spawns the character, and initializes last-known-intent.
func (m *Match) AcceptSession() (*Session, error) {
	if m.phase != PhaseAccepting {
		return nil, fmt.Errorf("server: accept_session outside Accepting phase")
	}
	if len(m.sessions) >= m.cfg.MaxPlayers {
		return nil, fmt.Errorf("server: match is full")
	}

	var playerID sim.PlayerID
	if m.cfg.TestMode {
		playerID = sim.PlayerID(m.cfg.TestPlayerIDs[len(m.sessions)])
	} else {
		playerID = sim.PlayerID(len(m.sessions))
	}

	entityID := m.world.SpawnCharacter(playerID)
	m.recorder.RecordSpawn(playerID, entityID)
	m.spawnOrder = append(m.spawnOrder, playerID)
	m.playerEntity[playerID] = entityID
	m.lastIntent[playerID] = sim.Vec2{}

	sess := &Session{
		ID:                 m.nextSessionID,
		PlayerID:           playerID,
		ControlledEntityID: entityID,
	}
	m.nextSessionID++
	m.sessions[sess.ID] = sess

	logger.Info("session accepted",
		"session_id", sess.ID, "player_id", playerID, "entity_id", entityID)
	return sess, nil
}

// StartMatch freezes the initial tick, records the baseline, initializes
// every session's floor, and transitions to Running. Legal only in
// Accepting with a full roster.
func (m *Match) StartMatch() ([]SessionWelcome, error) {
	if m.phase != PhaseAccepting {
		return nil, fmt.Errorf("server: start_match outside Accepting phase")
	}
	if len(m.sessions) != m.cfg.MaxPlayers {
		return nil, fmt.Errorf("server: start_match needs %d sessions, have %d", m.cfg.MaxPlayers, len(m.sessions))
	}

	m.initialTick = m.world.Tick()
	baseline := joinBaseline(m.world.Baseline())
	m.recorder.RecordBaseline(baseline)

	floor := m.initialTick + sim.Tick(m.cfg.InputLeadTicks)
	welcomes := make([]SessionWelcome, 0, len(m.sessions))
	for _, sess := range m.sessionsInOrder() {
		sess.TargetTickFloor = floor
		sess.WelcomeSent = true
		welcomes = append(welcomes, SessionWelcome{
			SessionID: sess.ID,
			Welcome: &protocol.ServerWelcome{
				TargetTickFloor:    uint64(floor),
				TickRateHz:         m.cfg.TickRateHz,
				PlayerID:           uint32(sess.PlayerID),
				ControlledEntityID: uint64(sess.ControlledEntityID),
			},
			Baseline: baseline,
		})
	}

	m.phase = PhaseRunning
	logger.Info("match started",
		"initial_tick", m.initialTick, "floor", floor, "sessions", len(m.sessions))
	return welcomes, nil
}

// ReceiveInput routes one decoded InputCmd through the validation pipeline.
// The player id is bound from the session, never taken from the wire.
func (m *Match) ReceiveInput(sessionID SessionID, cmd protocol.InputCmd) input.Result {
	if m.phase != PhaseRunning {
		return m.dropped(input.DroppedPreWelcome, sessionID, cmd)
	}
	sess, ok := m.sessions[sessionID]
	if !ok {
		return m.dropped(input.DroppedUnknownSession, sessionID, cmd)
	}
	if !sess.WelcomeSent {
		return m.dropped(input.DroppedPreWelcome, sessionID, cmd)
	}

	res := input.Validate(cmd, m.world.Tick(), sess.TargetTickFloor, m.buffer, sess.PlayerID)
	if res.IsAccepted() {
		sess.LastValidTick = cmd.Tick
		sess.LastInputSeq = cmd.InputSeq
		metrics.InputsAccepted.Inc()
	} else {
		metrics.InputsDropped.WithLabelValues(res.String()).Inc()
	}
	return res
}

func (m *Match) dropped(res input.Result, sessionID SessionID, cmd protocol.InputCmd) input.Result {
	metrics.InputsDropped.WithLabelValues(res.String()).Inc()
	logger.Debug("input dropped", "session_id", sessionID, "tick", cmd.Tick, "reason", res.String())
	return res
}

// Step advances the match by one tick and returns the broadcast bytes.
//
// The critical path: materialize one applied input per player in spawn
// order (buffer winner or last-known-intent fallback), record each, hand
// the PlayerID-sorted list to the kernel, raise every session's floor,
// evict stale buffer slots, and encode the snapshot exactly once. The same
// byte string goes to every session; per-session variation would let
// clients disagree about the floor.
func (m *Match) Step() ([]byte, error) {
	if m.phase != PhaseRunning {
		return nil, fmt.Errorf("server: step outside Running phase")
	}

	tick := m.world.Tick()
	steps := make([]sim.StepInput, 0, len(m.spawnOrder))
	for _, playerID := range m.spawnOrder {
		var dir sim.Vec2
		fallback := true
		if cmd, ok := m.buffer.Take(playerID, tick); ok && len(cmd.MoveDir) == 2 {
			dir = sim.Vec2{X: cmd.MoveDir[0], Y: cmd.MoveDir[1]}
			fallback = false
		} else {
			dir = m.lastIntent[playerID]
		}
		m.lastIntent[playerID] = dir

		m.recorder.RecordInput(protocol.AppliedInput{
			Tick:       uint64(tick),
			PlayerID:   uint32(playerID),
			MoveDir:    []float64{dir.X, dir.Y},
			IsFallback: fallback,
		})
		steps = append(steps, sim.StepInput{Player: playerID, MoveDir: dir})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Player < steps[j].Player })

	snap, err := m.world.Advance(tick, steps)
	if err != nil {
		return nil, err
	}
	metrics.TicksStepped.Inc()

	floor := m.world.Tick() + sim.Tick(m.cfg.InputLeadTicks)
	for _, sess := range m.sessions {
		sess.TargetTickFloor = floor
	}

	m.buffer.EvictBefore(m.world.Tick())

	wireSnap := &protocol.Snapshot{
		Tick:            uint64(snap.Tick),
		Entities:        entitySnapshots(snap.Entities),
		Digest:          snap.Digest,
		TargetTickFloor: uint64(floor),
	}
	metrics.SnapshotsBroadcast.Inc()
	return wireSnap.Marshal(), nil
}

// DisconnectSession removes a session. Post-start, the loss ends the match
// on the next poll.
func (m *Match) DisconnectSession(sessionID SessionID) {
	if _, ok := m.sessions[sessionID]; !ok {
		return
	}
	delete(m.sessions, sessionID)
	if m.phase == PhaseRunning {
		m.sessionLost = true
	}
	logger.Info("session disconnected", "session_id", sessionID)
}

// ShouldEndMatch polls the end conditions.
func (m *Match) ShouldEndMatch() EndCondition {
	if m.phase != PhaseRunning {
		return EndNone
	}
	if uint64(m.world.Tick()) >= uint64(m.initialTick)+m.cfg.MatchDurationTicks {
		return EndComplete
	}
	if m.sessionLost {
		return EndDisconnect
	}
	return EndNone
}

// Finalize consumes the match and freezes the replay artifact.
func (m *Match) Finalize(reason protocol.EndReason) (*protocol.ReplayArtifact, error) {
	if m.phase == PhaseEnded {
		return nil, fmt.Errorf("server: match already finalized")
	}
	m.phase = PhaseEnded

	fp, err := replay.CurrentBuildFingerprint()
	if err != nil {
		logger.Warn("build fingerprint unavailable", "error", err)
		fp = nil
	}

	art := m.recorder.Finalize(m.world.StateDigest(), m.world.Tick(), reason, fp)
	metrics.MatchesFinalized.WithLabelValues(reason.String()).Inc()
	logger.Info("match finalized",
		"reason", reason.String(), "checkpoint_tick", art.CheckpointTick, "final_digest", art.FinalDigest)
	return art, nil
}

// sessionsInOrder returns sessions sorted by session id. Map traversal
// order must never leak into anything observable.
func (m *Match) sessionsInOrder() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func joinBaseline(b sim.Baseline) *protocol.JoinBaseline {
	return &protocol.JoinBaseline{
		Tick:     uint64(b.Tick),
		Entities: entitySnapshots(b.Entities),
		Digest:   b.Digest,
	}
}

func entitySnapshots(entities []sim.EntityState) []protocol.EntitySnapshot {
	out := make([]protocol.EntitySnapshot, len(entities))
	for i, e := range entities {
		out[i] = protocol.EntitySnapshot{
			EntityID: uint64(e.ID),
			Position: []float64{e.Position.X, e.Position.Y},
			Velocity: []float64{e.Velocity.X, e.Velocity.Y},
		}
	}
	return out
}
