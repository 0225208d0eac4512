package sim

import (
	"math"
	"testing"
)

func TestNewWorldRejectsZeroTickRate(t *testing.T) {
	if _, err := NewWorld(0, 0); err == nil {
		t.Fatal("expected error for zero tick rate")
	}
}

func TestSpawnAllocatesAscendingEntityIDs(t *testing.T) {
	w, err := NewWorld(0, 60)
	if err != nil {
		t.Fatal(err)
	}

	// Spawn order should drive EntityID allocation, not PlayerID order.
	players := []PlayerID{99, 17, 0, 42}
	for i, p := range players {
		id := w.SpawnCharacter(p)
		if id != EntityID(i+1) {
			t.Fatalf("spawn %d: expected entity id %d, got %d", i, i+1, id)
		}
	}

	b := w.Baseline()
	for i := 1; i < len(b.Entities); i++ {
		if b.Entities[i-1].ID >= b.Entities[i].ID {
			t.Fatal("baseline entities not sorted by entity id")
		}
	}
}

func TestAdvanceTickMismatchFails(t *testing.T) {
	w, _ := NewWorld(0, 60)
	if _, err := w.Advance(5, nil); err == nil {
		t.Fatal("expected error on tick mismatch")
	}
}

func TestAdvanceRejectsUnsortedInputs(t *testing.T) {
	w, _ := NewWorld(0, 60)
	w.SpawnCharacter(0)
	w.SpawnCharacter(1)

	inputs := []StepInput{
		{Player: 1, MoveDir: Vec2{X: 1}},
		{Player: 0, MoveDir: Vec2{Y: 1}},
	}
	if _, err := w.Advance(0, inputs); err == nil {
		t.Fatal("expected error for unsorted step inputs")
	}
}

func TestAdvanceIncrementsTick(t *testing.T) {
	w, _ := NewWorld(0, 60)
	w.SpawnCharacter(0)

	snap, err := w.Advance(0, []StepInput{{Player: 0, MoveDir: Vec2{X: 1}}})
	if err != nil {
		t.Fatal(err)
	}
	if w.Tick() != 1 {
		t.Fatalf("expected world tick 1, got %d", w.Tick())
	}
	if snap.Tick != 1 {
		t.Fatalf("expected snapshot tick 1, got %d", snap.Tick)
	}
}

func TestAdvanceSkipsUnknownPlayers(t *testing.T) {
	w, _ := NewWorld(0, 60)
	w.SpawnCharacter(0)

	if _, err := w.Advance(0, []StepInput{{Player: 7, MoveDir: Vec2{X: 1}}}); err != nil {
		t.Fatal(err)
	}
	b := w.Baseline()
	if b.Entities[0].Position.X != 0 {
		t.Fatal("input for unknown player moved a character")
	}
}

// TestDeterministicMovement runs the single-player scenario twice and demands
// bit-identical results: 10 ticks of [1, 0] at 60 Hz from the origin.
func TestDeterministicMovement(t *testing.T) {
	run := func() (Vec2, uint64) {
		w, _ := NewWorld(0, 60)
		w.SpawnCharacter(0)
		for i := 0; i < 10; i++ {
			if _, err := w.Advance(Tick(i), []StepInput{{Player: 0, MoveDir: Vec2{X: 1}}}); err != nil {
				t.Fatal(err)
			}
		}
		b := w.Baseline()
		return b.Entities[0].Position, b.Digest
	}

	pos1, dig1 := run()
	pos2, dig2 := run()

	if math.Float64bits(pos1.X) != math.Float64bits(pos2.X) ||
		math.Float64bits(pos1.Y) != math.Float64bits(pos2.Y) {
		t.Fatalf("runs diverged: %v vs %v", pos1, pos2)
	}
	if dig1 != dig2 {
		t.Fatalf("digests diverged: %x vs %x", dig1, dig2)
	}

	// Expected x = 10 * MoveSpeed * dt, accumulated the same way the kernel
	// accumulates it.
	expected := 0.0
	for i := 0; i < 10; i++ {
		expected += MoveSpeed * (1.0 / 60.0)
	}
	if math.Float64bits(pos1.X) != math.Float64bits(expected) {
		t.Fatalf("expected x=%v, got %v", expected, pos1.X)
	}
	if pos1.Y != 0 {
		t.Fatalf("expected y=0, got %v", pos1.Y)
	}
	if math.Abs(pos1.X-0.8333333333333333) > 1e-12 {
		t.Fatalf("x out of expected range: %v", pos1.X)
	}
}

func TestClampMoveDir(t *testing.T) {
	clamped := ClampMoveDir(Vec2{X: 3, Y: 4})
	mag := math.Sqrt(clamped.X*clamped.X + clamped.Y*clamped.Y)
	if math.Abs(mag-1.0) > 1e-12 {
		t.Fatalf("expected unit magnitude, got %v", mag)
	}

	// At or below unit length the direction must pass through untouched.
	unit := ClampMoveDir(Vec2{X: 1, Y: 0})
	if unit.X != 1 || unit.Y != 0 {
		t.Fatalf("unit vector was modified: %v", unit)
	}
	small := ClampMoveDir(Vec2{X: 0.3, Y: 0.4})
	if small.X != 0.3 || small.Y != 0.4 {
		t.Fatalf("sub-unit vector was modified: %v", small)
	}
}

func TestKernelClampKeepsDigestStable(t *testing.T) {
	run := func(dir Vec2) uint64 {
		w, _ := NewWorld(0, 60)
		w.SpawnCharacter(0)
		if _, err := w.Advance(0, []StepInput{{Player: 0, MoveDir: dir}}); err != nil {
			t.Fatal(err)
		}
		return w.StateDigest()
	}

	// An over-length direction and its pre-clamped equivalent must land on
	// the same state.
	over := run(Vec2{X: 2, Y: 0})
	unit := run(Vec2{X: 1, Y: 0})
	if over != unit {
		t.Fatalf("clamped digest %x != unit digest %x", over, unit)
	}
}
