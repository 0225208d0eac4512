package sim

import (
	"encoding/binary"
	"hash/fnv"
	"math"
)

// StateDigestAlgoID names the digest algorithm baked into replay artifacts.
// Changing the digest in any way requires a new id.
const StateDigestAlgoID = "statedigest-v0-fnv1a64-le-f64canon-eidasc-posvel"

// quietNaN is the canonical bit pattern all NaNs collapse to.
const quietNaN = 0x7ff8000000000000

// CanonicalizeF64 maps a float64 to its canonical bit pattern: negative zero
// becomes positive zero, every NaN becomes the quiet NaN pattern, and all
// other values keep their native bits. Platform differences in -0.0 or NaN
// payloads therefore never diverge the digest.
func CanonicalizeF64(v float64) uint64 {
	if math.IsNaN(v) {
		return quietNaN
	}
	bits := math.Float64bits(v)
	if bits == 0x8000000000000000 { // -0.0
		return 0
	}
	return bits
}

// StateDigest hashes the world's canonical byte encoding: the current tick,
// then each character in EntityID-ascending order as EntityID followed by
// canonicalized position and velocity components. All values are fed as
// 8 little-endian bytes into FNV-1a 64.
func (w *World) StateDigest() uint64 {
	h := fnv.New64a()
	var buf [8]byte
	feed := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	feed(uint64(w.tick))
	for i := range w.characters {
		c := &w.characters[i]
		feed(uint64(c.ID))
		feed(CanonicalizeF64(c.Position.X))
		feed(CanonicalizeF64(c.Position.Y))
		feed(CanonicalizeF64(c.Velocity.X))
		feed(CanonicalizeF64(c.Velocity.Y))
	}
	return h.Sum64()
}
