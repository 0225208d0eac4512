package protocol

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// The codec is hand-written over protowire with a fixed field order, so
// encoding the same message always yields the same bytes. Fields holding
// their zero value are omitted, matching proto3 semantics.

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFixed64Field(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessageField(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

// appendPackedDoubles emits a packed repeated double field (fixed64 LE).
func appendPackedDoubles(b []byte, num protowire.Number, vals []float64) []byte {
	if len(vals) == 0 {
		return b
	}
	packed := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}
	return appendMessageField(b, num, packed)
}

// appendPackedUint32 emits a packed repeated uint32 field (varints).
func appendPackedUint32(b []byte, num protowire.Number, vals []uint32) []byte {
	if len(vals) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	return appendMessageField(b, num, packed)
}

// Marshal encodes a ClientHello.
func (m *ClientHello) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.ProtocolVersion))
	return b
}

// Marshal encodes a ServerWelcome.
func (m *ServerWelcome) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.TargetTickFloor)
	b = appendVarintField(b, 2, uint64(m.TickRateHz))
	b = appendVarintField(b, 3, uint64(m.PlayerID))
	b = appendVarintField(b, 4, m.ControlledEntityID)
	return b
}

// Marshal encodes an EntitySnapshot.
func (m *EntitySnapshot) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.EntityID)
	b = appendPackedDoubles(b, 2, m.Position)
	b = appendPackedDoubles(b, 3, m.Velocity)
	return b
}

// Marshal encodes a JoinBaseline.
func (m *JoinBaseline) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.Tick)
	for i := range m.Entities {
		b = appendMessageField(b, 2, m.Entities[i].Marshal())
	}
	b = appendFixed64Field(b, 3, m.Digest)
	return b
}

// Marshal encodes an InputCmd.
func (m *InputCmd) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.Tick)
	b = appendVarintField(b, 2, m.InputSeq)
	b = appendPackedDoubles(b, 3, m.MoveDir)
	return b
}

// Marshal encodes a Snapshot.
func (m *Snapshot) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.Tick)
	for i := range m.Entities {
		b = appendMessageField(b, 2, m.Entities[i].Marshal())
	}
	b = appendFixed64Field(b, 3, m.Digest)
	b = appendVarintField(b, 4, m.TargetTickFloor)
	return b
}

// Marshal encodes an AppliedInput.
func (m *AppliedInput) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, m.Tick)
	b = appendVarintField(b, 2, uint64(m.PlayerID))
	b = appendPackedDoubles(b, 3, m.MoveDir)
	b = appendBoolField(b, 4, m.IsFallback)
	return b
}

// Marshal encodes a BuildFingerprint.
func (m *BuildFingerprint) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.BinarySHA256)
	b = appendStringField(b, 2, m.TargetTriple)
	b = appendStringField(b, 3, m.Profile)
	b = appendStringField(b, 4, m.VCSCommit)
	return b
}

// Marshal encodes a PlayerEntityMapping.
func (m *PlayerEntityMapping) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.PlayerID))
	b = appendVarintField(b, 2, m.EntityID)
	return b
}

// Marshal encodes a TuningParameter.
func (m *TuningParameter) Marshal() []byte {
	var b []byte
	b = appendStringField(b, 1, m.Key)
	b = appendFixed64Field(b, 2, math.Float64bits(m.Value))
	return b
}

// Marshal encodes a ReplayArtifact.
func (m *ReplayArtifact) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, 1, uint64(m.ReplayFormatVersion))
	if m.InitialBaseline != nil {
		b = appendMessageField(b, 2, m.InitialBaseline.Marshal())
	}
	b = appendFixed64Field(b, 3, m.Seed)
	b = appendStringField(b, 4, m.RNGAlgorithm)
	b = appendVarintField(b, 5, uint64(m.TickRateHz))
	b = appendStringField(b, 6, m.StateDigestAlgoID)
	b = appendPackedUint32(b, 7, m.EntitySpawnOrder)
	for i := range m.PlayerEntityMapping {
		b = appendMessageField(b, 8, m.PlayerEntityMapping[i].Marshal())
	}
	for i := range m.TuningParameters {
		b = appendMessageField(b, 9, m.TuningParameters[i].Marshal())
	}
	for i := range m.Inputs {
		b = appendMessageField(b, 10, m.Inputs[i].Marshal())
	}
	if m.BuildFingerprint != nil {
		b = appendMessageField(b, 11, m.BuildFingerprint.Marshal())
	}
	b = appendFixed64Field(b, 12, m.FinalDigest)
	b = appendVarintField(b, 13, m.CheckpointTick)
	b = appendVarintField(b, 14, uint64(m.EndReason))
	b = appendBoolField(b, 15, m.TestMode)
	b = appendPackedUint32(b, 16, m.TestPlayerIDs)
	return b
}
