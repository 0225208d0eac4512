package protocol

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidData reports undecodable wire bytes. All decode failures wrap it.
var ErrInvalidData = errors.New("protocol: invalid data")

func truncated(what string) error {
	return fmt.Errorf("%w: truncated %s", ErrInvalidData, what)
}

func consumeVarint(b []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, nil, truncated("varint")
	}
	return v, b[n:], nil
}

func consumeFixed64(b []byte) (uint64, []byte, error) {
	v, n := protowire.ConsumeFixed64(b)
	if n < 0 {
		return 0, nil, truncated("fixed64")
	}
	return v, b[n:], nil
}

func consumeBytes(b []byte) ([]byte, []byte, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, nil, truncated("length-delimited field")
	}
	return v, b[n:], nil
}

// consumePackedDoubles reads a packed repeated double field.
func consumePackedDoubles(b []byte) ([]float64, []byte, error) {
	packed, rest, err := consumeBytes(b)
	if err != nil {
		return nil, nil, err
	}
	if len(packed)%8 != 0 {
		return nil, nil, fmt.Errorf("%w: packed doubles length %d", ErrInvalidData, len(packed))
	}
	vals := make([]float64, 0, len(packed)/8)
	for len(packed) > 0 {
		v, n := protowire.ConsumeFixed64(packed)
		if n < 0 {
			return nil, nil, truncated("packed double")
		}
		vals = append(vals, math.Float64frombits(v))
		packed = packed[n:]
	}
	return vals, rest, nil
}

// consumePackedUint32 reads a packed repeated uint32 field.
func consumePackedUint32(b []byte) ([]uint32, []byte, error) {
	packed, rest, err := consumeBytes(b)
	if err != nil {
		return nil, nil, err
	}
	var vals []uint32
	for len(packed) > 0 {
		v, n := protowire.ConsumeVarint(packed)
		if n < 0 {
			return nil, nil, truncated("packed varint")
		}
		vals = append(vals, uint32(v))
		packed = packed[n:]
	}
	return vals, rest, nil
}

func skipField(b []byte, num protowire.Number, typ protowire.Type) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, fmt.Errorf("%w: unparsable field %d", ErrInvalidData, num)
	}
	return b[n:], nil
}

func consumeTag(b []byte) (protowire.Number, protowire.Type, []byte, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return 0, 0, nil, truncated("tag")
	}
	return num, typ, b[n:], nil
}

// Unmarshal decodes a ClientHello.
func (m *ClientHello) Unmarshal(b []byte) error {
	*m = ClientHello{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			if v, b, err = consumeVarint(b); err != nil {
				return err
			}
			m.ProtocolVersion = uint32(v)
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmarshal decodes a ServerWelcome.
func (m *ServerWelcome) Unmarshal(b []byte) error {
	*m = ServerWelcome{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		if typ != protowire.VarintType {
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
			continue
		}
		var v uint64
		if v, b, err = consumeVarint(b); err != nil {
			return err
		}
		switch num {
		case 1:
			m.TargetTickFloor = v
		case 2:
			m.TickRateHz = uint32(v)
		case 3:
			m.PlayerID = uint32(v)
		case 4:
			m.ControlledEntityID = v
		}
	}
	return nil
}

// Unmarshal decodes an EntitySnapshot.
func (m *EntitySnapshot) Unmarshal(b []byte) error {
	*m = EntitySnapshot{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.VarintType:
			if m.EntityID, b, err = consumeVarint(b); err != nil {
				return err
			}
		case num == 2 && typ == protowire.BytesType:
			if m.Position, b, err = consumePackedDoubles(b); err != nil {
				return err
			}
		case num == 3 && typ == protowire.BytesType:
			if m.Velocity, b, err = consumePackedDoubles(b); err != nil {
				return err
			}
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmarshal decodes a JoinBaseline.
func (m *JoinBaseline) Unmarshal(b []byte) error {
	*m = JoinBaseline{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.VarintType:
			if m.Tick, b, err = consumeVarint(b); err != nil {
				return err
			}
		case num == 2 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			var e EntitySnapshot
			if err = e.Unmarshal(body); err != nil {
				return err
			}
			m.Entities = append(m.Entities, e)
		case num == 3 && typ == protowire.Fixed64Type:
			if m.Digest, b, err = consumeFixed64(b); err != nil {
				return err
			}
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmarshal decodes an InputCmd.
func (m *InputCmd) Unmarshal(b []byte) error {
	*m = InputCmd{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.VarintType:
			if m.Tick, b, err = consumeVarint(b); err != nil {
				return err
			}
		case num == 2 && typ == protowire.VarintType:
			if m.InputSeq, b, err = consumeVarint(b); err != nil {
				return err
			}
		case num == 3 && typ == protowire.BytesType:
			if m.MoveDir, b, err = consumePackedDoubles(b); err != nil {
				return err
			}
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmarshal decodes a Snapshot.
func (m *Snapshot) Unmarshal(b []byte) error {
	*m = Snapshot{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.VarintType:
			if m.Tick, b, err = consumeVarint(b); err != nil {
				return err
			}
		case num == 2 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			var e EntitySnapshot
			if err = e.Unmarshal(body); err != nil {
				return err
			}
			m.Entities = append(m.Entities, e)
		case num == 3 && typ == protowire.Fixed64Type:
			if m.Digest, b, err = consumeFixed64(b); err != nil {
				return err
			}
		case num == 4 && typ == protowire.VarintType:
			if m.TargetTickFloor, b, err = consumeVarint(b); err != nil {
				return err
			}
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmarshal decodes an AppliedInput.
func (m *AppliedInput) Unmarshal(b []byte) error {
	*m = AppliedInput{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.VarintType:
			if m.Tick, b, err = consumeVarint(b); err != nil {
				return err
			}
		case num == 2 && typ == protowire.VarintType:
			var v uint64
			if v, b, err = consumeVarint(b); err != nil {
				return err
			}
			m.PlayerID = uint32(v)
		case num == 3 && typ == protowire.BytesType:
			if m.MoveDir, b, err = consumePackedDoubles(b); err != nil {
				return err
			}
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			if v, b, err = consumeVarint(b); err != nil {
				return err
			}
			m.IsFallback = v != 0
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmarshal decodes a BuildFingerprint.
func (m *BuildFingerprint) Unmarshal(b []byte) error {
	*m = BuildFingerprint{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		if typ != protowire.BytesType {
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
			continue
		}
		var body []byte
		if body, b, err = consumeBytes(b); err != nil {
			return err
		}
		switch num {
		case 1:
			m.BinarySHA256 = string(body)
		case 2:
			m.TargetTriple = string(body)
		case 3:
			m.Profile = string(body)
		case 4:
			m.VCSCommit = string(body)
		}
	}
	return nil
}

// Unmarshal decodes a PlayerEntityMapping.
func (m *PlayerEntityMapping) Unmarshal(b []byte) error {
	*m = PlayerEntityMapping{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		if typ != protowire.VarintType {
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
			continue
		}
		var v uint64
		if v, b, err = consumeVarint(b); err != nil {
			return err
		}
		switch num {
		case 1:
			m.PlayerID = uint32(v)
		case 2:
			m.EntityID = v
		}
	}
	return nil
}

// Unmarshal decodes a TuningParameter.
func (m *TuningParameter) Unmarshal(b []byte) error {
	*m = TuningParameter{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			m.Key = string(body)
		case num == 2 && typ == protowire.Fixed64Type:
			var v uint64
			if v, b, err = consumeFixed64(b); err != nil {
				return err
			}
			m.Value = math.Float64frombits(v)
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unmarshal decodes a ReplayArtifact.
func (m *ReplayArtifact) Unmarshal(b []byte) error {
	*m = ReplayArtifact{}
	for len(b) > 0 {
		num, typ, rest, err := consumeTag(b)
		if err != nil {
			return err
		}
		b = rest
		switch {
		case num == 1 && typ == protowire.VarintType:
			var v uint64
			if v, b, err = consumeVarint(b); err != nil {
				return err
			}
			m.ReplayFormatVersion = uint32(v)
		case num == 2 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			m.InitialBaseline = &JoinBaseline{}
			if err = m.InitialBaseline.Unmarshal(body); err != nil {
				return err
			}
		case num == 3 && typ == protowire.Fixed64Type:
			if m.Seed, b, err = consumeFixed64(b); err != nil {
				return err
			}
		case num == 4 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			m.RNGAlgorithm = string(body)
		case num == 5 && typ == protowire.VarintType:
			var v uint64
			if v, b, err = consumeVarint(b); err != nil {
				return err
			}
			m.TickRateHz = uint32(v)
		case num == 6 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			m.StateDigestAlgoID = string(body)
		case num == 7 && typ == protowire.BytesType:
			if m.EntitySpawnOrder, b, err = consumePackedUint32(b); err != nil {
				return err
			}
		case num == 8 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			var pe PlayerEntityMapping
			if err = pe.Unmarshal(body); err != nil {
				return err
			}
			m.PlayerEntityMapping = append(m.PlayerEntityMapping, pe)
		case num == 9 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			var tp TuningParameter
			if err = tp.Unmarshal(body); err != nil {
				return err
			}
			m.TuningParameters = append(m.TuningParameters, tp)
		case num == 10 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			var ai AppliedInput
			if err = ai.Unmarshal(body); err != nil {
				return err
			}
			m.Inputs = append(m.Inputs, ai)
		case num == 11 && typ == protowire.BytesType:
			var body []byte
			if body, b, err = consumeBytes(b); err != nil {
				return err
			}
			m.BuildFingerprint = &BuildFingerprint{}
			if err = m.BuildFingerprint.Unmarshal(body); err != nil {
				return err
			}
		case num == 12 && typ == protowire.Fixed64Type:
			if m.FinalDigest, b, err = consumeFixed64(b); err != nil {
				return err
			}
		case num == 13 && typ == protowire.VarintType:
			if m.CheckpointTick, b, err = consumeVarint(b); err != nil {
				return err
			}
		case num == 14 && typ == protowire.VarintType:
			var v uint64
			if v, b, err = consumeVarint(b); err != nil {
				return err
			}
			m.EndReason = EndReason(v)
		case num == 15 && typ == protowire.VarintType:
			var v uint64
			if v, b, err = consumeVarint(b); err != nil {
				return err
			}
			m.TestMode = v != 0
		case num == 16 && typ == protowire.BytesType:
			if m.TestPlayerIDs, b, err = consumePackedUint32(b); err != nil {
				return err
			}
		default:
			if b, err = skipField(b, num, typ); err != nil {
				return err
			}
		}
	}
	return nil
}
