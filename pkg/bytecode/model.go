package bytecode

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
)

// ModelVersion is the current model format version.
// Increment when making incompatible changes to the format.
const ModelVersion uint16 = 1

// Magic bytes for model files: "BBMC" (Bannou Behavior Model Code)
var ModelMagic = []byte{'B', 'B', 'M', 'C'}

// ModelFlags contains flags describing a model.
type ModelFlags uint16

const (
	// FlagExtension marks the model as an extension body. Extension models
	// target a continuation point of a parent model and may not declare
	// continuation points of their own.
	FlagExtension ModelFlags = 1 << 0
)

// Point describes a named continuation point declared by a model.
// When evaluation reaches the corresponding POINT instruction the machine
// suspends and the owning actor decides how the evaluation continues.
type Point struct {
	Name          string // Point name, unique within the model
	Hash          uint32 // FNV-1a hash of Name; derived, not serialized
	TimeoutMillis uint32 // How long an extension may take to arrive
	Default       uint32 // Code offset where the default flow begins
	Extension     int32  // Code offset of a pre-linked extension flow, -1 when delivered externally
}

// NameHash returns the FNV-1a hash of a continuation point name.
// The hash is the point's wire identity: extensions address their attach
// point by hash, never by offset.
func NameHash(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// Model is a compiled behavior unit: an instruction sequence over a named
// numeric slot schema, plus the continuation point table. Models are
// immutable once verified; a machine never mutates its model.
type Model struct {
	// Header
	Version uint16     // Model format version
	Flags   ModelFlags // Model flags

	// Code section
	Code []byte // Bytecode instructions

	// Constant pool - float64 values referenced by OpConst
	Consts []float64

	// Slot schema. Slot indices are positions in these slices; names exist
	// so callers can bind perceptions and read results without hardcoding
	// indices.
	Inputs  []string // Input slot names, read-only during evaluation
	Outputs []string // Output slot names, zeroed at the start of evaluation
	Scratch []string // Scratch slot names, zeroed at the start of evaluation

	// StackDepth is the maximum operand stack depth the code can reach,
	// as declared by the producer and proven by the verifier.
	StackDepth uint8

	// Continuation points
	Points []Point

	// Extension linkage, meaningful only when FlagExtension is set.
	Parent string // Reference of the model this extension targets
	Attach uint32 // Name hash of the continuation point it replaces

	verified bool // set by Verify; machines require a verified model
}

// NewModel creates a new empty model with the current version.
func NewModel() *Model {
	return &Model{
		Version: ModelVersion,
		Code:    make([]byte, 0, 64),
		Consts:  make([]float64, 0, 8),
	}
}

// IsExtension reports whether the model is an extension body.
func (m *Model) IsExtension() bool {
	return m.Flags&FlagExtension != 0
}

// Verified reports whether the model has passed verification.
func (m *Model) Verified() bool {
	return m.verified
}

// InputSlot returns the index of the named input slot.
func (m *Model) InputSlot(name string) (int, bool) {
	for i, n := range m.Inputs {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// OutputSlot returns the index of the named output slot.
func (m *Model) OutputSlot(name string) (int, bool) {
	for i, n := range m.Outputs {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// PointByHash returns the index of the continuation point with the given
// name hash.
func (m *Model) PointByHash(hash uint32) (int, bool) {
	for i := range m.Points {
		if m.Points[i].Hash == hash {
			return i, true
		}
	}
	return 0, false
}

// PointByName returns the index of the named continuation point.
func (m *Model) PointByName(name string) (int, bool) {
	for i := range m.Points {
		if m.Points[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// CodeLen returns the length of the code section.
func (m *Model) CodeLen() int {
	return len(m.Code)
}

// Serialize encodes the model to bytes for storage/transport.
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[code_len:4] [code:...]
//	[const_count:2] [consts: 8 bytes each, IEEE 754 bits]
//	[input_count:1] [input_names:...]
//	[output_count:1] [output_names:...]
//	[scratch_count:1] [scratch_names:...]
//	[stack_depth:1]
//	[point_count:1] [points:...]
//	[parent_len:1] [parent:...] [attach:4]
func (m *Model) Serialize() ([]byte, error) {
	if len(m.Consts) > math.MaxUint16 {
		return nil, fmt.Errorf("constant pool too large: %d entries", len(m.Consts))
	}
	if len(m.Inputs) > math.MaxUint8 || len(m.Outputs) > math.MaxUint8 || len(m.Scratch) > math.MaxUint8 {
		return nil, fmt.Errorf("slot schema too large: %d/%d/%d slots", len(m.Inputs), len(m.Outputs), len(m.Scratch))
	}
	if len(m.Points) > math.MaxUint8 {
		return nil, fmt.Errorf("too many continuation points: %d", len(m.Points))
	}

	estimatedSize := 16 + len(m.Code) + len(m.Consts)*8 + len(m.Points)*24 + 64
	buf := make([]byte, 0, estimatedSize)

	// Magic number: "BBMC"
	buf = append(buf, ModelMagic...)

	// Version and flags
	buf = binary.BigEndian.AppendUint16(buf, m.Version)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Flags))

	// Code section
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Code)))
	buf = append(buf, m.Code...)

	// Constants
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(m.Consts)))
	for _, v := range m.Consts {
		buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
	}

	// Slot schema
	for _, names := range [][]string{m.Inputs, m.Outputs, m.Scratch} {
		buf = append(buf, byte(len(names)))
		for _, name := range names {
			if len(name) > math.MaxUint8 {
				return nil, fmt.Errorf("slot name too long: %q", name)
			}
			buf = append(buf, byte(len(name)))
			buf = append(buf, name...)
		}
	}

	// Stack depth
	buf = append(buf, m.StackDepth)

	// Continuation points
	buf = append(buf, byte(len(m.Points)))
	for _, p := range m.Points {
		if len(p.Name) > math.MaxUint8 {
			return nil, fmt.Errorf("point name too long: %q", p.Name)
		}
		buf = append(buf, byte(len(p.Name)))
		buf = append(buf, p.Name...)
		buf = binary.BigEndian.AppendUint32(buf, p.TimeoutMillis)
		buf = binary.BigEndian.AppendUint32(buf, p.Default)
		buf = binary.BigEndian.AppendUint32(buf, uint32(p.Extension))
	}

	// Extension linkage
	if len(m.Parent) > math.MaxUint8 {
		return nil, fmt.Errorf("parent reference too long: %q", m.Parent)
	}
	buf = append(buf, byte(len(m.Parent)))
	buf = append(buf, m.Parent...)
	buf = binary.BigEndian.AppendUint32(buf, m.Attach)

	return buf, nil
}

// Deserialize decodes a model from bytes. The result is not yet verified;
// callers must run Verify (or construct a Machine, which verifies) before
// evaluating it.
func Deserialize(data []byte) (*Model, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("model too short: need at least 8 bytes, got %d", len(data))
	}

	// Check magic
	if string(data[0:4]) != string(ModelMagic) {
		return nil, fmt.Errorf("invalid model magic: expected %q, got %q", ModelMagic, data[0:4])
	}

	m := &Model{
		Version: binary.BigEndian.Uint16(data[4:6]),
		Flags:   ModelFlags(binary.BigEndian.Uint16(data[6:8])),
	}

	pos := 8

	// Version check
	if m.Version > ModelVersion {
		return nil, fmt.Errorf("model version %d is newer than supported version %d", m.Version, ModelVersion)
	}

	// Code section
	if pos+4 > len(data) {
		return nil, fmt.Errorf("unexpected end of model reading code length at pos %d", pos)
	}
	codeLen := binary.BigEndian.Uint32(data[pos:])
	pos += 4

	if pos+int(codeLen) > len(data) {
		return nil, fmt.Errorf("unexpected end of model reading code section: need %d bytes at pos %d", codeLen, pos)
	}
	m.Code = make([]byte, codeLen)
	copy(m.Code, data[pos:pos+int(codeLen)])
	pos += int(codeLen)

	// Constants
	if pos+2 > len(data) {
		return nil, fmt.Errorf("unexpected end of model reading constant count")
	}
	constCount := binary.BigEndian.Uint16(data[pos:])
	pos += 2

	m.Consts = make([]float64, constCount)
	for i := range m.Consts {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("unexpected end of model reading constant %d", i)
		}
		m.Consts[i] = math.Float64frombits(binary.BigEndian.Uint64(data[pos:]))
		pos += 8
	}

	// Slot schema
	for _, dst := range []*[]string{&m.Inputs, &m.Outputs, &m.Scratch} {
		if pos >= len(data) {
			return nil, fmt.Errorf("unexpected end of model reading slot count")
		}
		count := data[pos]
		pos++

		names := make([]string, count)
		for i := range names {
			if pos >= len(data) {
				return nil, fmt.Errorf("unexpected end of model reading slot %d name length", i)
			}
			nameLen := data[pos]
			pos++

			if pos+int(nameLen) > len(data) {
				return nil, fmt.Errorf("unexpected end of model reading slot %d name", i)
			}
			names[i] = string(data[pos : pos+int(nameLen)])
			pos += int(nameLen)
		}
		*dst = names
	}

	// Stack depth
	if pos >= len(data) {
		return nil, fmt.Errorf("unexpected end of model reading stack depth")
	}
	m.StackDepth = data[pos]
	pos++

	// Continuation points
	if pos >= len(data) {
		return nil, fmt.Errorf("unexpected end of model reading point count")
	}
	pointCount := data[pos]
	pos++

	m.Points = make([]Point, pointCount)
	for i := range m.Points {
		if pos >= len(data) {
			return nil, fmt.Errorf("unexpected end of model reading point %d name length", i)
		}
		nameLen := data[pos]
		pos++

		if pos+int(nameLen)+12 > len(data) {
			return nil, fmt.Errorf("unexpected end of model reading point %d", i)
		}
		m.Points[i].Name = string(data[pos : pos+int(nameLen)])
		pos += int(nameLen)

		m.Points[i].Hash = NameHash(m.Points[i].Name)
		m.Points[i].TimeoutMillis = binary.BigEndian.Uint32(data[pos:])
		pos += 4
		m.Points[i].Default = binary.BigEndian.Uint32(data[pos:])
		pos += 4
		m.Points[i].Extension = int32(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
	}

	// Extension linkage
	if pos >= len(data) {
		return nil, fmt.Errorf("unexpected end of model reading parent reference length")
	}
	parentLen := data[pos]
	pos++

	if pos+int(parentLen)+4 > len(data) {
		return nil, fmt.Errorf("unexpected end of model reading extension linkage")
	}
	m.Parent = string(data[pos : pos+int(parentLen)])
	pos += int(parentLen)

	m.Attach = binary.BigEndian.Uint32(data[pos:])

	return m, nil
}
