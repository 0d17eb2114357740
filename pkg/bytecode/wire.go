package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode holds CBOR encoding options with canonical mode for
// deterministic encoding.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// StateVersion is the current machine state format version.
// Increment when making incompatible changes to MachineState.
const StateVersion uint16 = 1

// MachineState is the serializable frozen state of a machine: slot
// contents, RNG position, and the pending continuation point if any.
//
// Two things are deliberately absent. The operand stack is always empty at
// a continuation point (the verifier enforces it), and the resume offset
// comes from the model's point table, so neither the stack nor the
// instruction pointer needs to survive a restart.
type MachineState struct {
	Version   uint16    `cbor:"1,keyasint"`
	Paused    bool      `cbor:"2,keyasint,omitempty"`
	Pending   uint16    `cbor:"3,keyasint,omitempty"` // point index, meaningful while paused
	Input     []float64 `cbor:"4,keyasint,omitempty"` // bound input vector, kept while paused
	Output    []float64 `cbor:"5,keyasint,omitempty"`
	Scratch   []float64 `cbor:"6,keyasint,omitempty"`
	Seed      int64     `cbor:"7,keyasint"`
	RandCount uint64    `cbor:"8,keyasint,omitempty"`
}

// MarshalState serializes a MachineState to CBOR bytes.
func MarshalState(st *MachineState) ([]byte, error) {
	return cborEncMode.Marshal(st)
}

// UnmarshalState deserializes a MachineState from CBOR bytes.
func UnmarshalState(data []byte) (*MachineState, error) {
	var st MachineState
	if err := cbor.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal machine state: %w", err)
	}
	return &st, nil
}

// Snapshot captures the machine's current state. The returned state owns
// its slices; the machine can keep running afterwards.
func (m *Machine) Snapshot() MachineState {
	st := MachineState{
		Version:   StateVersion,
		Paused:    m.paused,
		Output:    append([]float64(nil), m.out...),
		Scratch:   append([]float64(nil), m.scratch...),
		Seed:      m.seed,
		RandCount: m.rngCount,
	}
	if m.paused {
		st.Pending = uint16(m.pending)
		st.Input = append([]float64(nil), m.in...)
	}
	return st
}

// Restore rewinds the machine to a previously captured state. The machine
// must back the same model the state was captured from; slot counts are
// checked, content equivalence is the caller's responsibility (model
// references are compared upstream).
//
// The RNG is reseeded and replayed to its captured position, so a restored
// evaluation draws the same values the original would have.
func (m *Machine) Restore(st *MachineState) error {
	if st.Version > StateVersion {
		return fmt.Errorf("machine state version %d is newer than supported version %d", st.Version, StateVersion)
	}
	if len(st.Output) != len(m.out) {
		return fmt.Errorf("state has %d output slots, model declares %d", len(st.Output), len(m.out))
	}
	if len(st.Scratch) != len(m.scratch) {
		return fmt.Errorf("state has %d scratch slots, model declares %d", len(st.Scratch), len(m.scratch))
	}
	if st.Paused {
		if int(st.Pending) >= len(m.model.Points) {
			return fmt.Errorf("state pending point %d out of range (%d declared)", st.Pending, len(m.model.Points))
		}
		if len(st.Input) != len(m.model.Inputs) {
			return fmt.Errorf("state has %d input values, model declares %d slots", len(st.Input), len(m.model.Inputs))
		}
	}

	copy(m.out, st.Output)
	copy(m.scratch, st.Scratch)
	m.paused = st.Paused
	m.pending = int(st.Pending)
	m.ext = nil
	m.code = m.model.Code
	m.consts = m.model.Consts
	if st.Paused {
		m.in = append([]float64(nil), st.Input...)
	}

	m.seed = st.Seed
	m.rng = newReplayedRand(st.Seed, st.RandCount)
	m.rngCount = st.RandCount

	return nil
}
