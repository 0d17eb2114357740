package bytecode

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
)

// Status reports how an evaluation ended.
type Status uint8

const (
	// StatusComplete means evaluation reached HALT; the output vector is final.
	StatusComplete Status = iota

	// StatusPaused means evaluation stopped at a continuation point and must
	// be resumed with ResumeWithDefault or ResumeWithExtension.
	StatusPaused
)

// String returns a human-readable name for Status.
func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Result is the outcome of Evaluate or a resume call.
type Result struct {
	Status Status
	Output []float64 // Aliases the machine's output buffer; copy to retain past the next evaluation
	Point  *Point    // The pending continuation point when Status is StatusPaused
}

var (
	// ErrNotPaused is returned by resume calls on a machine that is not
	// suspended at a continuation point.
	ErrNotPaused = errors.New("machine is not paused at a continuation point")

	// ErrPaused is returned by Evaluate while a paused evaluation is still
	// pending. Resume it or call Reset first.
	ErrPaused = errors.New("machine is paused mid-evaluation")

	// ErrIncompatible is returned when an extension cannot run against the
	// paused machine: wrong attach point, or a slot schema that does not
	// match the parent model's.
	ErrIncompatible = errors.New("extension incompatible with paused evaluation")
)

// Machine evaluates a verified model. All working memory is allocated at
// construction; Evaluate and ResumeWithDefault perform no allocation.
// A machine is not safe for concurrent use — each actor owns its own.
type Machine struct {
	model *Model

	// Active code and constant pool. Normally the model's own; swapped to
	// an extension body while one is executing.
	code   []byte
	consts []float64

	stack   []float64
	sp      int
	pc      int
	in      []float64 // caller's input vector, read-only during evaluation
	out     []float64
	scratch []float64

	rng      *rand.Rand
	seed     int64
	rngCount uint64 // draws so far; replayed on state restore

	paused  bool
	pending int    // index into model.Points while paused
	ext     *Model // extension currently or last executed, nil otherwise
}

// NewMachine creates a machine for the given model, verifying it first if
// needed. The seed fixes the RAND instruction stream: the same model, input,
// and seed always produce the same output.
func NewMachine(m *Model, seed int64) (*Machine, error) {
	if !m.Verified() {
		if err := Verify(m); err != nil {
			return nil, err
		}
	}

	stackSize := int(m.StackDepth)
	if stackSize == 0 {
		stackSize = 1
	}

	return &Machine{
		model:   m,
		code:    m.Code,
		consts:  m.Consts,
		stack:   make([]float64, stackSize),
		out:     make([]float64, len(m.Outputs)),
		scratch: make([]float64, len(m.Scratch)),
		rng:     rand.New(rand.NewSource(seed)),
		seed:    seed,
	}, nil
}

// Model returns the model backing this machine.
func (m *Machine) Model() *Model {
	return m.model
}

// Paused reports whether the machine is suspended at a continuation point.
func (m *Machine) Paused() bool {
	return m.paused
}

// PendingPoint returns the continuation point the machine is suspended at.
func (m *Machine) PendingPoint() (*Point, bool) {
	if !m.paused {
		return nil, false
	}
	return &m.model.Points[m.pending], true
}

// Reset abandons any paused evaluation. Slot contents are cleared by the
// next Evaluate; the RNG keeps its position.
func (m *Machine) Reset() {
	m.paused = false
	m.ext = nil
	m.code = m.model.Code
	m.consts = m.model.Consts
}

// Evaluate runs the model over the given input vector until it halts or
// suspends at a continuation point. The input slice is read-only and must
// stay valid until the evaluation completes or the machine is reset; it is
// never modified.
func (m *Machine) Evaluate(input []float64) (Result, error) {
	if m.paused {
		return Result{}, ErrPaused
	}
	if len(input) != len(m.model.Inputs) {
		return Result{}, fmt.Errorf("input vector has %d values, model declares %d slots", len(input), len(m.model.Inputs))
	}

	m.in = input
	m.pc = 0
	m.sp = 0
	m.ext = nil
	m.code = m.model.Code
	m.consts = m.model.Consts
	for i := range m.out {
		m.out[i] = 0
	}
	for i := range m.scratch {
		m.scratch[i] = 0
	}

	return m.run()
}

// ResumeWithDefault continues a paused evaluation at the pending point's
// default flow, as if no extension was ever offered.
func (m *Machine) ResumeWithDefault() (Result, error) {
	if !m.paused {
		return Result{}, ErrNotPaused
	}

	m.paused = false
	m.pc = int(m.model.Points[m.pending].Default)
	m.sp = 0
	return m.run()
}

// ResumeWithExtension runs an extension body over the paused evaluation's
// slot vector, replacing the remainder of the evaluation. The extension
// must target the pending point and its slot schema must be a prefix of
// the parent model's. Extensions contain no continuation points, so the
// result is always complete.
func (m *Machine) ResumeWithExtension(ext *Model) (Result, error) {
	if !m.paused {
		return Result{}, ErrNotPaused
	}
	if !ext.IsExtension() {
		return Result{}, fmt.Errorf("%w: model is not an extension body", ErrIncompatible)
	}
	if !ext.Verified() {
		if err := Verify(ext); err != nil {
			return Result{}, err
		}
	}
	if want := m.model.Points[m.pending].Hash; ext.Attach != want {
		return Result{}, fmt.Errorf("%w: extension targets point %08x, pending point is %q (%08x)",
			ErrIncompatible, ext.Attach, m.model.Points[m.pending].Name, want)
	}
	if err := compatibleSchema(m.model, ext); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}

	// Attach is off the hot path; growing the stack here is fine.
	if int(ext.StackDepth) > len(m.stack) {
		m.stack = make([]float64, ext.StackDepth)
	}

	m.paused = false
	m.ext = ext
	m.code = ext.Code
	m.consts = ext.Consts
	m.pc = 0
	m.sp = 0
	return m.run()
}

// compatibleSchema checks that the extension's slot schema is a prefix of
// the parent's: slot access binds by index, so every slot the extension
// declares must exist in the parent under the same name.
func compatibleSchema(parent, ext *Model) error {
	if err := prefixSchema("input", parent.Inputs, ext.Inputs); err != nil {
		return err
	}
	if err := prefixSchema("output", parent.Outputs, ext.Outputs); err != nil {
		return err
	}
	return prefixSchema("scratch", parent.Scratch, ext.Scratch)
}

func prefixSchema(kind string, have, want []string) error {
	if len(want) > len(have) {
		return fmt.Errorf("extension declares %d %s slots, model has %d", len(want), kind, len(have))
	}
	for i := range want {
		if want[i] != have[i] {
			return fmt.Errorf("%s slot %d is %q in extension, %q in model", kind, i, want[i], have[i])
		}
	}
	return nil
}

// run is the main execution loop. The verifier has proven every reachable
// instruction well-formed, so operand and stack accesses are unchecked.
func (m *Machine) run() (Result, error) {
	for {
		op := Opcode(m.code[m.pc])
		m.pc++

		switch op {
		// ============ Stack Operations ============
		case OpNop:
			// Do nothing

		case OpPop:
			m.sp--

		case OpDup:
			m.stack[m.sp] = m.stack[m.sp-1]
			m.sp++

		case OpSwap:
			m.stack[m.sp-1], m.stack[m.sp-2] = m.stack[m.sp-2], m.stack[m.sp-1]

		// ============ Constants ============
		case OpConst:
			idx := readUint16(m.code, m.pc)
			m.pc += 2
			m.push(m.consts[idx])

		case OpZero:
			m.push(0)

		case OpOne:
			m.push(1)

		// ============ Slot Access ============
		case OpLoadInput:
			slot := m.code[m.pc]
			m.pc++
			m.push(m.in[slot])

		case OpLoadOutput:
			slot := m.code[m.pc]
			m.pc++
			m.push(m.out[slot])

		case OpStoreOutput:
			slot := m.code[m.pc]
			m.pc++
			m.out[slot] = m.pop()

		case OpLoadScratch:
			slot := m.code[m.pc]
			m.pc++
			m.push(m.scratch[slot])

		case OpStoreScratch:
			slot := m.code[m.pc]
			m.pc++
			m.scratch[slot] = m.pop()

		// ============ Arithmetic ============
		case OpAdd:
			b := m.pop()
			a := m.pop()
			m.push(a + b)

		case OpSub:
			b := m.pop()
			a := m.pop()
			m.push(a - b)

		case OpMul:
			b := m.pop()
			a := m.pop()
			m.push(a * b)

		case OpDiv:
			b := m.pop()
			a := m.pop()
			if b == 0 {
				m.push(0)
			} else {
				m.push(a / b)
			}

		case OpMod:
			b := m.pop()
			a := m.pop()
			if b == 0 {
				m.push(0)
			} else {
				m.push(math.Mod(a, b))
			}

		case OpNeg:
			m.stack[m.sp-1] = -m.stack[m.sp-1]

		case OpAbs:
			m.stack[m.sp-1] = math.Abs(m.stack[m.sp-1])

		case OpMin:
			b := m.pop()
			a := m.pop()
			m.push(math.Min(a, b))

		case OpMax:
			b := m.pop()
			a := m.pop()
			m.push(math.Max(a, b))

		case OpFloor:
			m.stack[m.sp-1] = math.Floor(m.stack[m.sp-1])

		case OpCeil:
			m.stack[m.sp-1] = math.Ceil(m.stack[m.sp-1])

		case OpClamp:
			hi := m.pop()
			lo := m.pop()
			x := m.pop()
			if x < lo {
				x = lo
			}
			if x > hi {
				x = hi
			}
			m.push(x)

		// ============ Comparison ============
		case OpEq:
			b := m.pop()
			a := m.pop()
			m.pushBool(a == b)

		case OpNe:
			b := m.pop()
			a := m.pop()
			m.pushBool(a != b)

		case OpLt:
			b := m.pop()
			a := m.pop()
			m.pushBool(a < b)

		case OpLe:
			b := m.pop()
			a := m.pop()
			m.pushBool(a <= b)

		case OpGt:
			b := m.pop()
			a := m.pop()
			m.pushBool(a > b)

		case OpGe:
			b := m.pop()
			a := m.pop()
			m.pushBool(a >= b)

		// ============ Logical ============
		case OpNot:
			m.pushBool(m.pop() == 0)

		case OpAnd:
			b := m.pop()
			a := m.pop()
			m.pushBool(a != 0 && b != 0)

		case OpOr:
			b := m.pop()
			a := m.pop()
			m.pushBool(a != 0 || b != 0)

		// ============ Control Flow ============
		case OpJump:
			delta := int(readInt16(m.code, m.pc))
			m.pc += 2 + delta

		case OpJumpTrue:
			delta := int(readInt16(m.code, m.pc))
			m.pc += 2
			if m.pop() != 0 {
				m.pc += delta
			}

		case OpJumpFalse:
			delta := int(readInt16(m.code, m.pc))
			m.pc += 2
			if m.pop() == 0 {
				m.pc += delta
			}

		// ============ Randomness ============
		case OpRand:
			m.rngCount++
			m.push(m.rng.Float64())

		// ============ Continuation ============
		case OpPoint:
			idx := readUint16(m.code, m.pc)
			m.pc += 2
			m.paused = true
			m.pending = int(idx)
			return Result{Status: StatusPaused, Output: m.out, Point: &m.model.Points[idx]}, nil

		// ============ Halt ============
		case OpHalt:
			return Result{Status: StatusComplete, Output: m.out}, nil

		default:
			// Unreachable on a verified model.
			return Result{}, corruptf(m.pc-1, "unknown opcode 0x%02X reached evaluation", byte(op))
		}
	}
}

func (m *Machine) push(v float64) {
	m.stack[m.sp] = v
	m.sp++
}

func (m *Machine) pop() float64 {
	m.sp--
	return m.stack[m.sp]
}

func (m *Machine) pushBool(b bool) {
	if b {
		m.push(1)
	} else {
		m.push(0)
	}
}

// newReplayedRand returns a generator seeded with seed and advanced past
// count draws, matching the position of a generator that already made them.
func newReplayedRand(seed int64, count uint64) *rand.Rand {
	r := rand.New(rand.NewSource(seed))
	for i := uint64(0); i < count; i++ {
		r.Float64()
	}
	return r
}
