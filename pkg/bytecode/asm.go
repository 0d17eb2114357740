package bytecode

import "fmt"

// Builder assembles a Model instruction by instruction. It is used by the
// tooling and by tests; the service itself only loads models that were
// compiled elsewhere.
//
// The zero Builder is not usable; call NewBuilder.
type Builder struct {
	m       *Model
	unbound map[string]bool // declared points whose default flow is not yet bound
}

// NewBuilder creates a builder for an empty model.
func NewBuilder() *Builder {
	return &Builder{
		m:       NewModel(),
		unbound: make(map[string]bool),
	}
}

// Extension marks the model under construction as an extension body
// targeting the named continuation point of the given parent model.
func (b *Builder) Extension(parent, attachPoint string) *Builder {
	b.m.Flags |= FlagExtension
	b.m.Parent = parent
	b.m.Attach = NameHash(attachPoint)
	return b
}

// Input declares an input slot and returns its index.
// Declaring the same name twice returns the existing index.
func (b *Builder) Input(name string) uint8 {
	return declareSlot(&b.m.Inputs, name)
}

// Output declares an output slot and returns its index.
func (b *Builder) Output(name string) uint8 {
	return declareSlot(&b.m.Outputs, name)
}

// Scratch declares a scratch slot and returns its index.
func (b *Builder) Scratch(name string) uint8 {
	return declareSlot(&b.m.Scratch, name)
}

func declareSlot(names *[]string, name string) uint8 {
	for i, n := range *names {
		if n == name {
			return uint8(i)
		}
	}
	idx := uint8(len(*names))
	*names = append(*names, name)
	return idx
}

// Const adds a constant to the pool and returns its index.
// If the constant already exists, returns the existing index.
func (b *Builder) Const(v float64) uint16 {
	for i, c := range b.m.Consts {
		if c == v {
			return uint16(i)
		}
	}
	idx := uint16(len(b.m.Consts))
	b.m.Consts = append(b.m.Consts, v)
	return idx
}

// Emit appends a single-byte opcode to the code section.
func (b *Builder) Emit(op Opcode) int {
	offset := len(b.m.Code)
	b.m.Code = append(b.m.Code, byte(op))
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (b *Builder) EmitWithOperand(op Opcode, operands ...byte) int {
	offset := len(b.m.Code)
	b.m.Code = append(b.m.Code, byte(op))
	b.m.Code = append(b.m.Code, operands...)
	return offset
}

// EmitConst emits an OpConst instruction for the given value.
// Adds the constant to the pool if not already present.
func (b *Builder) EmitConst(v float64) int {
	idx := b.Const(v)
	return b.EmitWithOperand(OpConst, byte(idx>>8), byte(idx))
}

// EmitSlot emits a slot access instruction with its slot operand.
func (b *Builder) EmitSlot(op Opcode, slot uint8) int {
	return b.EmitWithOperand(op, slot)
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (b *Builder) EmitJump(op Opcode) int {
	offset := len(b.m.Code)
	b.m.Code = append(b.m.Code, byte(op), 0xFF, 0xFF) // Placeholder
	return offset + 1                                 // Return offset of the placeholder bytes
}

// PatchJump patches a jump instruction's offset to jump to the current position.
func (b *Builder) PatchJump(placeholderOffset int) {
	// Relative jump is measured from after the 2-byte offset
	jumpFrom := placeholderOffset + 2
	jumpTo := len(b.m.Code)
	delta := jumpTo - jumpFrom

	b.m.Code[placeholderOffset] = byte(delta >> 8)
	b.m.Code[placeholderOffset+1] = byte(delta)
}

// EmitLoop emits a backward jump to the given loop start.
func (b *Builder) EmitLoop(loopStart int) {
	// Jump goes backward, so delta is negative
	jumpFrom := len(b.m.Code) + 3 // After this instruction
	delta := loopStart - jumpFrom

	b.m.Code = append(b.m.Code, byte(OpJump))
	b.m.Code = append(b.m.Code, byte(delta>>8), byte(delta))
}

// EmitPoint declares a continuation point and emits its POINT instruction.
// The point's default flow begins wherever BindDefault is later called;
// conventionally that is the very next instruction.
func (b *Builder) EmitPoint(name string, timeoutMillis uint32) int {
	idx := uint16(len(b.m.Points))
	b.m.Points = append(b.m.Points, Point{
		Name:          name,
		Hash:          NameHash(name),
		TimeoutMillis: timeoutMillis,
		Extension:     -1,
	})
	b.unbound[name] = true
	return b.EmitWithOperand(OpPoint, byte(idx>>8), byte(idx))
}

// BindDefault sets the named point's default flow to the current offset.
func (b *Builder) BindDefault(name string) {
	for i := range b.m.Points {
		if b.m.Points[i].Name == name {
			b.m.Points[i].Default = uint32(len(b.m.Code))
			delete(b.unbound, name)
			return
		}
	}
}

// CurrentOffset returns the current offset in the code section.
func (b *Builder) CurrentOffset() int {
	return len(b.m.Code)
}

// Build finalizes the model: computes the stack depth from the code,
// verifies the result, and returns it ready for evaluation.
func (b *Builder) Build() (*Model, error) {
	for name := range b.unbound {
		return nil, fmt.Errorf("continuation point %q has no default flow bound", name)
	}

	depth, err := measureStackDepth(b.m)
	if err != nil {
		return nil, err
	}
	if depth > 255 {
		return nil, fmt.Errorf("stack depth %d exceeds format limit", depth)
	}
	b.m.StackDepth = uint8(depth)

	if err := Verify(b.m); err != nil {
		return nil, err
	}
	return b.m, nil
}
