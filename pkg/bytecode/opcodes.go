package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Stack manipulation (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpPop  Opcode = 0x01 // Pop top of stack
	OpDup  Opcode = 0x02 // Duplicate top of stack
	OpSwap Opcode = 0x03 // Swap top two stack elements

	// ========================================================================
	// Constants (0x10-0x1F)
	// ========================================================================

	OpConst Opcode = 0x10 // Push constant from pool: OpConst <index:u16>
	OpZero  Opcode = 0x11 // Push 0
	OpOne   Opcode = 0x12 // Push 1

	// ========================================================================
	// Slot access (0x20-0x2F)
	// ========================================================================

	OpLoadInput    Opcode = 0x20 // Push input slot value: OpLoadInput <slot:u8>
	OpLoadOutput   Opcode = 0x21 // Push output slot value: OpLoadOutput <slot:u8>
	OpStoreOutput  Opcode = 0x22 // Pop and store to output slot: OpStoreOutput <slot:u8>
	OpLoadScratch  Opcode = 0x23 // Push scratch slot value: OpLoadScratch <slot:u8>
	OpStoreScratch Opcode = 0x24 // Pop and store to scratch slot: OpStoreScratch <slot:u8>

	// ========================================================================
	// Arithmetic (0x30-0x3F)
	// ========================================================================

	OpAdd   Opcode = 0x30 // Pop two, push sum
	OpSub   Opcode = 0x31 // Pop two, push difference (a - b where b is TOS)
	OpMul   Opcode = 0x32 // Pop two, push product
	OpDiv   Opcode = 0x33 // Pop two, push quotient; division by zero pushes 0
	OpMod   Opcode = 0x34 // Pop two, push remainder; zero divisor pushes 0
	OpNeg   Opcode = 0x35 // Negate top of stack
	OpAbs   Opcode = 0x36 // Absolute value of top of stack
	OpMin   Opcode = 0x37 // Pop two, push smaller
	OpMax   Opcode = 0x38 // Pop two, push larger
	OpFloor Opcode = 0x39 // Round top of stack toward negative infinity
	OpCeil  Opcode = 0x3A // Round top of stack toward positive infinity
	OpClamp Opcode = 0x3B // Pop hi, lo, x; push x clamped to [lo, hi]

	// ========================================================================
	// Comparison (0x40-0x47)
	// ========================================================================

	OpEq Opcode = 0x40 // Pop two, push 1 if equal, 0 otherwise
	OpNe Opcode = 0x41 // Pop two, push 1 if not equal
	OpLt Opcode = 0x42 // Pop two, push 1 if a < b
	OpLe Opcode = 0x43 // Pop two, push 1 if a <= b
	OpGt Opcode = 0x44 // Pop two, push 1 if a > b
	OpGe Opcode = 0x45 // Pop two, push 1 if a >= b

	// ========================================================================
	// Logical operations (0x48-0x4F)
	// ========================================================================

	OpNot Opcode = 0x48 // Push 1 if top is zero, 0 otherwise
	OpAnd Opcode = 0x49 // Pop two, push 1 if both nonzero
	OpOr  Opcode = 0x4A // Pop two, push 1 if either nonzero

	// ========================================================================
	// Control flow (0x50-0x5F)
	// ========================================================================

	OpJump      Opcode = 0x50 // Unconditional jump: OpJump <offset:i16>
	OpJumpTrue  Opcode = 0x51 // Jump if top is nonzero: OpJumpTrue <offset:i16>
	OpJumpFalse Opcode = 0x52 // Jump if top is zero: OpJumpFalse <offset:i16>

	// ========================================================================
	// Randomness (0x60-0x6F)
	// ========================================================================

	OpRand Opcode = 0x60 // Push uniform value in [0, 1) from the seeded generator

	// ========================================================================
	// Continuation (0x70-0x7F)
	// ========================================================================

	OpPoint Opcode = 0x70 // Suspend at continuation point: OpPoint <point:u16>

	// ========================================================================
	// Halt (0xF0-0xFF)
	// ========================================================================

	OpHalt Opcode = 0xF0 // End evaluation; output slots hold the result
)

// OpcodeInfo provides metadata about each opcode for verification,
// disassembly, and debugging.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Stack manipulation
	OpNop:  {"NOP", 0, 0, 0},
	OpPop:  {"POP", 1, 0, 0},
	OpDup:  {"DUP", 1, 2, 0},
	OpSwap: {"SWAP", 2, 2, 0},

	// Constants
	OpConst: {"CONST", 0, 1, 2},
	OpZero:  {"ZERO", 0, 1, 0},
	OpOne:   {"ONE", 0, 1, 0},

	// Slot access
	OpLoadInput:    {"LOAD_INPUT", 0, 1, 1},
	OpLoadOutput:   {"LOAD_OUTPUT", 0, 1, 1},
	OpStoreOutput:  {"STORE_OUTPUT", 1, 0, 1},
	OpLoadScratch:  {"LOAD_SCRATCH", 0, 1, 1},
	OpStoreScratch: {"STORE_SCRATCH", 1, 0, 1},

	// Arithmetic
	OpAdd:   {"ADD", 2, 1, 0},
	OpSub:   {"SUB", 2, 1, 0},
	OpMul:   {"MUL", 2, 1, 0},
	OpDiv:   {"DIV", 2, 1, 0},
	OpMod:   {"MOD", 2, 1, 0},
	OpNeg:   {"NEG", 1, 1, 0},
	OpAbs:   {"ABS", 1, 1, 0},
	OpMin:   {"MIN", 2, 1, 0},
	OpMax:   {"MAX", 2, 1, 0},
	OpFloor: {"FLOOR", 1, 1, 0},
	OpCeil:  {"CEIL", 1, 1, 0},
	OpClamp: {"CLAMP", 3, 1, 0},

	// Comparison
	OpEq: {"EQ", 2, 1, 0},
	OpNe: {"NE", 2, 1, 0},
	OpLt: {"LT", 2, 1, 0},
	OpLe: {"LE", 2, 1, 0},
	OpGt: {"GT", 2, 1, 0},
	OpGe: {"GE", 2, 1, 0},

	// Logical
	OpNot: {"NOT", 1, 1, 0},
	OpAnd: {"AND", 2, 1, 0},
	OpOr:  {"OR", 2, 1, 0},

	// Control flow
	OpJump:      {"JUMP", 0, 0, 2},
	OpJumpTrue:  {"JUMP_TRUE", 1, 0, 2},
	OpJumpFalse: {"JUMP_FALSE", 1, 0, 2},

	// Randomness
	OpRand: {"RAND", 0, 1, 0},

	// Continuation
	OpPoint: {"POINT", 0, 0, 2},

	// Halt
	OpHalt: {"HALT", 0, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), StackPop: 0, StackPush: 0, OperandLen: 0}
}

// IsValid reports whether the opcode is defined.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op >= OpJump && op <= OpJumpFalse
}

// IsTerminal returns true if this opcode ends evaluation outright.
func (op Opcode) IsTerminal() bool {
	return op == OpHalt
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
