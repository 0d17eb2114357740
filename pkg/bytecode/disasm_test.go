package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleListing(t *testing.T) {
	m := buildModel(t, func(b *Builder) {
		in := b.Input("energy")
		out := b.Output("mood")
		b.EmitSlot(OpLoadInput, in)
		b.EmitConst(0.5)
		b.Emit(OpMul)
		b.EmitSlot(OpStoreOutput, out)
		b.EmitPoint("decide", 2000)
		b.BindDefault("decide")
		b.Emit(OpHalt)
	})

	listing := m.DisassembleWithName("npc/guard")

	for _, want := range []string{
		"; === npc/guard ===",
		"; Behavior Model v1",
		"LOAD_INPUT 0 ; energy",
		"CONST 0 ; 0.5",
		"STORE_OUTPUT 0 ; mood",
		"POINT 0 ; decide",
		"timeout=2000ms",
		"HALT",
	} {
		if !strings.Contains(listing, want) {
			t.Errorf("Listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleJumpTarget(t *testing.T) {
	m := buildModel(t, func(b *Builder) {
		b.Emit(OpZero)
		skip := b.EmitJump(OpJumpFalse)
		b.Emit(OpNop)
		b.PatchJump(skip)
		b.Emit(OpHalt)
	})

	listing := m.Disassemble()
	if !strings.Contains(listing, "JUMP_FALSE +1 (-> 0005)") {
		t.Errorf("Expected resolved jump target in listing:\n%s", listing)
	}
}

func TestInstructionCount(t *testing.T) {
	m := buildModel(t, func(b *Builder) {
		b.EmitConst(1) // 3 bytes
		b.Emit(OpPop)  // 1 byte
		b.Emit(OpHalt) // 1 byte
	})

	if got := m.InstructionCount(); got != 3 {
		t.Errorf("Expected 3 instructions, got %d", got)
	}
}
