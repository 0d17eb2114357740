package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the model.
func (m *Model) Disassemble() string {
	return m.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable bytecode listing with a name header.
func (m *Model) DisassembleWithName(name string) string {
	var sb strings.Builder

	// Header
	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Behavior Model v%d\n", m.Version))
	sb.WriteString(fmt.Sprintf("; Flags: 0x%04X", m.Flags))
	if m.IsExtension() {
		sb.WriteString(" [EXTENSION]")
	}
	sb.WriteString("\n")

	if m.IsExtension() {
		sb.WriteString(fmt.Sprintf("; Parent: %s  Attach: %08X\n", m.Parent, m.Attach))
	}

	// Slot schema
	writeSlots := func(kind string, names []string) {
		if len(names) == 0 {
			return
		}
		sb.WriteString(fmt.Sprintf("; %s (%d): ", kind, len(names)))
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString("\n")
	}
	writeSlots("Inputs", m.Inputs)
	writeSlots("Outputs", m.Outputs)
	writeSlots("Scratch", m.Scratch)
	sb.WriteString(fmt.Sprintf("; Stack depth: %d\n", m.StackDepth))

	sb.WriteString("\n")

	// Constants
	if len(m.Consts) > 0 {
		sb.WriteString("; Constants:\n")
		for i, v := range m.Consts {
			sb.WriteString(fmt.Sprintf(";   [%3d] %g\n", i, v))
		}
		sb.WriteString("\n")
	}

	// Continuation points
	if len(m.Points) > 0 {
		sb.WriteString("; Points:\n")
		for i, p := range m.Points {
			ext := "external"
			if p.Extension >= 0 {
				ext = fmt.Sprintf("%04X", p.Extension)
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s hash=%08X timeout=%dms default=%04X ext=%s\n",
				i, p.Name, p.Hash, p.TimeoutMillis, p.Default, ext))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	offset := 0
	for offset < len(m.Code) {
		line, instrLen := m.disassembleInstruction(offset)
		sb.WriteString(fmt.Sprintf("%04X  %s\n", offset, line))
		if instrLen == 0 {
			break
		}
		offset += instrLen
	}

	return sb.String()
}

// disassembleInstruction disassembles a single instruction at the given offset.
// Returns the formatted string and the instruction length.
func (m *Model) disassembleInstruction(offset int) (string, int) {
	if offset >= len(m.Code) {
		return "<end of code>", 0
	}

	op := Opcode(m.Code[offset])
	info := GetOpcodeInfo(op)

	if offset+op.InstructionLen() > len(m.Code) {
		return fmt.Sprintf("%s <truncated>", info.Name), len(m.Code) - offset
	}

	switch op {
	case OpConst:
		idx := readUint16(m.Code, offset+1)
		if int(idx) < len(m.Consts) {
			return fmt.Sprintf("CONST %d ; %g", idx, m.Consts[idx]), 3
		}
		return fmt.Sprintf("CONST %d ; <out of range>", idx), 3

	case OpLoadInput:
		slot := m.Code[offset+1]
		return fmt.Sprintf("LOAD_INPUT %d ; %s", slot, slotName(m.Inputs, slot)), 2

	case OpLoadOutput:
		slot := m.Code[offset+1]
		return fmt.Sprintf("LOAD_OUTPUT %d ; %s", slot, slotName(m.Outputs, slot)), 2

	case OpStoreOutput:
		slot := m.Code[offset+1]
		return fmt.Sprintf("STORE_OUTPUT %d ; %s", slot, slotName(m.Outputs, slot)), 2

	case OpLoadScratch:
		slot := m.Code[offset+1]
		return fmt.Sprintf("LOAD_SCRATCH %d ; %s", slot, slotName(m.Scratch, slot)), 2

	case OpStoreScratch:
		slot := m.Code[offset+1]
		return fmt.Sprintf("STORE_SCRATCH %d ; %s", slot, slotName(m.Scratch, slot)), 2

	case OpJump, OpJumpTrue, OpJumpFalse:
		delta := readInt16(m.Code, offset+1)
		target := offset + 3 + int(delta)
		return fmt.Sprintf("%s %+d (-> %04X)", info.Name, delta, target), 3

	case OpPoint:
		idx := readUint16(m.Code, offset+1)
		if int(idx) < len(m.Points) {
			return fmt.Sprintf("POINT %d ; %s", idx, m.Points[idx].Name), 3
		}
		return fmt.Sprintf("POINT %d ; <out of range>", idx), 3

	default:
		instrLen := 1 + info.OperandLen
		if info.OperandLen == 0 {
			return info.Name, instrLen
		}

		// Format operands generically
		operands := make([]string, 0, info.OperandLen)
		for i := 0; i < info.OperandLen; i++ {
			operands = append(operands, fmt.Sprintf("0x%02X", m.Code[offset+1+i]))
		}
		return fmt.Sprintf("%s %s", info.Name, strings.Join(operands, " ")), instrLen
	}
}

// DisassembleInstruction returns a human-readable representation of a single instruction.
func (m *Model) DisassembleInstruction(offset int) string {
	line, _ := m.disassembleInstruction(offset)
	return line
}

func slotName(names []string, slot byte) string {
	if int(slot) < len(names) {
		return names[slot]
	}
	return "<out of range>"
}

// InstructionCount returns the number of instructions in the model.
// Note: This iterates through all code, so it's O(n).
func (m *Model) InstructionCount() int {
	count := 0
	offset := 0
	for offset < len(m.Code) {
		op := Opcode(m.Code[offset])
		offset += op.InstructionLen()
		count++
	}
	return count
}
