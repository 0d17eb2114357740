package bytecode

import "fmt"

// CorruptError reports a model rejected by verification. Corruption is a
// load-time failure: a model that passes verification cannot fault during
// evaluation, so the machine's instruction loop runs without per-instruction
// checks.
type CorruptError struct {
	Offset int    // Code offset of the violation, -1 when structural
	Reason string
}

func (e *CorruptError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("corrupt model at offset %d: %s", e.Offset, e.Reason)
	}
	return "corrupt model: " + e.Reason
}

func corruptf(offset int, format string, args ...interface{}) error {
	return &CorruptError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Verify validates a model completely. It checks every instruction, every
// operand, every jump target, and simulates stack depth along all paths
// against the declared bound. On success the model is marked verified and
// may back any number of machines.
func Verify(m *Model) error {
	if err := verifyStructure(m); err != nil {
		return err
	}

	boundaries, err := decodeBoundaries(m)
	if err != nil {
		return err
	}

	if err := verifyPoints(m, boundaries); err != nil {
		return err
	}

	if _, err := simulateStack(m, boundaries, int(m.StackDepth)); err != nil {
		return err
	}

	m.verified = true
	return nil
}

// measureStackDepth computes the maximum operand stack depth the code can
// reach. Used by the builder to fill in the declared depth.
func measureStackDepth(m *Model) (int, error) {
	boundaries, err := decodeBoundaries(m)
	if err != nil {
		return 0, err
	}
	if err := verifyPoints(m, boundaries); err != nil {
		return 0, err
	}
	return simulateStack(m, boundaries, -1)
}

func verifyStructure(m *Model) error {
	if len(m.Code) == 0 {
		return corruptf(-1, "code section is empty")
	}
	if len(m.Inputs) > 255 || len(m.Outputs) > 255 || len(m.Scratch) > 255 {
		return corruptf(-1, "slot schema exceeds 255 slots")
	}

	if m.IsExtension() {
		if m.Parent == "" {
			return corruptf(-1, "extension model has no parent reference")
		}
		if m.Attach == 0 {
			return corruptf(-1, "extension model has no attach point")
		}
		if len(m.Points) > 0 {
			return corruptf(-1, "extension model may not declare continuation points")
		}
	} else if m.Parent != "" {
		return corruptf(-1, "parent reference on non-extension model")
	}

	return nil
}

// decodeBoundaries walks the code linearly and records every instruction
// start offset. Unknown opcodes, truncated operands, and out-of-range
// operand values are rejected here.
func decodeBoundaries(m *Model) (map[int]Opcode, error) {
	boundaries := make(map[int]Opcode, len(m.Code)/2)

	pos := 0
	for pos < len(m.Code) {
		op := Opcode(m.Code[pos])
		if !op.IsValid() {
			return nil, corruptf(pos, "unknown opcode 0x%02X", byte(op))
		}
		if pos+op.InstructionLen() > len(m.Code) {
			return nil, corruptf(pos, "truncated operand for %s", op)
		}
		boundaries[pos] = op

		switch op {
		case OpConst:
			idx := readUint16(m.Code, pos+1)
			if int(idx) >= len(m.Consts) {
				return nil, corruptf(pos, "constant index %d out of range (pool has %d)", idx, len(m.Consts))
			}
		case OpLoadInput:
			if int(m.Code[pos+1]) >= len(m.Inputs) {
				return nil, corruptf(pos, "input slot %d out of range (%d declared)", m.Code[pos+1], len(m.Inputs))
			}
		case OpLoadOutput, OpStoreOutput:
			if int(m.Code[pos+1]) >= len(m.Outputs) {
				return nil, corruptf(pos, "output slot %d out of range (%d declared)", m.Code[pos+1], len(m.Outputs))
			}
		case OpLoadScratch, OpStoreScratch:
			if int(m.Code[pos+1]) >= len(m.Scratch) {
				return nil, corruptf(pos, "scratch slot %d out of range (%d declared)", m.Code[pos+1], len(m.Scratch))
			}
		case OpPoint:
			if m.IsExtension() {
				return nil, corruptf(pos, "continuation point inside extension body")
			}
			idx := readUint16(m.Code, pos+1)
			if int(idx) >= len(m.Points) {
				return nil, corruptf(pos, "point index %d out of range (%d declared)", idx, len(m.Points))
			}
		}

		pos += op.InstructionLen()
	}

	return boundaries, nil
}

func verifyPoints(m *Model, boundaries map[int]Opcode) error {
	seen := make(map[string]bool, len(m.Points))
	for i := range m.Points {
		p := &m.Points[i]
		if p.Name == "" {
			return corruptf(-1, "continuation point %d has no name", i)
		}
		if seen[p.Name] {
			return corruptf(-1, "duplicate continuation point %q", p.Name)
		}
		seen[p.Name] = true

		if int(p.Default) >= len(m.Code) {
			return corruptf(-1, "point %q default flow offset %d beyond code end", p.Name, p.Default)
		}
		if _, ok := boundaries[int(p.Default)]; !ok {
			return corruptf(int(p.Default), "point %q default flow lands inside an instruction", p.Name)
		}
		if p.Extension >= 0 {
			if int(p.Extension) >= len(m.Code) {
				return corruptf(-1, "point %q extension flow offset %d beyond code end", p.Name, p.Extension)
			}
			if _, ok := boundaries[int(p.Extension)]; !ok {
				return corruptf(int(p.Extension), "point %q extension flow lands inside an instruction", p.Name)
			}
		}
	}
	return nil
}

// simulateStack walks all reachable paths tracking operand stack depth.
// With declared >= 0 it enforces the bound; with declared < 0 it measures.
// Depth must agree at every join point, execution must never fall off the
// end of the code, and the stack must be empty at every continuation point
// (a suspension happens between statements, never mid-expression).
func simulateStack(m *Model, boundaries map[int]Opcode, declared int) (int, error) {
	depthAt := make(map[int]int, len(boundaries))
	work := make([]int, 0, 8+len(m.Points))

	enter := func(pos, depth int) error {
		if have, ok := depthAt[pos]; ok {
			if have != depth {
				return corruptf(pos, "stack depth mismatch at join: %d vs %d", have, depth)
			}
			return nil
		}
		depthAt[pos] = depth
		work = append(work, pos)
		return nil
	}

	if err := enter(0, 0); err != nil {
		return 0, err
	}
	for i := range m.Points {
		if err := enter(int(m.Points[i].Default), 0); err != nil {
			return 0, err
		}
		if m.Points[i].Extension >= 0 {
			if err := enter(int(m.Points[i].Extension), 0); err != nil {
				return 0, err
			}
		}
	}

	maxDepth := 0
	for len(work) > 0 {
		pos := work[len(work)-1]
		work = work[:len(work)-1]

		op := boundaries[pos]
		depth := depthAt[pos]
		info := GetOpcodeInfo(op)

		if depth < info.StackPop {
			return 0, corruptf(pos, "stack underflow: %s needs %d values, %d available", op, info.StackPop, depth)
		}
		next := depth - info.StackPop + info.StackPush
		if next > maxDepth {
			maxDepth = next
		}
		if declared >= 0 && next > declared {
			return 0, corruptf(pos, "stack overflow: depth %d exceeds declared bound %d", next, declared)
		}

		if op == OpPoint && depth != 0 {
			return 0, corruptf(pos, "operand stack not empty at continuation point (depth %d)", depth)
		}

		// Successors
		switch {
		case op == OpHalt:
			// Terminal; no successors.

		case op == OpPoint:
			// Evaluation never falls through a point; it resumes at the
			// point's default flow (or in an extension body).
			idx := readUint16(m.Code, pos+1)
			if err := enter(int(m.Points[idx].Default), 0); err != nil {
				return 0, err
			}

		case op.IsJump():
			delta := int(readInt16(m.Code, pos+1))
			target := pos + 3 + delta
			if target < 0 || target >= len(m.Code) {
				return 0, corruptf(pos, "jump target %d out of range", target)
			}
			if _, ok := boundaries[target]; !ok {
				return 0, corruptf(pos, "jump target %d lands inside an instruction", target)
			}
			if err := enter(target, next); err != nil {
				return 0, err
			}
			if op != OpJump {
				// Conditional jumps also fall through.
				fall := pos + 3
				if fall >= len(m.Code) {
					return 0, corruptf(pos, "execution falls off the end of the code")
				}
				if err := enter(fall, next); err != nil {
					return 0, err
				}
			}

		default:
			fall := pos + op.InstructionLen()
			if fall >= len(m.Code) {
				return 0, corruptf(pos, "execution falls off the end of the code")
			}
			if err := enter(fall, next); err != nil {
				return 0, err
			}
		}
	}

	return maxDepth, nil
}

// Bytecode reading helpers shared by the verifier, machine, and disassembler.

func readUint16(code []byte, pos int) uint16 {
	return uint16(code[pos])<<8 | uint16(code[pos+1])
}

func readInt16(code []byte, pos int) int16 {
	return int16(readUint16(code, pos))
}
