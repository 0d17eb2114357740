// Package bytecode provides a stack-based virtual machine for executing
// compiled behavior models over a numeric slot vector. Behavior logic runs
// without reflection or interface dispatch on the hot path, which keeps
// per-tick evaluation cheap enough for thousands of concurrent actors.
//
// The model format is designed for:
//   - Compact representation (typically 1-3 bytes per instruction)
//   - Fast decoding (fixed-width opcodes, simple operand formats)
//   - Easy serialization (stored in a model store or passed between services)
//
// # Architecture Overview
//
// The package consists of several components:
//
//   - Opcodes: ~35 stack-based instructions covering arithmetic, comparison,
//     slot access, control flow, and continuation points
//
//   - Model: a compiled behavior unit containing code, a float64 constant
//     pool, the named input/output/scratch slot schema, and the continuation
//     point table. Models serialize to the "BBMC" binary format for storage
//     and transport.
//
//   - Verifier: validates a model once at load time (opcode validity, operand
//     bounds, jump alignment, simulated stack depth). Evaluation assumes a
//     verified model and performs no per-instruction checks.
//
//   - Machine: the evaluator. All working memory is allocated once at
//     construction; Evaluate performs no allocation regardless of input.
//
// # Continuation Points
//
// A model may declare named continuation points. When evaluation reaches a
// POINT instruction the machine freezes in place and reports the pending
// point to the caller. The caller later resumes it one of two ways:
//
//   - ResumeWithDefault continues at the point's default-flow offset, as if
//     nothing external ever happened.
//
//   - ResumeWithExtension runs a separately delivered extension model over
//     the same slot vector, replacing the remainder of the evaluation.
//
// Frozen machine state (instruction pointer, operand stack, slots, RNG
// position) round-trips through MachineState, so a paused evaluation
// survives process restart.
//
// # Determinism
//
// Evaluation is deterministic: the same model, input vector, and seed always
// produce the same output vector. Randomness comes only from the machine's
// seeded generator via the RAND instruction, and the generator's position is
// part of the persisted state.
package bytecode
