package runtime

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/beyond-immersion/bannou-service-sub001/pkg/bytecode"
	"github.com/beyond-immersion/bannou-service-sub001/pkg/planner"
)

// SnapshotVersion is the current actor snapshot format version.
// Increment when making incompatible changes to ActorSnapshot.
const SnapshotVersion uint16 = 1

var (
	snapshotEncMode cbor.EncMode
	snapshotDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("runtime: failed to create CBOR enc mode: %v", err))
	}
	snapshotEncMode = em

	// Untyped maps must come back as map[string]interface{}: the document
	// scope is one, and expression evaluation depends on string keys.
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("runtime: failed to create CBOR dec mode: %v", err))
	}
	snapshotDecMode = dm
}

// ActorSnapshot is the persisted form of one actor: execution state plus
// plan state, captured between ticks so it is always self-consistent. The
// snapshot is encoded in full before the store write begins, and both
// store backends apply a write in a single transaction, so an abandoned
// tick can never leave a torn snapshot behind.
type ActorSnapshot struct {
	Version  uint16 `cbor:"1,keyasint"`
	ActorID  string `cbor:"2,keyasint"`
	Template string `cbor:"3,keyasint"`
	ModelRef string `cbor:"4,keyasint"`
	Mode     string `cbor:"5,keyasint"`
	Ticks    uint64 `cbor:"6,keyasint,omitempty"`
	SavedAt  int64  `cbor:"7,keyasint"`

	// Machine is set for bytecode actors.
	Machine *bytecode.MachineState `cbor:"8,keyasint,omitempty"`

	// Scope is set for document actors.
	Scope map[string]interface{} `cbor:"9,keyasint,omitempty"`

	// Await records a document actor suspended at a continuation point.
	// The window restarts in full on restore.
	Await *AwaitSnapshot `cbor:"10,keyasint,omitempty"`

	Plan *PlanSnapshot `cbor:"11,keyasint,omitempty"`
}

// AwaitSnapshot records the continuation point a document actor was
// suspended at when the snapshot was taken.
type AwaitSnapshot struct {
	Point         string `cbor:"1,keyasint"`
	TimeoutMillis uint32 `cbor:"2,keyasint"`
	DefaultFlow   string `cbor:"3,keyasint"`
}

// PlanSnapshot is the serialized form of a plan in progress. Steps keep
// their planner order so a restored actor resumes mid-plan.
type PlanSnapshot struct {
	Goal   map[string]bool `cbor:"1,keyasint"`
	Steps  []PlanStep      `cbor:"2,keyasint"`
	Cursor int             `cbor:"3,keyasint"`
}

// PlanStep is one serialized plan step.
type PlanStep struct {
	Action string  `cbor:"1,keyasint"`
	Cost   float64 `cbor:"2,keyasint"`
}

func snapshotPlan(p *planner.PlanState) *PlanSnapshot {
	if p == nil {
		return nil
	}
	out := &PlanSnapshot{
		Goal:   p.Goal.Clone(),
		Steps:  make([]PlanStep, len(p.Steps)),
		Cursor: p.Cursor,
	}
	for i, s := range p.Steps {
		out.Steps[i] = PlanStep{Action: s.Action, Cost: s.Cost}
	}
	return out
}

func restorePlan(ps *PlanSnapshot) *planner.PlanState {
	if ps == nil {
		return nil
	}
	out := &planner.PlanState{
		Goal:   planner.WorldState(ps.Goal).Clone(),
		Steps:  make([]planner.Step, len(ps.Steps)),
		Cursor: ps.Cursor,
	}
	for i, s := range ps.Steps {
		out.Steps[i] = planner.Step{Action: s.Action, Cost: s.Cost}
	}
	return out
}

// MarshalSnapshot serializes an actor snapshot to CBOR bytes.
func MarshalSnapshot(s *ActorSnapshot) ([]byte, error) {
	return snapshotEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes an actor snapshot, refusing versions
// newer than this build understands.
func UnmarshalSnapshot(data []byte) (*ActorSnapshot, error) {
	var s ActorSnapshot
	if err := snapshotDecMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("runtime: unmarshal actor snapshot: %w", err)
	}
	if s.Version > SnapshotVersion {
		return nil, fmt.Errorf("runtime: snapshot version %d is newer than supported version %d", s.Version, SnapshotVersion)
	}
	return &s, nil
}
