// Package document defines the behavior document format: named flows of
// actions, parsed from YAML and validated twice (shape via CUE schema,
// structure via Validate). Documents are immutable once loaded; hot reload
// swaps whole documents, never edits one in place.
package document

import "fmt"

// DefaultEntry is the flow a document starts in when none is named.
const DefaultEntry = "main"

// Document is one versioned behavior document.
type Document struct {
	// Name identifies the document; the model store uses it as the
	// reference key.
	Name string

	// Version is assigned by the store on each (re)load. Two documents
	// with the same name and version are identical.
	Version int

	// Entry is the flow execution starts in.
	Entry string

	// Flows maps flow name to its action list.
	Flows map[string]*Flow
}

// Flow is an ordered action list.
type Flow struct {
	Name    string
	Actions []Action
}

// Action is a single executable step.
type Action struct {
	// Kind selects the handler, or one of the executor's control verbs
	// (goto, call, end, terminate, await).
	Kind string

	// Args carries handler arguments as decoded from YAML.
	Args map[string]interface{}

	// When is an optional condition expression; the action is skipped
	// when it evaluates false.
	When string

	// Fatal marks the action as load-bearing: a handler fault here aborts
	// the run instead of degrading.
	Fatal bool
}

// Control verbs interpreted by the executor itself rather than dispatched
// to a handler.
const (
	KindGoto      = "goto"
	KindCall      = "call"
	KindEnd       = "end"
	KindTerminate = "terminate"
	KindAwait     = "await"
)

// Arg keys used by the control verbs.
const (
	ArgFlow      = "flow"       // goto, call, await default
	ArgPoint     = "point"      // await: continuation point name
	ArgTimeoutMS = "timeout_ms" // await: extension window in milliseconds
)

// Validate checks the document's structure: the entry flow exists, every
// control verb's flow reference resolves, and every await declares a point
// and a default flow. Parse runs it automatically; hand-built documents
// should call it before execution.
func (d *Document) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("document has no name")
	}
	if len(d.Flows) == 0 {
		return fmt.Errorf("document %q has no flows", d.Name)
	}

	entry := d.Entry
	if entry == "" {
		entry = DefaultEntry
	}
	if _, ok := d.Flows[entry]; !ok {
		return fmt.Errorf("document %q: entry flow %q does not exist", d.Name, entry)
	}

	for name, flow := range d.Flows {
		if name == "" {
			return fmt.Errorf("document %q has a flow with an empty name", d.Name)
		}
		for i := range flow.Actions {
			if err := d.validateAction(name, i, &flow.Actions[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Document) validateAction(flow string, idx int, a *Action) error {
	if a.Kind == "" {
		return fmt.Errorf("document %q: flow %q action %d has no kind", d.Name, flow, idx)
	}

	switch a.Kind {
	case KindGoto, KindCall:
		target := ArgString(a.Args, ArgFlow)
		if target == "" {
			return fmt.Errorf("document %q: flow %q action %d (%s) names no target flow", d.Name, flow, idx, a.Kind)
		}
		if _, ok := d.Flows[target]; !ok {
			return fmt.Errorf("document %q: flow %q action %d (%s) targets unknown flow %q", d.Name, flow, idx, a.Kind, target)
		}

	case KindAwait:
		if ArgString(a.Args, ArgPoint) == "" {
			return fmt.Errorf("document %q: flow %q action %d (await) names no point", d.Name, flow, idx)
		}
		def := ArgString(a.Args, ArgFlow)
		if def == "" {
			return fmt.Errorf("document %q: flow %q action %d (await) names no default flow", d.Name, flow, idx)
		}
		if _, ok := d.Flows[def]; !ok {
			return fmt.Errorf("document %q: flow %q action %d (await) default targets unknown flow %q", d.Name, flow, idx, def)
		}

	case KindEnd, KindTerminate:
		// No arguments.
	}
	return nil
}

// EntryFlow returns the flow execution starts in.
func (d *Document) EntryFlow() string {
	if d.Entry == "" {
		return DefaultEntry
	}
	return d.Entry
}

// ArgString extracts a string argument, returning "" when absent or not a
// string.
func ArgString(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ArgNumber extracts a numeric argument. YAML decodes integers and floats
// into distinct Go types; both are accepted.
func ArgNumber(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// ArgBool extracts a boolean argument, returning false when absent.
func ArgBool(args map[string]interface{}, key string) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
