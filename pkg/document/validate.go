package document

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
)

// documentSchema constrains the YAML surface before it is decoded into Go
// types. Actions are closed (an unknown field is almost always a typo'd
// "when" or "fatal"); the top level stays open so documents can carry
// extra metadata.
const documentSchema = `
#Action: {
	do:     string & !=""
	when?:  string
	fatal?: bool
	args?: {...}
}

name:   string & !=""
entry?: string
flows: {
	[string]: [...#Action]
}
`

var (
	schemaOnce  sync.Once
	schemaValue cue.Value
	schemaErr   error
)

func compiledSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		v := cuecontext.New().CompileString(documentSchema)
		schemaValue, schemaErr = v, v.Err()
	})
	return schemaValue, schemaErr
}

// ValidateSchema checks raw YAML against the document schema without
// decoding it. Shape errors (missing name, malformed action, wrong types)
// surface here with CUE's field paths; structural errors (dangling flow
// references) are Validate's job after decoding.
func ValidateSchema(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("document: schema: %w", err)
	}

	file, err := cueyaml.Extract("document.yaml", data)
	if err != nil {
		return fmt.Errorf("document: schema: %w", err)
	}

	val := schema.Context().BuildFile(file)
	if err := val.Err(); err != nil {
		return fmt.Errorf("document: schema: %w", err)
	}

	if err := schema.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("document: schema: %w", err)
	}
	return nil
}
