package document

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawDocument mirrors the YAML surface before it becomes a Document.
type rawDocument struct {
	Name  string                 `yaml:"name"`
	Entry string                 `yaml:"entry"`
	Flows map[string][]rawAction `yaml:"flows"`
}

type rawAction struct {
	Do    string                 `yaml:"do"`
	When  string                 `yaml:"when"`
	Fatal bool                   `yaml:"fatal"`
	Args  map[string]interface{} `yaml:"args"`
}

// Parse decodes a YAML behavior document and validates it: first the shape
// against the CUE schema, then the structure (flow references, await
// wiring). The returned document carries version 0; the store assigns real
// versions.
func Parse(data []byte) (*Document, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document: parse: %w", err)
	}

	doc := &Document{
		Name:  raw.Name,
		Entry: raw.Entry,
		Flows: make(map[string]*Flow, len(raw.Flows)),
	}
	for name, actions := range raw.Flows {
		flow := &Flow{Name: name, Actions: make([]Action, len(actions))}
		for i, a := range actions {
			flow.Actions[i] = Action{
				Kind:  a.Do,
				Args:  a.Args,
				When:  a.When,
				Fatal: a.Fatal,
			}
		}
		doc.Flows[name] = flow
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}
