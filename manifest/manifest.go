// Package manifest handles behave.toml service configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes TOML strings like "200ms" or "5s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Manifest represents a behave.toml service configuration.
type Manifest struct {
	Server    Server     `toml:"server"`
	Logging   Logging    `toml:"logging"`
	Store     Store      `toml:"store"`
	Models    Models     `toml:"models"`
	Planner   Planner    `toml:"planner"`
	Templates []Template `toml:"templates"`
	Actions   []Action   `toml:"actions"`
	Feeds     []Feed     `toml:"feeds"`

	// Dir is the directory containing the behave.toml file (set at load time).
	Dir string `toml:"-"`
}

// Server configures the control surface listener.
type Server struct {
	Addr        string   `toml:"addr"`
	StopTimeout Duration `toml:"stop-timeout"`
	MetricsPath string   `toml:"metrics-path"`
}

// Logging configures log output.
type Logging struct {
	Verbosity int `toml:"verbosity"`
}

// Store selects the state persistence backend.
type Store struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// Models locates the behavior model tree.
type Models struct {
	Root  string `toml:"root"`
	Watch bool   `toml:"watch"`
}

// Planner overrides individual rows of the urgency budget table.
type Planner struct {
	Budgets map[string]Budget `toml:"budgets"`
}

// Budget bounds one plan search tier.
type Budget struct {
	MaxDepth int      `toml:"max-depth"`
	MaxNodes int      `toml:"max-nodes"`
	Timeout  Duration `toml:"timeout"`
}

// Template declares a spawnable actor template. Zero numeric fields
// take the runtime's defaults at registration.
type Template struct {
	Name      string   `toml:"name"`
	Mode      string   `toml:"mode"`
	Model     string   `toml:"model"`
	Tick      Duration `toml:"tick"`
	Queue     int      `toml:"queue"`
	SaveEvery int      `toml:"save-every"`
	Seed      int64    `toml:"seed"`
}

// Action declares one planning operator. Declaration order is the
// planner's tie-break order, so it is semantic.
type Action struct {
	Name          string          `toml:"name"`
	Cost          float64         `toml:"cost"`
	Preconditions map[string]bool `toml:"preconditions"`
	Effects       map[string]bool `toml:"effects"`
}

// Feed declares one world event subscription.
type Feed struct {
	Target       string   `toml:"target"`
	Method       string   `toml:"method"`
	ActorField   string   `toml:"actor-field"`
	TypeField    string   `toml:"type-field"`
	SourceField  string   `toml:"source-field"`
	UrgencyField string   `toml:"urgency-field"`
	Reconnect    Duration `toml:"reconnect"`
	MaxReconnect Duration `toml:"max-reconnect"`
}

// Load parses a behave.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "behave.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a behave.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "behave.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Server.Addr == "" {
		m.Server.Addr = ":8143"
	}
	if m.Server.StopTimeout == 0 {
		m.Server.StopTimeout = Duration(10 * time.Second)
	}
	if m.Store.Backend == "" {
		m.Store.Backend = "badger"
	}
	if m.Store.Path == "" {
		m.Store.Path = "state"
	}
	if m.Models.Root == "" {
		m.Models.Root = "models"
	}
	for i := range m.Actions {
		if m.Actions[i].Cost == 0 {
			m.Actions[i].Cost = 1
		}
	}
}

var urgencyTiers = map[string]bool{
	"idle":     true,
	"normal":   true,
	"high":     true,
	"critical": true,
}

func (m *Manifest) validate() error {
	switch m.Store.Backend {
	case "badger", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store backend %q", m.Store.Backend)
	}

	seen := make(map[string]bool)
	for _, t := range m.Templates {
		if t.Name == "" {
			return fmt.Errorf("template with no name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate template %q", t.Name)
		}
		seen[t.Name] = true
		if t.Mode != "document" && t.Mode != "bytecode" {
			return fmt.Errorf("template %q: unknown mode %q", t.Name, t.Mode)
		}
		if t.Model == "" {
			return fmt.Errorf("template %q: no model", t.Name)
		}
	}

	seenActions := make(map[string]bool)
	for _, a := range m.Actions {
		if a.Name == "" {
			return fmt.Errorf("action with no name")
		}
		if seenActions[a.Name] {
			return fmt.Errorf("duplicate action %q", a.Name)
		}
		seenActions[a.Name] = true
		if len(a.Effects) == 0 {
			return fmt.Errorf("action %q: no effects", a.Name)
		}
	}

	for i, f := range m.Feeds {
		if f.Target == "" {
			return fmt.Errorf("feed %d: no target", i)
		}
		if f.Method == "" {
			return fmt.Errorf("feed %d: no method", i)
		}
	}

	for tier := range m.Planner.Budgets {
		if !urgencyTiers[tier] {
			return fmt.Errorf("unknown planner tier %q", tier)
		}
	}

	return nil
}

// StatePath returns the state store path, resolved against the
// manifest directory unless absolute.
func (m *Manifest) StatePath() string {
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}

// ModelRoot returns the model tree root, resolved against the
// manifest directory unless absolute.
func (m *Manifest) ModelRoot() string {
	if filepath.IsAbs(m.Models.Root) {
		return m.Models.Root
	}
	return filepath.Join(m.Dir, m.Models.Root)
}
