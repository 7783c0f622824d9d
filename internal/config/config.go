// Package config loads treedeco settings from .treedeco.yaml and from LSP
// initialization options.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/treedeco/internal/lang"
	"github.com/phobologic/treedeco/internal/model"
)

// FileName is the workspace configuration file.
const FileName = ".treedeco.yaml"

// Duration is a time.Duration written as "500ms" or as a number of
// milliseconds.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.parse(value.Value)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return d.parse(s)
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string or a number of milliseconds: %s", data)
	}
	*d = Duration(ms * float64(time.Millisecond))
	return nil
}

func (d *Duration) parse(s string) error {
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(ms * float64(time.Millisecond))
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Observer toggles and styles one built-in observer.
type Observer struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Style   model.Style `yaml:"style,omitempty" json:"style,omitempty"`
}

// Observers holds the built-in observers.
type Observers struct {
	// Await highlights await expressions.
	Await Observer `yaml:"await" json:"await"`
	// Imports appends the line count of relatively imported files. Style is
	// applied to the inline text after the import.
	Imports Observer `yaml:"imports" json:"imports"`
}

// Rule decorates every node of Kind.
type Rule struct {
	Kind  string      `yaml:"kind" json:"kind"`
	Style model.Style `yaml:"style" json:"style"`
	Hover string      `yaml:"hover,omitempty" json:"hover,omitempty"`
}

// Config is the full configuration.
type Config struct {
	Debounce    Duration  `yaml:"debounce" json:"debounce"`
	Languages   []string  `yaml:"languages" json:"languages"`
	UsageWindow Duration  `yaml:"usageWindow" json:"usageWindow"`
	Observers   Observers `yaml:"observers" json:"observers"`
	Rules       []Rule    `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debounce:    Duration(500 * time.Millisecond),
		Languages:   lang.Names(),
		UsageWindow: Duration(10 * time.Second),
		Observers: Observers{
			Await: Observer{
				Enabled: true,
				Style: model.Style{
					model.BackgroundColor:    "rgba(255, 196, 0, 0.25)",
					model.OverviewRulerColor: "orange",
				},
			},
			Imports: Observer{
				Enabled: true,
				Style: model.Style{
					model.Color:     "gray",
					model.FontStyle: "italic",
				},
			},
		},
	}
}

// DefaultYAML is the commented configuration written by `treedeco init`.
const DefaultYAML = `# Delay between the last edit and the next analysis pass.
debounce: 500ms
# LSP language ids to analyse.
languages: [javascript, javascriptreact, typescript, typescriptreact]
# Sliding window for the usage statistics.
usageWindow: 10s
observers:
  await:
    enabled: true
    style:
      backgroundColor: "rgba(255, 196, 0, 0.25)"
      overviewRulerColor: orange
  imports:
    enabled: true
    style:
      color: gray
      fontStyle: italic
# Extra highlights by node kind, e.g.
# rules:
#   - kind: debugger_statement
#     style: {backgroundColor: red}
#     hover: remove before committing
`

// Load reads the configuration file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadDir reads FileName from dir. A missing file yields the defaults.
func LoadDir(dir string) (Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Merge applies JSON overrides, typically LSP initializationOptions. Fields
// absent from data keep their current value.
func (c Config) Merge(data []byte) (Config, error) {
	if len(data) == 0 || string(data) == "null" {
		return c, nil
	}
	out := c.clone()
	if err := json.Unmarshal(data, &out); err != nil {
		return c, fmt.Errorf("parsing initialization options: %w", err)
	}
	if err := out.Validate(); err != nil {
		return c, err
	}
	return out, nil
}

// clone copies the slices and styles so a merge cannot alias c.
func (c Config) clone() Config {
	out := c
	out.Languages = append([]string(nil), c.Languages...)
	out.Observers.Await.Style = c.Observers.Await.Style.Clone()
	out.Observers.Imports.Style = c.Observers.Imports.Style.Clone()
	out.Rules = make([]Rule, len(c.Rules))
	for i, r := range c.Rules {
		r.Style = r.Style.Clone()
		out.Rules[i] = r
	}
	return out
}

// knownKind reports whether any configured language declares kind.
func (c Config) knownKind(kind string) bool {
	ids := c.Languages
	if len(ids) == 0 {
		ids = lang.Names()
	}
	for _, id := range ids {
		if l := lang.ForID(id); l != nil && l.Schema().Known(kind) {
			return true
		}
	}
	return false
}

// Validate reports every problem in c.
func (c Config) Validate() error {
	var errs []error
	if c.Debounce < 0 {
		errs = append(errs, fmt.Errorf("debounce must not be negative, got %s", c.Debounce))
	}
	if c.UsageWindow < 0 {
		errs = append(errs, fmt.Errorf("usageWindow must not be negative, got %s", c.UsageWindow))
	}
	for _, id := range c.Languages {
		if lang.ForID(id) == nil {
			errs = append(errs, fmt.Errorf("unknown language %q (supported: %v)", id, lang.Names()))
		}
	}
	for i, r := range c.Rules {
		if r.Kind == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: kind is required", i))
		}
		if r.Kind != "" && !c.knownKind(r.Kind) {
			errs = append(errs, fmt.Errorf("rules[%d]: no configured language has node kind %q", i, r.Kind))
		}
		if len(r.Style) == 0 {
			errs = append(errs, fmt.Errorf("rules[%d] (%s): style is required", i, r.Kind))
		}
	}
	return errors.Join(errs...)
}
