package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a chart conformance scenario: a chart, the datasets it
// reads, a sequence of interaction steps and assertions on the final scene.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Charts is the directory of the CUE package declaring the chart.
	// Relative paths resolve against the scenario file's directory.
	Charts string `yaml:"charts"`

	// Chart names the chart under chart: to run.
	Chart string `yaml:"chart"`

	// Datasets maps dataset names to files (CSV, TSV or JSON).
	// Relative paths resolve against the scenario file's directory.
	Datasets map[string]string `yaml:"datasets,omitempty"`

	// Steps are applied in order, each running its own pass.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final scene and the recorded trace.
	Assertions []Assertion `yaml:"assertions"`

	// PassPrefix prefixes the deterministic pass IDs. Defaults to Name.
	PassPrefix string `yaml:"pass_prefix,omitempty"`
}

// Step is one interaction. Exactly one of the action fields is set; it
// names the dataset or parameter the step targets.
type Step struct {
	Load   string `yaml:"load,omitempty"`
	Set    string `yaml:"set,omitempty"`
	Reset  string `yaml:"reset,omitempty"`
	Select string `yaml:"select,omitempty"`
	Toggle string `yaml:"toggle,omitempty"`
	Clear  string `yaml:"clear,omitempty"`

	// Value is the new value of a set step.
	Value any `yaml:"value,omitempty"`

	// Values is the tuple a toggle step flips.
	Values []any `yaml:"values,omitempty"`

	// Tuples replace a selection's set in a select step.
	Tuples [][]any `yaml:"tuples,omitempty"`

	// Recomputed, when present, is the exact list of layers the step's
	// pass must recompute, in declaration order.
	Recomputed []string `yaml:"recomputed,omitempty"`

	// ExpectError marks a step that must be rejected.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Step actions.
const (
	ActionLoad   = "load"
	ActionSet    = "set"
	ActionReset  = "reset"
	ActionSelect = "select"
	ActionToggle = "toggle"
	ActionClear  = "clear"
)

// Action returns the step's action and target. ok is false unless exactly
// one action field is set.
func (s Step) Action() (action, target string, ok bool) {
	n := 0
	for _, c := range []struct{ action, target string }{
		{ActionLoad, s.Load},
		{ActionSet, s.Set},
		{ActionReset, s.Reset},
		{ActionSelect, s.Select},
		{ActionToggle, s.Toggle},
		{ActionClear, s.Clear},
	} {
		if c.target != "" {
			action, target = c.action, c.target
			n++
		}
	}
	return action, target, n == 1
}

// Assertion validates the final scene or the recorded trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row_count": Layer has exactly Count items
	// - "channel": Item's resolved Role value equals Expect
	// - "domain": Scale's domain equals Expect
	// - "layer_error": Layer failed with a diagnostic containing Contains
	// - "recorded": The store holds Count events (of Kind, when set)
	Type string `yaml:"type"`

	// Layer names the scene layer (row_count, channel, layer_error and,
	// optionally, domain for an independent scale).
	Layer string `yaml:"layer,omitempty"`

	// Count is the expected number of items (row_count) or events (recorded).
	Count int `yaml:"count,omitempty"`

	// Item is the item index (used by channel).
	Item int `yaml:"item,omitempty"`

	// Role is the channel role (used by channel).
	Role string `yaml:"role,omitempty"`

	// Scale names the scale (used by domain).
	Scale string `yaml:"scale,omitempty"`

	// Expect is the expected channel value or domain list.
	Expect any `yaml:"expect,omitempty"`

	// Contains is a diagnostic substring (used by layer_error).
	Contains string `yaml:"contains,omitempty"`

	// Kind filters recorded events by kind (used by recorded).
	Kind string `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertRowCount   = "row_count"
	AssertChannel    = "channel"
	AssertDomain     = "domain"
	AssertLayerError = "layer_error"
	AssertRecorded   = "recorded"
)

// LoadScenario reads and parses a scenario YAML file.
// Relative chart and dataset paths are resolved against the file's
// directory. Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving chart and dataset paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve paths relative to base path BEFORE validation
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) || basePath == "" {
			return p
		}
		return filepath.Join(basePath, p)
	}
	scenario.Charts = resolve(scenario.Charts)
	for name, p := range scenario.Datasets {
		scenario.Datasets[name] = resolve(p)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return scenario, nil
}

// ParseScenario decodes scenario YAML without resolving or validating
// paths.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Charts == "" {
		return fmt.Errorf("charts directory is required")
	}
	if s.Chart == "" {
		return fmt.Errorf("chart is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if info, err := os.Stat(s.Charts); err != nil || !info.IsDir() {
		return fmt.Errorf("charts directory not found: %s", s.Charts)
	}
	for _, name := range sortedKeys(s.Datasets) {
		if _, err := os.Stat(s.Datasets[name]); os.IsNotExist(err) {
			return fmt.Errorf("dataset %q file not found: %s", name, s.Datasets[name])
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, s.Datasets); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step, datasets map[string]string) error {
	action, target, ok := step.Action()
	if !ok {
		return fmt.Errorf("steps[%d]: exactly one of load, set, reset, select, toggle, clear is required", index)
	}
	switch action {
	case ActionLoad:
		if _, declared := datasets[target]; !declared {
			return fmt.Errorf("steps[%d]: load of undeclared dataset %q", index, target)
		}
	case ActionToggle:
		if len(step.Values) == 0 {
			return fmt.Errorf("steps[%d]: values is required for toggle", index)
		}
	}
	if step.Value != nil && action != ActionSet {
		return fmt.Errorf("steps[%d]: value only applies to set", index)
	}
	if len(step.Tuples) > 0 && action != ActionSelect {
		return fmt.Errorf("steps[%d]: tuples only applies to select", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRowCount:
		if a.Layer == "" {
			return fmt.Errorf("assertions[%d]: layer is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertChannel:
		if a.Layer == "" || a.Role == "" {
			return fmt.Errorf("assertions[%d]: layer and role are required for channel", index)
		}
		if a.Item < 0 {
			return fmt.Errorf("assertions[%d]: item must be non-negative for channel", index)
		}
	case AssertDomain:
		if a.Scale == "" {
			return fmt.Errorf("assertions[%d]: scale is required for domain", index)
		}
		if _, ok := a.Expect.([]any); !ok {
			return fmt.Errorf("assertions[%d]: expect must be a list for domain", index)
		}
	case AssertLayerError:
		if a.Layer == "" {
			return fmt.Errorf("assertions[%d]: layer is required for layer_error", index)
		}
	case AssertRecorded:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for recorded", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
