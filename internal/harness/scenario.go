package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a tick scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Table is a shipped table name. When Source is set it selects a table
	// from that file and may be empty if the file holds exactly one.
	Table string `yaml:"table,omitempty"`

	// Source is a CUE file with one or more tables. Relative paths are
	// resolved against the scenario file's directory by LoadScenario.
	Source string `yaml:"source,omitempty"`

	// RunID is an optional fixed run id.
	// If empty, defaults to "test-run-default" unless Run is given a
	// generator.
	RunID string `yaml:"run_id,omitempty"`

	// Ticks are evaluated in order.
	Ticks []TickStep `yaml:"ticks"`

	// Assertions validate the whole run.
	// Supported types: final_state, transition_order, transition_count,
	// state_held, never_entered
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// TickStep is one input frame, evaluated Repeat times.
type TickStep struct {
	// Inputs overrides the held input values. Signals not named keep their
	// previous value.
	Inputs map[string]float64 `yaml:"inputs,omitempty"`

	// Minor marks the tick as a minor step.
	Minor bool `yaml:"minor,omitempty"`

	// Repeat runs the frame this many times. Zero means once.
	Repeat int `yaml:"repeat,omitempty"`

	// Expect is checked after the last repetition.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a tick.
type ExpectClause struct {
	// State is the expected state name after the tick. Empty skips the check.
	State string `yaml:"state,omitempty"`

	// Transition is the expected transition name. nil skips the check; an
	// empty string requires that no transition fired.
	Transition *string `yaml:"transition,omitempty"`

	// Outputs is a subset match against the output vector.
	Outputs map[string]float64 `yaml:"outputs,omitempty"`
}

// Assertion validates the whole run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": State is the state after the last tick
	// - "transition_order": Transitions fired in this order
	// - "transition_count": Transition fired exactly Count times
	// - "state_held": State is never left once entered
	// - "never_entered": State is never current
	Type string `yaml:"type"`

	// State is used by final_state, state_held and never_entered.
	State string `yaml:"state,omitempty"`

	// Transition is used by transition_count.
	Transition string `yaml:"transition,omitempty"`

	// Transitions is used by transition_order.
	Transitions []string `yaml:"transitions,omitempty"`

	// Count is used by transition_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState      = "final_state"
	AssertTransitionOrder = "transition_order"
	AssertTransitionCount = "transition_count"
	AssertStateHeld       = "state_held"
	AssertNeverEntered    = "never_entered"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Source is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Source != "" && !filepath.IsAbs(scenario.Source) {
		scenario.Source = filepath.Join(filepath.Dir(path), scenario.Source)
	}

	if scenario.Source != "" {
		if _, err := os.Stat(scenario.Source); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: source file not found: %s", scenario.Source)
		}
	}

	return scenario, nil
}

// ParseScenario decodes a scenario without touching the filesystem. Source
// paths are left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
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

	if s.Table == "" && s.Source == "" {
		return fmt.Errorf("table or source is required")
	}

	if len(s.Ticks) == 0 {
		return fmt.Errorf("ticks list is required and must be non-empty")
	}

	for i, step := range s.Ticks {
		if step.Repeat < 0 {
			return fmt.Errorf("ticks[%d]: repeat must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState, AssertStateHeld, AssertNeverEntered:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for %s", index, a.Type)
		}
	case AssertTransitionOrder:
		if len(a.Transitions) == 0 {
			return fmt.Errorf("assertions[%d]: transitions list is required for transition_order", index)
		}
	case AssertTransitionCount:
		if a.Transition == "" {
			return fmt.Errorf("assertions[%d]: transition is required for transition_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for transition_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
