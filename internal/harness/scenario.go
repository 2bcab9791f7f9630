package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/treestore/internal/action"
	"github.com/roach88/treestore/internal/engine"
)

// Scenario defines a conformance test scenario.
// A scenario dispatches actions against one compiled store and asserts on
// the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs lists paths to CUE store definition files to compile and load.
	// Paths are relative to the base path given to LoadScenarioWithBasePath.
	Specs []string `yaml:"specs"`

	// Store names the definition under "store" to run against.
	Store string `yaml:"store"`

	// Initial optionally replaces the definition's initial state.
	Initial yaml.Node `yaml:"initial,omitempty"`

	// Steps run in order. Loaders run inline; their results are applied on
	// a settle step, or after the last step.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, unchanged
	Assertions []Assertion `yaml:"assertions"`

	// FlowToken is an optional fixed flow token for deterministic tests.
	// Every async action gets this token. If empty, defaults to
	// "test-flow-default".
	FlowToken string `yaml:"flow_token,omitempty"`
}

// Step is either a dispatch or a settle.
type Step struct {
	// Dispatch is the action name, e.g. "login" or "login.done".
	Dispatch string `yaml:"dispatch,omitempty"`

	// Params are the Base action's params.
	Params []any `yaml:"params,omitempty"`

	// Data is the payload of a directly dispatched Done action.
	Data any `yaml:"data,omitempty"`

	// Settle applies pending loader results before the next step.
	Settle bool `yaml:"settle,omitempty"`

	// ExpectError is the runtime error code the step must fail with,
	// e.g. REDUCER_PANIC or LOADER_FAILED. Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": action appears in trace with params/data
	// - "trace_order": actions appear in order
	// - "trace_count": action appears exactly N times
	// - "final_state": value at path equals expect
	// - "unchanged": value at path is the very node the initial state held
	Type string `yaml:"type"`

	// Action is the action name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Params are expected params (trace_contains). Objects match as subsets.
	Params []any `yaml:"params,omitempty"`

	// Data is the expected payload (trace_contains). Objects match as subsets.
	Data any `yaml:"data,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Path addresses the state node (final_state, unchanged).
	// Empty is the root.
	Path string `yaml:"path,omitempty"`

	// Expect is the expected value (final_state). An explicit null is allowed.
	Expect yaml.Node `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertUnchanged     = "unchanged"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, "")
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving spec paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve spec paths relative to base path BEFORE validation
	for i, specPath := range scenario.Specs {
		if !filepath.IsAbs(specPath) && basePath != "" {
			scenario.Specs[i] = filepath.Join(basePath, specPath)
		}
	}

	if err := validateSpecPaths(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
// Spec paths are left as written.
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

	if len(s.Specs) == 0 {
		return fmt.Errorf("specs list is required and must be non-empty")
	}

	if s.Store == "" {
		return fmt.Errorf("store is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
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

// validateSpecPaths checks that every referenced spec file exists.
func validateSpecPaths(s *Scenario) error {
	for _, specPath := range s.Specs {
		if _, err := os.Stat(specPath); os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", specPath)
		}
	}
	return nil
}

// validateStep checks one step. Exactly one of dispatch and settle is set.
func validateStep(index int, step *Step) error {
	switch {
	case step.Dispatch != "" && step.Settle:
		return fmt.Errorf("steps[%d]: dispatch and settle are mutually exclusive", index)
	case step.Dispatch == "" && !step.Settle:
		return fmt.Errorf("steps[%d]: one of dispatch or settle is required", index)
	case step.Settle && (len(step.Params) > 0 || step.Data != nil):
		return fmt.Errorf("steps[%d]: settle takes no params or data", index)
	}

	if step.Dispatch != "" {
		a := action.Parse(step.Dispatch)
		if errs := a.Validate(); len(errs) > 0 {
			return fmt.Errorf("steps[%d]: invalid action %q: %v", index, step.Dispatch, errs[0])
		}
		if a.Phase != action.Base && len(step.Params) > 0 {
			return fmt.Errorf("steps[%d]: %s actions carry no params", index, a.Phase)
		}
		if a.Phase != action.Done && step.Data != nil {
			return fmt.Errorf("steps[%d]: only done actions carry data", index)
		}
	}

	if step.ExpectError != "" && !knownErrorCodes[engine.RuntimeErrorCode(step.ExpectError)] {
		return fmt.Errorf("steps[%d]: unknown error code %q", index, step.ExpectError)
	}
	return nil
}

// knownErrorCodes are the runtime codes a step can expect.
var knownErrorCodes = map[engine.RuntimeErrorCode]bool{
	engine.ErrCodeReentrantDispatch: true,
	engine.ErrCodeReducerPanic:      true,
	engine.ErrCodeLoaderFailed:      true,
	engine.ErrCodeInvalidAction:     true,
	engine.ErrCodeStoreClosed:       true,
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Expect.Kind == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertUnchanged:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
