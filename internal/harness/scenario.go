package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/txsched/internal/engine"
	"github.com/roach88/txsched/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario simulates a design against a scripted stimulus and asserts on
// the firing sets the arbiter produced.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Design is an inline design. Exactly one of Design, CUE and
	// DesignFile must be set.
	Design *ir.Design `yaml:"design,omitempty"`

	// CUE is inline CUE source for the design.
	CUE string `yaml:"cue,omitempty"`

	// DesignFile is a path to a CUE file, relative to the scenario file.
	DesignFile string `yaml:"design_file,omitempty"`

	// Cycles is the number of cycles to simulate. Defaults to the length
	// of Stimulus.
	Cycles int `yaml:"cycles,omitempty"`

	// Stimulus scripts readiness and arguments per cycle. Without a
	// stimulus every transaction and method is ready every cycle.
	Stimulus []engine.StimulusCycle `yaml:"stimulus,omitempty"`

	// ExpectError is the error code Finalize or a cycle must fail with,
	// e.g. PRIORITY_CYCLE. Assertions are skipped when set.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Expect lists exact firing sets for specific cycles.
	Expect []CycleExpect `yaml:"expect,omitempty"`

	// Assertions validate properties over the whole run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// CycleExpect is the expected outcome of one cycle.
type CycleExpect struct {
	// Cycle is the 1-based cycle number.
	Cycle int64 `yaml:"cycle"`

	// Fired is the expected firing set in canonical order.
	Fired []string `yaml:"fired"`

	// Ready optionally pins the effective ready set, in declaration order.
	Ready []string `yaml:"ready,omitempty"`
}

// Assertion validates a property of the run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "never_together": the listed transactions never fire in the same cycle
	// - "always_fires": the transaction fires in every cycle it is ready
	// - "never_fires": the transaction never fires
	// - "fire_count": the transaction fires exactly Count times
	Type string `yaml:"type"`

	// Transaction is the subject (always_fires, never_fires, fire_count).
	Transaction string `yaml:"transaction,omitempty"`

	// Transactions lists the subjects of never_together.
	Transactions []string `yaml:"transactions,omitempty"`

	// Count is the expected number of firings (fire_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertNeverTogether = "never_together"
	AssertAlwaysFires   = "always_fires"
	AssertNeverFires    = "never_fires"
	AssertFireCount     = "fire_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// DesignFile is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.DesignFile != "" && !filepath.IsAbs(scenario.DesignFile) {
		scenario.DesignFile = filepath.Join(filepath.Dir(path), scenario.DesignFile)
	}
	if scenario.DesignFile != "" {
		if _, err := os.Stat(scenario.DesignFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: design file not found: %s", scenario.DesignFile)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML without touching the filesystem.
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

	sources := 0
	for _, set := range []bool{s.Design != nil, s.CUE != "", s.DesignFile != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of design, cue or design_file is required")
	}

	if s.Cycles < 0 {
		return fmt.Errorf("cycles must be non-negative")
	}
	if s.ExpectError == "" && s.Cycles == 0 && len(s.Stimulus) == 0 {
		return fmt.Errorf("cycles or stimulus is required")
	}

	if s.ExpectError == "" && len(s.Expect) == 0 && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	for i, e := range s.Expect {
		if e.Cycle < 1 || e.Cycle > int64(s.NumCycles()) {
			return fmt.Errorf("expect[%d]: cycle %d outside 1..%d", i, e.Cycle, s.NumCycles())
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
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
	case AssertNeverTogether:
		if len(a.Transactions) < 2 {
			return fmt.Errorf("assertions[%d]: at least two transactions are required for never_together", index)
		}
	case AssertAlwaysFires, AssertNeverFires:
		if a.Transaction == "" {
			return fmt.Errorf("assertions[%d]: transaction is required for %s", index, a.Type)
		}
	case AssertFireCount:
		if a.Transaction == "" {
			return fmt.Errorf("assertions[%d]: transaction is required for fire_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for fire_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// NumCycles returns how many cycles the scenario simulates.
func (s *Scenario) NumCycles() int {
	if s.Cycles > 0 {
		return s.Cycles
	}
	return len(s.Stimulus)
}
