package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Step operation names.
const (
	OpSubmit       = "submit"
	OpGet          = "get"
	OpClear        = "clear"
	OpExpect       = "expect"
	OpResolverDown = "resolver_down"
	OpResolverUp   = "resolver_up"
	OpStoreDown    = "store_down"
	OpStoreUp      = "store_up"
)

// Write outcome labels used in StepWant.Results and the golden step log.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Scenario is one end-to-end cache scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps are executed in order against one coordinator.
	Steps []Step `yaml:"steps"`

	// FinalKeys, if set, is the exact key set of the cache after the last step.
	FinalKeys []string `yaml:"final_keys,omitempty"`

	// Metrics maps flattened metric names (see observability.Summarize)
	// to their expected values after the last step.
	Metrics map[string]float64 `yaml:"metrics,omitempty"`

	// dir is the scenario file's directory, used to resolve expect files.
	dir string
}

// Step is one operation.
type Step struct {
	Op string `yaml:"op"`

	// Runs are the reports of a submit step.
	Runs []RunSpec `yaml:"runs,omitempty"`

	// Nodes are the node ids of a get step.
	Nodes []string `yaml:"nodes,omitempty"`

	// Configs are the inline expected configs of an expect step.
	Configs []ConfigSpec `yaml:"configs,omitempty"`

	// File is an expected-config file of an expect step, relative to the
	// scenario file.
	File string `yaml:"file,omitempty"`

	Want *StepWant `yaml:"want,omitempty"`
}

// RunSpec describes one reported run.
type RunSpec struct {
	Node      string `yaml:"node"`
	Minute    int    `yaml:"minute"`
	Completed bool   `yaml:"completed"`
	Version   string `yaml:"version,omitempty"`
}

// ConfigSpec is an inline expected config.
type ConfigSpec struct {
	Node    string         `yaml:"node"`
	Version string         `yaml:"version"`
	Config  map[string]any `yaml:"config"`
}

// StepWant holds the assertions of one step. Nil fields are not checked.
type StepWant struct {
	// Results are the per-run outcomes of a submit step, in input order.
	Results []string `yaml:"results,omitempty"`

	// StoreReads lists the node ids of every ReadLastRuns call made during
	// the step. An empty list asserts that no read happened.
	StoreReads *[][]string `yaml:"store_reads,omitempty"`

	// ResolverCalls lists the "node/version" keys of every Resolve call made
	// during the step. An empty list asserts that the resolver was not called.
	ResolverCalls *[][]string `yaml:"resolver_calls,omitempty"`

	// Error is the error code a get step must fail with.
	Error string `yaml:"error,omitempty"`

	// Runs asserts the runs returned by a get step. A null value asserts
	// that the node is present without a run.
	Runs map[string]*RunWant `yaml:"runs,omitempty"`
}

// RunWant is a subset match on a returned run.
type RunWant struct {
	Minute    *int    `yaml:"minute,omitempty"`
	Completed *bool   `yaml:"completed,omitempty"`
	Seq       *int64  `yaml:"seq,omitempty"`
	Version   *string `yaml:"version,omitempty"`

	// Resolved asserts whether an expected config is attached.
	Resolved *bool `yaml:"resolved,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	scenario.dir = filepath.Dir(path)

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
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	switch step.Op {
	case OpSubmit:
		if len(step.Runs) == 0 {
			return fmt.Errorf("steps[%d]: runs are required for submit", i)
		}
		for j, r := range step.Runs {
			if r.Node == "" {
				return fmt.Errorf("steps[%d].runs[%d]: node is required", i, j)
			}
		}
		if step.Want != nil && step.Want.Results != nil {
			if len(step.Want.Results) != len(step.Runs) {
				return fmt.Errorf("steps[%d]: want %d results for %d runs", i, len(step.Want.Results), len(step.Runs))
			}
			for j, res := range step.Want.Results {
				switch res {
				case ResultOK, ResultRejected, ResultFailed:
				default:
					return fmt.Errorf("steps[%d].want.results[%d]: unknown result %q", i, j, res)
				}
			}
		}
	case OpGet:
		if len(step.Nodes) == 0 {
			return fmt.Errorf("steps[%d]: nodes are required for get", i)
		}
	case OpExpect:
		if len(step.Configs) == 0 && step.File == "" {
			return fmt.Errorf("steps[%d]: configs or file is required for expect", i)
		}
		for j, c := range step.Configs {
			if c.Node == "" || c.Version == "" {
				return fmt.Errorf("steps[%d].configs[%d]: node and version are required", i, j)
			}
		}
	case OpClear, OpResolverDown, OpResolverUp, OpStoreDown, OpStoreUp:
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}
	return nil
}
