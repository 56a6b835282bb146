package vine

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrComputeSpec marks a compute.yml that could not be read or parsed.
// The session cannot start without it.
var ErrComputeSpec = errors.New("invalid compute spec")

// ComputeSpec is the subset of compute.yml floability acts on.
type ComputeSpec struct {
	Factory FactoryConfig `yaml:"vine_factory_config"`
}

// FactoryConfig mirrors the vine_factory_config table. Keys use the same
// spelling as the vine_factory long options. Absent keys are not passed.
type FactoryConfig struct {
	MinWorkers         *int   `yaml:"min-workers"`
	MaxWorkers         *int   `yaml:"max-workers"`
	Cores              Scalar `yaml:"cores"`
	Disk               Scalar `yaml:"disk"`
	Memory             Scalar `yaml:"memory"`
	ForemenName        Scalar `yaml:"foremen-name"`
	WorkersPerCycle    Scalar `yaml:"workers-per-cycle"`
	TasksPerWorker     Scalar `yaml:"tasks-per-worker"`
	Timeout            Scalar `yaml:"timeout"`
	WorkerExtraOptions Scalar `yaml:"worker-extra-options"`
	CondorRequirements Scalar `yaml:"condor-requirements"`
}

// Scalar keeps a YAML scalar as written, so "4096", 4096 and "4 GB" are all
// passed through to vine_factory unchanged.
type Scalar string

// UnmarshalYAML accepts any scalar node.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	if node.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = Scalar(node.Value)
	return nil
}

// LoadComputeSpec reads and parses a compute.yml file. An empty file is a
// valid spec with no overrides.
func LoadComputeSpec(path string) (*ComputeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComputeSpec, err)
	}
	return ParseComputeSpec(data)
}

// ParseComputeSpec parses compute.yml content.
func ParseComputeSpec(data []byte) (*ComputeSpec, error) {
	var spec ComputeSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrComputeSpec, err)
	}
	return &spec, nil
}
