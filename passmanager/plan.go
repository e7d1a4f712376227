package passmanager

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMalformedPlan is returned for pipeline files that cannot be
// understood.
var ErrMalformedPlan = errors.New("malformed pipeline")

// A Stage is a named group of passes run in order.
type Stage struct {
	Name   string   `yaml:"stage"`
	Passes []string `yaml:"passes"`
}

// UnmarshalYAML accepts either a mapping with "stage" and "passes" keys
// or a flow sequence whose first element names the stage:
//
//	- stage: HighLevel
//	  passes: [devirtualizer, early-inliner]
//	- [Cleanup, dead-function-elimination]
func (s *Stage) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("line %d: empty stage", node.Line)
		}
		s.Name, s.Passes = items[0], items[1:]
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			switch key := node.Content[i]; key.Value {
			case "stage", "passes":
			default:
				return fmt.Errorf("line %d: unknown stage key %q", key.Line, key.Value)
			}
		}
		type plain Stage
		var p plain
		if err := node.Decode(&p); err != nil {
			return err
		}
		*s = Stage(p)
		return nil
	}
	return fmt.Errorf("line %d: a stage must be a mapping or a sequence", node.Line)
}

// A Plan is the ordered list of stages a pipeline runs.
type Plan struct {
	Stages []Stage
}

// AddStage appends a stage to p.
func (p *Plan) AddStage(name string, passes ...string) {
	p.Stages = append(p.Stages, Stage{Name: name, Passes: passes})
}

// ParsePlan parses a YAML pipeline: a sequence of stages.
func ParsePlan(data []byte) (Plan, error) {
	var stages []Stage
	if err := yaml.Unmarshal(data, &stages); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrMalformedPlan, err)
	}
	if len(stages) == 0 {
		return Plan{}, fmt.Errorf("%w: no stages", ErrMalformedPlan)
	}
	for i, s := range stages {
		if s.Name == "" {
			return Plan{}, fmt.Errorf("%w: stage %d has no name", ErrMalformedPlan, i)
		}
		for _, pass := range s.Passes {
			if strings.TrimSpace(pass) == "" {
				return Plan{}, fmt.Errorf("%w: stage %q has an empty pass name", ErrMalformedPlan, s.Name)
			}
		}
	}
	return Plan{Stages: stages}, nil
}

// LoadPlanFile reads and parses the pipeline file at path.
func LoadPlanFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}

// Validate checks that every pass of p is registered in r.
func (p Plan) Validate(r *Registry) error {
	var errs []error
	for _, s := range p.Stages {
		for _, name := range s.Passes {
			if _, err := r.Lookup(name); err != nil {
				errs = append(errs, fmt.Errorf("stage %q: %w", s.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (p Plan) String() string {
	var b strings.Builder
	for i, s := range p.Stages {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: [%s]", s.Name, strings.Join(s.Passes, ", "))
	}
	return b.String()
}
