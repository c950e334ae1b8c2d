package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/avencourt/fixpoint/internal/scenario"
)

// Scenario defines a conformance test scenario.
// Scenarios describe a property network in YAML, run it to its fixpoint on
// both scheduling backends, and assert on the final values.
type Scenario struct {
	// Name uniquely identifies this scenario; it also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Kinds declares the property kinds as ordered value scales.
	Kinds []KindDef `yaml:"kinds"`

	// Entities lists the entity names of the network.
	Entities []string `yaml:"entities"`

	// Rules derive properties; see internal/scenario for the semantics.
	Rules []RuleDef `yaml:"rules,omitempty"`

	// Force lists pairs demanded final even if nothing depends on them.
	Force []RefDef `yaml:"force,omitempty"`

	// Expect asserts final values after the run. A subset is fine; only
	// listed pairs are checked.
	Expect []ExpectClause `yaml:"expect,omitempty"`

	// Parallelism is the worker count for the parallel run.
	// Defaults to 8.
	Parallelism int `yaml:"parallelism,omitempty"`
}

// KindDef declares one property kind.
type KindDef struct {
	Name string `yaml:"name"`
	// Values is the scale from weakest to strongest.
	Values   []string `yaml:"values"`
	Fallback string   `yaml:"fallback,omitempty"`
}

// RuleDef derives one entity's property from others.
type RuleDef struct {
	Entity  string   `yaml:"entity"`
	Kind    string   `yaml:"kind"`
	Start   string   `yaml:"start"`
	Depends []RefDef `yaml:"depends,omitempty"`
	Combine string   `yaml:"combine,omitempty"`
}

// RefDef names one (entity, kind) pair.
type RefDef struct {
	Entity string `yaml:"entity"`
	Kind   string `yaml:"kind"`
}

// ExpectClause asserts one final value.
type ExpectClause struct {
	Entity string `yaml:"entity"`
	Kind   string `yaml:"kind"`
	Value  string `yaml:"value"`
}

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos in scenario files fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario is missing a name")
	}
	return &sc, nil
}

// spec converts the YAML form into a compiled scenario spec, reusing its
// cross-reference checks.
func (sc *Scenario) spec() (*scenario.Spec, error) {
	spec := &scenario.Spec{Name: sc.Name, Entities: sc.Entities}
	for _, k := range sc.Kinds {
		spec.Kinds = append(spec.Kinds, scenario.KindDecl{
			Name:     k.Name,
			Values:   k.Values,
			Fallback: k.Fallback,
		})
	}
	for _, r := range sc.Rules {
		rule := scenario.Rule{
			Entity:  r.Entity,
			Kind:    r.Kind,
			Start:   r.Start,
			Combine: scenario.Combine(r.Combine),
		}
		switch rule.Combine {
		case scenario.CombineMax, scenario.CombineMin:
		case "":
			rule.Combine = scenario.CombineMax
		default:
			return nil, fmt.Errorf("rule (%s, %s): unknown combine %q (want max or min)",
				r.Entity, r.Kind, r.Combine)
		}
		for _, d := range r.Depends {
			rule.Depends = append(rule.Depends, scenario.Ref{Entity: d.Entity, Kind: d.Kind})
		}
		spec.Rules = append(spec.Rules, rule)
	}
	for _, f := range sc.Force {
		spec.Force = append(spec.Force, scenario.Ref{Entity: f.Entity, Kind: f.Kind})
	}
	return spec, nil
}
