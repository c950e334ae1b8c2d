// Package scenario compiles CUE scenario descriptions into solver inputs.
//
// A scenario declares property kinds as ordered value scales, a set of
// entities, and rules that derive one entity's property from others. It is
// the declarative front end for the fixpoint engine: the CLI and the
// conformance harness both feed solver runs through it.
package scenario

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// Combine selects how a rule folds its dependee values into one level on
// the rule kind's scale.
type Combine string

const (
	// CombineMax takes the strongest dependee level.
	CombineMax Combine = "max"
	// CombineMin takes the weakest dependee level.
	CombineMin Combine = "min"
)

// KindDecl declares one property kind as an ordered value scale.
type KindDecl struct {
	Name string
	// Values lists the scale from weakest to strongest; refinement moves
	// rightward and never back.
	Values []string
	// Fallback names the value used when no rule covers a demanded
	// entity. Empty means the kind has no fallback.
	Fallback string
}

// Ref names one (entity, kind) pair a rule depends on.
type Ref struct {
	Entity string
	Kind   string
}

// Rule derives the property of one (entity, kind) pair. Start is the
// initial level; the dependee levels are folded with Combine and the
// result never drops below Start.
type Rule struct {
	Entity  string
	Kind    string
	Start   string
	Depends []Ref
	Combine Combine
}

// Spec is one compiled scenario.
type Spec struct {
	Name     string
	Kinds    []KindDecl
	Entities []string
	Rules    []Rule
	// Force lists pairs demanded final even if nothing depends on them.
	Force []Ref
}

// Compile parses a CUE value into a scenario Spec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the scenario struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`scenario: { kinds: [...], ... }`)
//	spec, err := Compile(v.LookupPath(cue.ParsePath("scenario")))
func Compile(v cue.Value) (*Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &Spec{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if nameVal.Exists() {
		name, err := nameVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Name = name
	}

	kinds, err := parseKinds(v)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, &CompileError{
			Field:   "kinds",
			Message: "at least one kind is required",
			Pos:     v.Pos(),
		}
	}
	spec.Kinds = kinds

	spec.Entities, err = parseStringList(v, "entities")
	if err != nil {
		return nil, err
	}
	if len(spec.Entities) == 0 {
		return nil, &CompileError{
			Field:   "entities",
			Message: "at least one entity is required",
			Pos:     v.Pos(),
		}
	}

	spec.Rules, err = parseRules(v)
	if err != nil {
		return nil, err
	}

	spec.Force, err = parseRefs(v.LookupPath(cue.ParsePath("force")))
	if err != nil {
		return nil, err
	}

	if err := spec.check(); err != nil {
		return nil, err
	}
	return spec, nil
}

func parseKinds(v cue.Value) ([]KindDecl, error) {
	kindsVal := v.LookupPath(cue.ParsePath("kinds"))
	if !kindsVal.Exists() {
		return nil, nil
	}
	iter, err := kindsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var kinds []KindDecl
	for iter.Next() {
		kv := iter.Value()
		var k KindDecl

		name, err := kv.LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return nil, &CompileError{
				Field:   "kinds.name",
				Message: "kind name is required",
				Pos:     kv.Pos(),
			}
		}
		k.Name = name

		k.Values, err = parseStringList(kv, "values")
		if err != nil {
			return nil, err
		}
		if len(k.Values) < 1 {
			return nil, &CompileError{
				Field:   "kinds.values",
				Message: fmt.Sprintf("kind %q needs at least one value", name),
				Pos:     kv.Pos(),
			}
		}

		fbVal := kv.LookupPath(cue.ParsePath("fallback"))
		if fbVal.Exists() {
			fb, err := fbVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			k.Fallback = fb
		}

		kinds = append(kinds, k)
	}
	return kinds, nil
}

func parseRules(v cue.Value) ([]Rule, error) {
	rulesVal := v.LookupPath(cue.ParsePath("rules"))
	if !rulesVal.Exists() {
		return nil, nil
	}
	iter, err := rulesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []Rule
	for iter.Next() {
		rv := iter.Value()
		var r Rule

		if r.Entity, err = rv.LookupPath(cue.ParsePath("entity")).String(); err != nil {
			return nil, &CompileError{
				Field:   "rules.entity",
				Message: "rule entity is required",
				Pos:     rv.Pos(),
			}
		}
		if r.Kind, err = rv.LookupPath(cue.ParsePath("kind")).String(); err != nil {
			return nil, &CompileError{
				Field:   "rules.kind",
				Message: "rule kind is required",
				Pos:     rv.Pos(),
			}
		}
		if r.Start, err = rv.LookupPath(cue.ParsePath("start")).String(); err != nil {
			return nil, &CompileError{
				Field:   "rules.start",
				Message: "rule start value is required",
				Pos:     rv.Pos(),
			}
		}

		r.Depends, err = parseRefs(rv.LookupPath(cue.ParsePath("depends")))
		if err != nil {
			return nil, err
		}

		r.Combine = CombineMax
		cmbVal := rv.LookupPath(cue.ParsePath("combine"))
		if cmbVal.Exists() {
			cmb, err := cmbVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			switch Combine(cmb) {
			case CombineMax, CombineMin:
				r.Combine = Combine(cmb)
			default:
				return nil, &CompileError{
					Field:   "rules.combine",
					Message: fmt.Sprintf("unknown combine %q (want max or min)", cmb),
					Pos:     cmbVal.Pos(),
				}
			}
		}

		rules = append(rules, r)
	}
	return rules, nil
}

func parseRefs(v cue.Value) ([]Ref, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var refs []Ref
	for iter.Next() {
		rv := iter.Value()
		var r Ref
		if r.Entity, err = rv.LookupPath(cue.ParsePath("entity")).String(); err != nil {
			return nil, formatCUEError(err)
		}
		if r.Kind, err = rv.LookupPath(cue.ParsePath("kind")).String(); err != nil {
			return nil, formatCUEError(err)
		}
		refs = append(refs, r)
	}
	return refs, nil
}

func parseStringList(v cue.Value, field string) ([]string, error) {
	lv := v.LookupPath(cue.ParsePath(field))
	if !lv.Exists() {
		return nil, nil
	}
	iter, err := lv.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// check enforces cross-references the CUE structure alone cannot: rules
// and forces must name declared kinds and entities, and every named value
// must sit on its kind's scale.
func (s *Spec) check() error {
	kinds := make(map[string]KindDecl, len(s.Kinds))
	for _, k := range s.Kinds {
		if _, dup := kinds[k.Name]; dup {
			return &CompileError{Field: "kinds", Message: fmt.Sprintf("duplicate kind %q", k.Name)}
		}
		kinds[k.Name] = k
		if k.Fallback != "" && levelOf(k.Values, k.Fallback) < 0 {
			return &CompileError{
				Field:   "kinds.fallback",
				Message: fmt.Sprintf("kind %q: fallback %q is not on the scale", k.Name, k.Fallback),
			}
		}
	}
	entities := make(map[string]bool, len(s.Entities))
	for _, e := range s.Entities {
		entities[e] = true
	}

	seen := make(map[Ref]bool)
	for _, r := range s.Rules {
		k, ok := kinds[r.Kind]
		if !ok {
			return &CompileError{Field: "rules.kind", Message: fmt.Sprintf("unknown kind %q", r.Kind)}
		}
		if !entities[r.Entity] {
			return &CompileError{Field: "rules.entity", Message: fmt.Sprintf("unknown entity %q", r.Entity)}
		}
		slot := Ref{Entity: r.Entity, Kind: r.Kind}
		if seen[slot] {
			return &CompileError{
				Field:   "rules",
				Message: fmt.Sprintf("duplicate rule for (%s, %s)", r.Entity, r.Kind),
			}
		}
		seen[slot] = true
		if levelOf(k.Values, r.Start) < 0 {
			return &CompileError{
				Field:   "rules.start",
				Message: fmt.Sprintf("rule (%s, %s): start %q is not on the %q scale", r.Entity, r.Kind, r.Start, r.Kind),
			}
		}
		for _, d := range r.Depends {
			if _, ok := kinds[d.Kind]; !ok {
				return &CompileError{Field: "rules.depends", Message: fmt.Sprintf("unknown kind %q", d.Kind)}
			}
			if !entities[d.Entity] {
				return &CompileError{Field: "rules.depends", Message: fmt.Sprintf("unknown entity %q", d.Entity)}
			}
		}
	}
	for _, f := range s.Force {
		if _, ok := kinds[f.Kind]; !ok {
			return &CompileError{Field: "force", Message: fmt.Sprintf("unknown kind %q", f.Kind)}
		}
		if !entities[f.Entity] {
			return &CompileError{Field: "force", Message: fmt.Sprintf("unknown entity %q", f.Entity)}
		}
	}
	return nil
}

// levelOf returns the index of value on the scale, -1 if absent.
func levelOf(scale []string, value string) int {
	for i, v := range scale {
		if v == value {
			return i
		}
	}
	return -1
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
