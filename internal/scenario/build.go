package scenario

import (
	"fmt"

	"github.com/avencourt/fixpoint"
)

// Runner binds a compiled Spec to engine types: a registry with one kind
// per declaration, and lazy computations derived from the rules.
type Runner struct {
	Spec     *Spec
	Registry *fixpoint.Registry

	kinds map[string]*fixpoint.Kind
	rules map[Ref]*Rule
	decls map[string]KindDecl
}

// NewRunner builds the registry for a compiled scenario. Each declared
// kind's refinement order is position on its value scale: a bound may only
// move toward stronger values.
func NewRunner(spec *Spec) (*Runner, error) {
	r := &Runner{
		Spec:     spec,
		Registry: fixpoint.NewRegistry(),
		kinds:    make(map[string]*fixpoint.Kind, len(spec.Kinds)),
		rules:    make(map[Ref]*Rule, len(spec.Rules)),
		decls:    make(map[string]KindDecl, len(spec.Kinds)),
	}
	for _, decl := range spec.Kinds {
		decl := decl
		ks := fixpoint.KindSpec{
			Name: decl.Name,
			Refines: func(old, new fixpoint.Value) bool {
				return levelOf(decl.Values, asString(new)) >= levelOf(decl.Values, asString(old))
			},
		}
		if decl.Fallback != "" {
			fb := decl.Fallback
			ks.Fallback = func(fixpoint.Entity, fixpoint.FallbackReason) fixpoint.Value {
				return fb
			}
		}
		k, err := r.Registry.Register(ks)
		if err != nil {
			return nil, fmt.Errorf("build scenario: %w", err)
		}
		r.kinds[decl.Name] = k
		r.decls[decl.Name] = decl
	}
	for i := range spec.Rules {
		rule := &spec.Rules[i]
		r.rules[Ref{Entity: rule.Entity, Kind: rule.Kind}] = rule
	}
	return r, nil
}

// Kind returns the engine kind for a declared name.
func (r *Runner) Kind(name string) (*fixpoint.Kind, bool) {
	k, ok := r.kinds[name]
	return k, ok
}

// NewStore creates a store primed with the scenario: entity source, lazy
// computations for every kind, and forced pairs. The caller runs
// AwaitCompletion.
func (r *Runner) NewStore(opts ...fixpoint.Option) (*fixpoint.Store, error) {
	entities := make([]fixpoint.Entity, len(r.Spec.Entities))
	for i, e := range r.Spec.Entities {
		entities[i] = e
	}
	opts = append([]fixpoint.Option{
		fixpoint.WithEntitySource(func() []fixpoint.Entity { return entities }),
	}, opts...)
	st := fixpoint.New(r.Registry, opts...)

	for name, k := range r.kinds {
		name := name
		if err := st.RegisterLazy(k, r.computeFor(st, name)); err != nil {
			st.Close()
			return nil, err
		}
	}
	for _, f := range r.Spec.Force {
		st.Force(f.Entity, r.kinds[f.Kind])
	}
	return st, nil
}

// Finals collects every final value after a completed run, keyed by
// (entity, kind).
func (r *Runner) Finals(st *fixpoint.Store) map[Ref]string {
	out := make(map[Ref]string)
	for name, k := range r.kinds {
		for e, v := range st.Properties(k) {
			out[Ref{Entity: asString(e), Kind: name}] = asString(v)
		}
	}
	return out
}

// ruleState is the explicit continuation state of one rule evaluation: the
// rule plus the latest observation per dependee. Continuations copy it on
// every update instead of mutating in place.
type ruleState struct {
	rule *Rule
	obs  map[Ref]fixpoint.EOptionP
}

func (s ruleState) clone() ruleState {
	obs := make(map[Ref]fixpoint.EOptionP, len(s.obs))
	for k, v := range s.obs {
		obs[k] = v
	}
	return ruleState{rule: s.rule, obs: obs}
}

// computeFor builds the lazy computation evaluating kind `name` rules.
// Entities without a rule yield NoResult; the kind's fallback covers them
// if demanded.
func (r *Runner) computeFor(st *fixpoint.Store, name string) fixpoint.Compute {
	k := r.kinds[name]
	return func(e fixpoint.Entity) fixpoint.Result {
		rule, ok := r.rules[Ref{Entity: asString(e), Kind: name}]
		if !ok {
			return fixpoint.NoResult{}
		}
		if len(rule.Depends) == 0 {
			return fixpoint.Final{Entity: e, Kind: k, Value: rule.Start}
		}

		state := ruleState{rule: rule, obs: make(map[Ref]fixpoint.EOptionP, len(rule.Depends))}
		for _, d := range rule.Depends {
			dk := r.kinds[d.Kind]
			state.obs[d] = st.Require(e, k, d.Entity, dk)
		}
		return r.ruleResult(e, state)
	}
}

// ruleResult folds the current observations into a bound. The result is
// Final once every dependee is final, Intermediate otherwise.
func (r *Runner) ruleResult(e fixpoint.Entity, state ruleState) fixpoint.Result {
	rule := state.rule
	k := r.kinds[rule.Kind]
	scale := r.decls[rule.Kind].Values

	level := -1
	allFinal := true
	for _, d := range rule.Depends {
		o := state.obs[d]
		if !o.IsFinal() {
			allFinal = false
		}
		// A dependee without a value yet contributes the weakest level,
		// so the fold stays monotone as observations arrive.
		dl := 0
		if o.HasValue() {
			dl = levelOf(r.decls[d.Kind].Values, asString(o.Value()))
			if dl < 0 {
				dl = 0
			}
		}
		if level < 0 {
			level = dl
			continue
		}
		switch rule.Combine {
		case CombineMin:
			if dl < level {
				level = dl
			}
		default:
			if dl > level {
				level = dl
			}
		}
	}

	// The bound never drops below the rule's start and never leaves the
	// scale.
	if start := levelOf(scale, rule.Start); level < start {
		level = start
	}
	if max := len(scale) - 1; level > max {
		level = max
	}
	value := scale[level]

	if allFinal {
		return fixpoint.Final{Entity: e, Kind: k, Value: value}
	}

	dependees := make([]fixpoint.EOptionP, 0, len(rule.Depends))
	for _, d := range rule.Depends {
		dependees = append(dependees, state.obs[d])
	}
	return fixpoint.Intermediate{
		Entity:    e,
		Kind:      k,
		Value:     value,
		Dependees: dependees,
		State:     state,
		Continue: func(st any, update fixpoint.EOptionP) fixpoint.Result {
			prev := st.(ruleState)
			next := prev.clone()
			for _, d := range rule.Depends {
				cur := next.obs[d]
				if cur.Entity == update.Entity && cur.Kind == update.Kind {
					next.obs[d] = update
				}
			}
			return r.ruleResult(e, next)
		},
	}
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
