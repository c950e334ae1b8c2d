package fixpoint

import (
	"fmt"
	"sync"
)

// Entity is an opaque reference to an analyzable program element (a method,
// field, class, parameter, call site). Entities are compared by identity,
// never by structural equality: use pointers, or values whose Go equality is
// identity for your program model. An Entity must be a valid map key.
type Entity = any

// Value is a property bound of some kind. Values must be usable with the
// kind's Refines and Equal functions; the engine never inspects them beyond
// that.
type Value = any

// FallbackReason tells a fallback function why it is being consulted.
type FallbackReason int

const (
	// FallbackNoAnalysis means no computation was ever registered or run
	// for the kind at all.
	FallbackNoAnalysis FallbackReason = iota + 1

	// FallbackNotCovered means an analysis for the kind exists (in this
	// phase or an earlier one) but did not derive a value for the entity.
	FallbackNotCovered
)

func (r FallbackReason) String() string {
	switch r {
	case FallbackNoAnalysis:
		return "no-analysis"
	case FallbackNotCovered:
		return "not-covered"
	default:
		return fmt.Sprintf("FallbackReason(%d)", int(r))
	}
}

// KindSpec describes a property kind prior to registration.
//
// The partial order lives on the kind, not on the values: Refines reports
// whether new is at least as refined as old, and the generic update check in
// the store uses only this function. This keeps per-kind lattice logic out
// of the engine.
type KindSpec struct {
	// Name uniquely identifies the kind within a registry, e.g. "purity".
	Name string

	// Refines reports whether new is equal to or more refined than old.
	// Required. Refinement moves toward more precision/restriction only.
	Refines func(old, new Value) bool

	// Equal reports value equality. Optional; defaults to Go ==, which
	// requires comparable values.
	Equal func(a, b Value) bool

	// Fallback supplies a final value when no analysis ever produced one
	// for an entity. Optional; a kind without a fallback cannot satisfy a
	// forced query that no computation covers.
	Fallback func(e Entity, reason FallbackReason) Value

	// OnCycle maps a slot's current bound to the value the cycle resolver
	// finalizes it at. Optional; defaults to the identity, i.e. the
	// current best-known bound wins. The result must refine the input.
	OnCycle func(current Value) Value
}

// Kind is a registered property kind. Kinds are compared by pointer
// identity; two registries never share a Kind.
type Kind struct {
	id       int
	name     string
	refines  func(old, new Value) bool
	equal    func(a, b Value) bool
	fallback func(e Entity, reason FallbackReason) Value
	onCycle  func(current Value) Value
}

// ID returns the kind's registry-unique id.
func (k *Kind) ID() int { return k.id }

// Name returns the kind's descriptive name.
func (k *Kind) Name() string { return k.name }

func (k *Kind) String() string { return k.name }

// HasFallback reports whether the kind can supply fallback values.
func (k *Kind) HasFallback() bool { return k.fallback != nil }

// Refines reports whether new is at least as refined as old per the kind's
// order.
func (k *Kind) Refines(old, new Value) bool { return k.refines(old, new) }

func (k *Kind) equalValues(a, b Value) bool {
	if k.equal != nil {
		return k.equal(a, b)
	}
	return a == b
}

func (k *Kind) cycleBound(current Value) Value {
	if k.onCycle != nil {
		return k.onCycle(current)
	}
	return current
}

func (k *Kind) fallbackValue(e Entity, reason FallbackReason) Value {
	return k.fallback(e, reason)
}

// Registry allocates stable ids to property kinds.
//
// Thread-safe: kinds may be registered and looked up from any goroutine,
// though typical use registers everything before solving starts.
type Registry struct {
	mu     sync.RWMutex
	kinds  []*Kind
	byName map[string]*Kind
}

// NewRegistry creates an empty kind registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Kind)}
}

// Register allocates an id for the described kind.
//
// Returns an error for an empty name, a duplicate name, or a missing
// Refines function - these are configuration errors and are caught here, at
// registration time, rather than mid-solve.
func (r *Registry) Register(spec KindSpec) (*Kind, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("register kind: name is required")
	}
	if spec.Refines == nil {
		return nil, fmt.Errorf("register kind %q: Refines function is required", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[spec.Name]; exists {
		return nil, fmt.Errorf("register kind: duplicate name %q", spec.Name)
	}

	k := &Kind{
		id:       len(r.kinds),
		name:     spec.Name,
		refines:  spec.Refines,
		equal:    spec.Equal,
		fallback: spec.Fallback,
		onCycle:  spec.OnCycle,
	}
	r.kinds = append(r.kinds, k)
	r.byName[spec.Name] = k
	return k, nil
}

// MustRegister is Register but panics on error. Intended for static kind
// tables in analysis packages.
func (r *Registry) MustRegister(spec KindSpec) *Kind {
	k, err := r.Register(spec)
	if err != nil {
		panic(err)
	}
	return k
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byName[name]
	return k, ok
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []*Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Kind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
