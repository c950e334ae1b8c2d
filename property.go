package fixpoint

import "fmt"

// EPK is the key "(entity, kind)", denoting a property that may not have
// been computed yet.
type EPK struct {
	Entity Entity
	Kind   *Kind
}

func (k EPK) String() string {
	return fmt.Sprintf("(%v, %s)", k.Entity, k.Kind.Name())
}

// EOptionP is the answer to a property query: either just the key (no value
// has been computed), an interim bound that may still be refined, or a
// final value.
type EOptionP struct {
	Entity Entity
	Kind   *Kind

	value Value
	has   bool
	final bool
}

// NoProperty builds the "no value yet" answer for (e, k).
func NoProperty(e Entity, k *Kind) EOptionP {
	return EOptionP{Entity: e, Kind: k}
}

// InterimProperty builds a refineable, non-final answer.
func InterimProperty(e Entity, k *Kind, v Value) EOptionP {
	return EOptionP{Entity: e, Kind: k, value: v, has: true}
}

// FinalProperty builds a final answer.
func FinalProperty(e Entity, k *Kind, v Value) EOptionP {
	return EOptionP{Entity: e, Kind: k, value: v, has: true, final: true}
}

// HasValue reports whether any bound has been computed.
func (p EOptionP) HasValue() bool { return p.has }

// IsEPK reports whether the answer is just the key, i.e. no bound exists.
func (p EOptionP) IsEPK() bool { return !p.has }

// IsFinal reports whether the bound is final.
func (p EOptionP) IsFinal() bool { return p.final }

// IsRefinable reports whether a bound exists that may still be refined.
func (p EOptionP) IsRefinable() bool { return p.has && !p.final }

// Value returns the current bound, or nil if none has been computed.
func (p EOptionP) Value() Value { return p.value }

// MustValue returns the current bound and panics if none exists. Use in
// continuations, where the triggering update always carries a value.
func (p EOptionP) MustValue() Value {
	if !p.has {
		panic(fmt.Sprintf("fixpoint: no value computed for %s", p.EPK()))
	}
	return p.value
}

// EPK returns the answer's key.
func (p EOptionP) EPK() EPK { return EPK{Entity: p.Entity, Kind: p.Kind} }

func (p EOptionP) String() string {
	switch {
	case !p.has:
		return fmt.Sprintf("EPK%s", p.EPK())
	case p.final:
		return fmt.Sprintf("Final(%v, %s, %v)", p.Entity, p.Kind.Name(), p.value)
	default:
		return fmt.Sprintf("Interim(%v, %s, %v)", p.Entity, p.Kind.Name(), p.value)
	}
}

// advancedSince reports whether cur carries information beyond the
// previously observed answer obs: a first bound, a refined bound, or
// finality.
func advancedSince(obs, cur EOptionP) bool {
	if cur.final && !obs.final {
		return true
	}
	if cur.has && !obs.has {
		return true
	}
	if cur.has && obs.has && !cur.Kind.equalValues(obs.value, cur.value) {
		return true
	}
	return false
}
