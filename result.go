package fixpoint

// Compute is a property computation for one entity. The engine invokes it
// at most once per (entity, computation): a second force or query for the
// same pair reuses the in-flight or completed task.
type Compute func(e Entity) Result

// Continuation is the replay function of a parked computation. It receives
// the state record captured by the Intermediate result that registered it
// and one dependee update, and returns a new result that is processed
// exactly like an original one.
//
// Continuations must be pure with respect to the engine: all mutable
// progress lives in the state value, not in captured variables, so a replay
// is always driven by (state, update) alone.
type Continuation func(state any, update EOptionP) Result

// Result is the outcome of a computation or continuation invocation.
//
// The variants are Final, Multi, Intermediate, Suspended, and NoResult.
type Result interface {
	isResult()
}

// Final is one final property for one entity. The slot becomes terminal and
// its dependers are notified then discarded.
type Final struct {
	Entity Entity
	Kind   *Kind
	Value  Value
}

// Multi carries final properties for several entities at once. Each one is
// processed like a standalone Final.
type Multi struct {
	Properties []Final
}

// Intermediate is a refineable bound together with the explicit set of
// dependees the computation currently needs and the continuation to replay
// when any of them updates.
//
// The bound is published at the computation's own slot immediately, visible
// to readers though not final. The dependee set must not be empty; a
// computation with no remaining dependencies returns Final.
type Intermediate struct {
	Entity Entity
	Kind   *Kind
	Value  Value

	// Dependees are the (entity, kind) answers as observed by the
	// computation. The engine re-checks each against the live slot when
	// registering: an already-advanced dependee triggers an immediate
	// replay instead of a registration.
	Dependees []EOptionP

	// State is the computation's explicit progress record, handed back to
	// Continue on replay.
	State any

	Continue Continuation
}

// Suspended defers the computation: the task is parked and started over
// once some other bound has been stored. A suspension that no progress
// ever wakes is reported as unresolved by the completion join. If Compute
// is nil the task's original computation runs again.
type Suspended struct {
	Entity  Entity
	Kind    *Kind
	Compute Compute
}

// NoResult states that the computation never produces a value for this
// entity. A forced query for the pair is answered by the kind's fallback.
type NoResult struct{}

func (Final) isResult()        {}
func (Multi) isResult()        {}
func (Intermediate) isResult() {}
func (Suspended) isResult()    {}
func (NoResult) isResult()     {}
