package fixpoint

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newIntKind registers a kind whose order is int comparison, optionally
// with a fallback constant.
func newIntKind(reg *Registry, name string, fallback Value) *Kind {
	spec := KindSpec{Name: name, Refines: intRefines}
	if fallback != nil {
		spec.Fallback = func(Entity, FallbackReason) Value { return fallback }
	}
	return reg.MustRegister(spec)
}

func entitySource(entities ...Entity) Option {
	return WithEntitySource(func() []Entity { return entities })
}

// ============================================================================
// Eager scheduling
// ============================================================================

func TestStore_Schedule_Final(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("m1", "m2", "m3"))
	defer st.Close()

	err := st.Schedule(nil, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: 1}
	})
	require.NoError(t, err)
	require.NoError(t, st.AwaitCompletion(true))

	for _, e := range []string{"m1", "m2", "m3"} {
		v, ok := st.Final(e, k)
		require.True(t, ok, "entity %s should be final", e)
		assert.Equal(t, 1, v)
	}
	assert.NoError(t, st.Validate())
}

func TestStore_Schedule_Predicate(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("m1", "m2", "skip"))
	defer st.Close()

	err := st.Schedule(func(e Entity) bool { return e != "skip" }, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: 1}
	})
	require.NoError(t, err)
	require.NoError(t, st.AwaitCompletion(true))

	_, ok := st.Final("skip", k)
	assert.False(t, ok, "filtered entity should not be computed")
	_, ok = st.Final("m1", k)
	assert.True(t, ok)
}

func TestStore_Schedule_NoEntitySource(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	err := st.Schedule(nil, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: 1}
	})
	require.Error(t, err)
	var se *SolverError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeNoEntitySource, se.Code)
}

// ============================================================================
// Lazy scheduling
// ============================================================================

func TestStore_RegisterLazy_TriggeredByApply(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	runs := 0
	require.NoError(t, st.RegisterLazy(k, func(e Entity) Result {
		runs++
		return Final{Entity: e, Kind: k, Value: 5}
	}))

	// Before any query, nothing runs.
	require.NoError(t, st.AwaitCompletion(true))
	assert.Equal(t, 0, runs)

	p := st.Apply("m1", k)
	assert.True(t, p.IsEPK(), "first query answers no-property while the computation is queued")

	require.NoError(t, st.AwaitCompletion(true))
	assert.Equal(t, 1, runs)

	v, ok := st.Final("m1", k)
	require.True(t, ok)
	assert.Equal(t, 5, v)

	// Re-querying a computed slot must not re-run the computation.
	st.Apply("m1", k)
	require.NoError(t, st.AwaitCompletion(true))
	assert.Equal(t, 1, runs)
}

func TestStore_RegisterLazy_Duplicate(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	c := func(e Entity) Result { return Final{Entity: e, Kind: k, Value: 1} }
	require.NoError(t, st.RegisterLazy(k, c))

	err := st.RegisterLazy(k, c)
	require.Error(t, err)
	var se *SolverError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeDuplicateLazy, se.Code)
}

// ============================================================================
// Dependencies and continuation replay
// ============================================================================

// chainCompute derives level(e) = level(dependee)+1 via one dependency.
func chainCompute(st *Store, k *Kind, dependee map[string]string, base map[string]int) Compute {
	var derive func(e Entity, obs EOptionP) Result
	derive = func(e Entity, obs EOptionP) Result {
		if obs.IsFinal() {
			return Final{Entity: e, Kind: k, Value: obs.Value().(int) + 1}
		}
		v := 0
		if obs.HasValue() {
			v = obs.Value().(int) + 1
		}
		return Intermediate{
			Entity:    e,
			Kind:      k,
			Value:     v,
			Dependees: []EOptionP{obs},
			State:     e,
			Continue: func(state any, update EOptionP) Result {
				return derive(state, update)
			},
		}
	}
	return func(e Entity) Result {
		if v, ok := base[e.(string)]; ok {
			return Final{Entity: e, Kind: k, Value: v}
		}
		dep := dependee[e.(string)]
		obs := st.Require(e, k, dep, k)
		return derive(e, obs)
	}
}

func TestStore_DependencyChain(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "depth", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	// c -> b -> a, a = 10
	deps := map[string]string{"b": "a", "c": "b"}
	base := map[string]int{"a": 10}
	require.NoError(t, st.RegisterLazy(k, chainCompute(st, k, deps, base)))

	st.Force("c", k)
	require.NoError(t, st.AwaitCompletion(true))
	require.NoError(t, st.Validate())

	for e, want := range map[string]int{"a": 10, "b": 11, "c": 12} {
		v, ok := st.Final(e, k)
		require.True(t, ok, "entity %s", e)
		assert.Equal(t, want, v, "entity %s", e)
	}
}

func TestStore_Require_RecordsEdges(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "depth", nil)
	rec := &captureRecorder{}
	st := New(reg, WithLogger(quietLogger()), WithRecorder(rec),
		WithTokenGenerator(NewFixedGenerator("run-1")))
	defer st.Close()

	deps := map[string]string{"b": "a"}
	base := map[string]int{"a": 1}
	require.NoError(t, st.RegisterLazy(k, chainCompute(st, k, deps, base)))

	st.Force("b", k)
	require.NoError(t, st.AwaitCompletion(true))

	require.NotEmpty(t, rec.edges)
	e := rec.edges[0]
	assert.Equal(t, "b", e.DependerEntity)
	assert.Equal(t, "a", e.DependeeEntity)
	assert.Equal(t, "depth", e.DependerKind)
}

// ============================================================================
// Result variants
// ============================================================================

func TestStore_Multi(t *testing.T) {
	reg := NewRegistry()
	ka := newIntKind(reg, "alpha", nil)
	kb := newIntKind(reg, "beta", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("root"))
	defer st.Close()

	err := st.Schedule(nil, func(e Entity) Result {
		return Multi{Properties: []Final{
			{Entity: "x", Kind: ka, Value: 1},
			{Entity: "x", Kind: kb, Value: 2},
			{Entity: "y", Kind: ka, Value: 3},
		}}
	})
	require.NoError(t, err)
	require.NoError(t, st.AwaitCompletion(true))

	v, ok := st.Final("x", ka)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = st.Final("x", kb)
	require.True(t, ok)
	assert.Equal(t, 2, v)
	v, ok = st.Final("y", ka)
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestStore_NoResult(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("m1"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result { return NoResult{} }))
	require.NoError(t, st.AwaitCompletion(true))

	_, ok := st.Final("m1", k)
	assert.False(t, ok)
}

func TestStore_NilResult(t *testing.T) {
	reg := NewRegistry()
	newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("m1"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result { return nil }))
	err := st.AwaitCompletion(true)
	require.Error(t, err)
	var se *SolverError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeInvalidResult, se.Code)
}

func TestStore_Intermediate_WithoutDependees(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("m1"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		return Intermediate{
			Entity: e, Kind: k, Value: 1,
			Continue: func(any, EOptionP) Result { return NoResult{} },
		}
	}))
	err := st.AwaitCompletion(true)
	require.Error(t, err)
	var se *SolverError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ErrCodeInvalidResult, se.Code)
}

func TestStore_Suspended_RetriedAfterProgress(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("slow", "fast"))
	defer st.Close()

	resumed := false
	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		if e == "fast" {
			return Final{Entity: e, Kind: k, Value: 1}
		}
		return Suspended{
			Entity: e,
			Kind:   k,
			Compute: func(e Entity) Result {
				resumed = true
				return Final{Entity: e, Kind: k, Value: 2}
			},
		}
	}))
	require.NoError(t, st.AwaitCompletion(true))

	assert.True(t, resumed, "suspended computation should be retried once progress happened")
	v, ok := st.Final("slow", k)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestStore_Suspended_NeverResumedReported(t *testing.T) {
	reg := NewRegistry()
	newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("stuck"))
	defer st.Close()

	// Nothing else runs, so no bound is ever stored and the suspension
	// can never be woken.
	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		return Suspended{Entity: e}
	}))

	err := st.AwaitCompletion(true)
	require.Error(t, err)
	assert.True(t, IsUnresolved(err))
	assert.NoError(t, st.Validate(), "stuck suspension must not stay in flight")
}

// ============================================================================
// Monotonicity
// ============================================================================

func TestStore_IllegalRefinement(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("first", "second"))
	defer st.Close()

	// Both entities write the same slot; the second write tries to move
	// the final bound backwards. Sequential backend preserves order.
	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		if e == "first" {
			return Final{Entity: "shared", Kind: k, Value: 5}
		}
		return Final{Entity: "shared", Kind: k, Value: 3}
	}))
	err := st.AwaitCompletion(true)
	require.Error(t, err)
	assert.True(t, IsIllegalRefinement(err))

	v, ok := st.Final("shared", k)
	require.True(t, ok)
	assert.Equal(t, 5, v, "the established bound must survive the illegal update")
}

func TestStore_EqualRefinalization_Tolerated(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("first", "second"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		return Final{Entity: "shared", Kind: k, Value: 5}
	}))
	assert.NoError(t, st.AwaitCompletion(true),
		"re-finalizing at the identical value is a no-op, not an error")
}

func TestStore_IllegalRefinement_DebugPanics(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), WithDebug(), entitySource("first", "second"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		if e == "first" {
			return Final{Entity: "shared", Kind: k, Value: 5}
		}
		return Final{Entity: "shared", Kind: k, Value: 3}
	}))
	assert.Panics(t, func() { _ = st.AwaitCompletion(true) })
}

// ============================================================================
// Panic isolation
// ============================================================================

func TestStore_PanicIsolation(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("good", "bad", "alsogood"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		if e == "bad" {
			panic("analysis bug")
		}
		return Final{Entity: e, Kind: k, Value: 1}
	}))
	err := st.AwaitCompletion(true)
	require.Error(t, err)
	assert.True(t, IsComputationPanic(err))

	// Sibling tasks complete despite the panic.
	for _, e := range []string{"good", "alsogood"} {
		_, ok := st.Final(e, k)
		assert.True(t, ok, "entity %s should be final", e)
	}
	_, ok := st.Final("bad", k)
	assert.False(t, ok)
}

func TestStore_PanicCarriesStack(t *testing.T) {
	reg := NewRegistry()
	newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("bad"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result { panic("boom") }))
	err := st.AwaitCompletion(true)

	var se *SolverError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "boom", se.Recovered)
	assert.NotEmpty(t, se.Stack)
}

// ============================================================================
// Fallbacks and force
// ============================================================================

func TestStore_Fallback_NoAnalysis(t *testing.T) {
	reg := NewRegistry()
	var gotReason FallbackReason
	k := reg.MustRegister(KindSpec{
		Name:    "level",
		Refines: intRefines,
		Fallback: func(e Entity, reason FallbackReason) Value {
			gotReason = reason
			return 0
		},
	})
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	st.Force("m1", k)
	require.NoError(t, st.AwaitCompletion(true))

	v, ok := st.Final("m1", k)
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, FallbackNoAnalysis, gotReason)
}

func TestStore_Fallback_ManyForcedEntities(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", 42)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	for i := 0; i < 100; i++ {
		st.Force(i, k)
	}
	require.NoError(t, st.AwaitCompletion(true))
	require.NoError(t, st.Validate())

	finals := st.Properties(k)
	require.Len(t, finals, 100)
	for i := 0; i < 100; i++ {
		assert.Equal(t, 42, finals[i], "entity %d", i)
	}
}

func TestStore_Fallback_NotCovered(t *testing.T) {
	reg := NewRegistry()
	var gotReason FallbackReason
	k := reg.MustRegister(KindSpec{
		Name:    "level",
		Refines: intRefines,
		Fallback: func(e Entity, reason FallbackReason) Value {
			gotReason = reason
			return 0
		},
	})
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	// An analysis exists but declines this entity.
	require.NoError(t, st.RegisterLazy(k, func(e Entity) Result { return NoResult{} }))

	st.Force("m1", k)
	require.NoError(t, st.AwaitCompletion(true))

	v, ok := st.Final("m1", k)
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, FallbackNotCovered, gotReason)
}

func TestStore_Fallback_Disabled(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", 0)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	st.Force("m1", k)
	err := st.AwaitCompletion(false)
	require.Error(t, err)
	assert.True(t, IsUnresolved(err))

	_, ok := st.Final("m1", k)
	assert.False(t, ok)
}

func TestStore_MissingFallback(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	st.Force("m1", k)
	err := st.AwaitCompletion(true)
	require.Error(t, err)
	assert.True(t, IsMissingFallback(err))
}

func TestStore_Fallback_NotAppliedOverFailure(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", 0)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	require.NoError(t, st.RegisterLazy(k, func(e Entity) Result { panic("bug") }))
	st.Force("m1", k)

	err := st.AwaitCompletion(true)
	require.Error(t, err)
	assert.True(t, IsComputationPanic(err))
	assert.True(t, IsUnresolved(err), "a failed slot surfaces as unresolved, never papered over")

	_, ok := st.Final("m1", k)
	assert.False(t, ok, "fallback must not mask a failed computation")
}

// ============================================================================
// Cycles
// ============================================================================

// cyclicCompute builds mutually dependent evaluations: each entity observes
// its peer and echoes the peer's level, starting at start.
func cyclicCompute(st *Store, k *Kind, peer map[string]string, start int) Compute {
	var wait func(e Entity, obs EOptionP) Result
	wait = func(e Entity, obs EOptionP) Result {
		v := start
		if obs.HasValue() && obs.Value().(int) > v {
			v = obs.Value().(int)
		}
		if obs.IsFinal() {
			return Final{Entity: e, Kind: k, Value: v}
		}
		return Intermediate{
			Entity:    e,
			Kind:      k,
			Value:     v,
			Dependees: []EOptionP{obs},
			State:     e,
			Continue: func(state any, update EOptionP) Result {
				return wait(state, update)
			},
		}
	}
	return func(e Entity) Result {
		p := peer[e.(string)]
		return wait(e, st.Require(e, k, p, k))
	}
}

func TestStore_CycleResolvedAtQuiescence(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	peer := map[string]string{"a": "b", "b": "a"}
	require.NoError(t, st.RegisterLazy(k, cyclicCompute(st, k, peer, 1)))

	st.Force("a", k)
	st.Force("b", k)
	require.NoError(t, st.AwaitCompletion(true))
	require.NoError(t, st.Validate())

	for _, e := range []string{"a", "b"} {
		v, ok := st.Final(e, k)
		require.True(t, ok, "entity %s", e)
		assert.Equal(t, 1, v, "cycle members finalize at their current bound")
	}
}

func TestStore_Cycle_OnCycleHook(t *testing.T) {
	reg := NewRegistry()
	k := reg.MustRegister(KindSpec{
		Name:    "level",
		Refines: intRefines,
		OnCycle: func(current Value) Value { return current.(int) + 100 },
	})
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	peer := map[string]string{"a": "b", "b": "a"}
	require.NoError(t, st.RegisterLazy(k, cyclicCompute(st, k, peer, 1)))

	st.Force("a", k)
	require.NoError(t, st.AwaitCompletion(true))

	v, ok := st.Final("a", k)
	require.True(t, ok)
	assert.Equal(t, 101, v, "OnCycle adjusts the committed value")
}

func TestStore_CycleWithDownstreamDepender(t *testing.T) {
	reg := NewRegistry()
	k := reg.MustRegister(KindSpec{
		Name:    "level",
		Refines: intRefines,
		OnCycle: func(current Value) Value { return current.(int) + 100 },
	})
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	// c hangs off the {a, b} cycle without being part of it; it must see
	// the OnCycle-adjusted finals, not the stale interim bounds.
	peer := map[string]string{"a": "b", "b": "a", "c": "a"}
	require.NoError(t, st.RegisterLazy(k, cyclicCompute(st, k, peer, 1)))

	st.Force("c", k)
	require.NoError(t, st.AwaitCompletion(true))
	require.NoError(t, st.Validate())

	v, ok := st.Final("c", k)
	require.True(t, ok)
	assert.Equal(t, 101, v, "downstream depender observes cycle-adjusted finals")
}

func TestStore_SelfCycle(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	peer := map[string]string{"a": "a"}
	require.NoError(t, st.RegisterLazy(k, cyclicCompute(st, k, peer, 7)))

	st.Force("a", k)
	require.NoError(t, st.AwaitCompletion(true))

	v, ok := st.Final("a", k)
	require.True(t, ok)
	assert.Equal(t, 7, v)
}

// ============================================================================
// Store accessors and validation
// ============================================================================

func TestStore_Properties(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("m1", "m2"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: len(e.(string))}
	}))
	require.NoError(t, st.AwaitCompletion(true))

	props := st.Properties(k)
	assert.Equal(t, map[Entity]Value{"m1": 2, "m2": 2}, props)
}

func TestStore_Snapshot_CreationOrder(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()), entitySource("m1", "m2", "m3"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: 1}
	}))
	require.NoError(t, st.AwaitCompletion(true))

	snap := st.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "m1", snap[0].Entity)
	assert.Equal(t, "m2", snap[1].Entity)
	assert.Equal(t, "m3", snap[2].Entity)
}

func TestStore_AwaitCompletion_Repeatable(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()),
		WithTokenGenerator(NewFixedGenerator("run-1", "run-2")))
	defer st.Close()

	require.NoError(t, st.RegisterLazy(k, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: 1}
	}))

	st.Force("m1", k)
	require.NoError(t, st.AwaitCompletion(true))

	// A second phase picks up newly demanded work.
	st.Force("m2", k)
	require.NoError(t, st.AwaitCompletion(true))

	_, ok := st.Final("m2", k)
	assert.True(t, ok)
}

// captureRecorder collects records in memory. Locked, so parallel-backend
// tests can journal into it too.
type captureRecorder struct {
	mu      sync.Mutex
	updates []UpdateRecord
	edges   []EdgeRecord
}

func (r *captureRecorder) RecordUpdate(u UpdateRecord) error {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
	return nil
}

func (r *captureRecorder) RecordEdge(e EdgeRecord) error {
	r.mu.Lock()
	r.edges = append(r.edges, e)
	r.mu.Unlock()
	return nil
}

func TestStore_Recorder_UpdatesJournaled(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	rec := &captureRecorder{}
	st := New(reg, WithLogger(quietLogger()), WithRecorder(rec),
		WithTokenGenerator(NewFixedGenerator("run-1")), entitySource("m1"))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: 4}
	}))
	require.NoError(t, st.AwaitCompletion(true))

	require.Len(t, rec.updates, 1)
	u := rec.updates[0]
	assert.Equal(t, "run-1", u.Run)
	assert.Equal(t, "m1", u.Entity)
	assert.Equal(t, "level", u.Kind)
	assert.Equal(t, "4", u.Bound)
	assert.True(t, u.Final)
	assert.Equal(t, OriginResult, u.Origin)
}

func TestStore_Recorder_FallbackOrigin(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", 0)
	rec := &captureRecorder{}
	st := New(reg, WithLogger(quietLogger()), WithRecorder(rec),
		WithTokenGenerator(NewFixedGenerator("run-1")))
	defer st.Close()

	st.Force("m1", k)
	require.NoError(t, st.AwaitCompletion(true))

	require.Len(t, rec.updates, 1)
	assert.Equal(t, OriginFallback, rec.updates[0].Origin)
}

func TestStore_Labeler(t *testing.T) {
	type method struct{ name string }

	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	rec := &captureRecorder{}
	m := &method{name: "compute"}
	st := New(reg, WithLogger(quietLogger()), WithRecorder(rec),
		WithTokenGenerator(NewFixedGenerator("run-1")),
		WithLabeler(func(e Entity) string { return e.(*method).name }),
		entitySource(m))
	defer st.Close()

	require.NoError(t, st.Schedule(nil, func(e Entity) Result {
		return Final{Entity: e, Kind: k, Value: 1}
	}))
	require.NoError(t, st.AwaitCompletion(true))

	require.Len(t, rec.updates, 1)
	assert.Equal(t, "compute", rec.updates[0].Entity)
}

func TestStore_ApplyIsNonBlocking(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	// No computation registered: Apply answers no-property and demands
	// nothing, so completion succeeds with the slot unresolved.
	p := st.Apply("m1", k)
	assert.True(t, p.IsEPK())
	assert.NoError(t, st.AwaitCompletion(true))
	_, ok := st.Final("m1", k)
	assert.False(t, ok)
}

func TestStore_InterimVisibleBeforeFinal(t *testing.T) {
	reg := NewRegistry()
	k := newIntKind(reg, "level", nil)
	st := New(reg, WithLogger(quietLogger()))
	defer st.Close()

	peer := map[string]string{"a": "b", "b": "a"}
	require.NoError(t, st.RegisterLazy(k, cyclicCompute(st, k, peer, 3)))

	st.Force("a", k)

	// Drive one phase; afterwards everything is final. The point here is
	// that Apply never lies: any value it returned along the way was a
	// legal bound of the slot.
	require.NoError(t, st.AwaitCompletion(true))
	p := st.Apply("a", k)
	assert.True(t, p.IsFinal())
	assert.Equal(t, 3, p.Value())
}
