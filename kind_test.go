package fixpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// intRefines is the tiny total order used across engine tests: refinement
// moves toward higher ints.
func intRefines(old, new Value) bool {
	return new.(int) >= old.(int)
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	purity, err := reg.Register(KindSpec{Name: "purity", Refines: intRefines})
	require.NoError(t, err)
	assert.Equal(t, 0, purity.ID())
	assert.Equal(t, "purity", purity.Name())

	escape, err := reg.Register(KindSpec{Name: "escape", Refines: intRefines})
	require.NoError(t, err)
	assert.Equal(t, 1, escape.ID(), "ids should be allocated in registration order")

	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_Register_Errors(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Register(KindSpec{Refines: intRefines})
	assert.Error(t, err, "empty name should be rejected")

	_, err = reg.Register(KindSpec{Name: "purity"})
	assert.Error(t, err, "missing Refines should be rejected")

	_, err = reg.Register(KindSpec{Name: "purity", Refines: intRefines})
	require.NoError(t, err)
	_, err = reg.Register(KindSpec{Name: "purity", Refines: intRefines})
	assert.Error(t, err, "duplicate name should be rejected")
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	k := reg.MustRegister(KindSpec{Name: "purity", Refines: intRefines})

	got, ok := reg.Lookup("purity")
	require.True(t, ok)
	assert.Same(t, k, got)

	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistry_MustRegister_Panics(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(KindSpec{Name: "purity", Refines: intRefines})

	assert.Panics(t, func() {
		reg.MustRegister(KindSpec{Name: "purity", Refines: intRefines})
	})
}

func TestKind_Refines(t *testing.T) {
	reg := NewRegistry()
	k := reg.MustRegister(KindSpec{Name: "level", Refines: intRefines})

	assert.True(t, k.Refines(1, 2))
	assert.True(t, k.Refines(2, 2), "equal bounds refine each other")
	assert.False(t, k.Refines(2, 1))
}

func TestKind_HasFallback(t *testing.T) {
	reg := NewRegistry()
	without := reg.MustRegister(KindSpec{Name: "a", Refines: intRefines})
	with := reg.MustRegister(KindSpec{
		Name:     "b",
		Refines:  intRefines,
		Fallback: func(Entity, FallbackReason) Value { return 0 },
	})

	assert.False(t, without.HasFallback())
	assert.True(t, with.HasFallback())
}

func TestFallbackReason_String(t *testing.T) {
	assert.Equal(t, "no-analysis", FallbackNoAnalysis.String())
	assert.Equal(t, "not-covered", FallbackNotCovered.String())
}
