package fixpoint

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func errTestKind(t *testing.T) *Kind {
	t.Helper()
	reg := NewRegistry()
	return reg.MustRegister(KindSpec{Name: "purity", Refines: intRefines})
}

func TestSolverError_IllegalRefinement(t *testing.T) {
	k := errTestKind(t)
	err := NewIllegalRefinementError("m1", k, 3, 1)

	assert.True(t, IsIllegalRefinement(err))
	assert.False(t, IsComputationPanic(err))
	assert.Contains(t, err.Error(), "ILLEGAL_REFINEMENT")
	assert.Contains(t, err.Error(), "old=3")
	assert.Contains(t, err.Error(), "attempted=1")
	assert.Contains(t, err.Error(), "kind=purity")
}

func TestSolverError_ComputationPanic(t *testing.T) {
	k := errTestKind(t)
	err := NewComputationPanicError("m1", k, "boom", []byte("stack"))

	assert.True(t, IsComputationPanic(err))
	assert.Contains(t, err.Error(), "panic=boom")
	assert.Equal(t, []byte("stack"), err.Stack)
}

func TestSolverError_Wrapped(t *testing.T) {
	k := errTestKind(t)
	err := fmt.Errorf("solve: %w", NewMissingFallbackError("m1", k))

	assert.True(t, IsMissingFallback(err))
	assert.False(t, IsUnresolved(err))
}

func TestSolverError_Joined_MixedCodes(t *testing.T) {
	k := errTestKind(t)
	err := errors.Join(
		NewComputationPanicError("m1", k, "boom", nil),
		NewUnresolvedError("m2", k, "never computed"),
	)

	// Both codes must be discoverable even though errors.As alone stops
	// at the first SolverError in the tree.
	assert.True(t, IsComputationPanic(err))
	assert.True(t, IsUnresolved(err))
	assert.False(t, IsIllegalRefinement(err))
}

func TestSolverError_NilKind(t *testing.T) {
	err := NewUnresolvedError("m1", nil, "no slot bound")
	assert.Contains(t, err.Error(), "kind=?")
}
