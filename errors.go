package fixpoint

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes solver errors.
type ErrorCode string

const (
	// ErrCodeIllegalRefinement indicates a computation tried to move a
	// slot backwards in its kind's order.
	ErrCodeIllegalRefinement ErrorCode = "ILLEGAL_REFINEMENT"

	// ErrCodeComputationPanic indicates a computation or continuation
	// panicked; the panic was recovered and recorded against the task.
	ErrCodeComputationPanic ErrorCode = "COMPUTATION_PANIC"

	// ErrCodeMissingFallback indicates a forced (entity, kind) needed a
	// fallback but the kind has none registered.
	ErrCodeMissingFallback ErrorCode = "MISSING_FALLBACK"

	// ErrCodeUnresolved indicates an (entity, kind) remained non-final
	// after the completion join.
	ErrCodeUnresolved ErrorCode = "UNRESOLVED_PROPERTY"

	// ErrCodeInvalidResult indicates a computation returned a malformed
	// result (nil, an unknown variant, or an Intermediate without
	// dependees).
	ErrCodeInvalidResult ErrorCode = "INVALID_RESULT"

	// ErrCodeNoEntitySource indicates eager scheduling was requested but
	// no entity-enumeration source is configured.
	ErrCodeNoEntitySource ErrorCode = "NO_ENTITY_SOURCE"

	// ErrCodeDuplicateLazy indicates a second lazy computation was
	// registered for the same kind.
	ErrCodeDuplicateLazy ErrorCode = "DUPLICATE_LAZY_REGISTRATION"
)

// SolverError is an error detected by the engine, carrying the full slot
// identity so callers can pinpoint the offending (entity, kind) pair.
type SolverError struct {
	Code    ErrorCode
	Message string

	// Entity and Kind identify the affected slot. Kind may be nil for a
	// task that failed before binding to a slot.
	Entity Entity
	Kind   *Kind

	// OldBound and NewBound are set for illegal refinements.
	OldBound Value
	NewBound Value

	// Recovered and Stack are set for computation panics.
	Recovered any
	Stack     []byte
}

// Error implements the error interface.
func (e *SolverError) Error() string {
	kind := "?"
	if e.Kind != nil {
		kind = e.Kind.Name()
	}
	switch e.Code {
	case ErrCodeIllegalRefinement:
		return fmt.Sprintf("%s: %s (entity=%v, kind=%s, old=%v, attempted=%v)",
			e.Code, e.Message, e.Entity, kind, e.OldBound, e.NewBound)
	case ErrCodeComputationPanic:
		return fmt.Sprintf("%s: %s (entity=%v, kind=%s, panic=%v)",
			e.Code, e.Message, e.Entity, kind, e.Recovered)
	default:
		if e.Entity != nil || e.Kind != nil {
			return fmt.Sprintf("%s: %s (entity=%v, kind=%s)", e.Code, e.Message, e.Entity, kind)
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// NewIllegalRefinementError reports an attempt to move a slot backwards.
func NewIllegalRefinementError(e Entity, k *Kind, old, attempted Value) *SolverError {
	return &SolverError{
		Code:     ErrCodeIllegalRefinement,
		Message:  "update does not refine the current bound",
		Entity:   e,
		Kind:     k,
		OldBound: old,
		NewBound: attempted,
	}
}

// NewComputationPanicError records a recovered panic from a computation or
// continuation.
func NewComputationPanicError(e Entity, k *Kind, recovered any, stack []byte) *SolverError {
	return &SolverError{
		Code:      ErrCodeComputationPanic,
		Message:   "computation panicked",
		Entity:    e,
		Kind:      k,
		Recovered: recovered,
		Stack:     stack,
	}
}

// NewMissingFallbackError reports a forced pair whose kind has no fallback.
func NewMissingFallbackError(e Entity, k *Kind) *SolverError {
	return &SolverError{
		Code:    ErrCodeMissingFallback,
		Message: "kind has no fallback registered",
		Entity:  e,
		Kind:    k,
	}
}

// NewUnresolvedError reports a pair that never reached a final value.
func NewUnresolvedError(e Entity, k *Kind, why string) *SolverError {
	return &SolverError{
		Code:    ErrCodeUnresolved,
		Message: why,
		Entity:  e,
		Kind:    k,
	}
}

// NewInvalidResultError reports a malformed computation result.
func NewInvalidResultError(e Entity, k *Kind, why string) *SolverError {
	return &SolverError{
		Code:    ErrCodeInvalidResult,
		Message: why,
		Entity:  e,
		Kind:    k,
	}
}

// IsIllegalRefinement reports whether err is (or wraps) an illegal
// refinement error.
func IsIllegalRefinement(err error) bool { return hasCode(err, ErrCodeIllegalRefinement) }

// IsComputationPanic reports whether err is (or wraps) a recovered
// computation panic.
func IsComputationPanic(err error) bool { return hasCode(err, ErrCodeComputationPanic) }

// IsMissingFallback reports whether err is (or wraps) a missing-fallback
// configuration error.
func IsMissingFallback(err error) bool { return hasCode(err, ErrCodeMissingFallback) }

// IsUnresolved reports whether err is (or wraps) an unresolved-property
// error.
func IsUnresolved(err error) bool { return hasCode(err, ErrCodeUnresolved) }

// hasCode walks wrapped and joined errors; errors.As alone would stop at
// the first SolverError even when a sibling carries the wanted code.
func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var se *SolverError
	if errors.As(err, &se) && se.Code == code {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, sub := range joined.Unwrap() {
			if hasCode(sub, code) {
				return true
			}
		}
	}
	return false
}
