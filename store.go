package fixpoint

import "sync"

// dependerRef is one registration of a parked task against a dependee slot.
// The generation pins the registration to one Intermediate result: when the
// task re-registers, its generation advances and stale refs die on delivery.
type dependerRef struct {
	t   *task
	gen uint64
}

// slot holds the state of one (entity, kind) pair.
//
// Each slot has its own mutex; the table's map lock is only taken to create
// or look up slots, never while a slot is being read or written. Readers
// therefore never observe a bound weaker than one they already observed:
// every transition happens under the slot lock and is monotone.
type slot struct {
	mu sync.Mutex

	value Value
	has   bool
	final bool

	// forced records that Force was called: the pair must be final once
	// the completion join returns.
	forced bool

	// computed records that some computation was ever scheduled for this
	// slot; a second force or query must not re-run it.
	computed bool

	// owner is the in-flight task computing this slot, nil once the slot
	// is final or if the pair was never scheduled.
	owner *task

	// fallbackMissing dedups the missing-fallback error across repeated
	// completion sweeps.
	fallbackMissing bool

	// dependers are the parked tasks waiting on this slot, in
	// registration order so notification order is deterministic under the
	// sequential backend. Replaced wholesale on finalization.
	dependers []dependerRef
}

// snapshotLocked builds the query answer for the slot's current state.
// Caller holds s.mu.
func (s *slot) snapshotLocked(epk EPK) EOptionP {
	switch {
	case !s.has:
		return NoProperty(epk.Entity, epk.Kind)
	case s.final:
		return FinalProperty(epk.Entity, epk.Kind, s.value)
	default:
		return InterimProperty(epk.Entity, epk.Kind, s.value)
	}
}

// registerLocked records t as a depender under generation gen, replacing
// any earlier registration of the same task. Caller holds s.mu.
func (s *slot) registerLocked(t *task, gen uint64) {
	for i := range s.dependers {
		if s.dependers[i].t == t {
			s.dependers[i].gen = gen
			return
		}
	}
	s.dependers = append(s.dependers, dependerRef{t: t, gen: gen})
}

// takeDependersLocked returns and clears the depender set. Caller holds
// s.mu. Used on finalization: dependers are notified once then discarded.
func (s *slot) takeDependersLocked() []dependerRef {
	out := s.dependers
	s.dependers = nil
	return out
}

// table is the entity/property table: one slot per (entity, kind).
type table struct {
	mu    sync.RWMutex
	slots map[EPK]*slot

	// order preserves slot creation order so sweeps over the table are
	// deterministic under the sequential backend.
	order []EPK
}

func newTable() *table {
	return &table{slots: make(map[EPK]*slot)}
}

// lookup returns the slot for epk if it exists.
func (tb *table) lookup(epk EPK) (*slot, bool) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	s, ok := tb.slots[epk]
	return s, ok
}

// getOrCreate returns the slot for epk, creating it on first access.
func (tb *table) getOrCreate(epk EPK) *slot {
	tb.mu.RLock()
	s, ok := tb.slots[epk]
	tb.mu.RUnlock()
	if ok {
		return s
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()
	if s, ok := tb.slots[epk]; ok {
		return s
	}
	s = &slot{}
	tb.slots[epk] = s
	tb.order = append(tb.order, epk)
	return s
}

// snapshot returns the non-blocking query answer for epk.
func (tb *table) snapshot(epk EPK) EOptionP {
	s, ok := tb.lookup(epk)
	if !ok {
		return NoProperty(epk.Entity, epk.Kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(epk)
}

// keys returns all slot keys in creation order.
func (tb *table) keys() []EPK {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	out := make([]EPK, len(tb.order))
	copy(out, tb.order)
	return out
}

// size returns the number of slots.
func (tb *table) size() int {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return len(tb.slots)
}
