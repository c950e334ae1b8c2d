package fixpoint

import "sort"

// Quiescence sweeps. AwaitCompletion alternates draining the scheduler
// with the passes below until none of them changes anything. Each pass runs
// on the joining goroutine while the scheduler is idle, so the passes see a
// stable table; any update they store may wake parked tasks, which the next
// drain executes.

// resumeSuspended resubmits suspended computations once some bound has been
// stored since they suspended. A task that suspends with no intervening
// progress stays parked; failStuckSuspended retires it once the join runs
// out of work. Returns true if any task was resubmitted.
func (s *Store) resumeSuspended() bool {
	now := s.progress.Load()
	s.mu.Lock()
	var keep []suspendedTask
	var wake []*task
	for _, st := range s.suspended {
		if st.t.isDone() {
			continue
		}
		if now > st.at {
			wake = append(wake, st.t)
		} else {
			keep = append(keep, st)
		}
	}
	s.suspended = keep
	s.mu.Unlock()

	for _, t := range wake {
		t.mu.Lock()
		t.queued = true
		t.mu.Unlock()
		s.submit(t)
	}
	return len(wake) > 0
}

// failStuckSuspended retires suspended computations that quiescence never
// woke: no bound was stored after they parked, so nothing can ever resume
// them. Each is reported as unresolved rather than silently dropped.
func (s *Store) failStuckSuspended() {
	s.mu.Lock()
	parked := s.suspended
	s.suspended = nil
	s.mu.Unlock()

	for _, st := range parked {
		if st.t.isDone() {
			continue
		}
		e, k := st.t.identity()
		s.failTask(st.t, NewUnresolvedError(e, k,
			"computation stayed suspended and no further progress resumed it"))
	}
}

// applyFallbacks finalizes every demanded slot that has no value and no
// live computation, using the kind's fallback constructor. A demanded slot
// is one that was forced or that some parked computation depends on.
// Returns true if any bound was stored.
func (s *Store) applyFallbacks(useFallbacks bool) bool {
	if !useFallbacks {
		return false
	}
	progressed := false
	for _, epk := range s.table.keys() {
		sl, ok := s.table.lookup(epk)
		if !ok {
			continue
		}
		sl.mu.Lock()
		demanded := sl.forced || len(sl.dependers) > 0
		owner := sl.owner
		skip := sl.has || sl.final || !demanded || sl.fallbackMissing
		sl.mu.Unlock()
		if skip {
			continue
		}
		if owner != nil && !owner.isDone() {
			continue // a computation may still deliver a value
		}
		if owner != nil && owner.isFailed() {
			continue // surfaced as unresolved, never papered over
		}

		k := epk.Kind
		if !k.HasFallback() {
			sl.mu.Lock()
			already := sl.fallbackMissing
			sl.fallbackMissing = true
			sl.mu.Unlock()
			if !already {
				s.recordError(NewMissingFallbackError(epk.Entity, k))
			}
			continue
		}

		v := k.fallbackValue(epk.Entity, s.fallbackReason(k))
		if s.storeBound(epk, v, true, OriginFallback, nil) == updateStored {
			s.logger.Debug("fallback applied",
				"entity", s.labeler(epk.Entity),
				"kind", k.Name(),
				"bound", v,
			)
			progressed = true
		}
	}
	return progressed
}

// finalizeRetired commits interim bounds whose computations have retired:
// nothing can refine them further, so the current bound is the fixpoint
// value for the slot. Returns true if any slot was finalized.
func (s *Store) finalizeRetired() bool {
	progressed := false
	for _, epk := range s.table.keys() {
		sl, ok := s.table.lookup(epk)
		if !ok {
			continue
		}
		sl.mu.Lock()
		owner := sl.owner
		candidate := sl.has && !sl.final
		v := sl.value
		sl.mu.Unlock()
		if !candidate {
			continue
		}
		if owner != nil && (!owner.isDone() || owner.isFailed()) {
			continue
		}
		if s.storeBound(epk, v, true, OriginQuiesce, nil) == updateStored {
			progressed = true
		}
	}
	return progressed
}

// resolveCycles breaks dependency cycles at quiescence.
//
// When the scheduler is idle, a parked task waiting only on slots owned by
// other parked tasks can never be woken by an external event. The closed
// set of such tasks is computed by iterated elimination: start from all
// parked tasks and drop any task with an escaping dependee (final slots do
// not block and are ignored; a non-final dependee escapes when its owner is
// missing, retired, or outside the set) until the remainder is closed.
//
// Within the closed set, only genuine cycles are finalized per sweep: the
// sink components of the set's dependency graph, i.e. the strongly
// connected components with no dependencies on the rest of the set. Each
// member is committed at its kind's OnCycle adjustment of the current
// bound (identity by default). Tasks that merely depend on a cycle are
// left parked: the finalization notifies them, and the next drain lets
// them react to the committed values before their own turn comes.
//
// Returns true if any cycle was resolved.
func (s *Store) resolveCycles() bool {
	parked := make(map[*task]struct{})
	for _, t := range s.sortedInFlight() {
		if t.isParked() {
			parked[t] = struct{}{}
		}
	}
	if len(parked) == 0 {
		return false
	}

	for {
		removed := false
		for t := range parked {
			if s.hasEscapingDependee(t, parked) {
				delete(parked, t)
				removed = true
			}
		}
		if !removed {
			break
		}
	}
	if len(parked) == 0 {
		return false
	}

	members := s.sinkComponents(parked)
	if len(members) == 0 {
		return false
	}
	sortTasksByID(members)

	// Retire every member first so finalization updates are not delivered
	// back into the cycle, then commit the bounds in task order.
	for _, t := range members {
		if t.retire(false) {
			s.removeInFlight(t)
		}
	}
	for _, t := range members {
		e, k := t.identity()
		if k == nil {
			continue
		}
		epk := EPK{Entity: e, Kind: k}
		cur := s.table.snapshot(epk)
		if cur.IsFinal() || !cur.HasValue() {
			continue
		}
		v := k.cycleBound(cur.Value())
		s.logger.Debug("cycle resolved",
			"entity", s.labeler(e),
			"kind", k.Name(),
			"bound", v,
			"members", len(members),
		)
		s.storeBound(epk, v, true, OriginQuiesce, nil)
	}
	return true
}

// sinkComponents returns the members of every strongly connected component
// of the closed set's dependency graph that has no edge to another
// component. Tarjan's algorithm, iterated over tasks in id order so the
// result is deterministic.
func (s *Store) sinkComponents(set map[*task]struct{}) []*task {
	nodes := make([]*task, 0, len(set))
	for t := range set {
		nodes = append(nodes, t)
	}
	sortTasksByID(nodes)

	succs := make(map[*task][]*task, len(nodes))
	for _, t := range nodes {
		seen := make(map[*task]bool)
		for _, epk := range t.dependeeSet() {
			sl, ok := s.table.lookup(epk)
			if !ok {
				continue
			}
			sl.mu.Lock()
			owner := sl.owner
			final := sl.final
			sl.mu.Unlock()
			if final || owner == nil || owner == t || seen[owner] {
				if owner == t && !seen[t] {
					seen[t] = true
					succs[t] = append(succs[t], t)
				}
				continue
			}
			if _, in := set[owner]; in {
				seen[owner] = true
				succs[t] = append(succs[t], owner)
			}
		}
	}

	var (
		index   = make(map[*task]int, len(nodes))
		lowlink = make(map[*task]int, len(nodes))
		onStack = make(map[*task]bool, len(nodes))
		stack   []*task
		comp    = make(map[*task]int, len(nodes))
		next    int
		ncomp   int
	)
	var strongconnect func(t *task)
	strongconnect = func(t *task) {
		index[t] = next
		lowlink[t] = next
		next++
		stack = append(stack, t)
		onStack[t] = true

		for _, u := range succs[t] {
			if u == t {
				continue
			}
			if _, visited := index[u]; !visited {
				strongconnect(u)
				if lowlink[u] < lowlink[t] {
					lowlink[t] = lowlink[u]
				}
			} else if onStack[u] && index[u] < lowlink[t] {
				lowlink[t] = index[u]
			}
		}

		if lowlink[t] == index[t] {
			for {
				u := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[u] = false
				comp[u] = ncomp
				if u == t {
					break
				}
			}
			ncomp++
		}
	}
	for _, t := range nodes {
		if _, visited := index[t]; !visited {
			strongconnect(t)
		}
	}

	// A component is a sink when no member has a successor outside it.
	// Singleton components without a self-loop are not cycles at all and
	// are skipped; they wait for the cycles below them to finalize.
	sink := make([]bool, ncomp)
	size := make([]int, ncomp)
	selfLoop := make([]bool, ncomp)
	for i := range sink {
		sink[i] = true
	}
	for _, t := range nodes {
		size[comp[t]]++
		for _, u := range succs[t] {
			if u == t {
				selfLoop[comp[t]] = true
				continue
			}
			if comp[u] != comp[t] {
				sink[comp[t]] = false
			}
		}
	}

	var members []*task
	for _, t := range nodes {
		c := comp[t]
		if sink[c] && (size[c] > 1 || selfLoop[c]) {
			members = append(members, t)
		}
	}
	return members
}

// hasEscapingDependee reports whether any dependee of t can still be
// refined by something outside the candidate set.
func (s *Store) hasEscapingDependee(t *task, set map[*task]struct{}) bool {
	for _, epk := range t.dependeeSet() {
		sl, ok := s.table.lookup(epk)
		if !ok {
			return true
		}
		sl.mu.Lock()
		final := sl.final
		owner := sl.owner
		sl.mu.Unlock()
		if final {
			continue
		}
		if owner == nil || owner.isDone() {
			return true
		}
		if _, in := set[owner]; !in {
			return true
		}
	}
	return false
}

// collectPhaseErrors drains the errors recorded during this phase and adds
// one unresolved-property error per demanded slot that never reached a
// final value.
func (s *Store) collectPhaseErrors(useFallbacks bool) []error {
	s.mu.Lock()
	errs := s.errs
	s.errs = nil
	s.mu.Unlock()

	for _, epk := range s.table.keys() {
		sl, ok := s.table.lookup(epk)
		if !ok {
			continue
		}
		sl.mu.Lock()
		final := sl.final
		demanded := sl.forced || len(sl.dependers) > 0
		owner := sl.owner
		missing := sl.fallbackMissing
		sl.mu.Unlock()
		if final || missing {
			continue
		}
		failed := owner != nil && owner.isFailed()
		if !demanded && !failed {
			continue
		}
		why := "no computation produced a final value"
		switch {
		case failed:
			why = "owning computation failed"
		case !useFallbacks:
			why = "fallbacks disabled and no final value was computed"
		}
		errs = append(errs, NewUnresolvedError(epk.Entity, epk.Kind, why))
	}
	return errs
}

func sortTasksByID(ts []*task) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].id < ts[j].id })
}
