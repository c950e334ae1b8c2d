package fixpoint

import "sync"

// task is one in-flight computation instance: the arena record that holds a
// parked computation's explicit continuation state between replays.
//
// INVARIANTS:
//   - at most one worker executes a task at any time (queued/running flags)
//   - gen advances exactly when the depender set is replaced; a slot
//     registration with a stale gen is dead and dropped on delivery
//   - once done, a task never runs again and its continuation is destroyed
type task struct {
	id      int64
	entity  Entity
	kind    *Kind // nil for eager tasks until the first result binds it
	compute Compute

	mu      sync.Mutex
	started bool
	queued  bool
	running bool
	done    bool
	failed  bool

	gen       uint64
	state     any
	cont      Continuation
	dependees []EPK

	// pending holds coalesced dependee updates awaiting one replay.
	// Updates arriving while the task is queued or running merge here
	// instead of scheduling a second concurrent run.
	pending []EOptionP
}

// isParked reports whether the task is waiting on dependee updates: it has
// run at least once, is neither queued nor executing, and still has a live
// continuation. Parked tasks are the cycle resolver's input.
func (t *task) isParked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started && !t.done && !t.queued && !t.running && t.cont != nil
}

// isFailed reports whether the task was terminated by a recorded error.
func (t *task) isFailed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// isDone reports whether the task reached a terminal state.
func (t *task) isDone() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// identity returns the task's own (entity, kind) as currently bound.
func (t *task) identity() (Entity, *Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entity, t.kind
}

// dependeeSet returns a copy of the task's current dependee keys.
func (t *task) dependeeSet() []EPK {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]EPK, len(t.dependees))
	copy(out, t.dependees)
	return out
}

// retire moves the task to its terminal state and destroys the
// continuation. Returns false if the task was already done.
func (t *task) retire(failed bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.failed = failed
	t.cont = nil
	t.state = nil
	t.pending = nil
	return true
}
