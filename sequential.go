package fixpoint

import "sync"

// scheduler is the execution backend behind a Store. submit enqueues one
// task run; drain blocks until every submitted run (including runs
// submitted transitively) has executed; shutdown releases backend
// resources.
type scheduler interface {
	submit(t *task)
	drain()
	shutdown()
}

// sequentialScheduler runs every task on the caller's goroutine in strict
// FIFO submission order, which makes runs fully deterministic: identical
// inputs produce an identical sequence of bound updates.
type sequentialScheduler struct {
	run func(*task)

	mu   sync.Mutex
	fifo []*task
	busy bool
}

func newSequentialScheduler(run func(*task)) *sequentialScheduler {
	return &sequentialScheduler{run: run}
}

func (s *sequentialScheduler) submit(t *task) {
	s.mu.Lock()
	s.fifo = append(s.fifo, t)
	s.mu.Unlock()
}

// drain executes queued tasks until the queue empties. Tasks submitted
// while draining run in the same pass. Re-entrant drains (a computation
// calling back into the store) fold into the outer loop.
func (s *sequentialScheduler) drain() {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()

	for {
		s.mu.Lock()
		if len(s.fifo) == 0 {
			s.busy = false
			s.mu.Unlock()
			return
		}
		t := s.fifo[0]
		s.fifo[0] = nil
		s.fifo = s.fifo[1:]
		s.mu.Unlock()
		s.run(t)
	}
}

func (s *sequentialScheduler) shutdown() {}
