package fixpoint

import (
	"sync"
	"sync/atomic"
)

// parallelScheduler runs tasks on a fixed pool of worker goroutines over an
// unbounded shared queue.
//
// Quiescence detection uses a single atomic counter of submitted-but-
// unfinished runs: submit increments it, a worker decrements it after the
// run returns (after any transitive submits the run itself made), so the
// counter only reaches zero when no run is executing and none is queued.
// The worker that drops it to zero pokes the quiet channel; drain rechecks
// after every poke because a later submit may restart work.
type parallelScheduler struct {
	queue   *taskQueue
	pending atomic.Int64
	quiet   chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func newParallelScheduler(workers int, run func(*task)) *parallelScheduler {
	s := &parallelScheduler{
		queue: newTaskQueue(),
		quiet: make(chan struct{}, 1),
	}
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker(run)
	}
	return s
}

func (s *parallelScheduler) worker(run func(*task)) {
	defer s.wg.Done()
	for {
		t, ok := s.queue.TryDequeue()
		if ok {
			// Wake a sibling if more work remains; the buffered
			// signal alone only roused this worker.
			s.queue.kick()
			run(t)
			if s.pending.Add(-1) == 0 {
				select {
				case s.quiet <- struct{}{}:
				default:
				}
			}
			continue
		}
		if s.queue.Closed() {
			return
		}
		<-s.queue.Wait()
	}
}

func (s *parallelScheduler) submit(t *task) {
	s.pending.Add(1)
	if !s.queue.Enqueue(t) {
		// Shut down; the run will never execute.
		s.pending.Add(-1)
	}
}

// drain blocks until every submitted run has executed. Only the completion
// join calls drain, from a single goroutine.
func (s *parallelScheduler) drain() {
	for s.pending.Load() != 0 {
		<-s.quiet
	}
}

func (s *parallelScheduler) shutdown() {
	s.once.Do(func() {
		s.queue.Close()
		s.wg.Wait()
	})
}
