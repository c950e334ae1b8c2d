package fixpoint

import "sync"

// taskQueue is a thread-safe FIFO queue of schedulable tasks.
//
// The queue is unbounded so that cascading continuation replays can enqueue
// arbitrarily many follow-on tasks without blocking - a single task may fan
// out into thousands of submissions reentrantly.
//
// The queue uses a buffered signal channel for wakeup so idle workers can
// wait without polling; multiple signals coalesce into one.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []*task
	closed bool
	signal chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]*task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the queue.
// Thread-safe: may be called from any goroutine, including workers.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(t *task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)

	// Coalesced wakeup - buffer of 1 merges concurrent signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front task without blocking.
func (q *taskQueue) TryDequeue() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}

	t := q.tasks[0]

	// Nil the slot so the backing array does not retain the task.
	q.tasks[0] = nil

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Wait returns the wakeup channel. Use together with TryDequeue:
//
//	for {
//	    if t, ok := q.TryDequeue(); ok { ... ; continue }
//	    <-q.Wait()
//	}
//
// The channel closes when the queue is closed, waking all waiters.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// kick re-signals availability. A worker that dequeued one task while more
// remain calls this so a second idle worker wakes up too; the single
// buffered signal alone only wakes one.
func (q *taskQueue) kick() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.tasks) == 0 {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Len returns the current queue length.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Closed reports whether Close has been called.
func (q *taskQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more tasks will be enqueued.
// Wakes all blocked waiters by closing the signal channel.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
