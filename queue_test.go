package fixpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_EnqueueDequeue(t *testing.T) {
	q := newTaskQueue()
	t1 := &task{id: 1}
	t2 := &task{id: 2}

	require.True(t, q.Enqueue(t1))
	require.True(t, q.Enqueue(t2))
	assert.Equal(t, 2, q.Len())

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Same(t, t1, got, "FIFO order")

	got, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Same(t, t2, got)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestTaskQueue_Signal(t *testing.T) {
	q := newTaskQueue()
	q.Enqueue(&task{id: 1})

	select {
	case <-q.Wait():
	default:
		t.Fatal("enqueue should signal the wait channel")
	}
}

func TestTaskQueue_SignalCoalesces(t *testing.T) {
	q := newTaskQueue()
	q.Enqueue(&task{id: 1})
	q.Enqueue(&task{id: 2})
	q.Enqueue(&task{id: 3})

	// The buffered signal merges concurrent wakeups into one.
	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into a single wakeup")
	default:
	}
}

func TestTaskQueue_Kick(t *testing.T) {
	q := newTaskQueue()
	q.Enqueue(&task{id: 1})
	q.Enqueue(&task{id: 2})

	<-q.Wait()
	_, ok := q.TryDequeue()
	require.True(t, ok)

	// One task remains; kick must re-arm the signal for a second worker.
	q.kick()
	select {
	case <-q.Wait():
	default:
		t.Fatal("kick should re-signal while tasks remain")
	}
}

func TestTaskQueue_Kick_EmptyIsNoop(t *testing.T) {
	q := newTaskQueue()
	q.kick()
	select {
	case <-q.Wait():
		t.Fatal("kick on an empty queue should not signal")
	default:
	}
}

func TestTaskQueue_Close(t *testing.T) {
	q := newTaskQueue()
	require.True(t, q.Enqueue(&task{id: 1}))

	q.Close()
	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(&task{id: 2}), "enqueue after close should fail")

	// Close wakes all waiters by closing the signal channel.
	_, open := <-q.Wait()
	_ = open

	// Already queued tasks remain drainable.
	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(1), got.id)

	// Double close is safe.
	q.Close()
}
