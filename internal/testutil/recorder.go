package testutil

import (
	"sync"

	"github.com/avencourt/fixpoint"
)

// MemoryRecorder collects update and edge records in memory, in arrival
// order. Tests use it to assert on what the engine journaled without
// touching SQLite.
//
// Thread-safety: safe for concurrent use; the parallel backend records
// from multiple workers.
type MemoryRecorder struct {
	mu      sync.Mutex
	updates []fixpoint.UpdateRecord
	edges   []fixpoint.EdgeRecord
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// RecordUpdate implements fixpoint.Recorder.
func (r *MemoryRecorder) RecordUpdate(u fixpoint.UpdateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

// RecordEdge implements fixpoint.Recorder.
func (r *MemoryRecorder) RecordEdge(e fixpoint.EdgeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edges = append(r.edges, e)
	return nil
}

// Updates returns a copy of the collected update records.
func (r *MemoryRecorder) Updates() []fixpoint.UpdateRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fixpoint.UpdateRecord, len(r.updates))
	copy(out, r.updates)
	return out
}

// Edges returns a copy of the collected edge records.
func (r *MemoryRecorder) Edges() []fixpoint.EdgeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]fixpoint.EdgeRecord, len(r.edges))
	copy(out, r.edges)
	return out
}

// FinalUpdates returns only the final-bound updates, in arrival order.
func (r *MemoryRecorder) FinalUpdates() []fixpoint.UpdateRecord {
	var out []fixpoint.UpdateRecord
	for _, u := range r.Updates() {
		if u.Final {
			out = append(out, u)
		}
	}
	return out
}
