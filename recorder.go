package fixpoint

// Update origins, recorded in the trace journal and debug logs.
const (
	// OriginResult marks a bound stored by a computation or continuation.
	OriginResult = "result"
	// OriginFallback marks a final value supplied by a kind's fallback.
	OriginFallback = "fallback"
	// OriginQuiesce marks a bound finalized at quiescence, either by the
	// cycle resolver or because its computation retired without a final.
	OriginQuiesce = "quiesce"
)

// UpdateRecord is one slot transition, as written to a trace journal.
// Entity, kind and bound are recorded as display strings; the engine's
// labeler renders entities.
type UpdateRecord struct {
	Run    string
	Seq    int64
	Entity string
	Kind   string
	Bound  string
	Final  bool
	Origin string
}

// EdgeRecord is one observed dependency, written when Require registers a
// depender/dependee relationship.
type EdgeRecord struct {
	Run            string
	Seq            int64
	DependerEntity string
	DependerKind   string
	DependeeEntity string
	DependeeKind   string
}

// Recorder receives every slot update (and dependency edge) as it happens.
// Implemented by the SQLite journal in internal/trace. Recording failures
// are logged by the engine, never propagated into the solve: tracing is a
// debugging aid and must not alter fixpoint behavior.
//
// Implementations must be safe for concurrent use under the parallel
// backend.
type Recorder interface {
	RecordUpdate(u UpdateRecord) error
	RecordEdge(e EdgeRecord) error
}
