// Package fixpoint implements an incremental, concurrent fixpoint solver for
// inter-dependent static-analysis computations.
//
// Analyses never call each other directly. Each one queries properties of
// entities from a central store and publishes its own results back; the store
// resolves the true dependency graph, including cycles discovered at runtime,
// and drives every dependent computation until no tracked property can be
// refined further.
//
// ARCHITECTURE:
//
// Entity/Property Table:
// One slot per (entity, kind). A slot holds no value, a refineable interim
// bound, or a final value, plus the set of computations waiting on it. Every
// slot has its own mutex; there is no global lock on the table's hot path.
//
// Task Scheduler:
// Two interchangeable backends share the table and continuation semantics.
// The sequential backend drains a FIFO worklist on the joining goroutine for
// fully deterministic order. The parallel backend runs a fixed-size worker
// pool over a thread-safe unbounded queue; any task may submit further tasks
// reentrantly, and quiescence is detected with an active-task count. Both
// backends reach the same fixpoint because every slot transition is monotone
// and dependency resolution is exhaustive regardless of order.
//
// Continuation Replay:
// An Intermediate result publishes its bound immediately, then parks the
// task: the engine records an explicit state value and a pure continuation
// function against every dependee slot. When a dependee updates, the
// continuation is replayed with that update and its result is processed
// exactly like an original result. Registrations carry a generation counter
// so a depender set is always replaced atomically, never duplicated.
//
// Cycle Resolution:
// When the queue is quiescent but tasks still wait on each other, the engine
// computes the set of tasks whose transitive dependencies stay inside the
// blocked set and finalizes its innermost cycles (the sink strongly connected
// components) at each slot's current best-known bound, through the kind's
// OnCycle hook. Tasks that merely depend on a cycle are woken by the
// finalization and react in the next sweep. By soundness of the lattice no
// refinement can ever be derived from within a cycle alone; the decision is
// terminal.
//
// CRITICAL PATTERNS:
//
// Monotone updates only. A slot's stored bounds form a non-decreasing
// sequence in the kind's order; an illegal refinement is a fatal programming
// error reported with full slot identity.
//
// Logical clock. Every update is stamped with a monotone sequence number.
// NEVER use wall-clock timestamps for ordering.
//
// Per-task failure isolation. A panic inside a computation or continuation
// is recorded against that task and surfaced after the join; sibling tasks
// are unaffected.
package fixpoint
