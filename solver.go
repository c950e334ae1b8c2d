package fixpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
)

// Store is the property store and fixpoint engine.
//
// Analyses interact with the store through a small surface: Schedule (eager
// batch), RegisterLazy (on-demand), Apply (non-blocking query), Force and
// Require (demand a final value), AwaitCompletion (blocking join), and
// Validate (post-join consistency check).
//
// Thread-safety model:
//   - Apply/Force/Require/Schedule/RegisterLazy: safe from any goroutine
//   - AwaitCompletion: called from one non-worker goroutine; blocks until
//     quiescence
//   - all slot mutations are per-slot linearizable; a reader never observes
//     a bound weaker than one it already observed
type Store struct {
	reg         *Registry
	logger      *slog.Logger
	parallelism int
	debug       bool
	recorder    Recorder
	labeler     func(Entity) string
	entities    func() []Entity
	tokens      RunTokenGenerator

	clock *Clock
	table *table
	sched scheduler

	// progress counts stored bounds; suspended tasks are only retried
	// after it advances, so a computation that keeps suspending cannot
	// spin the join.
	progress atomic.Int64

	mu        sync.Mutex
	lazy      map[int]Compute
	kindSeen  map[int]bool
	inFlight  map[*task]struct{}
	suspended []suspendedTask
	errs      []error
	runToken  string
	phase     int
}

// suspendedTask is a computation that asked to be retried later, pinned to
// the progress count at suspension time.
type suspendedTask struct {
	t  *task
	at int64
}

// New creates a Store over the given kind registry.
func New(reg *Registry, opts ...Option) *Store {
	s := &Store{
		reg:         reg,
		logger:      slog.Default(),
		parallelism: 1,
		labeler:     defaultLabeler,
		tokens:      UUIDv7Generator{},
		clock:       NewClock(),
		table:       newTable(),
		lazy:        make(map[int]Compute),
		kindSeen:    make(map[int]bool),
		inFlight:    make(map[*task]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.parallelism > 1 {
		s.sched = newParallelScheduler(s.parallelism, s.runTask)
	} else {
		s.sched = newSequentialScheduler(s.runTask)
	}
	return s
}

// Registry returns the store's kind registry.
func (s *Store) Registry() *Registry { return s.reg }

// Parallelism returns the configured worker count (1 = sequential).
func (s *Store) Parallelism() int { return s.parallelism }

// Close shuts the scheduling backend down. The store must not be used
// afterwards.
func (s *Store) Close() {
	s.sched.shutdown()
}

// Schedule eagerly schedules one task per known entity matching pred. A nil
// predicate matches every entity. Requires an entity source (see
// WithEntitySource).
func (s *Store) Schedule(pred func(Entity) bool, c Compute) error {
	if s.entities == nil {
		return &SolverError{Code: ErrCodeNoEntitySource, Message: "eager scheduling requires an entity source"}
	}
	if c == nil {
		return fmt.Errorf("schedule: computation is required")
	}
	n := 0
	for _, e := range s.entities() {
		if pred != nil && !pred(e) {
			continue
		}
		t := s.newTask(e, nil, c)
		s.submit(t)
		n++
	}
	s.logger.Debug("eager batch scheduled", "tasks", n)
	return nil
}

// RegisterLazy registers a computation for kind k, deferred until some
// (entity, k) is first queried. A second registration for the same kind is
// a configuration error.
func (s *Store) RegisterLazy(k *Kind, c Compute) error {
	if c == nil {
		return fmt.Errorf("register lazy %s: computation is required", k.Name())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lazy[k.id]; exists {
		return &SolverError{Code: ErrCodeDuplicateLazy, Message: "kind already has a lazy computation", Kind: k}
	}
	s.lazy[k.id] = c
	s.kindSeen[k.id] = true
	return nil
}

// Apply is the non-blocking query: it returns the slot's current answer
// (possibly no value at all) and, if a lazy computation is registered for
// the kind, triggers it for this entity on first query.
func (s *Store) Apply(e Entity, k *Kind) EOptionP {
	s.maybeTriggerLazy(e, k)
	return s.table.snapshot(EPK{Entity: e, Kind: k})
}

// Force demands that (e, k) is final once AwaitCompletion returns: a lazy
// computation is triggered if one exists, and otherwise the kind's fallback
// supplies the value during the join.
func (s *Store) Force(e Entity, k *Kind) {
	s.maybeTriggerLazy(e, k)
	sl := s.table.getOrCreate(EPK{Entity: e, Kind: k})
	sl.mu.Lock()
	sl.forced = true
	sl.mu.Unlock()
}

// Require is Force plus provenance: it demands (dependee, dependeeKind) on
// behalf of (depender, dependerKind), records the dependency edge when a
// recorder is attached, and returns the dependee's current answer for
// inclusion in an Intermediate result's dependee set.
func (s *Store) Require(depender Entity, dependerKind *Kind, dependee Entity, dependeeKind *Kind) EOptionP {
	s.Force(dependee, dependeeKind)
	if s.recorder != nil {
		rec := EdgeRecord{
			Run:            s.currentRun(),
			Seq:            s.clock.Next(),
			DependerEntity: s.labeler(depender),
			DependerKind:   dependerKind.Name(),
			DependeeEntity: s.labeler(dependee),
			DependeeKind:   dependeeKind.Name(),
		}
		if err := s.recorder.RecordEdge(rec); err != nil {
			s.logger.Error("trace edge record failed", "error", err)
		}
	}
	return s.table.snapshot(EPK{Entity: dependee, Kind: dependeeKind})
}

// AwaitCompletion blocks until no tracked property can be refined further.
//
// The join drains the scheduler, then sweeps: fallbacks for pairs no
// analysis covers (when useFallbacks is true), finalization of bounds whose
// computations retired, and cycle resolution for quiescent strongly
// connected dependency sets. Each sweep may wake further work; the loop
// repeats until nothing changes.
//
// It returns nil on a fully resolved fixpoint, or an error joining every
// recorded failure: computation panics, illegal refinements, missing
// fallbacks, and pairs left unresolved.
func (s *Store) AwaitCompletion(useFallbacks bool) error {
	token := s.tokens.Generate()
	s.mu.Lock()
	s.runToken = token
	s.phase++
	phase := s.phase
	s.mu.Unlock()

	s.logger.Info("solve phase starting",
		"run", token,
		"phase", phase,
		"parallelism", s.parallelism,
	)

	for {
		s.sched.drain()
		if s.resumeSuspended() {
			continue
		}
		if s.applyFallbacks(useFallbacks) {
			continue
		}
		if s.finalizeRetired() {
			continue
		}
		if s.resolveCycles() {
			continue
		}
		break
	}

	s.failStuckSuspended()
	errs := s.collectPhaseErrors(useFallbacks)

	s.logger.Info("solve phase complete",
		"run", token,
		"phase", phase,
		"slots", s.table.size(),
		"errors", len(errs),
	)
	return errors.Join(errs...)
}

// Validate re-checks the table after a completed join: every slot must be
// final, no depender registrations may survive finalization, and no task
// may remain in flight. Call after AwaitCompletion returned nil.
func (s *Store) Validate() error {
	var errs []error

	s.mu.Lock()
	inflight := len(s.inFlight)
	s.mu.Unlock()
	if inflight > 0 {
		errs = append(errs, fmt.Errorf("validate: %d computations still in flight", inflight))
	}

	for _, epk := range s.table.keys() {
		sl, ok := s.table.lookup(epk)
		if !ok {
			continue
		}
		sl.mu.Lock()
		final := sl.final
		pending := len(sl.dependers)
		sl.mu.Unlock()
		if !final {
			errs = append(errs, NewUnresolvedError(epk.Entity, epk.Kind, "slot is not final after quiescence"))
		}
		if final && pending > 0 {
			errs = append(errs, fmt.Errorf("validate: %s kept %d dependers past finalization", epk, pending))
		}
	}
	return errors.Join(errs...)
}

// Final returns the final value for (e, k), if one exists.
func (s *Store) Final(e Entity, k *Kind) (Value, bool) {
	p := s.table.snapshot(EPK{Entity: e, Kind: k})
	if !p.IsFinal() {
		return nil, false
	}
	return p.Value(), true
}

// Properties returns every final value of kind k by entity.
func (s *Store) Properties(k *Kind) map[Entity]Value {
	out := make(map[Entity]Value)
	for _, epk := range s.table.keys() {
		if epk.Kind != k {
			continue
		}
		p := s.table.snapshot(epk)
		if p.IsFinal() {
			out[epk.Entity] = p.Value()
		}
	}
	return out
}

// Snapshot returns the current answer for every known slot in creation
// order.
func (s *Store) Snapshot() []EOptionP {
	keys := s.table.keys()
	out := make([]EOptionP, 0, len(keys))
	for _, epk := range keys {
		out = append(out, s.table.snapshot(epk))
	}
	return out
}

// ---------------------------------------------------------------------------
// task lifecycle

func (s *Store) newTask(e Entity, k *Kind, c Compute) *task {
	t := &task{id: s.clock.Next(), entity: e, kind: k, compute: c}
	s.mu.Lock()
	s.inFlight[t] = struct{}{}
	s.mu.Unlock()
	return t
}

func (s *Store) submit(t *task) {
	s.sched.submit(t)
}

func (s *Store) maybeTriggerLazy(e Entity, k *Kind) {
	s.mu.Lock()
	c, ok := s.lazy[k.id]
	s.mu.Unlock()
	if !ok {
		return
	}
	sl := s.table.getOrCreate(EPK{Entity: e, Kind: k})
	sl.mu.Lock()
	if sl.computed || sl.final {
		sl.mu.Unlock()
		return
	}
	t := s.newTask(e, k, c)
	sl.computed = true
	sl.owner = t
	sl.mu.Unlock()
	s.submit(t)
}

// runTask executes one unit: the initial computation on first run, one
// coalesced continuation replay afterwards. Invoked by the scheduler; the
// queued/running flags guarantee at most one concurrent execution per task.
func (s *Store) runTask(t *task) {
	t.mu.Lock()
	if t.done {
		t.queued = false
		t.mu.Unlock()
		return
	}
	t.queued = false
	t.running = true

	var invoke func() Result
	if !t.started {
		t.started = true
		c := t.compute
		e := t.entity
		invoke = func() Result { return c(e) }
	} else {
		if t.cont == nil || len(t.pending) == 0 {
			t.running = false
			t.mu.Unlock()
			return
		}
		u := t.pending[0]
		t.pending = t.pending[1:]
		cont := t.cont
		state := t.state
		invoke = func() Result { return cont(state, u) }
	}
	t.mu.Unlock()

	res, err := s.safeInvoke(t, invoke)
	if err != nil {
		s.failTask(t, err)
	} else {
		s.processResult(t, res)
	}
	s.finishRun(t)
}

// safeInvoke runs a computation or continuation, converting a panic into a
// recorded per-task error so sibling tasks keep running.
func (s *Store) safeInvoke(t *task, fn func() Result) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, k := t.identity()
			err = NewComputationPanicError(e, k, r, debug.Stack())
		}
	}()
	return fn(), nil
}

// finishRun clears the running flag and, if coalesced updates arrived while
// the task executed, schedules exactly one follow-up replay.
func (s *Store) finishRun(t *task) {
	t.mu.Lock()
	t.running = false
	if !t.done && !t.queued && t.cont != nil && len(t.pending) > 0 {
		t.queued = true
		t.mu.Unlock()
		s.submit(t)
		return
	}
	t.mu.Unlock()
}

// finishTask retires a task cleanly.
func (s *Store) finishTask(t *task) {
	if t.retire(false) {
		s.removeInFlight(t)
	}
}

// failTask retires a task with a recorded error. Its slot, if any, never
// reaches final and is surfaced after the join.
func (s *Store) failTask(t *task, err error) {
	if t.retire(true) {
		s.recordError(err)
		e, k := t.identity()
		s.logger.Error("computation failed",
			"entity", s.labeler(e),
			"kind", kindName(k),
			"error", err,
		)
		s.removeInFlight(t)
	}
}

func (s *Store) removeInFlight(t *task) {
	s.mu.Lock()
	delete(s.inFlight, t)
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// result processing

func (s *Store) processResult(t *task, res Result) {
	switch r := res.(type) {
	case Final:
		s.storeBound(EPK{Entity: r.Entity, Kind: r.Kind}, r.Value, true, OriginResult, t)
		s.finishTask(t)

	case Multi:
		for _, p := range r.Properties {
			s.storeBound(EPK{Entity: p.Entity, Kind: p.Kind}, p.Value, true, OriginResult, nil)
		}
		s.finishTask(t)

	case Intermediate:
		s.processIntermediate(t, r)

	case Suspended:
		t.mu.Lock()
		if t.done {
			t.mu.Unlock()
			return
		}
		t.started = false
		t.gen++
		t.cont = nil
		t.state = nil
		t.pending = nil
		t.dependees = nil
		if r.Compute != nil {
			t.compute = r.Compute
		}
		t.mu.Unlock()
		s.mu.Lock()
		s.suspended = append(s.suspended, suspendedTask{t: t, at: s.progress.Load()})
		s.mu.Unlock()

	case NoResult:
		s.finishTask(t)

	case nil:
		e, k := t.identity()
		s.failTask(t, NewInvalidResultError(e, k, "computation returned nil result"))
	}
}

func (s *Store) processIntermediate(t *task, r Intermediate) {
	if r.Continue == nil || len(r.Dependees) == 0 {
		s.failTask(t, NewInvalidResultError(r.Entity, r.Kind,
			"intermediate result requires a continuation and a non-empty dependee set"))
		return
	}

	// Publish the bound at the computation's own slot immediately; it is
	// visible to readers though not final.
	switch s.storeBound(EPK{Entity: r.Entity, Kind: r.Kind}, r.Value, false, OriginResult, t) {
	case updateIllegal:
		return // storeBound already failed the task
	case updateSuperseded:
		// The slot was decided terminally elsewhere; the computation's
		// continuation is destroyed and never invoked again.
		s.finishTask(t)
		return
	}

	// Replace the task's continuation record atomically: a new generation
	// invalidates every registration of the previous dependee set.
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	if t.kind == nil {
		t.entity = r.Entity
		t.kind = r.Kind
	}
	t.gen++
	gen := t.gen
	t.state = r.State
	t.cont = r.Continue
	deps := make([]EPK, len(r.Dependees))
	for i, d := range r.Dependees {
		deps[i] = d.EPK()
	}
	t.dependees = deps
	if len(t.pending) > 0 {
		kept := t.pending[:0]
		for _, p := range t.pending {
			for _, d := range deps {
				if p.Entity == d.Entity && p.Kind == d.Kind {
					kept = append(kept, p)
					break
				}
			}
		}
		t.pending = kept
	}
	t.mu.Unlock()

	// Register against every dependee, re-checking each against the live
	// slot: an update that slipped in between the computation's read and
	// this registration triggers an immediate replay instead. Dependees
	// that are already final and unchanged are dead weight and skipped.
	live := 0
	for _, obs := range r.Dependees {
		epk := obs.EPK()
		s.maybeTriggerLazy(epk.Entity, epk.Kind)
		sl := s.table.getOrCreate(epk)
		sl.mu.Lock()
		cur := sl.snapshotLocked(epk)
		switch {
		case advancedSince(obs, cur):
			sl.mu.Unlock()
			s.scheduleReplay(t, gen, cur)
			live++
		case !cur.IsFinal():
			sl.registerLocked(t, gen)
			sl.mu.Unlock()
			live++
		default:
			sl.mu.Unlock()
		}
	}
	if live == 0 {
		// Every dependee is final and already observed: no update can
		// ever wake this continuation, so it should have been a Final.
		s.failTask(t, NewInvalidResultError(r.Entity, r.Kind,
			"intermediate result waits only on final properties"))
	}
}

// scheduleReplay delivers one dependee update to a parked task. Stale
// generations and retired tasks are dropped; updates arriving while the
// task is queued or running coalesce into its pending set.
func (s *Store) scheduleReplay(t *task, gen uint64, update EOptionP) {
	t.mu.Lock()
	if t.done || gen != t.gen || t.cont == nil {
		t.mu.Unlock()
		return
	}
	merged := false
	for i, p := range t.pending {
		if p.Entity == update.Entity && p.Kind == update.Kind {
			t.pending[i] = update
			merged = true
			break
		}
	}
	if !merged {
		t.pending = append(t.pending, update)
	}
	if t.queued || t.running {
		t.mu.Unlock()
		return
	}
	t.queued = true
	t.mu.Unlock()
	s.submit(t)
}

// ---------------------------------------------------------------------------
// slot updates

type updateOutcome int

const (
	updateStored updateOutcome = iota
	updateSuperseded
	updateIllegal
)

// storeBound is the single write path for slots (spec of legal updates):
// the new bound must refine the current one per the kind's order; violation
// is a fatal programming error reported with full slot identity. A legal
// final update marks the slot terminal and notifies then discards its
// dependers; a legal interim update keeps the slot open and notifies its
// registered dependers.
func (s *Store) storeBound(epk EPK, v Value, final bool, origin string, owner *task) updateOutcome {
	k := epk.Kind
	sl := s.table.getOrCreate(epk)

	sl.mu.Lock()
	if owner != nil {
		sl.computed = true
		if sl.owner == nil {
			sl.owner = owner
		}
	}

	if sl.final {
		if sl.has && k.equalValues(sl.value, v) {
			sl.mu.Unlock()
			return updateSuperseded
		}
		old := sl.value
		sl.mu.Unlock()
		s.reportIllegal(epk, old, v, owner)
		return updateIllegal
	}

	if sl.has && !k.refines(sl.value, v) {
		old := sl.value
		sl.mu.Unlock()
		s.reportIllegal(epk, old, v, owner)
		return updateIllegal
	}

	changed := !sl.has || !k.equalValues(sl.value, v)
	sl.value = v
	sl.has = true

	var notify []dependerRef
	if final {
		sl.final = true
		sl.owner = nil
		notify = sl.takeDependersLocked()
	} else if changed {
		notify = append(notify, sl.dependers...)
	}
	// Stamp the sequence before releasing the slot: per-slot seq order in
	// the journal must match the order the slot accepted the bounds.
	seq := s.clock.Next()
	sl.mu.Unlock()

	s.progress.Add(1)
	s.markKindSeen(k)
	s.record(epk, v, final, origin, seq)

	if len(notify) > 0 {
		var up EOptionP
		if final {
			up = FinalProperty(epk.Entity, k, v)
		} else {
			up = InterimProperty(epk.Entity, k, v)
		}
		for _, ref := range notify {
			s.scheduleReplay(ref.t, ref.gen, up)
		}
	}
	return updateStored
}

// reportIllegal handles a non-monotone update: in debug mode it panics on
// the spot; otherwise the error is recorded, the offending computation is
// retired, and the join reports the failure.
func (s *Store) reportIllegal(epk EPK, old, attempted Value, owner *task) {
	err := NewIllegalRefinementError(epk.Entity, epk.Kind, old, attempted)
	if s.debug {
		panic(err)
	}
	if owner != nil {
		s.failTask(owner, err)
		return
	}
	s.recordError(err)
	s.logger.Error("illegal refinement",
		"entity", s.labeler(epk.Entity),
		"kind", epk.Kind.Name(),
		"old", fmt.Sprint(old),
		"attempted", fmt.Sprint(attempted),
	)
}

func (s *Store) record(epk EPK, v Value, final bool, origin string, seq int64) {
	if s.debug {
		s.logger.Debug("bound stored",
			"entity", s.labeler(epk.Entity),
			"kind", epk.Kind.Name(),
			"bound", fmt.Sprint(v),
			"final", final,
			"origin", origin,
			"seq", seq,
		)
	}
	if s.recorder == nil {
		return
	}
	rec := UpdateRecord{
		Run:    s.currentRun(),
		Seq:    seq,
		Entity: s.labeler(epk.Entity),
		Kind:   epk.Kind.Name(),
		Bound:  fmt.Sprint(v),
		Final:  final,
		Origin: origin,
	}
	if err := s.recorder.RecordUpdate(rec); err != nil {
		s.logger.Error("trace update record failed", "error", err)
	}
}

// ---------------------------------------------------------------------------
// bookkeeping

func (s *Store) markKindSeen(k *Kind) {
	s.mu.Lock()
	s.kindSeen[k.id] = true
	s.mu.Unlock()
}

func (s *Store) fallbackReason(k *Kind) FallbackReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kindSeen[k.id] {
		return FallbackNotCovered
	}
	return FallbackNoAnalysis
}

func (s *Store) recordError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *Store) currentRun() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runToken
}

// sortedInFlight returns the in-flight tasks ordered by id, for
// deterministic sweeps.
func (s *Store) sortedInFlight() []*task {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.inFlight))
	for t := range s.inFlight {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].id < tasks[j].id })
	return tasks
}

func kindName(k *Kind) string {
	if k == nil {
		return "?"
	}
	return k.Name()
}
