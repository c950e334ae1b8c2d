// Package harness provides a conformance testing framework for the
// fixpoint engine.
//
// Scenarios are YAML files describing a property network: kinds with
// ordered value scales, entities, and derivation rules. The harness runs
// each scenario to its fixpoint on the sequential backend and on the
// parallel backend and verifies that both reach the same final values,
// which is the engine's central determinism guarantee. Expected values and
// golden snapshots then pin the fixpoint itself.
package harness

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/avencourt/fixpoint"
	"github.com/avencourt/fixpoint/internal/scenario"
)

const defaultParallelism = 8

// Result holds one executed scenario: the final values of both backend
// runs (identical if Passed) and the assertion failures, if any.
type Result struct {
	Scenario *Scenario
	Passed   bool

	// Finals maps (entity, kind) to the final value, from the sequential
	// run.
	Finals map[scenario.Ref]string

	// Failures lists assertion and determinism violations.
	Failures []string
}

// Run executes a scenario on both backends and evaluates its expectations.
//
// Execution flow:
//  1. Convert the YAML network into a compiled scenario spec
//  2. Solve sequentially, then with the parallel backend
//  3. Compare the two fixpoints slot by slot
//  4. Evaluate the scenario's expect clauses against the fixpoint
func Run(sc *Scenario) (*Result, error) {
	spec, err := sc.spec()
	if err != nil {
		return nil, err
	}
	runner, err := scenario.NewRunner(spec)
	if err != nil {
		return nil, err
	}

	seq, err := solve(runner, 1)
	if err != nil {
		return nil, fmt.Errorf("sequential run: %w", err)
	}
	par, err := solve(runner, parallelismOf(sc))
	if err != nil {
		return nil, fmt.Errorf("parallel run: %w", err)
	}

	res := &Result{Scenario: sc, Finals: seq}
	for _, ref := range sortedRefs(seq, par) {
		sv, sok := seq[ref]
		pv, pok := par[ref]
		if sok != pok || sv != pv {
			res.Failures = append(res.Failures, fmt.Sprintf(
				"backends disagree on (%s, %s): sequential=%q parallel=%q",
				ref.Entity, ref.Kind, sv, pv))
		}
	}

	for _, exp := range sc.Expect {
		ref := scenario.Ref{Entity: exp.Entity, Kind: exp.Kind}
		got, ok := seq[ref]
		if !ok {
			res.Failures = append(res.Failures, fmt.Sprintf(
				"expected (%s, %s) = %q, but no final value exists",
				exp.Entity, exp.Kind, exp.Value))
			continue
		}
		if got != exp.Value {
			res.Failures = append(res.Failures, fmt.Sprintf(
				"expected (%s, %s) = %q, got %q",
				exp.Entity, exp.Kind, exp.Value, got))
		}
	}

	res.Passed = len(res.Failures) == 0
	return res, nil
}

// solve runs one scenario to its fixpoint on one backend. Scenario runs
// build a fresh store each time so backends cannot contaminate each other.
func solve(runner *scenario.Runner, parallelism int) (map[scenario.Ref]string, error) {
	st, err := runner.NewStore(
		fixpoint.WithParallelism(parallelism),
		fixpoint.WithLogger(discardLogger()),
	)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := st.AwaitCompletion(true); err != nil {
		return nil, err
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return runner.Finals(st), nil
}

func parallelismOf(sc *Scenario) int {
	if sc.Parallelism > 1 {
		return sc.Parallelism
	}
	return defaultParallelism
}

func sortedRefs(maps ...map[scenario.Ref]string) []scenario.Ref {
	seen := make(map[scenario.Ref]bool)
	var refs []scenario.Ref
	for _, m := range maps {
		for ref := range m {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Entity != refs[j].Entity {
			return refs[i].Entity < refs[j].Entity
		}
		return refs[i].Kind < refs[j].Kind
	})
	return refs
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
