package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result's fixpoint as stable text: one line per slot,
// sorted by entity then kind, so snapshots diff cleanly.
func Snapshot(res *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario: %s\n", res.Scenario.Name)
	for _, ref := range sortedRefs(res.Finals) {
		fmt.Fprintf(&b, "%s %s = %s\n", ref.Entity, ref.Kind, res.Finals[ref])
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its fixpoint against a
// golden file at testdata/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) error {
	t.Helper()

	res, err := Run(sc)
	if err != nil {
		return err
	}
	if !res.Passed {
		return fmt.Errorf("scenario %s failed:\n  %s",
			sc.Name, strings.Join(res.Failures, "\n  "))
	}

	g := goldie.New(t)
	g.Assert(t, sc.Name, Snapshot(res))
	return nil
}
