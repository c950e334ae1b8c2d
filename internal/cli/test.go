package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avencourt/fixpoint/internal/harness"
)

// NewTestCommand creates the test command, which runs YAML conformance
// scenarios through the harness.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test <scenario.yaml>...",
		Short: "Run conformance scenarios",
		Long: `Run YAML conformance scenarios: each is solved on the sequential and
the parallel backend, the two fixpoints must agree, and the scenario's
expected values must hold.

Example:
  fixpoint test ./scenarios/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTest(rootOpts, args, cmd)
		},
	}
	return cmd
}

// TestReport is the test command's JSON payload.
type TestReport struct {
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed []TestResult `json:"failed,omitempty"`
}

// TestResult is one failed scenario.
type TestResult struct {
	Path     string   `json:"path"`
	Scenario string   `json:"scenario,omitempty"`
	Failures []string `json:"failures"`
}

func runTest(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	report := TestReport{Total: len(paths)}
	for _, path := range paths {
		sc, err := harness.LoadScenario(path)
		if err != nil {
			report.Failed = append(report.Failed, TestResult{
				Path:     path,
				Failures: []string{err.Error()},
			})
			continue
		}
		res, err := harness.Run(sc)
		if err != nil {
			report.Failed = append(report.Failed, TestResult{
				Path:     path,
				Scenario: sc.Name,
				Failures: []string{err.Error()},
			})
			continue
		}
		if !res.Passed {
			report.Failed = append(report.Failed, TestResult{
				Path:     path,
				Scenario: sc.Name,
				Failures: res.Failures,
			})
			continue
		}
		report.Passed++
		out.VerboseLog("PASS %s (%s)", sc.Name, path)
	}

	if len(report.Failed) > 0 {
		var b strings.Builder
		for _, f := range report.Failed {
			fmt.Fprintf(&b, "%s: %s\n", f.Path, strings.Join(f.Failures, "; "))
		}
		_ = out.Error("TEST_FAILED",
			fmt.Sprintf("%d of %d scenarios failed", len(report.Failed), report.Total),
			b.String())
		return NewExitError(ExitFailure, "scenarios failed")
	}
	if opts.Format == "json" {
		return out.Success(report)
	}
	return out.Success(fmt.Sprintf("%d scenarios passed", report.Passed))
}
