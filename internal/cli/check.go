package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avencourt/fixpoint/internal/scenario"
)

// NewCheckCommand creates the check command, which compiles a scenario
// without running it.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <scenario.cue>...",
		Short: "Compile scenarios without solving",
		Long: `Compile one or more CUE scenarios and report errors without running
the solver. Exit code 0 means every scenario compiled.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args, cmd)
		},
	}
	return cmd
}

// CheckReport is the check command's JSON payload.
type CheckReport struct {
	Checked int           `json:"checked"`
	Errors  []CheckResult `json:"errors,omitempty"`
}

// CheckResult is one failed compilation.
type CheckResult struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func runCheck(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	report := CheckReport{Checked: len(paths)}
	for _, path := range paths {
		spec, err := scenario.LoadFile(path)
		if err != nil {
			report.Errors = append(report.Errors, CheckResult{Path: path, Error: err.Error()})
			continue
		}
		out.VerboseLog("%s: scenario %s ok (%d kinds, %d entities, %d rules)",
			path, spec.Name, len(spec.Kinds), len(spec.Entities), len(spec.Rules))
	}

	if len(report.Errors) > 0 {
		_ = out.Error("CHECK_FAILED",
			fmt.Sprintf("%d of %d scenarios failed to compile", len(report.Errors), report.Checked),
			report.Errors)
		return NewExitError(ExitFailure, "check failed")
	}
	if opts.Format == "json" {
		return out.Success(report)
	}
	return out.Success(fmt.Sprintf("%d scenarios ok", report.Checked))
}
