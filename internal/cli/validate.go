package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/avencourt/fixpoint/internal/trace"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Run string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <journal.db>",
		Short: "Check a journaled run for consistency",
		Long: `Check a journaled run: sequence numbers must ascend per slot, no slot
may change after its final bound, and every slot must end final.

Without --run, the most recent run is validated.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run token to validate (default: most recent)")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	out := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	journal, err := trace.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer journal.Close()
	ctx := cmd.Context()

	run := opts.Run
	if run == "" {
		runs, err := journal.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if len(runs) == 0 {
			return NewExitError(ExitCommandError, "journal contains no runs")
		}
		run = runs[0]
		out.VerboseLog("validating most recent run %s", run)
	}

	if err := journal.ValidateRun(ctx, run); err != nil {
		_ = out.Error("VALIDATION_FAILED", fmt.Sprintf("run %s is inconsistent", run), err.Error())
		return NewExitError(ExitFailure, "validation failed")
	}

	if opts.Format == "json" {
		return out.Success(map[string]any{"run": run, "valid": true})
	}
	return out.Success(fmt.Sprintf("run %s: valid", run))
}
