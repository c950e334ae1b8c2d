package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avencourt/fixpoint"
	"github.com/avencourt/fixpoint/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Run   string
	Edges bool
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <journal.db>",
		Short: "Inspect a run journal",
		Long: `List the runs recorded in a journal, or dump one run's updates and
dependency edges in journal order.

Example:
  fixpoint trace ./runs.db
  fixpoint trace ./runs.db --run 0191f3a8-7c2e-7f41-b5d2-3e8a90c1d2e3 --edges`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Run, "run", "", "run token to dump (default: list runs)")
	cmd.Flags().BoolVar(&opts.Edges, "edges", false, "include dependency edges in the dump")

	return cmd
}

// TraceDump is the trace command's JSON payload for a single run.
type TraceDump struct {
	Run     string                  `json:"run"`
	Updates []fixpoint.UpdateRecord `json:"updates"`
	Edges   []fixpoint.EdgeRecord   `json:"edges,omitempty"`
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
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

	if opts.Run == "" {
		runs, err := journal.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		if opts.Format == "json" {
			return out.Success(map[string]any{"runs": runs})
		}
		if len(runs) == 0 {
			return out.Success("no runs journaled")
		}
		return out.Success(strings.Join(runs, "\n"))
	}

	dump := TraceDump{Run: opts.Run}
	if dump.Updates, err = journal.Updates(ctx, opts.Run); err != nil {
		return WrapExitError(ExitCommandError, "failed to read updates", err)
	}
	if len(dump.Updates) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", opts.Run))
	}
	if opts.Edges {
		if dump.Edges, err = journal.Edges(ctx, opts.Run); err != nil {
			return WrapExitError(ExitCommandError, "failed to read edges", err)
		}
	}

	if opts.Format == "json" {
		return out.Success(dump)
	}
	return out.Success(formatDump(&dump))
}

func formatDump(dump *TraceDump) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s: %d updates\n", dump.Run, len(dump.Updates))
	for _, u := range dump.Updates {
		marker := " "
		if u.Final {
			marker = "*"
		}
		fmt.Fprintf(&b, "%6d %s (%s, %s) = %s [%s]\n",
			u.Seq, marker, u.Entity, u.Kind, u.Bound, u.Origin)
	}
	if dump.Edges != nil {
		fmt.Fprintf(&b, "%d edges\n", len(dump.Edges))
		for _, e := range dump.Edges {
			fmt.Fprintf(&b, "%6d   (%s, %s) -> (%s, %s)\n",
				e.Seq, e.DependerEntity, e.DependerKind, e.DependeeEntity, e.DependeeKind)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
